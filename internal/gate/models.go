// Copyright 2026 The GeoVision Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Domain errors
var (
	ErrUnknownRole    = errors.New("unknown role in policy")
	ErrDuplicateRole  = errors.New("duplicate role in policy")
	ErrMissingTargets = errors.New("redirect targets are required")
)

// Principal is the authorization-relevant projection of an authenticated
// identity. Absence of a Principal (nil) means "not authenticated" and is a
// distinct state from a Principal with no privileges.
type Principal struct {
	ID                 string
	Role               Role
	SubscriptionTier   Tier
	TrialEnd           *time.Time // nil means the account never had a trial
	SubscriptionActive bool
}

// AccessPolicy is the declarative requirement attached to a protected
// resource. It is resolved by the caller before a decision is requested;
// the gate never infers a policy from the route.
//
// Authentication is always required for gated resources, so the policy does
// not carry a separate flag for it.
type AccessPolicy struct {
	// RequiresActiveSubscription additionally demands an active paid
	// subscription or an active trial.
	RequiresActiveSubscription bool

	// AllowedRoles is the set of roles that satisfy the policy. Empty means
	// any authenticated role.
	AllowedRoles []Role

	// StrictRoleMatch disables the implicit admin override. When false,
	// RoleAdmin passes regardless of AllowedRoles membership.
	StrictRoleMatch bool
}

// NewPolicy validates and returns an AccessPolicy. Malformed policies are
// programmer error and must be rejected at construction time, never at
// decision time.
func NewPolicy(requiresActiveSubscription bool, allowedRoles []Role, strictRoleMatch bool) (AccessPolicy, error) {
	seen := make(map[Role]bool, len(allowedRoles))
	for _, r := range allowedRoles {
		if _, ok := ParseRole(string(r)); !ok {
			return AccessPolicy{}, fmt.Errorf("%w: %q", ErrUnknownRole, r)
		}
		if seen[r] {
			return AccessPolicy{}, fmt.Errorf("%w: %q", ErrDuplicateRole, r)
		}
		seen[r] = true
	}
	return AccessPolicy{
		RequiresActiveSubscription: requiresActiveSubscription,
		AllowedRoles:               allowedRoles,
		StrictRoleMatch:            strictRoleMatch,
	}, nil
}

// MustPolicy is NewPolicy that panics on a malformed policy. Intended for
// package-level route-policy tables where a bad policy should fail fast at
// startup.
func MustPolicy(requiresActiveSubscription bool, allowedRoles []Role, strictRoleMatch bool) AccessPolicy {
	p, err := NewPolicy(requiresActiveSubscription, allowedRoles, strictRoleMatch)
	if err != nil {
		panic(err)
	}
	return p
}

// AllowsRole reports whether the role is listed in AllowedRoles.
func (p AccessPolicy) AllowsRole(role Role) bool {
	for _, r := range p.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// RolesKey returns a stable, order-independent key for the AllowedRoles set.
// Used by the evaluator's audit change-detection guard.
func (p AccessPolicy) RolesKey() string {
	names := make([]string, len(p.AllowedRoles))
	for i, r := range p.AllowedRoles {
		names[i] = string(r)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// RedirectTargets holds the route identifiers used for Decision redirects.
// They are configuration supplied by the hosting application, never computed
// by the gate.
type RedirectTargets struct {
	Login   string
	Upgrade string
}

// Validate checks that both targets are set.
func (t RedirectTargets) Validate() error {
	if t.Login == "" || t.Upgrade == "" {
		return ErrMissingTargets
	}
	return nil
}
