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
	"fmt"
	"strings"
)

// DecisionKind enumerates the gate outcomes. Outcomes are regular values,
// never errors; callers render each kind deterministically.
type DecisionKind string

const (
	// DecisionPending means identity resolution is still in flight. It is
	// not terminal: the caller must re-evaluate once loading completes.
	DecisionPending DecisionKind = "pending"

	// DecisionAllow grants access.
	DecisionAllow DecisionKind = "allow"

	// DecisionRedirectToLogin sends an unauthenticated visitor to sign-in,
	// remembering the originally requested route.
	DecisionRedirectToLogin DecisionKind = "redirect_to_login"

	// DecisionRedirectToUpgrade sends a principal without an active
	// subscription or trial to the upgrade flow.
	DecisionRedirectToUpgrade DecisionKind = "redirect_to_upgrade"

	// DecisionDeny refuses access and carries the roles that would have
	// satisfied the policy.
	DecisionDeny DecisionKind = "deny"
)

// Decision is the tagged outcome of a gate evaluation.
type Decision struct {
	Kind DecisionKind

	// RedirectTo is the target route for the redirect kinds.
	RedirectTo string

	// ReturnTo is the originally requested route, set on login redirects so
	// the visitor lands back where they started.
	ReturnTo string

	// AllowedRoles is populated on deny so callers can explain which roles
	// satisfy the policy.
	AllowedRoles []Role

	// Message is a human-readable explanation, set on deny.
	Message string
}

// Terminal reports whether the decision is final for the given inputs.
// Pending decisions must be re-evaluated.
func (d Decision) Terminal() bool {
	return d.Kind != DecisionPending
}

func pendingDecision() Decision {
	return Decision{Kind: DecisionPending}
}

func allowDecision() Decision {
	return Decision{Kind: DecisionAllow}
}

func loginRedirect(targets RedirectTargets, route string) Decision {
	return Decision{
		Kind:       DecisionRedirectToLogin,
		RedirectTo: targets.Login,
		ReturnTo:   route,
	}
}

func upgradeRedirect(targets RedirectTargets) Decision {
	return Decision{
		Kind:       DecisionRedirectToUpgrade,
		RedirectTo: targets.Upgrade,
	}
}

func denyDecision(allowed []Role) Decision {
	names := make([]string, len(allowed))
	for i, r := range allowed {
		names[i] = string(r)
	}
	return Decision{
		Kind:         DecisionDeny,
		AllowedRoles: allowed,
		Message:      fmt.Sprintf("access restricted to roles: %s", strings.Join(names, ", ")),
	}
}
