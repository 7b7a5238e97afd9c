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

import "time"

// Input carries everything a single evaluation depends on. The gate is a
// pure function of this value plus the redirect targets: no ambient lookups,
// no hidden clock.
type Input struct {
	// Principal is nil when the visitor is not authenticated.
	Principal *Principal

	// AuthLoading is true while identity resolution is still in flight.
	// The gate must not commit to a terminal decision until it clears.
	AuthLoading bool

	// Route is the requested path. Used only for redirect bookkeeping and
	// audit records, never for policy lookup.
	Route string

	// Policy is the fully resolved requirement for the resource.
	Policy AccessPolicy

	// Now is the clock reading used for trial computation.
	Now time.Time
}

// Evaluate produces a Decision for the input, evaluated in a fixed
// short-circuiting order:
//
//  1. identity still loading        -> Pending
//  2. no principal                  -> RedirectToLogin (no audit)
//  3. subscription required, none   -> RedirectToUpgrade (active trial counts)
//  4. role not in allowed set       -> Deny (admin overrides unless strict)
//  5. otherwise                     -> Allow
//
// Evaluate itself performs no side effects; audit emission for privileged
// denials is the Evaluator's job.
func Evaluate(in Input, targets RedirectTargets) Decision {
	if in.AuthLoading {
		return pendingDecision()
	}

	if in.Principal == nil {
		return loginRedirect(targets, in.Route)
	}

	if in.Policy.RequiresActiveSubscription {
		if !in.Principal.SubscriptionActive && !IsTrialActive(in.Principal.TrialEnd, in.Now) {
			return upgradeRedirect(targets)
		}
	}

	if len(in.Policy.AllowedRoles) > 0 {
		hasPermission := in.Policy.AllowsRole(in.Principal.Role) ||
			(!in.Policy.StrictRoleMatch && in.Principal.Role == RoleAdmin)
		if !hasPermission {
			return denyDecision(in.Policy.AllowedRoles)
		}
	}

	return allowDecision()
}
