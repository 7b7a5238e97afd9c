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

// -----------------------------------------------------------------------------
// Role Constants
// These are the canonical persona names stored on profile rows.
// -----------------------------------------------------------------------------

// Role is the closed set of personas a principal can hold. A principal holds
// exactly one role at a time; RoleAdmin passes any role check unless the
// policy demands an exact match.
type Role string

const (
	// RoleGeologist is the base exploration persona.
	RoleGeologist Role = "geologist"

	// RoleDrillTeam covers field drilling crews.
	RoleDrillTeam Role = "drill-team"

	// RoleGovernment covers regulatory reviewers.
	RoleGovernment Role = "government"

	// RoleInvestor covers read-mostly stakeholder accounts.
	RoleInvestor Role = "investor"

	// RoleAdmin is the platform administrator persona.
	RoleAdmin Role = "admin"
)

// AllRoles lists every valid role. Used for policy validation and seeding.
var AllRoles = []Role{RoleGeologist, RoleDrillTeam, RoleGovernment, RoleInvestor, RoleAdmin}

// ParseRole maps a raw role string onto the closed enumeration.
func ParseRole(s string) (Role, bool) {
	for _, r := range AllRoles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// NormalizeRole maps a raw role string onto the closed enumeration, falling
// back to the least-privileged persona for values the identity provider
// boundary does not recognize. Free-form role strings must never travel
// deeper than this function.
func NormalizeRole(s string) Role {
	if r, ok := ParseRole(s); ok {
		return r
	}
	return RoleGeologist
}

// -----------------------------------------------------------------------------
// Subscription Tier Constants
// -----------------------------------------------------------------------------

// Tier is the closed set of subscription tiers.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// ParseTier maps a raw tier string onto the closed enumeration.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierFree, TierBasic, TierPremium:
		return Tier(s), true
	}
	return "", false
}

// NormalizeTier falls back to the free tier for unknown values.
func NormalizeTier(s string) Tier {
	if t, ok := ParseTier(s); ok {
		return t
	}
	return TierFree
}
