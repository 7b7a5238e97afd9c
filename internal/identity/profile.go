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

package identity

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidToken    = errors.New("invalid access token")
	ErrInvalidAPIKey   = errors.New("invalid api key")
	ErrUnknownRole     = errors.New("unknown role")
	ErrUnknownTier     = errors.New("unknown subscription tier")
)

// Profile is the per-identity row persisted by the profile store: role,
// organization, subscription tier and trial end date. The profile row is the
// authoritative source for authorization attributes; token claims only
// identify the subject.
type Profile struct {
	ID                 string
	Email              string
	FullName           string
	Role               string // raw value; normalized at the gate boundary
	OrgID              string
	SubscriptionTier   string
	TrialEnd           *time.Time
	SubscriptionActive bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProfileRepository defines the interface for profile persistence
type ProfileRepository interface {
	// GetByID retrieves a profile by identity ID
	GetByID(ctx context.Context, id string) (*Profile, error)

	// GetByEmail retrieves a profile by email
	GetByEmail(ctx context.Context, email string) (*Profile, error)

	// Create creates a new profile row
	Create(ctx context.Context, profile *Profile) error

	// UpdateRole changes the role on a profile
	UpdateRole(ctx context.Context, id, role string) error

	// UpdateSubscription changes tier and active flag
	UpdateSubscription(ctx context.Context, id, tier string, active bool) error

	// List retrieves profiles, paged
	List(ctx context.Context, limit, offset int) ([]*Profile, error)
}

// ProfileCache is an optional read-through cache in front of the profile
// store. A miss is not an error.
type ProfileCache interface {
	Get(ctx context.Context, id string) (*Profile, bool)
	Set(ctx context.Context, profile *Profile)
	Invalidate(ctx context.Context, id string)
}

// APIKey identifies a machine client of the admin plane. Only the argon2id
// hash of the secret is stored.
type APIKey struct {
	ID         string
	Name       string
	SecretHash string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// APIKeyRepository defines the interface for API key persistence
type APIKeyRepository interface {
	// Create stores a new API key
	Create(ctx context.Context, key *APIKey) error

	// GetByID retrieves a key by its public identifier
	GetByID(ctx context.Context, id string) (*APIKey, error)

	// TouchLastUsed updates the last-used timestamp
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}
