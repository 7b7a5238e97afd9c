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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/geovision/geoaccess/internal/audit"
	"github.com/geovision/geoaccess/internal/gate"
)

// Service resolves authenticated identities into gate Principals and
// authenticates machine clients. It sits at the trust boundary: free-form
// role and tier strings from the profile store are normalized onto the
// closed enumerations here and nowhere else.
type Service struct {
	profiles ProfileRepository
	cache    ProfileCache // optional
	verifier *TokenVerifier
	keys     APIKeyRepository
	hasher   *KeyHasher
	auditor  audit.Sink
	now      func() time.Time
}

// NewService creates a new identity service. cache may be nil.
func NewService(
	profiles ProfileRepository,
	cache ProfileCache,
	verifier *TokenVerifier,
	keys APIKeyRepository,
	hasher *KeyHasher,
	auditor audit.Sink,
) *Service {
	return &Service{
		profiles: profiles,
		cache:    cache,
		verifier: verifier,
		keys:     keys,
		hasher:   hasher,
		auditor:  auditor,
		now:      time.Now,
	}
}

// VerifyToken validates a BaaS-issued access token and returns its claims.
func (s *Service) VerifyToken(raw string) (*TokenClaims, error) {
	return s.verifier.Verify(raw)
}

// Resolve loads the profile for an identity and projects it into a
// Principal. Unknown role or tier values are normalized to the safe
// defaults and logged; they never reach the gate raw.
func (s *Service) Resolve(ctx context.Context, id string) (*gate.Principal, error) {
	profile, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.project(ctx, profile), nil
}

// Profile returns the raw profile row for an identity.
func (s *Service) Profile(ctx context.Context, id string) (*Profile, error) {
	return s.lookup(ctx, id)
}

func (s *Service) lookup(ctx context.Context, id string) (*Profile, error) {
	if s.cache != nil {
		if profile, ok := s.cache.Get(ctx, id); ok {
			return profile, nil
		}
	}

	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, profile)
	}
	return profile, nil
}

func (s *Service) project(ctx context.Context, profile *Profile) *gate.Principal {
	role, ok := gate.ParseRole(profile.Role)
	if !ok {
		slog.WarnContext(ctx, "unknown role on profile, normalizing",
			slog.String("profile_id", profile.ID),
			slog.String("raw_role", profile.Role),
		)
		role = gate.NormalizeRole(profile.Role)
	}

	return &gate.Principal{
		ID:                 profile.ID,
		Role:               role,
		SubscriptionTier:   gate.NormalizeTier(profile.SubscriptionTier),
		TrialEnd:           profile.TrialEnd,
		SubscriptionActive: profile.SubscriptionActive,
	}
}

// ChangeRole updates a profile's role, invalidates the cache entry and
// writes an audit record naming the acting administrator.
func (s *Service) ChangeRole(ctx context.Context, actorID, profileID, newRole string) error {
	if _, ok := gate.ParseRole(newRole); !ok {
		return ErrUnknownRole
	}

	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return err
	}

	if err := s.profiles.UpdateRole(ctx, profileID, newRole); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, profileID)
	}

	now := s.now()
	if err := s.auditor.Record(ctx, audit.Event{
		ID:          audit.NewEventID(now),
		Action:      audit.ActionRoleChanged,
		PrincipalID: actorID,
		Timestamp:   now,
		Metadata: map[string]any{
			"profile_id": profileID,
			"old_role":   profile.Role,
			"new_role":   newRole,
		},
	}); err != nil {
		slog.ErrorContext(ctx, "failed to record role change", slog.String("error", err.Error()))
	}

	return nil
}

// ChangeSubscription updates tier and active flag, invalidating the cache.
func (s *Service) ChangeSubscription(ctx context.Context, actorID, profileID, tier string, active bool) error {
	if _, ok := gate.ParseTier(tier); !ok {
		return ErrUnknownTier
	}

	if err := s.profiles.UpdateSubscription(ctx, profileID, tier, active); err != nil {
		if err == ErrProfileNotFound {
			return err
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, profileID)
	}

	now := s.now()
	if err := s.auditor.Record(ctx, audit.Event{
		ID:          audit.NewEventID(now),
		Action:      audit.ActionTierChanged,
		PrincipalID: actorID,
		Timestamp:   now,
		Metadata: map[string]any{
			"profile_id": profileID,
			"tier":       tier,
			"active":     active,
		},
	}); err != nil {
		slog.ErrorContext(ctx, "failed to record subscription change", slog.String("error", err.Error()))
	}

	return nil
}

// ListProfiles returns profile rows, paged.
func (s *Service) ListProfiles(ctx context.Context, limit, offset int) ([]*Profile, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.profiles.List(ctx, limit, offset)
}

// AuthenticateAPIKey validates a presented key of the form "<id>.<secret>"
// and returns the stored key record on success.
func (s *Service) AuthenticateAPIKey(ctx context.Context, presented string) (*APIKey, error) {
	id, secret, found := strings.Cut(presented, ".")
	if !found || id == "" || secret == "" {
		return nil, ErrInvalidAPIKey
	}

	key, err := s.keys.GetByID(ctx, id)
	if err != nil {
		return nil, ErrInvalidAPIKey
	}

	ok, err := s.hasher.Verify(secret, key.SecretHash)
	if err != nil || !ok {
		return nil, ErrInvalidAPIKey
	}

	now := s.now()
	if err := s.keys.TouchLastUsed(ctx, key.ID, now); err != nil {
		slog.WarnContext(ctx, "failed to update api key last-used time",
			slog.String("key_id", key.ID),
			slog.String("error", err.Error()),
		)
	}

	return key, nil
}
