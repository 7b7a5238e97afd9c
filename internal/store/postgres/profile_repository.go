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

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/geovision/geoaccess/internal/identity"
)

// ProfileRepository implements identity.ProfileRepository
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create creates a new profile row
func (r *ProfileRepository) Create(ctx context.Context, p *identity.Profile) error {
	now := time.Now()

	var orgID any
	if p.OrgID != "" {
		orgID = p.OrgID
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO profiles (
			id, email, full_name, role, org_id,
			subscription_tier, trial_end, subscription_active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		p.ID, p.Email, p.FullName, p.Role, orgID,
		p.SubscriptionTier, p.TrialEnd, p.SubscriptionActive,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	p.CreatedAt = now
	p.UpdatedAt = now

	return nil
}

// GetByID retrieves a profile by identity ID
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*identity.Profile, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

// GetByEmail retrieves a profile by email
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*identity.Profile, error) {
	return r.get(ctx, `WHERE email = $1`, email)
}

func (r *ProfileRepository) get(ctx context.Context, where string, arg any) (*identity.Profile, error) {
	var p identity.Profile
	var orgID sql.NullString
	var trialEnd sql.NullTime

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, email, full_name, role, org_id,
			subscription_tier, trial_end, subscription_active,
			created_at, updated_at
		FROM profiles
	`+where, arg).Scan(
		&p.ID, &p.Email, &p.FullName, &p.Role, &orgID,
		&p.SubscriptionTier, &trialEnd, &p.SubscriptionActive,
		&p.CreatedAt, &p.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if orgID.Valid {
		p.OrgID = orgID.String
	}
	if trialEnd.Valid {
		t := trialEnd.Time
		p.TrialEnd = &t
	}

	return &p, nil
}

// UpdateRole changes the role on a profile
func (r *ProfileRepository) UpdateRole(ctx context.Context, id, role string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE profiles SET role = $2, updated_at = NOW()
		WHERE id = $1
	`, id, role)

	if err != nil {
		return fmt.Errorf("failed to update profile role: %w", err)
	}

	if result.RowsAffected() == 0 {
		return identity.ErrProfileNotFound
	}

	return nil
}

// UpdateSubscription changes tier and active flag
func (r *ProfileRepository) UpdateSubscription(ctx context.Context, id, tier string, active bool) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE profiles SET subscription_tier = $2, subscription_active = $3, updated_at = NOW()
		WHERE id = $1
	`, id, tier, active)

	if err != nil {
		return fmt.Errorf("failed to update profile subscription: %w", err)
	}

	if result.RowsAffected() == 0 {
		return identity.ErrProfileNotFound
	}

	return nil
}

// List retrieves profiles, paged
func (r *ProfileRepository) List(ctx context.Context, limit, offset int) ([]*identity.Profile, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, email, full_name, role, org_id,
			subscription_tier, trial_end, subscription_active,
			created_at, updated_at
		FROM profiles
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*identity.Profile
	for rows.Next() {
		var p identity.Profile
		var orgID sql.NullString
		var trialEnd sql.NullTime

		if err := rows.Scan(
			&p.ID, &p.Email, &p.FullName, &p.Role, &orgID,
			&p.SubscriptionTier, &trialEnd, &p.SubscriptionActive,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}

		if orgID.Valid {
			p.OrgID = orgID.String
		}
		if trialEnd.Valid {
			t := trialEnd.Time
			p.TrialEnd = &t
		}

		profiles = append(profiles, &p)
	}

	return profiles, rows.Err()
}
