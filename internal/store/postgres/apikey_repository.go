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

// APIKeyRepository implements identity.APIKeyRepository
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create stores a new API key
func (r *APIKeyRepository) Create(ctx context.Context, key *identity.APIKey) error {
	now := time.Now()

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO api_keys (id, name, secret_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, key.ID, key.Name, key.SecretHash, now)

	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}

	key.CreatedAt = now

	return nil
}

// GetByID retrieves a key by its public identifier
func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*identity.APIKey, error) {
	var key identity.APIKey
	var lastUsedAt sql.NullTime

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, secret_hash, created_at, last_used_at
		FROM api_keys
		WHERE id = $1
	`, id).Scan(&key.ID, &key.Name, &key.SecretHash, &key.CreatedAt, &lastUsedAt)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, identity.ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}

	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		key.LastUsedAt = &t
	}

	return &key, nil
}

// TouchLastUsed updates the last-used timestamp
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE api_keys SET last_used_at = $2 WHERE id = $1
	`, id, at)

	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}

	return nil
}
