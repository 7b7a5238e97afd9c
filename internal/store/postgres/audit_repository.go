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
	"fmt"
	"time"

	"github.com/geovision/geoaccess/internal/audit"
)

// AuditRepository implements audit.Store on the append-only audit_events
// table.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends an audit event
func (r *AuditRepository) Record(ctx context.Context, event audit.Event) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO audit_events (id, action, principal_id, route, metadata, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		event.ID, event.Action, event.PrincipalID, event.Route,
		metadata, event.IPAddress, event.UserAgent, event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	return nil
}

// List retrieves audit events matching the filter, newest first
func (r *AuditRepository) List(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	query := `
		SELECT id, action, principal_id, route, metadata, ip_address, user_agent, created_at
		FROM audit_events
		WHERE 1=1`
	args := []any{}
	idx := 1

	if filter.PrincipalID != "" {
		query += fmt.Sprintf(" AND principal_id = $%d", idx)
		args = append(args, filter.PrincipalID)
		idx++
	}
	if filter.Route != "" {
		query += fmt.Sprintf(" AND route = $%d", idx)
		args = append(args, filter.Route)
		idx++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", idx)
		args = append(args, filter.Action)
		idx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, filter.Since)
		idx++
	}
	if !filter.Until.IsZero() {
		query += fmt.Sprintf(" AND created_at < $%d", idx)
		args = append(args, filter.Until)
		idx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		if err := rows.Scan(
			&e.ID, &e.Action, &e.PrincipalID, &e.Route,
			&e.Metadata, &e.IPAddress, &e.UserAgent, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// DeleteOlderThan removes events recorded before the cutoff. Used by the
// retention job.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM audit_events WHERE created_at < $1
	`, cutoff)

	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}

	return result.RowsAffected(), nil
}
