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

package org

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/geovision/geoaccess/internal/audit"
)

// Service provides organization management business logic
type Service struct {
	repo    Repository
	auditor audit.Sink
}

// NewService creates a new organization service
func NewService(repo Repository, auditor audit.Sink) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
	}
}

// Create creates a new organization
func (s *Service) Create(ctx context.Context, actorID, id, name string) (*Organization, error) {
	if id == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	if name == "" {
		return nil, ErrInvalidOrgName
	}

	if _, err := s.repo.GetByID(ctx, id); err == nil {
		return nil, ErrOrgAlreadyExists
	}

	now := time.Now()
	o := &Organization{
		ID:        id,
		Name:      name,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	s.record(ctx, actorID, audit.ActionOrgCreated, map[string]any{"org_id": id, "name": name})

	return o, nil
}

// Get retrieves an organization by ID
func (s *Service) Get(ctx context.Context, id string) (*Organization, error) {
	return s.repo.GetByID(ctx, id)
}

// List lists organizations with pagination
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Organization, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

// Rename changes an organization's display name
func (s *Service) Rename(ctx context.Context, actorID, id, name string) (*Organization, error) {
	if name == "" {
		return nil, ErrInvalidOrgName
	}

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	o.Name = name
	o.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}

	s.record(ctx, actorID, audit.ActionOrgUpdated, map[string]any{"org_id": id, "name": name})

	return o, nil
}

// SetStatus activates or deactivates an organization
func (s *Service) SetStatus(ctx context.Context, actorID, id, status string) (*Organization, error) {
	if status != StatusActive && status != StatusInactive {
		return nil, ErrInvalidOrgStatus
	}

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	o.Status = status
	o.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}

	s.record(ctx, actorID, audit.ActionOrgUpdated, map[string]any{"org_id": id, "status": status})

	return o, nil
}

func (s *Service) record(ctx context.Context, actorID, action string, metadata map[string]any) {
	now := time.Now()
	if err := s.auditor.Record(ctx, audit.Event{
		ID:          audit.NewEventID(now),
		Action:      action,
		PrincipalID: actorID,
		Timestamp:   now,
		Metadata:    metadata,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to record organization audit event", slog.String("error", err.Error()))
	}
}
