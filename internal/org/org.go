package org

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrOrgNotFound      = errors.New("organization not found")
	ErrOrgAlreadyExists = errors.New("organization already exists")
	ErrInvalidOrgName   = errors.New("organization name is required")
	ErrInvalidOrgStatus = errors.New("invalid organization status")
)

// Organization groups the profiles of a single mining company or agency.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Repository defines the interface for organization persistence
type Repository interface {
	// Create creates a new organization
	Create(ctx context.Context, o *Organization) error

	// GetByID retrieves an organization by ID
	GetByID(ctx context.Context, id string) (*Organization, error)

	// GetByName retrieves an organization by name
	GetByName(ctx context.Context, name string) (*Organization, error)

	// Update updates organization information
	Update(ctx context.Context, o *Organization) error

	// List retrieves organizations with pagination
	List(ctx context.Context, limit, offset int) ([]*Organization, error)
}
