package org

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/geovision/geoaccess/internal/audit"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, o *Organization) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Organization), args.Error(1)
}

func (m *mockRepo) GetByName(ctx context.Context, name string) (*Organization, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Organization), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, o *Organization) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Organization, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*Organization), args.Error(1)
}

type captureSink struct {
	events []audit.Event
}

func (c *captureSink) Record(ctx context.Context, event audit.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestOrg_CreateValidatesAndAudits(t *testing.T) {
	repo := new(mockRepo)
	sink := &captureSink{}
	svc := NewService(repo, sink)
	ctx := context.Background()

	repo.On("GetByID", ctx, "acme-mining").Return(nil, ErrOrgNotFound)
	repo.On("Create", ctx, mock.AnythingOfType("*org.Organization")).Return(nil)

	o, err := svc.Create(ctx, "admin-1", "acme-mining", "Acme Mining Ltd")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, o.Status)

	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.ActionOrgCreated, sink.events[0].Action)
	assert.Equal(t, "admin-1", sink.events[0].PrincipalID)

	_, err = svc.Create(ctx, "admin-1", "", "No ID")
	assert.Error(t, err)

	repo.AssertExpectations(t)
}

func TestOrg_CreateRejectsDuplicate(t *testing.T) {
	repo := new(mockRepo)
	svc := NewService(repo, &captureSink{})
	ctx := context.Background()

	existing := &Organization{ID: "acme-mining", Name: "Acme"}
	repo.On("GetByID", ctx, "acme-mining").Return(existing, nil)

	_, err := svc.Create(ctx, "admin-1", "acme-mining", "Acme Again")
	assert.ErrorIs(t, err, ErrOrgAlreadyExists)
}

func TestOrg_SetStatusValidates(t *testing.T) {
	repo := new(mockRepo)
	sink := &captureSink{}
	svc := NewService(repo, sink)
	ctx := context.Background()

	existing := &Organization{ID: "acme-mining", Name: "Acme", Status: StatusActive}
	repo.On("GetByID", ctx, "acme-mining").Return(existing, nil)
	repo.On("Update", ctx, mock.AnythingOfType("*org.Organization")).Return(nil)

	o, err := svc.SetStatus(ctx, "admin-1", "acme-mining", StatusInactive)
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, o.Status)
	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.ActionOrgUpdated, sink.events[0].Action)

	_, err = svc.SetStatus(ctx, "admin-1", "acme-mining", "dormant")
	assert.Error(t, err)
}
