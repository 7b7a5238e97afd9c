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

// Package system provides integration tests that run against a real PostgreSQL database.
//
// Test Execution:
//
//	INTEGRATION_TEST=true go test -v ./tests/system/...
//
// Prerequisites:
//
//	docker compose up -d postgres
//
// Test Categories:
//   - ACC-*: Access decision matrix tests
//   - AUD-*: Audit pipeline tests
package system

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovision/geoaccess/internal/audit"
	"github.com/geovision/geoaccess/internal/gate"
	"github.com/geovision/geoaccess/internal/identity"
	"github.com/geovision/geoaccess/internal/store/postgres"
)

// testDB is the shared database connection for integration tests
var testDB *postgres.DB

// TestMain sets up and tears down the test database connection
func TestMain(m *testing.M) {
	// Skip if not integration test
	if os.Getenv("INTEGRATION_TEST") != "true" {
		os.Exit(0)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         getEnvOrDefault("DB_HOST", "localhost"),
		Port:         getEnvOrDefault("DB_PORT", "5432"),
		User:         getEnvOrDefault("DB_USER", "geoaccess"),
		Password:     getEnvOrDefault("DB_PASSWORD", "geoaccess_dev_password"),
		Database:     getEnvOrDefault("DB_NAME", "geoaccess"),
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	testDB = db

	// Apply migrations. Tables may already exist.
	_ = db.Migrate(ctx, postgres.InitialSchema)

	code := m.Run()

	db.Close()
	os.Exit(code)
}

func getEnvOrDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func seedProfile(t *testing.T, p identity.Profile) {
	t.Helper()
	ctx := context.Background()

	repo := postgres.NewProfileRepository(testDB)
	require.NoError(t, repo.Create(ctx, &p))
	t.Cleanup(func() {
		testDB.Pool().Exec(ctx, "DELETE FROM profiles WHERE id = $1", p.ID)
	})
}

// TestPurpose: Validates the full decision matrix against principals persisted in PostgreSQL, resolved through the identity service exactly as the server does.
// Scope: System Integration Test
// Security: Access Control (CWE-862)
// Expected: Each persisted principal receives the decision the matrix prescribes.
// Test Case ID: ACC-01
// Metadata:
//   - Category: Access
//   - Priority: High
//   - Tags: gate, persistence, decision-matrix
func TestSystem_AccessDecisionMatrix(t *testing.T) {
	ctx := context.Background()

	trialEnd := time.Now().Add(5 * 24 * time.Hour)
	expiredTrial := time.Now().Add(-24 * time.Hour)

	seedProfile(t, identity.Profile{
		ID: "sys-subscribed", Email: "sys-subscribed@example.com", Role: "geologist",
		SubscriptionTier: "premium", SubscriptionActive: true,
	})
	seedProfile(t, identity.Profile{
		ID: "sys-trial", Email: "sys-trial@example.com", Role: "drill-team",
		SubscriptionTier: "free", TrialEnd: &trialEnd,
	})
	seedProfile(t, identity.Profile{
		ID: "sys-lapsed", Email: "sys-lapsed@example.com", Role: "geologist",
		SubscriptionTier: "basic", TrialEnd: &expiredTrial,
	})
	seedProfile(t, identity.Profile{
		ID: "sys-admin", Email: "sys-admin@example.com", Role: "admin",
		SubscriptionTier: "premium", SubscriptionActive: true,
	})
	seedProfile(t, identity.Profile{
		ID: "sys-investor", Email: "sys-investor@example.com", Role: "investor",
		SubscriptionTier: "premium", SubscriptionActive: true,
	})

	profileRepo := postgres.NewProfileRepository(testDB)
	auditRepo := postgres.NewAuditRepository(testDB)
	identityService := identity.NewService(profileRepo, nil, nil, nil, nil, auditRepo)

	evaluator, err := gate.NewEvaluator(gate.RedirectTargets{
		Login:   "/login",
		Upgrade: "/dashboard/upgrade",
	}, auditRepo)
	require.NoError(t, err)

	fieldPolicy := gate.MustPolicy(true, []gate.Role{gate.RoleGeologist, gate.RoleDrillTeam}, false)
	strictFieldPolicy := gate.MustPolicy(true, []gate.Role{gate.RoleGeologist, gate.RoleDrillTeam}, true)

	cases := []struct {
		name      string
		profileID string
		policy    gate.AccessPolicy
		want      gate.DecisionKind
	}{
		{"subscribed geologist allowed", "sys-subscribed", fieldPolicy, gate.DecisionAllow},
		{"active trial substitutes for subscription", "sys-trial", fieldPolicy, gate.DecisionAllow},
		{"expired trial redirects to upgrade", "sys-lapsed", fieldPolicy, gate.DecisionRedirectToUpgrade},
		{"admin overrides role list", "sys-admin", fieldPolicy, gate.DecisionAllow},
		{"strict match blocks admin", "sys-admin", strictFieldPolicy, gate.DecisionDeny},
		{"unlisted role denied", "sys-investor", fieldPolicy, gate.DecisionDeny},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			principal, err := identityService.Resolve(ctx, tc.profileID)
			require.NoError(t, err)

			decision := evaluator.Evaluate(ctx, principal, false, "/dashboard/field", tc.policy)
			assert.Equal(t, tc.want, decision.Kind)
		})
	}
}

// TestPurpose: Validates that a denial on an admin-listed policy lands exactly one unauthorized_access_attempt row in the audit table, and that repeats on the same tuple are debounced.
// Scope: System Integration Test
// Security: Audit Trail (CWE-778)
// Expected: One row after repeated identical denials; a second row after the route changes.
// Test Case ID: AUD-01
// Metadata:
//   - Category: Audit
//   - Priority: High
//   - Tags: audit, debounce, persistence
func TestSystem_DenialAuditPipeline(t *testing.T) {
	ctx := context.Background()

	seedProfile(t, identity.Profile{
		ID: "sys-snooper", Email: "sys-snooper@example.com", Role: "geologist",
		SubscriptionTier: "premium", SubscriptionActive: true,
	})
	t.Cleanup(func() {
		testDB.Pool().Exec(ctx, "DELETE FROM audit_events WHERE principal_id = $1", "sys-snooper")
	})

	profileRepo := postgres.NewProfileRepository(testDB)
	auditRepo := postgres.NewAuditRepository(testDB)
	identityService := identity.NewService(profileRepo, nil, nil, nil, nil, auditRepo)

	evaluator, err := gate.NewEvaluator(gate.RedirectTargets{
		Login:   "/login",
		Upgrade: "/dashboard/upgrade",
	}, auditRepo)
	require.NoError(t, err)

	adminPolicy := gate.MustPolicy(false, []gate.Role{gate.RoleAdmin}, true)

	principal, err := identityService.Resolve(ctx, "sys-snooper")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		decision := evaluator.Evaluate(ctx, principal, false, "/admin/console", adminPolicy)
		require.Equal(t, gate.DecisionDeny, decision.Kind)
	}

	countEvents := func() int {
		events, err := auditRepo.List(ctx, audit.Filter{
			PrincipalID: "sys-snooper",
			Action:      audit.ActionUnauthorizedAccess,
		})
		require.NoError(t, err)
		return len(events)
	}

	require.Eventually(t, func() bool { return countEvents() == 1 }, 2*time.Second, 50*time.Millisecond)

	decision := evaluator.Evaluate(ctx, principal, false, "/admin/reports", adminPolicy)
	require.Equal(t, gate.DecisionDeny, decision.Kind)

	require.Eventually(t, func() bool { return countEvents() == 2 }, 2*time.Second, 50*time.Millisecond)
}
