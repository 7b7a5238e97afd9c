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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovision/geoaccess/internal/audit"
	"github.com/geovision/geoaccess/internal/gate"
	"github.com/geovision/geoaccess/internal/identity"
	"github.com/geovision/geoaccess/internal/org"
	"github.com/geovision/geoaccess/internal/session"
)

const (
	testSecret = "test-secret-key-for-transport"
	testIssuer = "geovision-test"
)

// In-memory fakes shared by the transport tests.

type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]*identity.Profile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{profiles: make(map[string]*identity.Profile)}
}

func (m *memProfiles) GetByID(ctx context.Context, id string) (*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, identity.ErrProfileNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memProfiles) GetByEmail(ctx context.Context, email string) (*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.Email == email {
			copied := *p
			return &copied, nil
		}
	}
	return nil, identity.ErrProfileNotFound
}

func (m *memProfiles) Create(ctx context.Context, p *identity.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *p
	m.profiles[p.ID] = &copied
	return nil
}

func (m *memProfiles) UpdateRole(ctx context.Context, id, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return identity.ErrProfileNotFound
	}
	p.Role = role
	return nil
}

func (m *memProfiles) UpdateSubscription(ctx context.Context, id, tier string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return identity.ErrProfileNotFound
	}
	p.SubscriptionTier = tier
	p.SubscriptionActive = active
	return nil
}

func (m *memProfiles) List(ctx context.Context, limit, offset int) ([]*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*identity.Profile
	for _, p := range m.profiles {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*session.Session)}
}

func (m *memSessions) Create(s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *memSessions) Get(id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memSessions) Update(s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return session.ErrSessionNotFound
	}
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *memSessions) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) DeleteByProfileID(profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.ProfileID == profileID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessions) DeleteExpired() error { return nil }

type memAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memAudit) Record(ctx context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memAudit) List(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Event
	for _, e := range m.events {
		if f.PrincipalID != "" && e.PrincipalID != f.PrincipalID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Route != "" && e.Route != f.Route {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type memKeys struct {
	mu   sync.Mutex
	keys map[string]*identity.APIKey
}

func newMemKeys() *memKeys {
	return &memKeys{keys: make(map[string]*identity.APIKey)}
}

func (m *memKeys) Create(ctx context.Context, k *identity.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *k
	m.keys[k.ID] = &copied
	return nil
}

func (m *memKeys) GetByID(ctx context.Context, id string) (*identity.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return nil, identity.ErrInvalidAPIKey
	}
	copied := *k
	return &copied, nil
}

func (m *memKeys) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	return nil
}

type memOrgs struct {
	mu   sync.Mutex
	orgs map[string]*org.Organization
}

func newMemOrgs() *memOrgs {
	return &memOrgs{orgs: make(map[string]*org.Organization)}
}

func (m *memOrgs) Create(ctx context.Context, o *org.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *o
	m.orgs[o.ID] = &copied
	return nil
}

func (m *memOrgs) GetByID(ctx context.Context, id string) (*org.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, org.ErrOrgNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *memOrgs) GetByName(ctx context.Context, name string) (*org.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.Name == name {
			copied := *o
			return &copied, nil
		}
	}
	return nil, org.ErrOrgNotFound
}

func (m *memOrgs) Update(ctx context.Context, o *org.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[o.ID]; !ok {
		return org.ErrOrgNotFound
	}
	copied := *o
	m.orgs[o.ID] = &copied
	return nil
}

func (m *memOrgs) List(ctx context.Context, limit, offset int) ([]*org.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*org.Organization
	for _, o := range m.orgs {
		copied := *o
		out = append(out, &copied)
	}
	return out, nil
}

type testEnv struct {
	handler  *Handler
	router   http.Handler
	profiles *memProfiles
	keys     *memKeys
	auditLog *memAudit
	hasher   *identity.KeyHasher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	profiles := newMemProfiles()
	keys := newMemKeys()
	auditLog := &memAudit{}

	verifier := identity.NewTokenVerifier([]byte(testSecret), testIssuer)
	hasher := identity.NewKeyHasher(1024, 1, 1, 16, 32)

	identityService := identity.NewService(profiles, nil, verifier, keys, hasher, auditLog)
	sessionService := session.NewService(newMemSessions(), time.Hour, 30*time.Minute)
	orgService := org.NewService(newMemOrgs(), auditLog)

	evaluator, err := gate.NewEvaluator(gate.RedirectTargets{
		Login:   "/login",
		Upgrade: "/dashboard/upgrade",
	}, auditLog)
	require.NoError(t, err)

	h := NewHandler(identityService, sessionService, orgService, evaluator, auditLog, SessionConfig{
		CookieName:     "geoaccess_session",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
		MaxAge:         3600,
	})

	return &testEnv{
		handler:  h,
		router:   NewRouter(h, NewRateLimiter(100, 200)),
		profiles: profiles,
		keys:     keys,
		auditLog: auditLog,
		hasher:   hasher,
	}
}

func signTestToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (env *testEnv) seedProfile(t *testing.T, p identity.Profile) {
	t.Helper()
	require.NoError(t, env.profiles.Create(context.Background(), &p))
}

func (env *testEnv) seedAPIKey(t *testing.T, id, secret string) string {
	t.Helper()
	hash, err := env.hasher.Hash(secret)
	require.NoError(t, err)
	require.NoError(t, env.keys.Create(context.Background(), &identity.APIKey{
		ID:         id,
		Name:       "test key",
		SecretHash: hash,
	}))
	return id + "." + secret
}

func (env *testEnv) login(t *testing.T, profileID string) *http.Cookie {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"token": signTestToken(t, profileID)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == "geoaccess_session" && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

// TestPurpose: Validates that a verified identity token can be exchanged for a session and that the resolved principal, including trial state, is visible on /auth/me.
// Scope: HTTP Transport Test
// Security: Session Establishment (CWE-384)
// Expected: A valid token yields a session cookie; /auth/me reflects the profile row, not the token.
// Test Case ID: HTTP-01
// Metadata:
//   - Category: Auth
//   - Priority: High
//   - Tags: session, identity
func TestHTTP_CreateSessionAndMe(t *testing.T) {
	env := newTestEnv(t)

	trialEnd := time.Now().Add(49 * time.Hour)
	env.seedProfile(t, identity.Profile{
		ID:               "profile-1",
		Email:            "geo@example.com",
		Role:             "geologist",
		SubscriptionTier: "free",
		TrialEnd:         &trialEnd,
	})

	cookie := env.login(t, "profile-1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "profile-1", body["principal_id"])
	assert.Equal(t, "geologist", body["role"])
	assert.Equal(t, float64(3), body["trial_days_left"])
	assert.Equal(t, true, body["trial_active"])
}

// TestPurpose: Validates that session creation is refused for tokens with a bad signature and for subjects without a profile row.
// Scope: HTTP Transport Test
// Security: Authentication Bypass (CWE-287)
// Expected: 401 for a forged token and for an unknown subject.
// Test Case ID: HTTP-02
// Metadata:
//   - Category: Auth
//   - Priority: High
//   - Tags: session, token
func TestHTTP_CreateSessionRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "profile-1",
		"iss": testIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := forged.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"forged signature": signed,
		"unknown subject":  signTestToken(t, "nobody"),
	} {
		body, _ := json.Marshal(map[string]string{"token": token})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

// TestPurpose: Validates the evaluate endpoint for an anonymous caller: the decision is a login redirect that remembers the requested route.
// Scope: HTTP Transport Test
// Security: Access Control (CWE-862)
// Expected: 200 with decision redirect_to_login, redirect_to /login and return_to echoing the route.
// Test Case ID: HTTP-03
// Metadata:
//   - Category: Access
//   - Priority: High
//   - Tags: gate, anonymous
func TestHTTP_EvaluateAccessAnonymous(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]any{
		"route": "/dashboard/drilling",
		"policy": map[string]any{
			"requires_active_subscription": true,
			"allowed_roles":                []string{"geologist", "admin"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/access/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var decision map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, "redirect_to_login", decision["decision"])
	assert.Equal(t, "/login", decision["redirect_to"])
	assert.Equal(t, "/dashboard/drilling", decision["return_to"])
}

// TestPurpose: Validates the evaluate endpoint across authenticated principals: subscribed allowed role, lapsed subscription and denied role.
// Scope: HTTP Transport Test
// Security: Access Control (CWE-862)
// Expected: allow, redirect_to_upgrade and deny respectively, with deny carrying the allowed roles.
// Test Case ID: HTTP-04
// Metadata:
//   - Category: Access
//   - Priority: High
//   - Tags: gate, subscription, roles
func TestHTTP_EvaluateAccessPrincipals(t *testing.T) {
	env := newTestEnv(t)

	env.seedProfile(t, identity.Profile{
		ID: "active-geo", Email: "a@example.com", Role: "geologist",
		SubscriptionTier: "premium", SubscriptionActive: true,
	})
	env.seedProfile(t, identity.Profile{
		ID: "lapsed-geo", Email: "b@example.com", Role: "geologist",
		SubscriptionTier: "basic",
	})
	env.seedProfile(t, identity.Profile{
		ID: "investor", Email: "c@example.com", Role: "investor",
		SubscriptionTier: "premium", SubscriptionActive: true,
	})

	cases := []struct {
		name      string
		profileID string
		want      string
	}{
		{"allowed role with subscription", "active-geo", "allow"},
		{"lapsed subscription", "lapsed-geo", "redirect_to_upgrade"},
		{"role not allowed", "investor", "deny"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cookie := env.login(t, tc.profileID)

			body, _ := json.Marshal(map[string]any{
				"route": "/dashboard/drilling",
				"policy": map[string]any{
					"requires_active_subscription": true,
					"allowed_roles":                []string{"geologist", "drill-team"},
				},
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/access/evaluate", bytes.NewReader(body))
			req.AddCookie(cookie)
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)

			var decision map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
			assert.Equal(t, tc.want, decision["decision"])
			if tc.want == "deny" {
				assert.ElementsMatch(t, []any{"geologist", "drill-team"}, decision["allowed_roles"])
			}
		})
	}
}

// TestPurpose: Validates that the admin plane is unreachable without a valid API key and functional with one.
// Scope: HTTP Transport Test
// Security: Missing Authentication for Critical Function (CWE-306)
// Expected: 401 without or with a wrong key; 200 and a profile listing with a valid key.
// Test Case ID: HTTP-05
// Metadata:
//   - Category: Admin
//   - Priority: High
//   - Tags: api-key, admin-plane
func TestHTTP_AdminRequiresAPIKey(t *testing.T) {
	env := newTestEnv(t)
	presented := env.seedAPIKey(t, "ops-key", "super-secret")

	env.seedProfile(t, identity.Profile{ID: "p1", Email: "p1@example.com", Role: "geologist", SubscriptionTier: "free"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/profiles", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/profiles", nil)
	req.Header.Set("X-API-Key", "ops-key.wrong-secret")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/profiles", nil)
	req.Header.Set("X-API-Key", presented)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]ProfilePayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["profiles"], 1)
	assert.Equal(t, "p1", body["profiles"][0].ID)
}

// TestPurpose: Validates the admin role change endpoint end to end: persistence, audit record naming the acting key, and rejection of unknown roles.
// Scope: HTTP Transport Test
// Security: Privilege Management (CWE-269)
// Expected: Role persisted and audited; unknown role returns 400 without side effects.
// Test Case ID: HTTP-06
// Metadata:
//   - Category: Admin
//   - Priority: High
//   - Tags: roles, audit
func TestHTTP_UpdateProfileRole(t *testing.T) {
	env := newTestEnv(t)
	presented := env.seedAPIKey(t, "ops-key", "super-secret")
	env.seedProfile(t, identity.Profile{ID: "p1", Email: "p1@example.com", Role: "geologist", SubscriptionTier: "free"})

	body, _ := json.Marshal(map[string]string{"role": "drill-team"})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/profiles/p1/role", bytes.NewReader(body))
	req.Header.Set("X-API-Key", presented)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated, err := env.profiles.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "drill-team", updated.Role)

	events, err := env.auditLog.List(context.Background(), audit.Filter{Action: audit.ActionRoleChanged})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ops-key", events[0].PrincipalID)

	body, _ = json.Marshal(map[string]string{"role": "wizard"})
	req = httptest.NewRequest(http.MethodPut, "/api/v1/admin/profiles/p1/role", bytes.NewReader(body))
	req.Header.Set("X-API-Key", presented)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestPurpose: Validates organization management through the admin plane: create, duplicate rejection and status change.
// Scope: HTTP Transport Test
// Security: Access Control (CWE-284)
// Expected: 201 on create, 409 on duplicate, 200 with updated status.
// Test Case ID: HTTP-07
// Metadata:
//   - Category: Admin
//   - Priority: Medium
//   - Tags: organizations
func TestHTTP_OrgLifecycle(t *testing.T) {
	env := newTestEnv(t)
	presented := env.seedAPIKey(t, "ops-key", "super-secret")

	create := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"id": "org-1", "name": "Northern Seam Mining"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orgs/", bytes.NewReader(body))
		req.Header.Set("X-API-Key", presented)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusCreated, create().Code)
	assert.Equal(t, http.StatusConflict, create().Code)

	body, _ := json.Marshal(map[string]string{"status": "inactive"})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/orgs/org-1", bytes.NewReader(body))
	req.Header.Set("X-API-Key", presented)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated org.Organization
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "inactive", updated.Status)
}

// TestPurpose: Validates that logging out destroys the session so the cookie no longer resolves to a principal.
// Scope: HTTP Transport Test
// Security: Session Termination (CWE-613)
// Expected: /auth/me returns 401 after logout with the old cookie.
// Test Case ID: HTTP-08
// Metadata:
//   - Category: Auth
//   - Priority: Medium
//   - Tags: session, logout
func TestHTTP_LogoutDestroysSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedProfile(t, identity.Profile{ID: "p1", Email: "p1@example.com", Role: "geologist", SubscriptionTier: "free"})

	cookie := env.login(t, "p1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
