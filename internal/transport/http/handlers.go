// @title GeoVision Access API
// @version 1.0.0
// @description Authorization gate for the GeoVision AI Miner platform
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache-2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name geoaccess_session

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/geovision/geoaccess/internal/audit"
	"github.com/geovision/geoaccess/internal/gate"
	"github.com/geovision/geoaccess/internal/identity"
	"github.com/geovision/geoaccess/internal/observability/logger"
	"github.com/geovision/geoaccess/internal/observability/metrics"
	"github.com/geovision/geoaccess/internal/org"
	"github.com/geovision/geoaccess/internal/session"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	sessionService  *session.Service
	orgService      *org.Service
	evaluator       *gate.Evaluator
	auditStore      audit.Store
	sessionConfig   SessionConfig
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
	MaxAge         int
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	sessionService *session.Service,
	orgService *org.Service,
	evaluator *gate.Evaluator,
	auditStore audit.Store,
	sessionConfig SessionConfig,
) *Handler {
	return &Handler{
		identityService: identityService,
		sessionService:  sessionService,
		orgService:      orgService,
		evaluator:       evaluator,
		auditStore:      auditStore,
		sessionConfig:   sessionConfig,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(metrics.Instrument)
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check and scrape endpoint
	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", metrics.PrometheusHandler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.ResolveMiddleware)

		r.Post("/auth/session", h.CreateSession)
		r.Post("/auth/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.RequirePrincipal)
			r.Get("/auth/me", h.Me)
		})

		r.Post("/access/evaluate", h.EvaluateAccess)

		// Admin plane, machine clients only
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.APIKeyMiddleware)

			r.Get("/audit-events", h.ListAuditEvents)
			r.Get("/profiles", h.ListProfiles)
			r.Put("/profiles/{profileID}/role", h.UpdateProfileRole)
			r.Put("/profiles/{profileID}/subscription", h.UpdateProfileSubscription)

			r.Route("/orgs", func(r chi.Router) {
				r.Post("/", h.CreateOrg)
				r.Get("/", h.ListOrgs)
				r.Get("/{orgID}", h.GetOrg)
				r.Put("/{orgID}", h.UpdateOrg)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "geoaccess",
	})
}

// CreateSessionRequest carries the identity-provider token to exchange
type CreateSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// CreateSession exchanges a verified identity token for a session cookie
// @Summary Create Session
// @Description Exchange an identity-provider token for a session
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "Token"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/session [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims, err := h.identityService.VerifyToken(req.Token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	// The profile row is authoritative; the token only identifies the subject.
	profile, err := h.identityService.Profile(r.Context(), claims.Subject)
	if err != nil {
		if err == identity.ErrProfileNotFound {
			respondError(w, http.StatusUnauthorized, "no profile for subject")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load profile", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	sess, err := h.sessionService.Create(r.Context(), profile.ID, getIPAddress(r), r.UserAgent())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create session", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setSessionCookie(w, sess.ID)

	respondJSON(w, http.StatusOK, map[string]any{
		"profile_id": profile.ID,
		"email":      profile.Email,
	})
}

// Logout destroys the current session
// @Summary Logout
// @Description Destroy the current session
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := GetSessionID(r.Context()); sessionID != "" {
		if err := h.sessionService.Delete(r.Context(), sessionID); err != nil {
			slog.ErrorContext(r.Context(), "failed to delete session", logger.Error(err))
		}
	}

	h.clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}

// Me returns the resolved principal and trial state
// @Summary Current Principal
// @Description Retrieve the resolved principal for the session
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Router /auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal := GetPrincipal(r.Context())

	now := time.Now()
	days, hasTrial := gate.DaysLeft(principal.TrialEnd, now)

	body := map[string]any{
		"principal_id":        principal.ID,
		"role":                principal.Role,
		"subscription_tier":   principal.SubscriptionTier,
		"subscription_active": principal.SubscriptionActive,
	}
	if hasTrial {
		body["trial_days_left"] = days
		body["trial_active"] = gate.IsTrialActive(principal.TrialEnd, now)
	}

	respondJSON(w, http.StatusOK, body)
}

// EvaluateRequest describes an access check for a hosted route
type EvaluateRequest struct {
	Route  string        `json:"route" binding:"required"`
	Policy PolicyPayload `json:"policy"`
}

// PolicyPayload is the wire form of an access policy
type PolicyPayload struct {
	RequiresActiveSubscription bool     `json:"requires_active_subscription"`
	AllowedRoles               []string `json:"allowed_roles"`
	StrictRoleMatch            bool     `json:"strict_role_match"`
}

// EvaluateAccess evaluates a route policy for the calling principal
// @Summary Evaluate Access
// @Description Evaluate a route policy against the resolved principal
// @Tags Access
// @Accept json
// @Produce json
// @Param request body EvaluateRequest true "Route and policy"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /access/evaluate [post]
func (h *Handler) EvaluateAccess(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Route == "" {
		respondError(w, http.StatusBadRequest, "route is required")
		return
	}

	roles := make([]gate.Role, 0, len(req.Policy.AllowedRoles))
	for _, role := range req.Policy.AllowedRoles {
		roles = append(roles, gate.Role(role))
	}

	policy, err := gate.NewPolicy(req.Policy.RequiresActiveSubscription, roles, req.Policy.StrictRoleMatch)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	decision := h.evaluator.Evaluate(r.Context(), GetPrincipal(r.Context()), false, req.Route, policy)

	respondJSON(w, http.StatusOK, decisionPayload(decision))
}

// decisionPayload converts a decision into its wire form.
func decisionPayload(d gate.Decision) map[string]any {
	body := map[string]any{
		"decision": string(d.Kind),
	}
	if d.RedirectTo != "" {
		body["redirect_to"] = d.RedirectTo
	}
	if d.ReturnTo != "" {
		body["return_to"] = d.ReturnTo
	}
	if d.Message != "" {
		body["message"] = d.Message
	}
	if len(d.AllowedRoles) > 0 {
		roles := make([]string, len(d.AllowedRoles))
		for i, role := range d.AllowedRoles {
			roles[i] = string(role)
		}
		body["allowed_roles"] = roles
	}
	return body
}

// writeDecision maps a non-allow decision onto an HTTP status.
func writeDecision(w http.ResponseWriter, d gate.Decision) {
	status := http.StatusForbidden
	switch d.Kind {
	case gate.DecisionPending:
		status = http.StatusServiceUnavailable
	case gate.DecisionRedirectToLogin:
		status = http.StatusUnauthorized
	case gate.DecisionRedirectToUpgrade:
		status = http.StatusPaymentRequired
	}
	respondJSON(w, status, decisionPayload(d))
}

// Helper functions
func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sessionID,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: h.sessionConfig.CookieHTTPOnly,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   h.sessionConfig.MaxAge,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
