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
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/geovision/geoaccess/internal/gate"
	"github.com/geovision/geoaccess/internal/identity"
	"github.com/geovision/geoaccess/internal/observability/logger"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Log request start
			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// ResolveMiddleware resolves the session cookie into a principal and stores
// it in the request context. A missing or invalid session is not an error
// here: the request continues without a principal and the gate decides what
// an anonymous visitor may see.
func (h *Handler) ResolveMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := h.getSessionFromCookie(r)
		if sessionID == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := h.sessionService.Get(r.Context(), sessionID)
		if err != nil {
			h.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		principal, err := h.identityService.Resolve(r.Context(), sess.ProfileID)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to resolve principal",
				logger.Error(err),
				logger.SessionID(sess.ID),
			)
			next.ServeHTTP(w, r)
			return
		}

		if err := h.sessionService.Refresh(r.Context(), sessionID); err != nil {
			slog.ErrorContext(r.Context(), "failed to refresh session", logger.Error(err))
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		ctx = context.WithValue(ctx, sessionIDKey, sess.ID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAccess evaluates the route policy against the resolved principal
// and translates the decision into an HTTP response. Only an allow reaches
// the wrapped handler.
func (h *Handler) RequireAccess(policy gate.AccessPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			decision := h.evaluator.Evaluate(r.Context(), principal, false, r.URL.Path, policy)

			if decision.Kind == gate.DecisionAllow {
				next.ServeHTTP(w, r)
				return
			}

			writeDecision(w, decision)
		})
	}
}

// RequirePrincipal rejects requests that did not resolve to a principal.
func (h *Handler) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipal(r.Context()) == nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// APIKeyMiddleware authenticates machine clients of the admin plane via the
// X-API-Key header.
func (h *Handler) APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("X-API-Key")
		if presented == "" {
			respondError(w, http.StatusUnauthorized, "X-API-Key header is required")
			return
		}

		key, err := h.identityService.AuthenticateAPIKey(r.Context(), presented)
		if err != nil {
			if err != identity.ErrInvalidAPIKey {
				slog.ErrorContext(r.Context(), "api key authentication failed", logger.Error(err))
			}
			respondError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyIDKey, key.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
