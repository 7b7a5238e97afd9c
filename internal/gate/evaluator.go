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

package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/geovision/geoaccess/internal/audit"
)

// auditKey identifies a (principal, route, allowed-roles) tuple. The
// evaluator fires the unauthorized-access audit event at most once per
// distinct tuple transition; repeat evaluations with an unchanged tuple do
// not re-fire.
type auditKey struct {
	principalID string
	route       string
	roles       string
}

// Evaluator wraps the pure Evaluate function with the stateful concerns a
// hosting application needs: a clock, audit emission for privileged-route
// denials, and the change-detection guard that keeps repeated evaluations
// from flooding the sink.
type Evaluator struct {
	targets RedirectTargets
	sink    audit.Sink
	now     func() time.Time

	decisions     metric.Int64Counter
	auditFailures metric.Int64Counter

	mu      sync.Mutex
	lastKey auditKey
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock injects the clock used for trial computation. Tests pin it.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// WithDecisionCounter records one count per produced decision, attributed
// by kind.
func WithDecisionCounter(c metric.Int64Counter) Option {
	return func(e *Evaluator) {
		e.decisions = c
	}
}

// WithAuditFailureCounter records audit deliveries that returned an error.
func WithAuditFailureCounter(c metric.Int64Counter) Option {
	return func(e *Evaluator) {
		e.auditFailures = c
	}
}

// NewEvaluator creates an evaluator. The sink may be nil when the hosting
// application has no audit target; denials on privileged routes are then
// only logged.
func NewEvaluator(targets RedirectTargets, sink audit.Sink, opts ...Option) (*Evaluator, error) {
	if err := targets.Validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{
		targets: targets,
		sink:    sink,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate runs the decision algorithm and triggers the audit side effect
// for denials on routes that gate the admin role. The side effect never
// blocks or alters the returned decision; delivery failures are swallowed
// and logged.
func (e *Evaluator) Evaluate(ctx context.Context, principal *Principal, authLoading bool, route string, policy AccessPolicy) Decision {
	decision := Evaluate(Input{
		Principal:   principal,
		AuthLoading: authLoading,
		Route:       route,
		Policy:      policy,
		Now:         e.now(),
	}, e.targets)

	if e.decisions != nil {
		e.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", string(decision.Kind))))
	}

	if decision.Kind == DecisionDeny && policy.AllowsRole(RoleAdmin) {
		e.recordDenial(ctx, principal, route, policy)
	}

	return decision
}

// recordDenial emits the unauthorized_access_attempt event unless the
// (principal, route, roles) tuple is unchanged since the last emission.
func (e *Evaluator) recordDenial(ctx context.Context, principal *Principal, route string, policy AccessPolicy) {
	key := auditKey{
		principalID: principal.ID,
		route:       route,
		roles:       policy.RolesKey(),
	}

	e.mu.Lock()
	if key == e.lastKey {
		e.mu.Unlock()
		return
	}
	e.lastKey = key
	e.mu.Unlock()

	if e.sink == nil {
		slog.WarnContext(ctx, "unauthorized access attempt (no audit sink configured)",
			slog.String("principal_id", principal.ID),
			slog.String("route", route),
		)
		return
	}

	now := e.now()
	event := audit.Event{
		ID:          audit.NewEventID(now),
		Action:      audit.ActionUnauthorizedAccess,
		PrincipalID: principal.ID,
		Route:       route,
		Timestamp:   now,
		Metadata:    map[string]any{"allowed_roles": key.roles},
	}

	// Delivery runs detached: a sign-out or request cancellation must not
	// abort an attempt that is already in flight, and its outcome must not
	// leak back into a newer decision.
	go func(ctx context.Context) {
		if err := e.sink.Record(ctx, event); err != nil {
			if e.auditFailures != nil {
				e.auditFailures.Add(ctx, 1)
			}
			slog.ErrorContext(ctx, "audit delivery failed",
				slog.String("audit_id", event.ID),
				slog.String("principal_id", event.PrincipalID),
				slog.String("route", event.Route),
				slog.String("error", err.Error()),
			)
		}
	}(context.WithoutCancel(ctx))
}
