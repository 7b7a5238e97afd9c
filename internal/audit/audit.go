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

package audit

import (
	"context"
	"crypto/rand"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Actions
const (
	ActionUnauthorizedAccess = "unauthorized_access_attempt"
	ActionRoleChanged        = "role_changed"
	ActionTierChanged        = "subscription_tier_changed"
	ActionOrgCreated         = "organization_created"
	ActionOrgUpdated         = "organization_updated"
	ActionAPIKeyUsed         = "api_key_used"
)

// Event is an immutable record of an access-control occurrence. Events are
// created once, handed to a Sink, and never mutated or read back by the
// code that produced them.
type Event struct {
	ID          string
	Action      string
	PrincipalID string
	Route       string
	Metadata    map[string]any
	Timestamp   time.Time
	IPAddress   string
	UserAgent   string
}

// NewEventID returns a lexically sortable event identifier so the
// append-only log orders by creation time without a secondary index.
func NewEventID(ts time.Time) string {
	return ulid.MustNew(ulid.Timestamp(ts), rand.Reader).String()
}

// Sink is the append-only delivery target for audit events. Delivery is
// fire-and-forget from the caller's perspective: a returned error is for
// local logging only and must never alter an access decision.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Filter narrows an audit log query.
type Filter struct {
	PrincipalID string
	Route       string
	Action      string
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

// Store is a Sink whose events can be read back, e.g. for the admin
// console's audit view.
type Store interface {
	Sink
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// SlogSink implements Sink by writing structured records to the global
// logger.
type SlogSink struct{}

// NewSlogSink creates a new slog-backed sink.
func NewSlogSink() *SlogSink {
	return &SlogSink{}
}

// Record writes the event at INFO level with the "audit" component.
func (s *SlogSink) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_id", event.ID),
		slog.String("action", event.Action),
		slog.String("principal_id", event.PrincipalID),
		slog.String("route", event.Route),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
	return nil
}

// FanoutSink delivers each event to every wrapped sink. The first error is
// returned after all sinks have been attempted.
type FanoutSink struct {
	sinks []Sink
}

// NewFanoutSink creates a sink that fans out to all given sinks.
func NewFanoutSink(sinks ...Sink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

// Record delivers to every sink, best effort.
func (f *FanoutSink) Record(ctx context.Context, event Event) error {
	var first error
	for _, s := range f.sinks {
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// isSecret checks if a metadata key likely contains a secret
func isSecret(key string) bool {
	lower := strings.ToLower(key)
	secrets := []string{"password", "secret", "token", "key", "hash", "credential", "authorization"}
	for _, s := range secrets {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
