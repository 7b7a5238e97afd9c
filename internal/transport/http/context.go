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

	"github.com/geovision/geoaccess/internal/gate"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	sessionIDKey contextKey = "session_id"
	apiKeyIDKey  contextKey = "api_key_id"
)

// GetPrincipal retrieves the resolved principal from context. Nil when the
// request carried no valid session.
func GetPrincipal(ctx context.Context) *gate.Principal {
	if val, ok := ctx.Value(principalKey).(*gate.Principal); ok {
		return val
	}
	return nil
}

// GetSessionID retrieves the Session ID from context.
func GetSessionID(ctx context.Context) string {
	if val, ok := ctx.Value(sessionIDKey).(string); ok {
		return val
	}
	return ""
}

// GetAPIKeyID retrieves the authenticated API key ID from context.
func GetAPIKeyID(ctx context.Context) string {
	if val, ok := ctx.Value(apiKeyIDKey).(string); ok {
		return val
	}
	return ""
}
