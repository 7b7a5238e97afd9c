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

import "time"

// Trial derivation is pure in (trialEnd, now) so tests can pin the clock.
// A past trialEnd means the trial is over regardless of any cached flags.

// DaysLeft returns the whole days remaining in a trial, rounded up, clamped
// at zero. The second return value is false when the account has no trial;
// zero days with ok=true is a valid "last day" reading and must not be
// conflated with "no trial".
func DaysLeft(trialEnd *time.Time, now time.Time) (int, bool) {
	if trialEnd == nil {
		return 0, false
	}
	remaining := trialEnd.Sub(now)
	if remaining <= 0 {
		return 0, true
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days, true
}

// IsTrialActive reports whether a trial exists and has days remaining.
// Exactly at trialEnd the trial is no longer active.
func IsTrialActive(trialEnd *time.Time, now time.Time) bool {
	days, ok := DaysLeft(trialEnd, now)
	return ok && days > 0
}
