// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"strconv"
	"strings"
	"time"
)

// Clamp bounds for each clock field.
const (
	maxHour   = 23
	maxMinute = 59
	maxSecond = 59
	maxMilli  = 999
)

// ResolveTarget returns the instant on now's calendar day (in now's location)
// at the given hour, minute, second and millisecond. Each field is parsed
// leniently and clamped into range. A target in the past is returned as is; the
// caller treats it as "activate immediately".
func ResolveTarget(now time.Time, h, m, s, ms string) time.Time {
	H := clampField(h, maxHour)
	M := clampField(m, maxMinute)
	S := clampField(s, maxSecond)
	MS := clampField(ms, maxMilli)
	y, mo, d := now.Date()
	return time.Date(y, mo, d, H, M, S, MS*int(time.Millisecond), now.Location())
}

// ParseClock splits "HH:MM[:SS[.mmm]]" into its four fields. Missing fields
// are returned empty and resolve to zero.
func ParseClock(v string) (h, m, s, ms string) {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, '.'); i >= 0 {
		v, ms = v[:i], v[i+1:]
	}
	parts := strings.SplitN(v, ":", 3)
	h = parts[0]
	if len(parts) > 1 {
		m = parts[1]
	}
	if len(parts) > 2 {
		s = parts[2]
	}
	return h, m, s, ms
}

// clampField parses the leading integer of v, the way a browser's parseInt
// does, and clamps it to [0, hi]. Unparseable input counts as 0.
func clampField(v string, hi int) int {
	n := leadingInt(v)
	if n < 0 {
		return 0
	}
	if n > hi {
		return hi
	}
	return n
}

func leadingInt(v string) int {
	v = strings.TrimSpace(v)
	end := 0
	if end < len(v) && (v[end] == '-' || v[end] == '+') {
		end++
	}
	digits := end
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	// Cap the digit run so absurd inputs saturate instead of overflowing.
	if end-digits > 9 {
		if v[0] == '-' {
			return -1
		}
		return 1 << 30
	}
	n, err := strconv.Atoi(v[:end])
	if err != nil {
		return 0
	}
	return n
}
