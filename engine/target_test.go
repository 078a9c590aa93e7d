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
	"testing"
	"time"
)

func TestResolveTarget(t *testing.T) {
	now := time.Date(2026, time.March, 7, 14, 30, 0, 0, time.Local)

	tests := []struct {
		name          string
		h, m, s, ms   string
		wantH, wantM  int
		wantS, wantMS int
	}{
		{"exact", "10", "00", "00", "000", 10, 0, 0, 0},
		{"all fields", "23", "59", "59", "999", 23, 59, 59, 999},
		{"clamp high", "25", "61", "75", "1500", 23, 59, 59, 999},
		{"clamp low", "-3", "-1", "-10", "-5", 0, 0, 0, 0},
		{"empty", "", "", "", "", 0, 0, 0, 0},
		{"non numeric", "ab", "x", "?", "ms", 0, 0, 0, 0},
		{"leading digits", "9h", "5m", "7 ", " 42", 9, 5, 7, 42},
		{"huge", "99999999999999", "1", "2", "3", 23, 1, 2, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveTarget(now, tc.h, tc.m, tc.s, tc.ms)
			if y, mo, d := got.Date(); y != 2026 || mo != time.March || d != 7 {
				t.Errorf("Expected same calendar day, got %s", got)
			}
			if got.Hour() != tc.wantH || got.Minute() != tc.wantM || got.Second() != tc.wantS {
				t.Errorf("Expected %02d:%02d:%02d, got %s", tc.wantH, tc.wantM, tc.wantS, got.Format("15:04:05"))
			}
			if ms := got.Nanosecond() / int(time.Millisecond); ms != tc.wantMS {
				t.Errorf("Expected %d ms, got %d", tc.wantMS, ms)
			}
			if got.Location() != now.Location() {
				t.Errorf("Expected location %s, got %s", now.Location(), got.Location())
			}
		})
	}
}

func TestResolveTarget_NoRollover(t *testing.T) {
	now := time.Date(2026, time.March, 7, 22, 0, 0, 0, time.UTC)
	got := ResolveTarget(now, "8", "0", "0", "0")
	if !got.Before(now) {
		t.Fatalf("Expected a past target, got %s", got)
	}
	if got.Day() != 7 {
		t.Errorf("Target rolled over to day %d", got.Day())
	}
}

func TestResolveTarget_AllValidFields(t *testing.T) {
	now := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24; h += 5 {
		for m := 0; m < 60; m += 13 {
			for ms := 0; ms < 1000; ms += 333 {
				got := ResolveTarget(now, strconv.Itoa(h), strconv.Itoa(m), strconv.Itoa(m), strconv.Itoa(ms))
				want := time.Date(2026, time.January, 31, h, m, m, ms*int(time.Millisecond), time.UTC)
				if !got.Equal(want) {
					t.Fatalf("ResolveTarget(%d:%d:%d.%d) = %s, want %s", h, m, m, ms, got, want)
				}
			}
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in          string
		h, m, s, ms string
	}{
		{"10:00:00.000", "10", "00", "00", "000"},
		{"09:59:58.500", "09", "59", "58", "500"},
		{"20:30", "20", "30", "", ""},
		{"7", "7", "", "", ""},
		{" 12:01:02 ", "12", "01", "02", ""},
	}
	for _, tc := range tests {
		h, m, s, ms := ParseClock(tc.in)
		if h != tc.h || m != tc.m || s != tc.s || ms != tc.ms {
			t.Errorf("ParseClock(%q) = %q %q %q %q, want %q %q %q %q", tc.in, h, m, s, ms, tc.h, tc.m, tc.s, tc.ms)
		}
	}
}
