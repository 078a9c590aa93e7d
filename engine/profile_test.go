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
	"errors"
	"path/filepath"
	"testing"
)

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile([]byte(`
url: https://tickets.example/event/42
at: "10:00:00.250"
x: 812
y: 455
reload_ms: 400
stop_after_success: false
`))
	if err != nil {
		t.Fatalf("ParseProfile failed: %v", err)
	}
	if p.URL != "https://tickets.example/event/42" {
		t.Errorf("URL = %q", p.URL)
	}
	if p.Hour != "10" || p.Minute != "00" || p.Second != "00" || p.Millisecond != "250" {
		t.Errorf("Time fields = %q %q %q %q", p.Hour, p.Minute, p.Second, p.Millisecond)
	}
	if p.X == nil || *p.X != 812 || p.Y == nil || *p.Y != 455 {
		t.Errorf("Coordinate = %v, %v", p.X, p.Y)
	}
	if p.ReloadMs != 400 || p.StopAfterSuccess {
		t.Errorf("Unexpected settings: %+v", p.Settings)
	}
	// Omitted fields keep their defaults.
	if p.LeadSeconds != 2.5 || p.JitterRatio != 0.25 || p.WindowSeconds != 5 || p.ConfirmDelayMs != 300 {
		t.Errorf("Defaults lost: %+v", p.Settings)
	}
}

func TestParseProfile_MissingCoordinate(t *testing.T) {
	p, err := ParseProfile([]byte("hour: \"9\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(); !errors.Is(err, ErrMissingCoordinate) {
		t.Errorf("Validate = %v", err)
	}
}

func TestParseProfile_BadYAML(t *testing.T) {
	if _, err := ParseProfile([]byte("x: [1, 2")); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestProfile_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles", "game.yaml")
	in := &Profile{URL: "https://tickets.example/", Settings: DefaultSettings()}
	in.Hour, in.Minute = "19", "30"
	in.SetCoordinate(10, 20)
	if err := in.SaveYAML(path); err != nil {
		t.Fatalf("SaveYAML failed: %v", err)
	}
	out, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if out.URL != in.URL || out.Hour != "19" || out.Minute != "30" || *out.X != 10 || *out.Y != 20 {
		t.Errorf("Round trip mismatch: %+v", out)
	}
}
