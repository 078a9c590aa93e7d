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
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Confirm delay bounds, in milliseconds.
const (
	MinConfirmDelayMs = 80
	MaxConfirmDelayMs = 800
)

var (
	// ErrMissingCoordinate is returned when X or Y was not supplied.
	ErrMissingCoordinate = errors.New("target coordinate (x, y) is required")
	// ErrInvalidSettings is returned for numeric settings that cannot be used.
	ErrInvalidSettings = errors.New("invalid settings")
)

// Settings is the operator's snapshot, taken once when a loop is started.
type Settings struct {
	Hour        string `yaml:"hour" json:"hour"`
	Minute      string `yaml:"minute" json:"minute"`
	Second      string `yaml:"second" json:"second"`
	Millisecond string `yaml:"millisecond" json:"millisecond"`

	LeadSeconds    float64 `yaml:"lead_seconds" json:"leadSeconds"`
	ReloadMs       int64   `yaml:"reload_ms" json:"reloadMs"`
	JitterRatio    float64 `yaml:"jitter_ratio" json:"jitterRatio"`
	WindowSeconds  float64 `yaml:"window_seconds" json:"windowSeconds"`
	ConfirmDelayMs int64   `yaml:"confirm_delay_ms" json:"confirmDelayMs"`

	X *int `yaml:"x,omitempty" json:"x,omitempty"`
	Y *int `yaml:"y,omitempty" json:"y,omitempty"`

	// StopAfterSuccess is kept and reported, but success always ends the loop.
	StopAfterSuccess bool `yaml:"stop_after_success" json:"stopAfterSuccess"`
}

// DefaultSettings returns the panel defaults: 2.5s lead, 250ms reload,
// 0.25 jitter, 5s safety window and a 300ms confirm delay.
func DefaultSettings() Settings {
	return Settings{
		LeadSeconds:      2.5,
		ReloadMs:         250,
		JitterRatio:      0.25,
		WindowSeconds:    5,
		ConfirmDelayMs:   300,
		StopAfterSuccess: true,
	}
}

// SetCoordinate sets both coordinate fields.
func (s *Settings) SetCoordinate(x, y int) {
	s.X, s.Y = &x, &y
}

// Validate reports input errors that prevent a loop from starting.
func (s Settings) Validate() error {
	if s.X == nil || s.Y == nil {
		return ErrMissingCoordinate
	}
	for name, v := range map[string]float64{
		"lead_seconds":   s.LeadSeconds,
		"jitter_ratio":   s.JitterRatio,
		"window_seconds": s.WindowSeconds,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidSettings, name)
		}
	}
	if s.ReloadMs < 0 {
		return fmt.Errorf("%w: reload_ms must not be negative", ErrInvalidSettings)
	}
	return nil
}

// Plan is a validated schedule derived from Settings at a given instant.
type Plan struct {
	Target     time.Time
	ActivateAt time.Time
	Config     LoopConfig
}

// Plan resolves the target for now's day and builds the initial LoopConfig.
// NextAttemptAt is left zero; the engine sets it when the lead phase ends.
func (s Settings) Plan(now time.Time) (Plan, error) {
	if err := s.Validate(); err != nil {
		return Plan{}, err
	}
	target := ResolveTarget(now, s.Hour, s.Minute, s.Second, s.Millisecond)
	lead := secondsToDuration(s.LeadSeconds)
	window := secondsToDuration(s.WindowSeconds)
	return Plan{
		Target:     target,
		ActivateAt: target.Add(-lead),
		Config: LoopConfig{
			RunID:            uuid.NewString(),
			X:                *s.X,
			Y:                *s.Y,
			ReloadIntervalMs: s.ReloadMs,
			JitterRatio:      ClampJitterRatio(s.JitterRatio),
			ConfirmDelayMs:   ClampConfirmDelay(s.ConfirmDelayMs),
			TargetAt:         target.UnixMilli(),
			EndAt:            target.Add(window).UnixMilli(),
			StopAfterSuccess: s.StopAfterSuccess,
		},
	}, nil
}

// ClampConfirmDelay clamps ms into [MinConfirmDelayMs, MaxConfirmDelayMs].
func ClampConfirmDelay(ms int64) int64 {
	return min(max(ms, MinConfirmDelayMs), MaxConfirmDelayMs)
}

// secondsToDuration converts non-negative seconds; negatives count as zero.
func secondsToDuration(sec float64) time.Duration {
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}

// LoopConfig is the persisted state of an active loop. It is the only state
// that survives a reload.
type LoopConfig struct {
	RunID            string  `json:"runId"`
	X                int     `json:"x"`
	Y                int     `json:"y"`
	ReloadIntervalMs int64   `json:"reloadIntervalMs"`
	JitterRatio      float64 `json:"jitterRatio"`
	ConfirmDelayMs   int64   `json:"confirmDelayMs"`
	TargetAt         int64   `json:"targetAt"`
	EndAt            int64   `json:"endAt"`
	NextAttemptAt    int64   `json:"nextAttemptAt"`
	StopAfterSuccess bool    `json:"stopAfterSuccess"`
	Attempts         int     `json:"attempts"`
}

// ConfirmDelay returns the clamped post-click wait.
func (c LoopConfig) ConfirmDelay() time.Duration {
	return time.Duration(ClampConfirmDelay(c.ConfirmDelayMs)) * time.Millisecond
}

// Expired reports whether now is past the loop's safety window.
func (c LoopConfig) Expired(now time.Time) bool {
	return Expired(now, c.EndAt)
}

// Expired is the safety window guard: true once now is strictly after endAt
// (unix milliseconds).
func Expired(now time.Time, endAt int64) bool {
	return now.UnixMilli() > endAt
}
