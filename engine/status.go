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
	"fmt"
	"log"
	"sync"
)

// Phases reported while a loop runs.
const (
	PhaseIdle      = "idle"
	PhaseCountdown = "countdown"
	PhaseWaiting   = "waiting"
	PhaseAttempt   = "attempt"
	PhaseReloading = "reloading"
	PhaseDone      = "done"
)

// Status is a point-in-time report of the engine.
type Status struct {
	RunID         string `json:"runId,omitempty"`
	State         State  `json:"state"`
	Phase         string `json:"phase"`
	Message       string `json:"message"`
	RemainingMs   int64  `json:"remainingMs,omitempty"`
	Attempt       int    `json:"attempt,omitempty"`
	NextAttemptAt int64  `json:"nextAttemptAt,omitempty"`
	EndAt         int64  `json:"endAt,omitempty"`
	Time          int64  `json:"time"`
}

// Reporter receives status updates. Implementations must not block.
type Reporter interface {
	Report(Status)
}

// Reporters fans a status out to every reporter.
type Reporters []Reporter

func (rs Reporters) Report(s Status) {
	for _, r := range rs {
		if r != nil {
			r.Report(s)
		}
	}
}

// LogReporter prints status lines with the standard logger. Countdown lines
// are only printed when the remaining time crosses a tenth of a second, and
// exact repeats are dropped.
type LogReporter struct {
	mu   sync.Mutex
	last string
	tick int64
}

func (r *LogReporter) Report(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Phase == PhaseCountdown {
		tick := s.RemainingMs / 100
		if tick == r.tick && r.last == PhaseCountdown {
			return
		}
		r.tick = tick
		r.last = PhaseCountdown
		log.Printf("[%s] %s", s.State, s.Message)
		return
	}
	key := fmt.Sprintf("%s|%d|%s", s.State, s.Attempt, s.Message)
	if key == r.last {
		return
	}
	r.last = key
	if s.Attempt > 0 {
		log.Printf("[%s] #%d %s", s.State, s.Attempt, s.Message)
		return
	}
	log.Printf("[%s] %s", s.State, s.Message)
}
