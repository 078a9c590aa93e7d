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
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"
)

// State is the engine's position in its state machine.
type State int

const (
	StateIdle State = iota
	StateActive
	StateSucceeded
	StateStopped
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateSucceeded:
		return "succeeded"
	case StateStopped:
		return "stopped"
	case StateExpired:
		return "expired"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for c := StateIdle; c <= StateExpired; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Terminal reports whether s ends a loop.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateStopped || s == StateExpired
}

// ErrAlreadyRunning is returned by Start while a loop is active.
var ErrAlreadyRunning = errors.New("a loop is already running")

// DefaultCountdownInterval is how often the lead phase reports progress.
const DefaultCountdownInterval = 50 * time.Millisecond

// Options configures an Engine. Store, Executor and Detector are required.
type Options struct {
	Store    *LoopStore
	Executor ActionExecutor
	Detector ChangeDetector
	// Scroll, when set, saves the viewport offset before every reload.
	Scroll   *ScrollCarrier
	Reporter Reporter
	Clock    Clock
	// Rand returns values in [0, 1) for jitter. Defaults to math/rand/v2.
	Rand              func() float64
	CountdownInterval time.Duration
	Debug             bool
}

// Engine runs the click-and-reload loop. Each call to Start or Resume is one
// "life": it performs at most one attempt and returns once the attempt has
// either ended the loop or triggered a reload. Nothing carries over between
// lives except what is in the Store, so an Engine may be discarded and
// recreated on every page load.
type Engine struct {
	store    *LoopStore
	exec     ActionExecutor
	detector ChangeDetector
	scroll   *ScrollCarrier
	reporter Reporter
	clock    Clock
	rand     func() float64
	interval time.Duration
	debug    bool

	mu    sync.Mutex
	state State
	// stopped is set by Stop and cleared only by Start.
	stopped bool
	runID   string
	cancel  context.CancelFunc
}

// New returns an idle Engine.
func New(opts Options) *Engine {
	e := &Engine{
		store:    opts.Store,
		exec:     opts.Executor,
		detector: opts.Detector,
		scroll:   opts.Scroll,
		reporter: opts.Reporter,
		clock:    opts.Clock,
		rand:     opts.Rand,
		interval: opts.CountdownInterval,
		debug:    opts.Debug,
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.rand == nil {
		e.rand = rand.Float64
	}
	if e.interval <= 0 {
		e.interval = DefaultCountdownInterval
	}
	return e
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) debugf(format string, args ...any) {
	if e.debug {
		log.Printf(format, args...)
	}
}

// Start validates st, waits out the lead window, persists a fresh loop
// (replacing any stored one) and runs the first attempt. Validation errors
// are returned before anything is written. Start withdraws an earlier Stop;
// a Stop that arrives while Start runs wins.
func (e *Engine) Start(ctx context.Context, st Settings) (State, error) {
	e.mu.Lock()
	if e.state == StateActive {
		e.mu.Unlock()
		return StateActive, ErrAlreadyRunning
	}
	plan, err := st.Plan(e.clock.Now())
	if err != nil {
		e.mu.Unlock()
		return e.State(), err
	}
	e.state = StateActive
	e.stopped = false
	e.runID = plan.Config.RunID
	e.mu.Unlock()

	if err := e.store.SaveSettings(st); err != nil {
		log.Printf("Warning: could not remember settings: %v", err)
	}

	lctx, done, ok := e.beginLife(ctx, plan.Config.RunID)
	if !ok {
		return StateStopped, nil
	}
	defer done()

	e.debugf("[ENGINE] run %s: target=%s activate=%s end=%s",
		plan.Config.RunID,
		plan.Target.Format("15:04:05.000"),
		plan.ActivateAt.Format("15:04:05.000"),
		time.UnixMilli(plan.Config.EndAt).Format("15:04:05.000"))

	if err := e.countdown(lctx, plan); err != nil {
		// Nothing is persisted during the lead phase, so there is nothing to
		// resume either.
		if s := e.settle(StateIdle); s == StateStopped {
			return s, nil
		}
		return StateIdle, err
	}

	cfg := plan.Config
	cfg.NextAttemptAt = e.clock.Now().UnixMilli()
	if !e.persist(cfg) {
		return e.State(), nil
	}
	e.report(Status{Phase: PhaseAttempt, Message: "Activated: click/reload loop running", EndAt: cfg.EndAt})
	return e.iterate(lctx, cfg)
}

// Resume continues a persisted loop. It must be called on every page load.
// After Stop it does nothing and returns StateStopped. Without a stored loop
// it returns StateIdle. A stored loop whose safety window has passed is
// cleared without any action. Otherwise it waits until the scheduled attempt
// and performs it.
func (e *Engine) Resume(ctx context.Context) (State, error) {
	if e.isStopped() {
		return StateStopped, nil
	}
	cfg, err := e.store.LoadLoop()
	if err != nil {
		return e.State(), err
	}
	if cfg == nil {
		return e.settle(StateIdle), nil
	}
	now := e.clock.Now()
	if cfg.Expired(now) {
		e.debugf("[ENGINE] run %s: stored loop expired at %d, discarding", cfg.RunID, cfg.EndAt)
		e.clear()
		s := e.settle(StateExpired)
		if s == StateExpired {
			e.report(Status{RunID: cfg.RunID, Phase: PhaseDone, Message: "Safety window elapsed; loop finished", EndAt: cfg.EndAt})
		}
		return s, nil
	}

	lctx, done, ok := e.beginLife(ctx, cfg.RunID)
	if !ok {
		return StateStopped, nil
	}
	defer done()

	delay := time.UnixMilli(cfg.NextAttemptAt).Sub(now)
	e.report(Status{Phase: PhaseWaiting, Message: "Resuming loop", Attempt: cfg.Attempts, NextAttemptAt: cfg.NextAttemptAt, EndAt: cfg.EndAt, RemainingMs: max(delay.Milliseconds(), 0)})
	if err := e.clock.Sleep(lctx, delay); err != nil {
		return e.interrupted(err)
	}

	// Re-read: a stop may have cleared the loop during the wait.
	cfg, err = e.store.LoadLoop()
	if err != nil {
		return e.State(), err
	}
	if cfg == nil {
		return e.settle(StateIdle), nil
	}
	return e.iterate(lctx, *cfg)
}

// Stop ends the loop: persisted state is cleared so no later page load resumes
// it, and any wait in progress is cancelled. The stop sticks until the next
// Start, so a life that is still setting up cannot undo it.
func (e *Engine) Stop() error {
	e.mu.Lock()
	again := e.stopped
	e.state = StateStopped
	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
	err := e.store.ClearLoop()
	runID := e.runID
	e.mu.Unlock()

	if !again {
		e.report(Status{RunID: runID, Phase: PhaseDone, Message: "Stopped"})
	}
	if err != nil {
		return fmt.Errorf("clear loop: %w", err)
	}
	return nil
}

// iterate performs one attempt of cfg.
func (e *Engine) iterate(ctx context.Context, cfg LoopConfig) (State, error) {
	if cfg.Expired(e.clock.Now()) {
		return e.finish(StateExpired, cfg, "Safety window elapsed; loop finished")
	}
	cfg.Attempts++

	verdict := e.detector.Watch(ctx, cfg.X, cfg.Y)
	fired := true
	if err := e.exec.ClickAt(ctx, cfg.X, cfg.Y); err != nil {
		fired = false
		e.debugf("[ENGINE] click at (%d, %d) failed: %v", cfg.X, cfg.Y, err)
	}
	e.report(Status{Phase: PhaseAttempt, Message: "Clicked; confirming", Attempt: cfg.Attempts, EndAt: cfg.EndAt})

	if err := e.clock.Sleep(ctx, cfg.ConfirmDelay()); err != nil {
		return e.interrupted(err)
	}

	if fired && verdict(ctx) {
		return e.finish(StateSucceeded, cfg, "Change detected (click succeeded); loop finished")
	}

	wait := Jitter(cfg.ReloadIntervalMs, cfg.JitterRatio, e.rand)
	cfg.NextAttemptAt = max(cfg.NextAttemptAt, e.clock.Now().UnixMilli()+wait)

	if e.scroll != nil {
		if err := e.scroll.Save(ctx); err != nil {
			e.debugf("[ENGINE] scroll save failed: %v", err)
		}
	}
	if !e.persist(cfg) {
		return e.State(), nil
	}

	msg := "No reaction; reloading"
	if !fired {
		msg = "Click failed; reloading"
	}
	e.report(Status{Phase: PhaseReloading, Message: msg, Attempt: cfg.Attempts, NextAttemptAt: cfg.NextAttemptAt, EndAt: cfg.EndAt})
	if err := e.exec.ReloadPage(ctx); err != nil {
		e.debugf("[ENGINE] reload failed: %v", err)
	}
	return StateActive, nil
}

// beginLife marks the engine active and derives a context that Stop cancels.
// It reports false, and changes nothing, once Stop has been called.
func (e *Engine) beginLife(ctx context.Context, runID string) (context.Context, func(), bool) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil, nil, false
	}
	lctx, cancel := context.WithCancel(ctx)
	e.state = StateActive
	e.runID = runID
	e.cancel = cancel
	e.mu.Unlock()
	return lctx, func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}, true
}

// persist writes cfg unless the loop was stopped meanwhile. A failed write is
// logged; the reload still happens, the loop then simply does not resume.
func (e *Engine) persist(cfg LoopConfig) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive {
		return false
	}
	if err := e.store.SaveLoop(cfg); err != nil {
		log.Printf("Warning: could not persist loop %s: %v", cfg.RunID, err)
	}
	return true
}

// finish moves to a terminal state and clears persisted state. A concurrent
// Stop wins over the outcome.
func (e *Engine) finish(s State, cfg LoopConfig, msg string) (State, error) {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return StateStopped, nil
	}
	e.state = s
	e.mu.Unlock()

	e.clear()
	e.report(Status{Phase: PhaseDone, Message: msg, Attempt: cfg.Attempts, EndAt: cfg.EndAt})
	return s, nil
}

// interrupted maps a cancelled wait to its outcome: a stop is a normal end,
// anything else leaves the persisted loop in place for a later Resume.
func (e *Engine) interrupted(err error) (State, error) {
	if s := e.State(); s == StateStopped {
		return s, nil
	}
	return StateActive, err
}

func (e *Engine) clear() {
	if err := e.store.ClearLoop(); err != nil {
		log.Printf("Warning: could not clear loop state: %v", err)
	}
}

// settle moves to s unless the loop was stopped, and returns the state the
// engine ends up in.
func (e *Engine) settle(s State) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return StateStopped
	}
	e.state = s
	return s
}

func (e *Engine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func (e *Engine) report(s Status) {
	if e.reporter == nil {
		return
	}
	e.mu.Lock()
	s.State = e.state
	if s.RunID == "" {
		s.RunID = e.runID
	}
	e.mu.Unlock()
	s.Time = e.clock.Now().UnixMilli()
	e.reporter.Report(s)
}

// countdown blocks until plan.ActivateAt, reporting the remaining time.
func (e *Engine) countdown(ctx context.Context, plan Plan) error {
	for {
		remaining := plan.ActivateAt.Sub(e.clock.Now())
		if remaining <= 0 {
			return nil
		}
		e.report(Status{
			Phase:       PhaseCountdown,
			Message:     fmt.Sprintf("Pre-activation T-%.2fs", remaining.Seconds()),
			RemainingMs: remaining.Milliseconds(),
			EndAt:       plan.Config.EndAt,
		})
		if err := e.clock.Sleep(ctx, min(e.interval, remaining)); err != nil {
			return err
		}
	}
}
