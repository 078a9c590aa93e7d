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
	"sync"
	"time"
)

// virtualClock advances only when something sleeps on it.
type virtualClock struct {
	mu      sync.Mutex
	now     time.Time
	onSleep func(d time.Duration)
}

func newVirtualClock(start time.Time) *virtualClock {
	return &virtualClock{now: start}
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *virtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.onSleep != nil {
		c.onSleep(d)
	}
	if d > 0 {
		c.Advance(d)
	}
	return ctx.Err()
}

// fakePage plays the browser: it executes clicks and reloads, and answers
// probes and viewport calls.
type fakePage struct {
	mu    sync.Mutex
	clock *virtualClock
	start time.Time
	// events is a transcript of clicks and reloads, relative to start.
	events []string

	location string
	occupant string
	reloads  int
	clicks   []time.Time

	clickErr  error
	probeErr  error
	reloadErr error
	// onClick runs after the n-th successful click (1-based).
	onClick func(p *fakePage, n int)

	scrollX, scrollY float64
	scrollTos        int
}

func newFakePage(clock *virtualClock) *fakePage {
	return &fakePage{
		clock:    clock,
		start:    clock.Now(),
		location: "https://tickets.example/baseball",
		occupant: "node-0",
	}
}

func (p *fakePage) ClickAt(ctx context.Context, x, y int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clickErr != nil {
		return p.clickErr
	}
	p.clicks = append(p.clicks, p.clock.Now())
	p.events = append(p.events, fmt.Sprintf("click (%d,%d) at +%dms", x, y, p.elapsed()))
	if p.onClick != nil {
		p.onClick(p, len(p.clicks))
	}
	return nil
}

func (p *fakePage) ReloadPage(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	p.events = append(p.events, fmt.Sprintf("reload at +%dms", p.elapsed()))
	// A reload renders fresh elements.
	p.occupant = fmt.Sprintf("node-%d", p.reloads)
	return p.reloadErr
}

func (p *fakePage) Snapshot(ctx context.Context, x, y int) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probeErr != nil {
		return Snapshot{}, p.probeErr
	}
	return Snapshot{Location: p.location, Occupant: p.occupant}, nil
}

func (p *fakePage) ScrollOffset(ctx context.Context) (float64, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollX, p.scrollY, nil
}

func (p *fakePage) ScrollTo(ctx context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrollX, p.scrollY = x, y
	p.scrollTos++
	return nil
}

func (p *fakePage) elapsed() int64 {
	return p.clock.Now().Sub(p.start).Milliseconds()
}

func (p *fakePage) transcript() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *fakePage) clickCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clicks)
}

func (p *fakePage) reloadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

var errUnavailable = errors.New("unavailable")

// recorder collects status reports.
type recorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *recorder) Report(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) phases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.statuses {
		out = append(out, s.Phase)
	}
	return out
}

// harness wires engines to one page, one clock and one store, creating a new
// Engine for every life the way a real page load would.
type harness struct {
	clock *virtualClock
	page  *fakePage
	kv    *MemoryKV
	store *LoopStore
	rec   *recorder
	// reloadLatency is the time a reload takes before the next life starts.
	reloadLatency time.Duration
	lives         int
}

func newHarness(start time.Time) *harness {
	clock := newVirtualClock(start)
	kv := NewMemoryKV()
	return &harness{
		clock:         clock,
		page:          newFakePage(clock),
		kv:            kv,
		store:         NewLoopStore(kv),
		rec:           &recorder{},
		reloadLatency: 20 * time.Millisecond,
	}
}

func (h *harness) newEngine() *Engine {
	h.lives++
	return New(Options{
		Store:    h.store,
		Executor: h.page,
		Detector: SnapshotDetector{Probe: h.page},
		Scroll:   NewScrollCarrier(h.store, h.page, h.clock),
		Reporter: h.rec,
		Clock:    h.clock,
		Rand:     func() float64 { return 0.5 },
	})
}

// follow keeps resuming fresh engines while the loop stays active.
func (h *harness) follow(ctx context.Context, st State, err error) (State, error) {
	for st == StateActive && err == nil {
		if h.lives > 10000 {
			return st, errors.New("loop did not terminate")
		}
		h.clock.Advance(h.reloadLatency)
		st, err = h.newEngine().Resume(ctx)
	}
	return st, err
}

// run starts a loop with st on a fresh engine and follows it to the end.
func (h *harness) run(ctx context.Context, st Settings) (State, error) {
	state, err := h.newEngine().Start(ctx, st)
	return h.follow(ctx, state, err)
}

func intp(v int) *int { return &v }

func testSettings(target time.Time) Settings {
	st := DefaultSettings()
	st.Hour = fmt.Sprint(target.Hour())
	st.Minute = fmt.Sprint(target.Minute())
	st.Second = fmt.Sprint(target.Second())
	st.Millisecond = fmt.Sprint(target.Nanosecond() / int(time.Millisecond))
	st.X, st.Y = intp(120), intp(340)
	return st
}
