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

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ttbt-io/reloadsnipe/engine"
)

// DefaultLoadTimeout bounds the wait for a reload to finish loading.
const DefaultLoadTimeout = 30 * time.Second

// Overlay is what a Session draws on the page.
type Overlay interface {
	// ArmPick makes the next page click report its coordinate through
	// PickBinding.
	ArmPick(ctx context.Context) error
	// ShowMarker marks the click target in this and every later document.
	ShowMarker(ctx context.Context, x, y int) error
}

// Tab is what a Session needs from a browser tab.
type Tab interface {
	engine.ActionExecutor
	engine.PageProbe
	engine.Viewport
	Overlay
}

// Point is a viewport coordinate picked on the page.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Options configures a Session. Store is required.
type Options struct {
	Store    *engine.LoopStore
	Reporter engine.Reporter
	// Latency, when set, records the time from issuing a reload to its load
	// event.
	Latency     *engine.LatencyTracker
	Clock       engine.Clock
	Rand        func() float64
	LoadTimeout time.Duration
	Debug       bool
}

// Session binds one tab to one engine and plays the part of the page's
// lifecycle: every load event resumes the stored loop.
type Session struct {
	tab         Tab
	store       *engine.LoopStore
	engine      *engine.Engine
	scroll      *engine.ScrollCarrier
	latency     *engine.LatencyTracker
	loadTimeout time.Duration
	debug       bool

	loads    chan time.Time
	picks    chan Point
	stopCh   chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	reloadAt time.Time
}

// NewSession returns a Session for tab.
func NewSession(tab Tab, opts Options) *Session {
	s := &Session{
		tab:         tab,
		store:       opts.Store,
		latency:     opts.Latency,
		loadTimeout: opts.LoadTimeout,
		debug:       opts.Debug,
		loads:       make(chan time.Time, 1),
		picks:       make(chan Point, 1),
		stopCh:      make(chan struct{}),
	}
	if s.loadTimeout <= 0 {
		s.loadTimeout = DefaultLoadTimeout
	}
	s.scroll = engine.NewScrollCarrier(opts.Store, tab, opts.Clock)
	s.engine = engine.New(engine.Options{
		Store:    opts.Store,
		Executor: s,
		Detector: engine.SnapshotDetector{Probe: tab, Debug: opts.Debug},
		Scroll:   s.scroll,
		Reporter: opts.Reporter,
		Clock:    opts.Clock,
		Rand:     opts.Rand,
		Debug:    opts.Debug,
	})
	return s
}

// Engine returns the session's engine.
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Attach prepares the tab in ctx: it listens for load events, cancel
// requests and picks, and installs the page script in the current and every
// future document.
func (s *Session) Attach(ctx context.Context) error {
	chromedp.ListenTarget(ctx, s.handleEvent)
	return chromedp.Run(ctx,
		runtime.Enable(),
		page.Enable(),
		runtime.AddBinding(CancelBinding),
		runtime.AddBinding(PickBinding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(initScript).Do(ctx)
			return err
		}),
		chromedp.Evaluate(initScript, nil),
	)
}

// handleEvent runs on the chromedp event loop and must not block.
func (s *Session) handleEvent(ev any) {
	switch ev := ev.(type) {
	case *page.EventLoadEventFired:
		s.loadFired(time.Now())
	case *runtime.EventBindingCalled:
		switch ev.Name {
		case CancelBinding:
			if s.debug {
				log.Printf("[SESSION] cancel requested from page (%s)", ev.Payload)
			}
			go s.Stop()
		case PickBinding:
			var pt Point
			if err := json.Unmarshal([]byte(ev.Payload), &pt); err != nil {
				log.Printf("Warning: bad pick %q: %v", ev.Payload, err)
				return
			}
			select {
			case s.picks <- pt:
			default:
			}
		}
	}
}

// Pick waits for the operator to click the target on the page, marks it and
// returns its viewport coordinate.
func (s *Session) Pick(ctx context.Context) (Point, error) {
	select {
	case <-s.picks:
	default:
	}
	if err := s.tab.ArmPick(ctx); err != nil {
		return Point{}, err
	}
	select {
	case pt := <-s.picks:
		if err := s.tab.ShowMarker(ctx, pt.X, pt.Y); err != nil {
			log.Printf("Warning: marker: %v", err)
		}
		return pt, nil
	case <-s.stopCh:
		return Point{}, errStopped
	case <-ctx.Done():
		return Point{}, ctx.Err()
	}
}

// markTarget shows the marker at the coordinate the loop clicks: the stored
// loop's if there is one, otherwise st's.
func (s *Session) markTarget(ctx context.Context, st *engine.Settings) {
	var pt *Point
	if cfg, err := s.store.LoadLoop(); err == nil && cfg != nil {
		pt = &Point{X: cfg.X, Y: cfg.Y}
	} else if st != nil && st.X != nil && st.Y != nil {
		pt = &Point{X: *st.X, Y: *st.Y}
	}
	if pt == nil {
		return
	}
	if err := s.tab.ShowMarker(ctx, pt.X, pt.Y); err != nil {
		log.Printf("Warning: marker at %s: %v", pt, err)
	}
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

func (s *Session) loadFired(at time.Time) {
	select {
	case s.loads <- at:
	default:
	}
}

// Stop ends the loop and makes Run return.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if err := s.engine.Stop(); err != nil {
		log.Printf("Warning: %v", err)
	}
}

// ClickAt implements engine.ActionExecutor.
func (s *Session) ClickAt(ctx context.Context, x, y int) error {
	return s.tab.ClickAt(ctx, x, y)
}

// ReloadPage implements engine.ActionExecutor. It remembers when the reload
// was issued so the matching load event can be timed.
func (s *Session) ReloadPage(ctx context.Context) error {
	select {
	case <-s.loads:
	default:
	}
	s.mu.Lock()
	s.reloadAt = time.Now()
	s.mu.Unlock()
	return s.tab.ReloadPage(ctx)
}

// Run resumes any stored loop. If there is none and st is not nil, it starts
// a new loop with st. It then follows the loop across reloads until it ends,
// and returns the final state. After Stop it returns StateStopped without
// touching the page.
func (s *Session) Run(ctx context.Context, st *engine.Settings) (engine.State, error) {
	if s.stopped() {
		return engine.StateStopped, nil
	}
	s.markTarget(ctx, st)
	state, err := s.engine.Resume(ctx)
	if err != nil {
		return state, err
	}
	if st != nil {
		switch state {
		case engine.StateIdle, engine.StateExpired:
			state, err = s.engine.Start(ctx, *st)
			if s.stopped() {
				// Start withdraws an engine stop that landed just before it.
				s.engine.Stop()
				return engine.StateStopped, nil
			}
		case engine.StateActive:
			log.Printf("Warning: resumed a stored loop; new settings are ignored until it ends")
		}
	}
	for state == engine.StateActive && err == nil {
		if werr := s.waitForLoad(ctx); werr != nil {
			if s.stopped() {
				return engine.StateStopped, nil
			}
			if ctx.Err() != nil {
				return state, werr
			}
			// The next life re-issues the reload if the page is still stale.
			log.Printf("Warning: %v", werr)
		}
		if s.stopped() {
			return engine.StateStopped, nil
		}
		if restored, rerr := s.scroll.Restore(ctx); rerr != nil {
			log.Printf("Warning: scroll restore: %v", rerr)
		} else if restored && s.debug {
			log.Printf("[SESSION] scroll position restored")
		}
		state, err = s.engine.Resume(ctx)
	}
	if s.stopped() {
		return engine.StateStopped, nil
	}
	return state, err
}

var errStopped = errors.New("stopped")

func (s *Session) waitForLoad(ctx context.Context) error {
	timer := time.NewTimer(s.loadTimeout)
	defer timer.Stop()
	select {
	case at := <-s.loads:
		s.mu.Lock()
		d := at.Sub(s.reloadAt)
		s.mu.Unlock()
		if s.latency != nil {
			s.latency.Observe(d)
		}
		if s.debug {
			log.Printf("[SESSION] reload took %v", d)
		}
		return nil
	case <-s.stopCh:
		return errStopped
	case <-timer.C:
		return errors.New("timed out waiting for the page to load")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}
