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

package e2e

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/ttbt-io/reloadsnipe/browser"
	"github.com/ttbt-io/reloadsnipe/engine"
	"github.com/ttbt-io/reloadsnipe/tools/e2ehelpers"
)

type phaseRecorder struct {
	mu     sync.Mutex
	phases []string
}

func (r *phaseRecorder) Report(s engine.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.phases); n > 0 && r.phases[n-1] == s.Phase {
		return
	}
	r.phases = append(r.phases, s.Phase)
}

func (r *phaseRecorder) summary() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.phases) < 3 {
		return append([]string(nil), r.phases...)
	}
	return []string{r.phases[0], r.phases[1], "...", r.phases[len(r.phases)-1]}
}

func settingsFor(target time.Time, x, y int) engine.Settings {
	target = target.Local()
	st := engine.DefaultSettings()
	st.Hour = fmt.Sprint(target.Hour())
	st.Minute = fmt.Sprint(target.Minute())
	st.Second = fmt.Sprint(target.Second())
	st.Millisecond = fmt.Sprint(target.Nanosecond() / int(time.Millisecond))
	st.LeadSeconds = 1
	st.ReloadMs = 200
	st.WindowSeconds = 10
	st.SetCoordinate(x, y)
	return st
}

// openScrolled opens the fixture, scrolls the buy button into view and
// returns its viewport coordinate.
func openScrolled(t *testing.T, ctx context.Context, session *browser.Session, url string) (int, int) {
	t.Helper()
	if err := session.Attach(ctx); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	runStep(t, ctx, "open the event page",
		chromedp.Navigate(url),
		chromedp.WaitVisible(`#buy`, chromedp.ByQuery),
		chromedp.Evaluate(`window.scrollTo(0, 1100)`, nil),
	)
	x, y, err := e2ehelpers.ElementCenter(ctx, `#buy`)
	if err != nil {
		t.Fatalf("ElementCenter failed: %v", err)
	}
	t.Logf("Buy button at (%d, %d)", x, y)
	return x, y
}

func TestReloadLoopBuysWhenSaleOpens(t *testing.T) {
	if *withChromeDP == "" {
		t.Skip("--with-chromedp not set")
	}
	opensAt := time.Now().Add(3 * time.Second)
	fixture := e2ehelpers.NewFixture(opensAt)
	url := startFixture(t, fixture)
	ctx := newTab(t, 60*time.Second)

	store := engine.NewLoopStore(engine.NewMemoryKV())
	rec := &phaseRecorder{}
	latency := &engine.LatencyTracker{}
	session := browser.NewSession(&browser.Page{Debug: true}, browser.Options{
		Store:    store,
		Reporter: engine.Reporters{rec, &engine.LogReporter{}},
		Latency:  latency,
		Debug:    true,
	})
	x, y := openScrolled(t, ctx, session, url)

	st := settingsFor(opensAt, x, y)
	state, err := session.Run(ctx, &st)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if state != engine.StateSucceeded {
		e2ehelpers.CaptureScreenshot(ctx, "/demo/debug-reload-loop.png")
		t.Fatalf("state = %s, want succeeded", state)
	}

	if n := fixture.Checkouts(); n != 1 {
		t.Errorf("checkouts = %d, want 1", n)
	}
	if n := fixture.Loads(); n < 2 {
		t.Errorf("Expected the page to be reloaded before the sale opened, loads = %d", n)
	}
	if loc, _ := e2ehelpers.Location(ctx); !strings.HasSuffix(loc, "/checkout") {
		t.Errorf("location = %q", loc)
	}
	if latency.Snapshot().Count == 0 {
		t.Error("Expected reload latency samples")
	}
	if cfg, _ := store.LoadLoop(); cfg != nil {
		t.Errorf("Loop should be cleared, got %+v", cfg)
	}
	assertLines(t, "phases", []string{
		engine.PhaseCountdown,
		engine.PhaseAttempt,
		"...",
		engine.PhaseDone,
	}, rec.summary())
}

func TestEscapeStopsLoop(t *testing.T) {
	if *withChromeDP == "" {
		t.Skip("--with-chromedp not set")
	}
	// The sale never opens during the test.
	fixture := e2ehelpers.NewFixture(time.Now().Add(time.Hour))
	url := startFixture(t, fixture)
	ctx := newTab(t, 60*time.Second)

	store := engine.NewLoopStore(engine.NewMemoryKV())
	session := browser.NewSession(&browser.Page{}, browser.Options{Store: store})
	x, y := openScrolled(t, ctx, session, url)

	st := settingsFor(time.Now().Add(500*time.Millisecond), x, y)
	st.WindowSeconds = 30

	type result struct {
		state engine.State
		err   error
	}
	done := make(chan result, 1)
	go func() {
		s, err := session.Run(ctx, &st)
		done <- result{s, err}
	}()

	if err := e2ehelpers.WaitFor(t, "three page loads", 20*time.Second, func() bool { return fixture.Loads() >= 3 }); err != nil {
		t.Fatal(err)
	}

	var res result
	for stopped := false; !stopped; {
		// The key may land while a reload is in flight; keep pressing.
		chromedp.Run(ctx, chromedp.KeyEvent(kb.Escape))
		select {
		case res = <-done:
			stopped = true
		case <-time.After(300 * time.Millisecond):
		}
	}
	if res.err != nil || res.state != engine.StateStopped {
		t.Fatalf("Run = %s, %v; want stopped", res.state, res.err)
	}

	// Let a reload that was already in flight finish.
	time.Sleep(time.Second)
	loads := fixture.Loads()
	time.Sleep(time.Second)
	if fixture.Loads() != loads {
		t.Errorf("The page kept reloading after the stop")
	}
	if cfg, _ := store.LoadLoop(); cfg != nil {
		t.Errorf("Loop should be cleared, got %+v", cfg)
	}
	if fixture.Checkouts() != 0 {
		t.Errorf("Unexpected checkout")
	}
}
