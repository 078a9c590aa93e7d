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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ttbt-io/reloadsnipe/browser"
	"github.com/ttbt-io/reloadsnipe/engine"
	"github.com/ttbt-io/reloadsnipe/statusfeed"
)

var (
	pageURL      = flag.String("url", "", "The page to open. Loop state is kept per origin of this URL")
	chromeURL    = flag.String("chrome-url", "", "Remote debugging URL of a running Chrome. A local Chrome is started when empty")
	headless     = flag.Bool("headless", false, "Run the local Chrome headless")
	dataDir      = flag.String("data-dir", "data", "Directory for loop state and the browser profile")
	ephemeral    = flag.Bool("ephemeral", false, "Keep loop state in memory only")
	profilePath  = flag.String("profile", "", "YAML profile with the run settings")
	saveProfile  = flag.String("save-profile", "", "Write the effective settings to this YAML file and exit")
	useLast      = flag.Bool("last", false, "Start with the settings of the previous run for this origin")
	clearOnly    = flag.Bool("clear", false, "Clear any stored loop for the origin and exit")
	at           = flag.String("at", "", "Target wall-clock time, HH:MM[:SS[.mmm]] today")
	hour         = flag.String("hour", "", "Target hour (0-23)")
	minute       = flag.String("minute", "", "Target minute (0-59)")
	second       = flag.String("second", "", "Target second (0-59)")
	millisecond  = flag.String("ms", "", "Target millisecond (0-999)")
	leadSeconds  = flag.Float64("lead", 2.5, "Seconds before the target to activate")
	reloadMs     = flag.Int64("reload", 250, "Base milliseconds between attempts")
	jitterRatio  = flag.Float64("jitter", 0.25, "Relative jitter applied to -reload (max 0.6)")
	windowSecs   = flag.Float64("window", 5, "Seconds after the target to keep trying")
	confirmMs    = flag.Int64("confirm", 300, "Milliseconds to wait for a reaction after each click (80-800)")
	clickX       = flag.Int("x", 0, "Viewport X coordinate to click")
	clickY       = flag.Int("y", 0, "Viewport Y coordinate to click")
	pickTarget   = flag.Bool("pick", false, "Pick the click coordinate by clicking the page once it is open")
	stopAfter    = flag.Bool("stop-after-success", true, "Stop the loop once a click has an effect")
	loginWait    = flag.Duration("login-wait", 0, "Time to wait after opening -url, e.g. to log in manually")
	statusAddr   = flag.String("status-addr", "", "Serve the status panel and feed on this address, e.g. localhost:8090")
	debugMode    = flag.Bool("debug", false, "Enable debug mode")
	loadTimeout  = flag.Duration("load-timeout", browser.DefaultLoadTimeout, "How long to wait for a reload to finish")
	chromeBinary = flag.String("chrome-binary", "", "Path of the Chrome executable for the local browser")
)

// main opens the page, then starts or resumes the click-and-reload loop.
func main() {
	flag.Parse()

	if *pageURL == "" && *profilePath != "" {
		p, err := engine.LoadProfile(*profilePath)
		if err != nil {
			log.Fatalf("Failed to load profile: %v", err)
		}
		*pageURL = p.URL
	}
	if *pageURL == "" {
		log.Fatal("--url is required")
	}
	origin, err := browser.Origin(*pageURL)
	if err != nil {
		log.Fatalf("Invalid --url: %v", err)
	}

	var kv engine.KV
	if *ephemeral {
		kv = engine.NewMemoryKV()
	} else {
		s, err := engine.OpenStorage(*dataDir, os.Getenv("RS_MASTER_KEY"))
		if err != nil {
			log.Fatalf("Failed to open storage: %v", err)
		}
		kv = engine.NewFileKV(*dataDir, s, origin)
	}
	store := engine.NewLoopStore(kv)

	if *clearOnly {
		if err := store.ClearLoop(); err != nil {
			log.Fatalf("Failed to clear loop: %v", err)
		}
		log.Printf("Cleared stored loop for %s", origin)
		return
	}

	st, err := buildSettings(store)
	if err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}
	if *pickTarget && st == nil {
		log.Fatal("--pick needs a target time")
	}
	if *saveProfile != "" && st == nil {
		log.Fatal("--save-profile needs a target time")
	}
	if *saveProfile != "" && !*pickTarget {
		writeProfile(st)
		return
	}
	if st != nil && !*pickTarget {
		if err := st.Validate(); err != nil {
			log.Fatalf("Invalid settings: %v", err)
		}
	}

	latency := &engine.LatencyTracker{}
	reporters := engine.Reporters{&engine.LogReporter{}}

	var session *browser.Session
	var hub *statusfeed.Hub
	if *statusAddr != "" {
		hub = statusfeed.NewHub(latency, func() { session.Stop() })
		reporters = append(reporters, hub)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx, cancelBrowser := newBrowserContext(ctx)
	defer cancelBrowser()

	session = browser.NewSession(&browser.Page{Debug: *debugMode}, browser.Options{
		Store:       store,
		Reporter:    reporters,
		Latency:     latency,
		LoadTimeout: *loadTimeout,
		Debug:       *debugMode,
	})

	var statusServer *statusfeed.Server
	if hub != nil {
		if statusServer, err = statusfeed.StartServer(statusfeed.Options{Addr: *statusAddr, Hub: hub, Debug: *debugMode}); err != nil {
			log.Fatalf("Failed to start status server: %v", err)
		}
	}

	// The first signal stops the loop; a second one aborts.
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Stopping...")
		session.Stop()
		<-sig
		cancel()
	}()

	if err := session.Attach(ctx); err != nil {
		log.Fatalf("Failed to attach to browser: %v", err)
	}
	if err := chromedp.Run(ctx, chromedp.Navigate(*pageURL)); err != nil {
		log.Fatalf("Failed to open %s: %v", *pageURL, err)
	}
	if *loginWait > 0 {
		log.Printf("Waiting %v before starting (log in now if needed)...", *loginWait)
		if err := (engine.SystemClock{}).Sleep(ctx, *loginWait); err != nil {
			log.Fatalf("Interrupted: %v", err)
		}
	}

	if *pickTarget {
		log.Println("Click the target on the page...")
		pt, err := session.Pick(ctx)
		if err != nil {
			log.Fatalf("No target picked: %v", err)
		}
		log.Printf("Target picked at %s", pt)
		st.SetCoordinate(pt.X, pt.Y)
		if *saveProfile != "" {
			writeProfile(st)
			return
		}
		if err := st.Validate(); err != nil {
			log.Fatalf("Invalid settings: %v", err)
		}
	}

	state, runErr := session.Run(ctx, st)
	switch {
	case errors.Is(runErr, context.Canceled):
		log.Printf("Aborted; the stored loop (if any) resumes on the next run")
	case runErr != nil:
		log.Printf("Loop failed: %v", runErr)
	default:
		log.Printf("Finished: %s", state)
	}

	if statusServer != nil {
		sdCtx, sdCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := statusServer.Shutdown(sdCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		sdCancel()
	}
	if runErr != nil {
		cancelBrowser()
		cancel()
		os.Exit(1)
	}
}

func writeProfile(st *engine.Settings) {
	p := engine.Profile{URL: *pageURL, Settings: *st}
	if err := p.SaveYAML(*saveProfile); err != nil {
		log.Fatalf("Failed to save profile: %v", err)
	}
	log.Printf("Saved profile to %s", *saveProfile)
}

// buildSettings returns the settings to start with, or nil when no target
// time was given and only a stored loop should be resumed. Precedence, lowest
// first: defaults, -last, -profile, explicit flags.
func buildSettings(store *engine.LoopStore) (*engine.Settings, error) {
	st := engine.DefaultSettings()
	haveTarget := false

	if *useLast {
		last, err := store.LoadSettings()
		if err != nil {
			return nil, err
		}
		if last == nil {
			return nil, errors.New("no previous run for this origin")
		}
		st, haveTarget = *last, true
	}
	if *profilePath != "" {
		p, err := engine.LoadProfile(*profilePath)
		if err != nil {
			return nil, err
		}
		st, haveTarget = p.Settings, true
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *at != "" {
		st.Hour, st.Minute, st.Second, st.Millisecond = engine.ParseClock(*at)
		haveTarget = true
	}
	if set["hour"] {
		st.Hour, haveTarget = *hour, true
	}
	if set["minute"] {
		st.Minute, haveTarget = *minute, true
	}
	if set["second"] {
		st.Second, haveTarget = *second, true
	}
	if set["ms"] {
		st.Millisecond, haveTarget = *millisecond, true
	}
	if set["lead"] {
		st.LeadSeconds = *leadSeconds
	}
	if set["reload"] {
		st.ReloadMs = *reloadMs
	}
	if set["jitter"] {
		st.JitterRatio = *jitterRatio
	}
	if set["window"] {
		st.WindowSeconds = *windowSecs
	}
	if set["confirm"] {
		st.ConfirmDelayMs = *confirmMs
	}
	if set["stop-after-success"] {
		st.StopAfterSuccess = *stopAfter
	}
	if set["x"] {
		st.X = clickX
	}
	if set["y"] {
		st.Y = clickY
	}

	if !haveTarget {
		if set["x"] || set["y"] {
			return nil, fmt.Errorf("a target time (--at or --hour) is required to start a loop")
		}
		return nil, nil
	}
	return &st, nil
}

func newBrowserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if *chromeURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, *chromeURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", *headless),
			chromedp.UserDataDir(filepath.Join(*dataDir, "chrome-profile")),
			chromedp.WindowSize(1280, 900),
		)
		if *chromeBinary != "" {
			opts = append(opts, chromedp.ExecPath(*chromeBinary))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, opts...)
	}

	ctxOpts := []chromedp.ContextOption{chromedp.WithErrorf(log.Printf)}
	if *debugMode {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(log.Printf))
	}
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, ctxOpts...)
	return tabCtx, func() {
		cancelTab()
		cancelAlloc()
	}
}
