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

// screenshots renders the status panel and the test fixture in a remote
// Chrome and saves PNGs for the documentation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ttbt-io/reloadsnipe/engine"
	"github.com/ttbt-io/reloadsnipe/statusfeed"
	"github.com/ttbt-io/reloadsnipe/tools/e2ehelpers"
)

var (
	chromeURL = flag.String("chrome-url", "", "The url of the remote debugging port")
	outputDir = flag.String("output-dir", "/screenshots", "Directory to save screenshots")
	host      = flag.String("host", "localhost", "Host name the browser uses to reach this tool")
)

func main() {
	flag.Parse()

	if *chromeURL == "" {
		log.Fatal("--chrome-url must be set")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}

	latency := &engine.LatencyTracker{}
	for _, ms := range []int{180, 210, 240, 260, 320} {
		latency.Observe(time.Duration(ms) * time.Millisecond)
	}
	hub := statusfeed.NewHub(latency, nil)
	status, err := statusfeed.StartServer(statusfeed.Options{Addr: "0.0.0.0:0", Hub: hub})
	if err != nil {
		log.Fatalf("Failed to start status server: %v", err)
	}
	defer status.Shutdown(context.Background())

	fixture := e2ehelpers.NewFixture(time.Now().Add(time.Hour))
	l, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	go http.Serve(l, fixture.Handler())

	ctx, cancel := chromedp.NewRemoteAllocator(context.Background(), *chromeURL)
	defer cancel()
	ctx, cancel = chromedp.NewContext(ctx, chromedp.WithLogf(log.Printf))
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	log.Println("Starting screenshot generation...")

	panelURL := fmt.Sprintf("http://%s:%s/", *host, port(status.Addr()))
	if err := chromedp.Run(ctx,
		chromedp.EmulateViewport(480, 200),
		chromedp.Navigate(panelURL),
		chromedp.WaitVisible(`#state`, chromedp.ByQuery),
	); err != nil {
		log.Fatalf("Failed to open panel: %v", err)
	}
	for _, s := range []engine.Status{
		{State: engine.StateActive, Phase: engine.PhaseCountdown, Message: "Pre-activation T-1.85s"},
		{State: engine.StateActive, Phase: engine.PhaseReloading, Message: "No reaction; reloading", Attempt: 7},
		{State: engine.StateSucceeded, Phase: engine.PhaseDone, Message: "Change detected (click succeeded); loop finished", Attempt: 9},
	} {
		hub.Report(s)
		name := fmt.Sprintf("panel-%s.png", s.Phase)
		if err := chromedp.Run(ctx, chromedp.Sleep(300*time.Millisecond)); err != nil {
			log.Fatal(err)
		}
		if err := e2ehelpers.CaptureScreenshot(ctx, filepath.Join(*outputDir, name)); err != nil {
			log.Fatalf("Failed to capture %s: %v", name, err)
		}
	}

	eventURL := fmt.Sprintf("http://%s:%s/event", *host, port(l.Addr().String()))
	if err := chromedp.Run(ctx,
		chromedp.EmulateViewport(1280, 900),
		chromedp.Navigate(eventURL),
		chromedp.WaitVisible(`#buy`, chromedp.ByQuery),
		chromedp.Evaluate(`window.scrollTo(0, 1100)`, nil),
	); err != nil {
		log.Fatalf("Failed to open fixture: %v", err)
	}
	x, y, err := e2ehelpers.ElementCenter(ctx, `#buy`)
	if err != nil {
		log.Fatalf("Failed to locate button: %v", err)
	}
	log.Printf("Fixture button at (%d, %d)", x, y)
	if err := e2ehelpers.CaptureScreenshot(ctx, filepath.Join(*outputDir, "fixture-event.png")); err != nil {
		log.Fatal(err)
	}

	log.Println("Screenshots generated successfully.")
}

func port(addr string) string {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return p
}
