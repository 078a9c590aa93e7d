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

package e2ehelpers

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Fixture is a ticket page that only sells after OpensAt. Before that the
// buy button is rendered disabled and clicking it does nothing.
type Fixture struct {
	OpensAt time.Time

	mu        sync.Mutex
	loads     int
	checkouts int
}

// NewFixture returns a fixture that opens at opensAt.
func NewFixture(opensAt time.Time) *Fixture {
	return &Fixture{OpensAt: opensAt}
}

// Loads returns how many times the event page was served.
func (f *Fixture) Loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

// Checkouts returns how many times the checkout page was reached.
func (f *Fixture) Checkouts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkouts
}

// Handler serves /event and /checkout.
func (f *Fixture) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/event", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.loads++
		n := f.loads
		open := !time.Now().Before(f.OpensAt)
		f.mu.Unlock()

		button := `<button id="buy" disabled>Not on sale yet</button>`
		if open {
			button = `<button id="buy" onclick="location.href='/checkout'">Buy</button>`
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		fmt.Fprintf(w, eventHTML, n, button)
	})
	mux.HandleFunc("/checkout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.checkouts++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html><html><body><h1 id="done">Order placed</h1></body></html>`)
	})
	return mux
}

const eventHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Event</title>
<style>
body { margin: 0; font: 16px sans-serif; }
#spacer { height: 3000px; }
#buy { position: absolute; left: 100px; top: 1400px; width: 200px; height: 60px; }
</style>
</head>
<body>
<p id="load">load %d</p>
<div id="spacer"></div>
%s
</body>
</html>
`
