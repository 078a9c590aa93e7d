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

package statusfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
)

// Options configures the status server.
type Options struct {
	// Addr is the TCP address to listen on. Ignored when Listener is set.
	Addr     string
	Listener net.Listener
	Hub      *Hub
	Debug    bool
}

// Server represents the running status server.
type Server struct {
	httpServer *http.Server
	hub        *Hub
	addr       string
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown stops the hub and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []string
	s.hub.Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("http: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %s", strings.Join(errs, ", "))
	}
	return nil
}

// StartServer starts serving the status feed in the background.
func StartServer(opts Options) (*Server, error) {
	if opts.Hub == nil {
		return nil, errors.New("statusfeed: hub is required")
	}
	l := opts.Listener
	if l == nil {
		var err error
		if l, err = net.Listen("tcp", opts.Addr); err != nil {
			return nil, fmt.Errorf("listen %s: %w", opts.Addr, err)
		}
	}
	httpServer := &http.Server{
		Handler: NewHandler(opts.Hub, opts.Debug),
	}
	go func() {
		log.Printf("Status feed on http://%s/", l.Addr())
		if err := httpServer.Serve(l); err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Status server error: %v", err)
		}
	}()
	return &Server{httpServer: httpServer, hub: opts.Hub, addr: l.Addr().String()}, nil
}

// NewHandler returns the status feed's HTTP handler.
func NewHandler(hub *Hub, debug bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", hub.ServeWS)
	mux.HandleFunc("/status.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(hub.snapshot()); err != nil {
			log.Printf("status.json: %v", err)
		}
	})
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(panelHTML))
	})
	mux.HandleFunc("/panel.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte(panelJS))
	})
	var h http.Handler = mux
	if debug {
		h = loggingMiddleware(h)
	}
	return securityMiddleware(h)
}

func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; connect-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

const panelHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>reloadsnipe</title>
<style>
body { font: 14px system-ui, sans-serif; margin: 2em; background: #111; color: #eee; }
#state { font-size: 2em; font-weight: bold; }
#message { margin: .5em 0 1em; }
button { font-size: 1em; padding: .4em 1.2em; }
.meta { color: #999; }
</style>
</head>
<body>
<div id="state">connecting</div>
<div id="message"></div>
<div class="meta">attempt <span id="attempt">-</span>, reload p50 <span id="p50">-</span> ms</div>
<p><button id="stop">Stop</button></p>
<script src="/panel.js"></script>
</body>
</html>
`

const panelJS = `(() => {
  const $ = (id) => document.getElementById(id);
  let ws;
  const connect = () => {
    ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/status');
    ws.onmessage = (ev) => {
      const msg = JSON.parse(ev.data);
      if (msg.type !== 'STATUS') return;
      if (msg.status) {
        $('state').textContent = msg.status.state;
        $('message').textContent = msg.status.message;
        $('attempt').textContent = msg.status.attempt || '-';
      }
      if (msg.latency && msg.latency.count) $('p50').textContent = msg.latency.p50Ms;
    };
    ws.onclose = () => { $('state').textContent = 'disconnected'; setTimeout(connect, 1000); };
  };
  $('stop').onclick = () => ws && ws.send(JSON.stringify({type: 'STOP'}));
  connect();
})();
`
