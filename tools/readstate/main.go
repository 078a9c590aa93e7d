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

// readstate prints the loop state stored for one or all origins.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ttbt-io/reloadsnipe/browser"
	"github.com/ttbt-io/reloadsnipe/engine"
)

var (
	dataDir = flag.String("data-dir", "data", "Directory for loop state")
	pageURL = flag.String("url", "", "Only show the origin of this URL")
)

func main() {
	flag.Parse()
	s, err := engine.OpenStorage(*dataDir, os.Getenv("RS_MASTER_KEY"))
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	var origins []string
	if *pageURL != "" {
		origin, err := browser.Origin(*pageURL)
		if err != nil {
			log.Fatal(err)
		}
		origins = []string{origin}
	} else if origins, err = engine.ListOrigins(*dataDir); err != nil {
		log.Fatalf("Failed to list origins: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, origin := range origins {
		store := engine.NewLoopStore(engine.NewFileKV(*dataDir, s, origin))
		out := struct {
			Loop     *engine.LoopConfig   `json:"loop"`
			Scroll   *engine.ScrollRecord `json:"scroll,omitempty"`
			Settings *engine.Settings     `json:"settings,omitempty"`
		}{}
		if out.Loop, err = store.LoadLoop(); err != nil {
			log.Printf("%s: loop: %v", origin, err)
		}
		if rec, ok, err := store.LoadScroll(); err != nil {
			log.Printf("%s: scroll: %v", origin, err)
		} else if ok {
			out.Scroll = &rec
		}
		if out.Settings, err = store.LoadSettings(); err != nil {
			log.Printf("%s: settings: %v", origin, err)
		}
		fmt.Printf("=========== %s ===========\n", origin)
		if err := enc.Encode(out); err != nil {
			log.Printf("JSON: %s: %v", origin, err)
		}
	}
}
