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
	"encoding/json"
	"fmt"
	"log"
)

// Keys used in the origin-scoped KV.
const (
	loopKey     = "loop.v1"
	scrollKey   = "scroll"
	settingsKey = "settings"
)

// ScrollRecord is the viewport offset carried across a reload.
type ScrollRecord struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Pending bool    `json:"pending"`
}

// LoopStore gives typed access to the records kept in a KV.
type LoopStore struct {
	kv KV
}

// NewLoopStore wraps kv.
func NewLoopStore(kv KV) *LoopStore {
	return &LoopStore{kv: kv}
}

// LoadLoop returns the persisted loop, or nil if there is none. A record that
// no longer decodes is removed and reported as absent.
func (s *LoopStore) LoadLoop() (*LoopConfig, error) {
	var cfg LoopConfig
	ok, err := s.load(loopKey, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

// SaveLoop replaces the persisted loop with cfg.
func (s *LoopStore) SaveLoop(cfg LoopConfig) error {
	return s.save(loopKey, cfg)
}

// ClearLoop removes the persisted loop.
func (s *LoopStore) ClearLoop() error {
	return s.kv.Remove(loopKey)
}

// LoadScroll returns the carried scroll offset, if any.
func (s *LoopStore) LoadScroll() (ScrollRecord, bool, error) {
	var rec ScrollRecord
	ok, err := s.load(scrollKey, &rec)
	return rec, ok, err
}

// SaveScroll persists rec.
func (s *LoopStore) SaveScroll(rec ScrollRecord) error {
	return s.save(scrollKey, rec)
}

// ClearScroll drops the carried scroll offset.
func (s *LoopStore) ClearScroll() error {
	return s.kv.Remove(scrollKey)
}

// LoadSettings returns the last settings a loop was started with, or nil.
func (s *LoopStore) LoadSettings() (*Settings, error) {
	var st Settings
	ok, err := s.load(settingsKey, &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

// SaveSettings remembers st for a later run.
func (s *LoopStore) SaveSettings(st Settings) error {
	return s.save(settingsKey, st)
}

func (s *LoopStore) load(key string, v any) (bool, error) {
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		log.Printf("Warning: discarding unreadable %s record: %v", key, err)
		if err := s.kv.Remove(key); err != nil {
			log.Printf("Warning: could not remove %s record: %v", key, err)
		}
		return false, nil
	}
	return true, nil
}

func (s *LoopStore) save(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.kv.Set(key, string(b)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
