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
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
)

// KV is string storage scoped to one page origin. It survives reloads (and
// process restarts, for FileKV) but is not shared between origins.
type KV interface {
	// Get returns the stored value and whether it exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
}

// MemoryKV is a KV held in process memory.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (kv *MemoryKV) Get(key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.data[key]
	return v, ok, nil
}

func (kv *MemoryKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = value
	return nil
}

func (kv *MemoryKV) Remove(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, key)
	return nil
}

// Len returns the number of stored keys.
func (kv *MemoryKV) Len() int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return len(kv.data)
}

// kvRecord is the on-disk form of one FileKV entry.
type kvRecord struct {
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updatedAt"`
}

// FileKV persists entries as (optionally encrypted) data files under
// origins/<origin>/<key>.json in the storage directory.
type FileKV struct {
	DataDir string
	origin  string
	storage *storage.Storage
	mu      sync.Mutex
}

// NewFileKV creates a FileKV for origin on top of s, which must be rooted at
// dataDir.
func NewFileKV(dataDir string, s *storage.Storage, origin string) *FileKV {
	return &FileKV{
		DataDir: dataDir,
		origin:  origin,
		storage: s,
	}
}

// Origin returns the origin this store is scoped to.
func (kv *FileKV) Origin() string { return kv.origin }

// ListOrigins returns the origins that have state under dataDir.
func ListOrigins(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dataDir, "origins"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var origins []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		origin, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		origins = append(origins, origin)
	}
	return origins, nil
}

func (kv *FileKV) dir() string {
	return filepath.Join("origins", url.PathEscape(kv.origin))
}

func (kv *FileKV) filename(key string) string {
	return filepath.Join(kv.dir(), fmt.Sprintf("%s.json", url.PathEscape(key)))
}

func (kv *FileKV) Get(key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	var rec kvRecord
	if err := kv.storage.ReadDataFile(kv.filename(key), &rec); err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("ReadDataFile: %w", err)
	}
	return rec.Value, true, nil
}

func (kv *FileKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(kv.DataDir, kv.dir()), 0700); err != nil {
		return fmt.Errorf("could not create origin directory: %w", err)
	}
	rec := kvRecord{Value: value, UpdatedAt: time.Now().UnixMilli()}
	if err := kv.storage.SaveDataFile(kv.filename(key), &rec); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return nil
}

func (kv *FileKV) Remove(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if err := os.Remove(filepath.Join(kv.DataDir, kv.filename(key))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove %s: %w", key, err)
	}
	return nil
}
