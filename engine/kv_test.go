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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
)

func TestFileKV(t *testing.T) {
	dataDir := t.TempDir()
	s := storage.New(dataDir, nil)
	kv := NewFileKV(dataDir, s, "https://tickets.example")

	t.Run("GetMissing", func(t *testing.T) {
		_, ok, err := kv.Get("loop.v1")
		if err != nil || ok {
			t.Errorf("Get on empty store = %v, %v", ok, err)
		}
	})

	t.Run("SetAndGet", func(t *testing.T) {
		if err := kv.Set("loop.v1", `{"x":1}`); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		v, ok, err := kv.Get("loop.v1")
		if err != nil || !ok || v != `{"x":1}` {
			t.Errorf("Get = %q, %v, %v", v, ok, err)
		}
		path := filepath.Join(dataDir, "origins", "https:%2F%2Ftickets.example", "loop.v1.json")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected data file at %s: %v", path, err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := kv.Set("loop.v1", "second"); err != nil {
			t.Fatal(err)
		}
		if v, _, _ := kv.Get("loop.v1"); v != "second" {
			t.Errorf("Expected overwrite, got %q", v)
		}
	})

	t.Run("OriginsAreIsolated", func(t *testing.T) {
		other := NewFileKV(dataDir, s, "https://other.example")
		if _, ok, _ := other.Get("loop.v1"); ok {
			t.Error("Another origin should not see the value")
		}
	})

	t.Run("SurvivesReopen", func(t *testing.T) {
		reopened := NewFileKV(dataDir, storage.New(dataDir, nil), "https://tickets.example")
		if v, ok, _ := reopened.Get("loop.v1"); !ok || v != "second" {
			t.Errorf("Expected value after reopen, got %q, %v", v, ok)
		}
	})

	t.Run("ListOrigins", func(t *testing.T) {
		other := NewFileKV(dataDir, s, "http://localhost:8080")
		if err := other.Set("scroll", "{}"); err != nil {
			t.Fatal(err)
		}
		origins, err := ListOrigins(dataDir)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"http://localhost:8080", "https://tickets.example"}
		if strings.Join(origins, ",") != strings.Join(want, ",") {
			t.Errorf("ListOrigins = %v, want %v", origins, want)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		if err := kv.Remove("loop.v1"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if _, ok, _ := kv.Get("loop.v1"); ok {
			t.Error("Value should be gone")
		}
		if err := kv.Remove("loop.v1"); err != nil {
			t.Errorf("Removing a missing key should succeed, got %v", err)
		}
	})
}

func TestFileKV_Encrypted(t *testing.T) {
	dataDir := t.TempDir()
	mk, _ := crypto.CreateAESMasterKeyForTest()
	kv := NewFileKV(dataDir, storage.New(dataDir, mk), "https://tickets.example")

	if err := kv.Set("settings", "secret-settings"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dataDir, "origins", "https:%2F%2Ftickets.example", "settings.json"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("secret-settings")) {
		t.Error("Value is stored in the clear")
	}
	if v, ok, err := kv.Get("settings"); err != nil || !ok || v != "secret-settings" {
		t.Errorf("Get = %q, %v, %v", v, ok, err)
	}
}

func TestOpenStorage_RefusesUnencryptedWithKey(t *testing.T) {
	dataDir := t.TempDir()
	if _, err := OpenStorage(dataDir, "passphrase"); err != nil {
		t.Fatalf("OpenStorage with passphrase failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "master.key")); err != nil {
		t.Fatalf("Expected master key to be created: %v", err)
	}
	if _, err := OpenStorage(dataDir, ""); err == nil {
		t.Error("Expected an error opening encrypted data without a passphrase")
	}
	if _, err := OpenStorage(dataDir, "passphrase"); err != nil {
		t.Errorf("Reopening with the passphrase failed: %v", err)
	}
}

func TestLoopStore(t *testing.T) {
	kv := NewMemoryKV()
	store := NewLoopStore(kv)

	t.Run("EmptyLoop", func(t *testing.T) {
		cfg, err := store.LoadLoop()
		if err != nil || cfg != nil {
			t.Errorf("LoadLoop = %v, %v", cfg, err)
		}
	})

	t.Run("RoundTripLoop", func(t *testing.T) {
		in := LoopConfig{RunID: "r", X: 5, Y: 6, EndAt: 100, NextAttemptAt: 50, Attempts: 2}
		if err := store.SaveLoop(in); err != nil {
			t.Fatal(err)
		}
		out, err := store.LoadLoop()
		if err != nil || out == nil || *out != in {
			t.Errorf("LoadLoop = %+v, %v; want %+v", out, err, in)
		}
		if err := store.ClearLoop(); err != nil {
			t.Fatal(err)
		}
		if out, _ := store.LoadLoop(); out != nil {
			t.Error("Loop should be cleared")
		}
	})

	t.Run("CorruptLoopIsAbsent", func(t *testing.T) {
		kv.Set(loopKey, "{not json")
		cfg, err := store.LoadLoop()
		if err != nil || cfg != nil {
			t.Errorf("LoadLoop = %v, %v", cfg, err)
		}
		if _, ok, _ := kv.Get(loopKey); ok {
			t.Error("Corrupt record should be removed")
		}
	})

	t.Run("Settings", func(t *testing.T) {
		st := DefaultSettings()
		st.Hour = "10"
		st.SetCoordinate(7, 8)
		if err := store.SaveSettings(st); err != nil {
			t.Fatal(err)
		}
		got, err := store.LoadSettings()
		if err != nil || got == nil {
			t.Fatalf("LoadSettings = %v, %v", got, err)
		}
		if got.Hour != "10" || got.X == nil || *got.X != 7 || *got.Y != 8 || got.ReloadMs != 250 {
			t.Errorf("Unexpected settings: %+v", got)
		}
	})
}
