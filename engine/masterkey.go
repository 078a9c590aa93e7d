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
	"log"
	"os"
	"path/filepath"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
)

// OpenStorage opens the data directory. With a passphrase, data files are
// encrypted with a master key kept in dataDir/master.key, created on first
// use. Without one, storage is unencrypted, and an existing master key is
// treated as an error so encrypted data is never read or overwritten in the
// clear.
func OpenStorage(dataDir, passphrase string) (*storage.Storage, error) {
	keyFile := filepath.Join(dataDir, "master.key")
	if passphrase == "" {
		if _, err := os.Stat(keyFile); err == nil {
			return nil, fmt.Errorf("%s exists but no passphrase was provided; refusing to use unencrypted mode", keyFile)
		}
		log.Println("Warning: No master key passphrase provided. Data will be stored UNENCRYPTED.")
		return newStorage(dataDir, nil), nil
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("could not create data dir: %w", err)
	}
	masterKey, err := crypto.ReadMasterKey([]byte(passphrase), keyFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read master key: %w", err)
		}
		log.Println("Initializing new master encryption key...")
		if masterKey, err = crypto.CreateMasterKey(); err != nil {
			return nil, fmt.Errorf("failed to create master key: %w", err)
		}
		if err := masterKey.Save([]byte(passphrase), keyFile); err != nil {
			return nil, fmt.Errorf("failed to save master key: %w", err)
		}
	} else {
		log.Println("Loaded master encryption key.")
	}
	return newStorage(dataDir, masterKey), nil
}

func newStorage(dataDir string, masterKey crypto.MasterKey) *storage.Storage {
	s := storage.New(dataDir, masterKey)
	s.EnableCompression(true)
	return s
}
