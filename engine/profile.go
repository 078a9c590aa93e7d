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
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Profile is a saved run configuration. Fields left out of the file keep
// their defaults.
type Profile struct {
	URL string `yaml:"url,omitempty"`
	// At is a wall-clock target, HH:MM[:SS[.mmm]]. When set it replaces the
	// individual time fields.
	At       string `yaml:"at,omitempty"`
	Settings `yaml:",inline"`
}

// LoadProfile reads a YAML profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile parses profile YAML on top of DefaultSettings.
func ParseProfile(data []byte) (*Profile, error) {
	p := Profile{Settings: DefaultSettings()}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile YAML: %w", err)
	}
	if p.At != "" {
		p.Hour, p.Minute, p.Second, p.Millisecond = ParseClock(p.At)
	}
	return &p, nil
}

// SaveYAML writes the profile to path.
func (p *Profile) SaveYAML(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
