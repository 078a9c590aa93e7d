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
	"context"
	"log"
)

// ActionExecutor performs the two side effects the engine needs. Both are
// best effort: the engine treats an error as "no effect" and carries on.
type ActionExecutor interface {
	ClickAt(ctx context.Context, x, y int) error
	// ReloadPage starts a reload and returns without waiting for it. The
	// reload ends the engine's current life.
	ReloadPage(ctx context.Context) error
}

// Verdict is called after the confirm delay and reports whether the page
// changed since the matching Watch call.
type Verdict func(ctx context.Context) bool

// ChangeDetector decides whether an action visibly changed the page.
type ChangeDetector interface {
	// Watch captures the page state at (x, y) before the action is taken.
	Watch(ctx context.Context, x, y int) Verdict
}

// Snapshot is what a PageProbe observes at one instant.
type Snapshot struct {
	// Location is the current navigation URL.
	Location string
	// Occupant identifies the element at the probed coordinate; empty when
	// nothing is rendered there.
	Occupant string
}

// PageProbe observes the page.
type PageProbe interface {
	Snapshot(ctx context.Context, x, y int) (Snapshot, error)
}

// Changed compares two snapshots. A navigation always counts. A different
// occupant counts only if there was one before the action, so content that was
// still rendering is not mistaken for an effect.
func Changed(before, after Snapshot) bool {
	if before.Location != after.Location {
		return true
	}
	return before.Occupant != "" && before.Occupant != after.Occupant
}

// SnapshotDetector is the default ChangeDetector, comparing URL and element
// identity at the coordinate.
type SnapshotDetector struct {
	Probe PageProbe
	Debug bool
}

func (d SnapshotDetector) Watch(ctx context.Context, x, y int) Verdict {
	before, err := d.Probe.Snapshot(ctx, x, y)
	if err != nil {
		if d.Debug {
			log.Printf("[DETECT] before-snapshot at (%d, %d) failed: %v", x, y, err)
		}
		return func(context.Context) bool { return false }
	}
	return func(ctx context.Context) bool {
		after, err := d.Probe.Snapshot(ctx, x, y)
		if err != nil {
			if d.Debug {
				log.Printf("[DETECT] after-snapshot at (%d, %d) failed: %v", x, y, err)
			}
			return false
		}
		changed := Changed(before, after)
		if d.Debug {
			log.Printf("[DETECT] before=%+v after=%+v changed=%v", before, after, changed)
		}
		return changed
	}
}
