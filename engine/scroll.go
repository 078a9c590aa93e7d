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
	"fmt"
	"math"
	"time"
)

// Scroll restore defaults: 18 applications 50ms apart, about 900ms in all,
// long enough to outlast the page's own layout settling.
const (
	DefaultRestoreAttempts = 18
	DefaultRestoreInterval = 50 * time.Millisecond
)

// Viewport reads and sets the page scroll offset.
type Viewport interface {
	ScrollOffset(ctx context.Context) (x, y float64, err error)
	ScrollTo(ctx context.Context, x, y float64) error
}

// ScrollCarrier keeps the viewport where it was across a reload, so the
// stored coordinate still points at the same content.
type ScrollCarrier struct {
	Store    *LoopStore
	Viewport Viewport
	Clock    Clock
	Attempts int
	Interval time.Duration
}

// NewScrollCarrier returns a carrier with the default restore schedule.
func NewScrollCarrier(store *LoopStore, vp Viewport, clock Clock) *ScrollCarrier {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ScrollCarrier{
		Store:    store,
		Viewport: vp,
		Clock:    clock,
		Attempts: DefaultRestoreAttempts,
		Interval: DefaultRestoreInterval,
	}
}

// Save records the current offset and marks a restore as pending.
func (c *ScrollCarrier) Save(ctx context.Context) error {
	x, y, err := c.Viewport.ScrollOffset(ctx)
	if err != nil {
		return fmt.Errorf("read scroll offset: %w", err)
	}
	return c.Store.SaveScroll(ScrollRecord{X: x, Y: y, Pending: true})
}

// Restore reapplies a pending offset Attempts times, Interval apart, then
// clears the pending flag. It reports whether a restore was performed.
func (c *ScrollCarrier) Restore(ctx context.Context) (bool, error) {
	rec, ok, err := c.Store.LoadScroll()
	if err != nil || !ok || !rec.Pending {
		return false, err
	}
	if math.IsNaN(rec.X) || math.IsNaN(rec.Y) || math.IsInf(rec.X, 0) || math.IsInf(rec.Y, 0) {
		rec.Pending = false
		return false, c.Store.SaveScroll(rec)
	}
	attempts := max(c.Attempts, 1)
	for i := range attempts {
		if i > 0 {
			if err := c.Clock.Sleep(ctx, c.Interval); err != nil {
				return true, err
			}
		}
		// Individual failures are expected while the document is settling.
		_ = c.Viewport.ScrollTo(ctx, rec.X, rec.Y)
	}
	rec.Pending = false
	return true, c.Store.SaveScroll(rec)
}
