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

package browser

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/ttbt-io/reloadsnipe/engine"
)

// Page drives a chromedp tab. The context passed to its methods must carry
// the tab (see chromedp.NewContext).
type Page struct {
	Debug bool

	mu     sync.Mutex
	marker page.ScriptIdentifier
}

// ClickAt dispatches a trusted left click at the viewport coordinate. When the
// input path fails, a synthetic click is dispatched on the element at that
// point instead.
func (p *Page) ClickAt(ctx context.Context, x, y int) error {
	err := chromedp.Run(ctx, trustedClick(float64(x), float64(y)))
	if err == nil {
		return nil
	}
	if p.Debug {
		log.Printf("[CLICK] trusted click at (%d, %d) failed, trying synthetic: %v", x, y, err)
	}
	var hit bool
	if serr := chromedp.Run(ctx, chromedp.Evaluate(syntheticClickScript(x, y), &hit)); serr != nil {
		return fmt.Errorf("synthetic click: %w (trusted click: %v)", serr, err)
	}
	if !hit {
		return fmt.Errorf("nothing rendered at (%d, %d)", x, y)
	}
	return nil
}

func trustedClick(x, y float64) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	})
}

// ReloadPage asks the tab to reload and returns without waiting for the load.
func (p *Page) ReloadPage(ctx context.Context) error {
	if err := chromedp.Run(ctx, page.Reload()); err != nil {
		return fmt.Errorf("page.Reload: %w", err)
	}
	return nil
}

// Snapshot reports the tab's URL and an identity token for the element at
// (x, y). Tokens are kept in a page-side WeakMap, so an element keeps its
// token across probes and a freshly rendered element gets a new one.
func (p *Page) Snapshot(ctx context.Context, x, y int) (engine.Snapshot, error) {
	var res struct {
		Location string `json:"location"`
		Occupant string `json:"occupant"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(probeScript(x, y, uuid.NewString()), &res)); err != nil {
		return engine.Snapshot{}, fmt.Errorf("probe: %w", err)
	}
	return engine.Snapshot{Location: res.Location, Occupant: res.Occupant}, nil
}

func (p *Page) ScrollOffset(ctx context.Context) (float64, float64, error) {
	var off []float64
	if err := chromedp.Run(ctx, chromedp.Evaluate(`[window.scrollX, window.scrollY]`, &off)); err != nil {
		return 0, 0, fmt.Errorf("scroll offset: %w", err)
	}
	if len(off) != 2 {
		return 0, 0, fmt.Errorf("scroll offset: unexpected result %v", off)
	}
	return off[0], off[1], nil
}

func (p *Page) ScrollTo(ctx context.Context, x, y float64) error {
	return chromedp.Run(ctx, chromedp.Evaluate(scrollToScript(x, y), nil))
}

// ArmPick makes the next click on the page report its coordinate through
// PickBinding instead of reaching the page.
func (p *Page) ArmPick(ctx context.Context) error {
	if err := chromedp.Run(ctx, chromedp.Evaluate(pickScript, nil)); err != nil {
		return fmt.Errorf("arm pick: %w", err)
	}
	return nil
}

// ShowMarker draws the target marker in the current document and in every
// document loaded after it, replacing any earlier marker.
func (p *Page) ShowMarker(ctx context.Context, x, y int) error {
	script := markerScript(x, y)
	p.mu.Lock()
	defer p.mu.Unlock()
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if p.marker != "" {
			if err := page.RemoveScriptToEvaluateOnNewDocument(p.marker).Do(ctx); err != nil {
				return fmt.Errorf("remove marker script: %w", err)
			}
			p.marker = ""
		}
		id, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		if err != nil {
			return fmt.Errorf("install marker script: %w", err)
		}
		p.marker = id
		return nil
	}), chromedp.Evaluate(script, nil))
}
