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
	"fmt"
	"strconv"
)

// CancelBinding is the runtime binding the page calls to stop the loop.
const CancelBinding = "__reloadsnipeCancel"

// PickBinding is the runtime binding the page calls with the picked
// coordinate, as {"x": .., "y": ..}.
const PickBinding = "__reloadsnipePick"

const markerID = "__reloadsnipeMarker"

// initScript runs in every new document. Scroll restoration is taken over so
// the browser does not fight the restore after a reload.
const initScript = `(() => {
  try { history.scrollRestoration = 'manual'; } catch (e) {}
  if (window.__reloadsnipeInstalled) return;
  window.__reloadsnipeInstalled = true;
  window.addEventListener('keydown', (e) => {
    if (e.key === 'Escape' && typeof window.` + CancelBinding + ` === 'function') {
      window.` + CancelBinding + `('escape');
    }
  }, true);
})();`

func probeScript(x, y int, token string) string {
	return fmt.Sprintf(`(() => {
  const ids = window.__reloadsnipeIds || (window.__reloadsnipeIds = new WeakMap());
  const el = document.elementFromPoint(%d, %d);
  let id = '';
  if (el) {
    id = ids.get(el);
    if (!id) { id = %s; ids.set(el, id); }
  }
  return {location: location.href, occupant: id};
})()`, x, y, strconv.Quote(token))
}

// syntheticClickScript clicks the element at (x, y) with an untrusted
// MouseEvent and outlines it for a moment. It evaluates to false when there
// is no element at that point.
func syntheticClickScript(x, y int) string {
	return fmt.Sprintf(`(() => {
  const el = document.elementFromPoint(%d, %d);
  if (!el) return false;
  const prev = el.style.outline;
  el.style.outline = '3px solid #e53935';
  setTimeout(() => { el.style.outline = prev; }, 200);
  const opts = {bubbles: true, cancelable: true, view: window, clientX: %d, clientY: %d, button: 0};
  el.dispatchEvent(new MouseEvent('mousedown', opts));
  el.dispatchEvent(new MouseEvent('mouseup', opts));
  el.dispatchEvent(new MouseEvent('click', opts));
  return true;
})()`, x, y, x, y)
}

func scrollToScript(x, y float64) string {
	return fmt.Sprintf(`window.scrollTo(%s, %s)`,
		strconv.FormatFloat(x, 'f', -1, 64),
		strconv.FormatFloat(y, 'f', -1, 64))
}

// pickScript arms pick mode: the next click anywhere on the page is swallowed
// and its viewport coordinate is reported through PickBinding.
const pickScript = `(() => {
  if (window.__reloadsnipePicking) return;
  window.__reloadsnipePicking = true;
  document.documentElement.style.cursor = 'crosshair';
  const onClick = (e) => {
    e.preventDefault();
    e.stopImmediatePropagation();
    document.removeEventListener('click', onClick, true);
    window.__reloadsnipePicking = false;
    document.documentElement.style.cursor = '';
    const pt = {x: Math.round(e.clientX), y: Math.round(e.clientY)};
    if (typeof window.` + PickBinding + ` === 'function') {
      window.` + PickBinding + `(JSON.stringify(pt));
    }
  };
  document.addEventListener('click', onClick, true);
})();`

// markerScript draws a dot centered on (x, y). The marker ignores pointer
// events, so hit tests and clicks at that point reach the page underneath.
func markerScript(x, y int) string {
	return fmt.Sprintf(`(() => {
  const draw = () => {
    let m = document.getElementById(%[1]q);
    if (!m) {
      m = document.createElement('div');
      m.id = %[1]q;
      m.style.cssText = 'position:fixed;width:9px;height:9px;border-radius:50%%;' +
        'background:#6ca0ff;border:2px solid #fff;pointer-events:none;' +
        'z-index:2147483646;transform:translate(-50%%,-50%%)';
      document.documentElement.appendChild(m);
    }
    m.style.left = '%[2]dpx';
    m.style.top = '%[3]dpx';
    m.style.display = 'block';
  };
  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', draw);
  } else {
    draw();
  }
})();`, markerID, x, y)
}
