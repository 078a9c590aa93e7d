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
	"math"
)

// MaxJitterRatio is the largest accepted jitter ratio.
const MaxJitterRatio = 0.6

// ClampJitterRatio clamps r into [0, MaxJitterRatio]. NaN counts as 0.
func ClampJitterRatio(r float64) float64 {
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	return math.Min(r, MaxJitterRatio)
}

// Jitter perturbs baseMs by a uniform offset in [-baseMs*ratio, +baseMs*ratio)
// and rounds to the millisecond. The result never leaves
// [baseMs*(1-ratio), baseMs*(1+ratio)] and is never negative. rnd must return
// values in [0, 1).
func Jitter(baseMs int64, ratio float64, rnd func() float64) int64 {
	if baseMs <= 0 {
		return 0
	}
	ratio = ClampJitterRatio(ratio)
	if ratio == 0 {
		return baseMs
	}
	b := float64(baseMs)
	d := b * ratio
	v := math.Round(b + rnd()*2*d - d)
	lo, hi := math.Ceil(b-d), math.Floor(b+d)
	v = math.Max(lo, math.Min(hi, v))
	return int64(math.Max(0, v))
}
