/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package viewport

import (
	"context"
	"math"
	"time"

	"refercanvas/internal/scene"
)

// FrameInterval is the default animation frame period.
const FrameInterval = time.Second / 60

// Ticker delivers animation frames.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.Ticker.
func NewTimeTicker(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }

// AnimateOptions describes a transition to TargetZoom with Point, a scene
// coordinate, ending at the viewport center.
type AnimateOptions struct {
	Point      scene.Pt
	TargetZoom float64
	Duration   time.Duration
}

func easeOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

// AnimateToPoint interpolates zoom and view center over Duration, one step
// per frame. A zero Duration applies the target at once. If ctx is done the
// view stays at the last applied frame and ctx.Err() is returned.
func (c *Controller) AnimateToPoint(ctx context.Context, o AnimateOptions) error {
	target := Clamp(o.TargetZoom)
	if o.Duration <= 0 {
		c.centerOn(o.Point, target)
		return nil
	}
	frames := int(math.Ceil(float64(o.Duration) / float64(FrameInterval)))
	if frames < 1 {
		frames = 1
	}
	z0, p0 := c.Zoom(), c.VpCenter()
	t := c.newTicker(FrameInterval)
	defer t.Stop()
	for i := 1; i <= frames; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
		}
		k := easeOutCubic(float64(i) / float64(frames))
		c.centerOn(p0.Lerp(o.Point, k), z0+(target-z0)*k)
	}
	return nil
}
