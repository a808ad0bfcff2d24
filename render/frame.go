// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"time"

	"github.com/devblok/korender/gfx"
)

// FrameContext is everything per-frame code may know about the frame
// being built.
type FrameContext struct {
	Slot       int
	ImageIndex uint32

	// Number counts presented frames, starting at zero.
	Number uint64

	// Elapsed is the time since the first frame, Delta since the previous one.
	Elapsed time.Duration
	Delta   time.Duration

	Extent gfx.Extent2D
}

// frameClock turns clock readings into Elapsed and Delta.
type frameClock struct {
	now   func() time.Time
	start time.Time
	last  time.Time
}

func (c *frameClock) tick() (elapsed, delta time.Duration) {
	t := c.now()
	if c.start.IsZero() {
		c.start, c.last = t, t
	}
	elapsed, delta = t.Sub(c.start), t.Sub(c.last)
	c.last = t
	return elapsed, delta
}

// FrameRecorder is the per-frame hook of whatever is drawn.
type FrameRecorder interface {
	// Update queues uploads for the frame. It runs after the slot's fence
	// was observed, so the slot's buffers may be overwritten.
	Update(fc FrameContext, up Uploader) error

	// Record records draws into cb. The render target is bound and
	// viewport and scissor cover it.
	Record(cb gfx.CommandBuffer, fc FrameContext) error
}

// Stats counts frame loop events.
type Stats struct {
	Frames      uint64
	Skipped     uint64
	Recreations uint64
}
