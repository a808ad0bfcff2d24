// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package render drives frames through a gfx.Driver. It owns the frame
// slots, the per-slot staging memory, presentable images and the layout
// state of every image it hands out.
package render

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devblok/korender/gfx"
)

// Defaults applied to a zero Configuration
const (
	DefaultFramesInFlight  = 2
	DefaultStagingCapacity = 64 << 20
	DefaultSwapchainSize   = 3
	DefaultDepthFormat     = gfx.FormatD32Sfloat
)

// Surface is the window the swapchain presents to.
type Surface interface {
	// DrawableSize returns the current size of the drawable area in pixels.
	DrawableSize() gfx.Extent2D

	// ResizePending reports whether the window changed size since the
	// last AcknowledgeResize.
	ResizePending() bool
	AcknowledgeResize()

	// WaitEvents blocks until the platform delivers an event.
	WaitEvents()
}

// Configuration describes the renderer configuration
type Configuration struct {
	FramesInFlight  int
	StagingCapacity uint64

	// SwapchainSize is the minimum number of presentable images requested.
	SwapchainSize uint32

	DepthFormat gfx.Format
	ClearColor  [4]float32

	// Clock is read once per frame. Defaults to time.Now.
	Clock func() time.Time

	Log logrus.FieldLogger
}

func (c Configuration) withDefaults() Configuration {
	if c.FramesInFlight <= 0 {
		c.FramesInFlight = DefaultFramesInFlight
	}
	if c.StagingCapacity == 0 {
		c.StagingCapacity = DefaultStagingCapacity
	}
	if c.SwapchainSize == 0 {
		c.SwapchainSize = DefaultSwapchainSize
	}
	if c.DepthFormat == gfx.FormatUndefined {
		c.DepthFormat = DefaultDepthFormat
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	return c
}
