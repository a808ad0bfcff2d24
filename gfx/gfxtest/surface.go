// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import "github.com/devblok/korender/gfx"

// Surface is a scripted window. DrawableSize reports Sizes[0] until
// WaitEvents drops it, so a sequence of degenerate sizes followed by a
// real one simulates a minimized window being restored.
type Surface struct {
	Sizes   []gfx.Extent2D
	Resized bool

	// Waits counts WaitEvents calls.
	Waits int
}

// NewSurface returns a surface that always reports the given size.
func NewSurface(width, height uint32) *Surface {
	return &Surface{Sizes: []gfx.Extent2D{{Width: width, Height: height}}}
}

// DrawableSize implements render.Surface
func (s *Surface) DrawableSize() gfx.Extent2D {
	if len(s.Sizes) == 0 {
		return gfx.Extent2D{}
	}
	return s.Sizes[0]
}

// ResizePending implements render.Surface
func (s *Surface) ResizePending() bool {
	return s.Resized
}

// AcknowledgeResize implements render.Surface
func (s *Surface) AcknowledgeResize() {
	s.Resized = false
}

// WaitEvents implements render.Surface
func (s *Surface) WaitEvents() {
	s.Waits++
	if len(s.Sizes) > 1 {
		s.Sizes = s.Sizes[1:]
	}
}

// Resize queues a new size and raises the resize flag.
func (s *Surface) Resize(width, height uint32) {
	s.Sizes = []gfx.Extent2D{{Width: width, Height: height}}
	s.Resized = true
}
