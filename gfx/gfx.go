// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the rendering vocabulary shared by the frame renderer
// and the graphics backends. Everything in here is backend neutral: device
// objects are referred to by opaque handles and the backend owns the objects
// the handles point to.
package gfx

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// Handle is an opaque reference to an object owned by a Driver.
// The zero Handle never refers to a live object.
type Handle uint32

// Typed handles for every device object kind the renderer touches.
type (
	Buffer         Handle
	Image          Handle
	ImageView      Handle
	Sampler        Handle
	Fence          Handle
	Semaphore      Handle
	CommandBuffer  Handle
	Swapchain      Handle
	Pipeline       Handle
	PipelineLayout Handle
	DescriptorSet  Handle
)

// Extent2D is a size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Degenerate reports whether either dimension is zero, as happens
// while a window is minimized.
func (e Extent2D) Degenerate() bool {
	return e.Width == 0 || e.Height == 0
}

// Viewport describes the viewport transform of a render target.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a pixel rectangle used as a scissor.
type Rect struct {
	X, Y   int32
	Extent Extent2D
}

// ViewportFor returns a full-size viewport for the extent.
func ViewportFor(e Extent2D) Viewport {
	return Viewport{
		Width:    float32(e.Width),
		Height:   float32(e.Height),
		MaxDepth: 1,
	}
}

// ScissorFor returns a scissor covering the whole extent.
func ScissorFor(e Extent2D) Rect {
	return Rect{Extent: e}
}

// Status is the outcome of a presentation engine call that
// did not fail outright.
type Status int

// Presentation statuses
const (
	StatusSuccess Status = iota
	StatusSuboptimal
	StatusOutOfDate
)

// Stale reports whether the swapchain no longer matches its surface.
func (s Status) Stale() bool {
	return s == StatusSuboptimal || s == StatusOutOfDate
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	}
	return "unknown"
}

// VertexAttribute places one shader input inside a vertex.
type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

// VertexLayout describes interleaved vertices of a single binding.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}
