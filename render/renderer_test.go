// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render_test

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/gfx/gfxtest"
	"github.com/devblok/korender/render"
)

// recorder uploads payload into dst every frame and issues one draw.
type recorder struct {
	drv     gfx.Driver
	dst     gfx.Buffer
	payload []byte

	contexts []render.FrameContext
	failWith error
}

func (r *recorder) Update(fc render.FrameContext, up render.Uploader) error {
	r.contexts = append(r.contexts, fc)
	if r.payload != nil {
		up.AddCopy(r.payload, r.dst)
	}
	return r.failWith
}

func (r *recorder) Record(cb gfx.CommandBuffer, fc render.FrameContext) error {
	r.drv.CmdDrawIndexed(cb, gfx.DrawIndexed{IndexCount: 3, InstanceCount: 1})
	return nil
}

func (r *recorder) slots() []int {
	var slots []int
	for _, fc := range r.contexts {
		slots = append(slots, fc.Slot)
	}
	return slots
}

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	t := time.Date(2019, 8, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func newRenderer(c *qt.C, surface *gfxtest.Surface, rec *recorder) (*gfxtest.Driver, *render.Renderer) {
	drv := gfxtest.NewDriver()
	rec.drv = drv
	log, _ := test.NewNullLogger()
	r, err := render.NewRenderer(drv, surface, rec, render.Configuration{
		StagingCapacity: 4096,
		Clock:           fakeClock(16 * time.Millisecond),
		Log:             log,
	})
	c.Assert(err, qt.IsNil)
	return drv, r
}

func TestRendererEndToEnd(t *testing.T) {
	c := qt.New(t)
	rec := &recorder{}
	drv, r := newRenderer(c, gfxtest.NewSurface(800, 600), rec)
	fences, _ := slotObjects(drv)

	for idx := 0; idx < 5; idx++ {
		drawn, err := r.DrawFrame()
		c.Assert(err, qt.IsNil)
		c.Assert(drawn, qt.Equals, true)
	}

	c.Assert(rec.slots(), qt.DeepEquals, []int{0, 1, 0, 1, 0})

	// Every use of a slot starts with a wait on its fence, the first one
	// on a fence created signaled.
	c.Assert(drv.Count("WaitFence", fences[0]), qt.Equals, 3)
	c.Assert(drv.Count("WaitFence", fences[1]), qt.Equals, 2)
	c.Assert(drv.Violations, qt.HasLen, 0)
	c.Assert(drv.Draws, qt.HasLen, 5)
	c.Assert(r.Stats(), qt.Equals, render.Stats{Frames: 5})

	// Presentable images rotate independently of slots.
	var images []uint32
	for _, fc := range rec.contexts {
		images = append(images, fc.ImageIndex)
	}
	c.Assert(images, qt.DeepEquals, []uint32{0, 1, 2, 0, 1})
}

func TestRendererFrameContext(t *testing.T) {
	c := qt.New(t)
	rec := &recorder{}
	_, r := newRenderer(c, gfxtest.NewSurface(640, 480), rec)

	for idx := 0; idx < 3; idx++ {
		_, err := r.DrawFrame()
		c.Assert(err, qt.IsNil)
	}

	c.Assert(rec.contexts, qt.DeepEquals, []render.FrameContext{{
		Slot:   0,
		Number: 0,
		Extent: gfx.Extent2D{Width: 640, Height: 480},
	}, {
		Slot:       1,
		ImageIndex: 1,
		Number:     1,
		Elapsed:    16 * time.Millisecond,
		Delta:      16 * time.Millisecond,
		Extent:     gfx.Extent2D{Width: 640, Height: 480},
	}, {
		Slot:       0,
		ImageIndex: 2,
		Number:     2,
		Elapsed:    32 * time.Millisecond,
		Delta:      16 * time.Millisecond,
		Extent:     gfx.Extent2D{Width: 640, Height: 480},
	}})
}

func TestRendererRecordOrder(t *testing.T) {
	c := qt.New(t)
	rec := &recorder{payload: []byte("uniforms")}
	drv, r := newRenderer(c, gfxtest.NewSurface(800, 600), rec)

	dst, err := render.NewBuffer(drv, 64, render.BufferGPU)
	c.Assert(err, qt.IsNil)
	rec.dst = dst.Handle()

	start := len(drv.Ops)
	drawn, err := r.DrawFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(drawn, qt.Equals, true)

	var names []string
	for _, op := range drv.Ops[start:] {
		names = append(names, op.Name)
	}
	c.Assert(names, qt.DeepEquals, []string{
		"WaitFence",
		"AcquireNextImage",
		"ResetCommandBuffer",
		"BeginCommandBuffer",
		"CmdCopyBuffer",
		"CmdPipelineBarrier", // staging visibility
		"CmdPipelineBarrier", // undefined -> color-attachment
		"CmdBeginRenderTarget",
		"CmdSetViewport",
		"CmdSetScissor",
		"CmdDrawIndexed",
		"CmdEndRenderTarget",
		"CmdPipelineBarrier", // color-attachment -> present-src
		"EndCommandBuffer",
		"ResetFence",
		"Submit",
		"Present",
	})
	c.Assert(drv.BufferData(dst.Handle())[:8], qt.DeepEquals, []byte("uniforms"))

	for _, img := range r.Swapchain().Images()[:1] {
		c.Assert(img.Layout(), qt.Equals, gfx.LayoutPresentSrc)
	}
	c.Assert(r.Depth().Layout(), qt.Equals, gfx.LayoutDepthAttachment)
}

func TestRendererSkipsStaleFrame(t *testing.T) {
	c := qt.New(t)
	rec := &recorder{}
	drv, r := newRenderer(c, gfxtest.NewSurface(800, 600), rec)
	depth := r.Depth().Handle()

	drv.AcquireStatuses = []gfx.Status{gfx.StatusOutOfDate}
	drawn, err := r.DrawFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(drawn, qt.Equals, false)
	c.Assert(rec.contexts, qt.HasLen, 0)
	c.Assert(r.Stats(), qt.Equals, render.Stats{Skipped: 1, Recreations: 1})
	c.Assert(r.Depth().Handle(), qt.Not(qt.Equals), depth)

	drawn, err = r.DrawFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(drawn, qt.Equals, true)
	c.Assert(rec.slots(), qt.DeepEquals, []int{0})
	c.Assert(drv.Violations, qt.HasLen, 0)
}

func TestRendererResize(t *testing.T) {
	c := qt.New(t)
	rec := &recorder{}
	surface := gfxtest.NewSurface(800, 600)
	drv, r := newRenderer(c, surface, rec)

	_, err := r.DrawFrame()
	c.Assert(err, qt.IsNil)

	surface.Resize(1920, 1080)
	drawn, err := r.DrawFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(drawn, qt.Equals, true)

	c.Assert(r.Stats(), qt.Equals, render.Stats{Frames: 2, Recreations: 1})
	c.Assert(r.Depth().Extent(), qt.Equals, gfx.Extent2D{Width: 1920, Height: 1080})
	c.Assert(r.Swapchain().Extent(), qt.Equals, gfx.Extent2D{Width: 1920, Height: 1080})

	_, err = r.DrawFrame()
	c.Assert(err, qt.IsNil)
	c.Assert(rec.contexts[2].Extent, qt.Equals, gfx.Extent2D{Width: 1920, Height: 1080})
	c.Assert(drv.Violations, qt.HasLen, 0)
}

func TestRendererMinimizedWindow(t *testing.T) {
	c := qt.New(t)
	rec := &recorder{}
	surface := gfxtest.NewSurface(800, 600)
	drv, r := newRenderer(c, surface, rec)

	surface.Sizes = []gfx.Extent2D{{}, {}, {Width: 800, Height: 600}}
	surface.Resized = true
	_, err := r.DrawFrame()
	c.Assert(err, qt.IsNil)

	c.Assert(surface.Waits, qt.Equals, 2)
	c.Assert(drv.SwapchainsCreated, qt.Equals, 2)
	c.Assert(drv.LastSwapchainDesc.Extent.Degenerate(), qt.Equals, false)
}

func TestRendererErrorsAreFatal(t *testing.T) {
	c := qt.New(t)
	rec := &recorder{failWith: errors.New("camera gone")}
	_, r := newRenderer(c, gfxtest.NewSurface(800, 600), rec)

	_, err := r.DrawFrame()
	c.Assert(err, qt.ErrorMatches, `update frame: camera gone`)
}

func TestRendererRelease(t *testing.T) {
	c := qt.New(t)
	rec := &recorder{}
	drv, r := newRenderer(c, gfxtest.NewSurface(800, 600), rec)

	for idx := 0; idx < 3; idx++ {
		_, err := r.DrawFrame()
		c.Assert(err, qt.IsNil)
	}
	r.Release()
	c.Assert(drv.Live(), qt.Equals, 0)
}
