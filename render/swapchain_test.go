// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render_test

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/gfx/gfxtest"
	"github.com/devblok/korender/render"
)

func newSwapchain(c *qt.C, surface *gfxtest.Surface) (*gfxtest.Driver, *render.Swapchain) {
	drv := gfxtest.NewDriver()
	log, _ := test.NewNullLogger()
	s, err := render.NewSwapchain(drv, surface, render.Configuration{Log: log})
	c.Assert(err, qt.IsNil)
	return drv, s
}

// cycle runs one frame through the swapchain with an empty command buffer.
func cycle(c *qt.C, drv *gfxtest.Driver, s *render.Swapchain) (render.Frame, bool) {
	frame, ok, err := s.Acquire()
	c.Assert(err, qt.IsNil)
	if !ok {
		return frame, false
	}
	c.Assert(s.Begin(frame), qt.IsNil)
	c.Assert(frame.Image.Transition(frame.CommandBuffer, gfx.LayoutUndefined, gfx.LayoutColorAttachment), qt.IsNil)
	c.Assert(frame.Image.Transition(frame.CommandBuffer, gfx.LayoutColorAttachment, gfx.LayoutPresentSrc), qt.IsNil)
	c.Assert(drv.EndCommandBuffer(frame.CommandBuffer), qt.IsNil)
	c.Assert(s.Submit(frame), qt.IsNil)
	_, err = s.Present(frame)
	c.Assert(err, qt.IsNil)
	return frame, true
}

// slotObjects returns the fences and command buffers of the frame slots in
// slot order. Slots are the first objects a swapchain creates.
func slotObjects(drv *gfxtest.Driver) (fences []gfx.Handle, cbs []gfx.Handle) {
	for _, op := range drv.Ops {
		switch op.Name {
		case "CreateFence":
			fences = append(fences, op.Handle)
		case "AllocateCommandBuffer":
			cbs = append(cbs, op.Handle)
		}
	}
	return fences, cbs
}

func TestSwapchainSlotMutualExclusion(t *testing.T) {
	c := qt.New(t)
	drv, s := newSwapchain(c, gfxtest.NewSurface(800, 600))
	n := s.FramesInFlight()
	c.Assert(n, qt.Equals, render.DefaultFramesInFlight)

	for idx := 0; idx < n+1; idx++ {
		_, ok := cycle(c, drv, s)
		c.Assert(ok, qt.Equals, true)
	}
	c.Assert(drv.Violations, qt.HasLen, 0)

	fences, cbs := slotObjects(drv)
	c.Assert(fences, qt.HasLen, n)
	c.Assert(cbs, qt.HasLen, n)

	// Replay the log: once a slot's buffer was submitted, it may only be
	// reset or re-recorded after the slot's fence was waited on.
	submitted := make([]bool, n)
	waited := make([]bool, n)
	for _, op := range drv.Ops {
		for k := 0; k < n; k++ {
			switch {
			case op.Name == "Submit" && op.Handle == cbs[k]:
				submitted[k], waited[k] = true, false
			case op.Name == "WaitFence" && op.Handle == fences[k]:
				waited[k] = true
			case (op.Name == "ResetCommandBuffer" || op.Name == "BeginCommandBuffer") && op.Handle == cbs[k]:
				c.Assert(!submitted[k] || waited[k], qt.Equals, true, qt.Commentf("slot %d: %s before fence wait", k, op))
			}
		}
	}
}

func TestMockDetectsReuseWithoutWait(t *testing.T) {
	c := qt.New(t)
	drv, s := newSwapchain(c, gfxtest.NewSurface(800, 600))

	frame, ok := cycle(c, drv, s)
	c.Assert(ok, qt.Equals, true)
	c.Assert(drv.Violations, qt.HasLen, 0)

	c.Assert(drv.ResetCommandBuffer(frame.CommandBuffer), qt.IsNil)
	c.Assert(drv.Violations, qt.HasLen, 1)
}

func TestSwapchainFenceResetRightBeforeSubmit(t *testing.T) {
	c := qt.New(t)
	drv, s := newSwapchain(c, gfxtest.NewSurface(800, 600))

	start := len(drv.Ops)
	cycle(c, drv, s)

	var names []string
	for _, op := range drv.Ops[start:] {
		names = append(names, op.Name)
	}
	c.Assert(names, qt.DeepEquals, []string{
		"WaitFence",
		"AcquireNextImage",
		"ResetCommandBuffer",
		"BeginCommandBuffer",
		"CmdPipelineBarrier",
		"CmdPipelineBarrier",
		"EndCommandBuffer",
		"ResetFence",
		"Submit",
		"Present",
	})
}

func TestSwapchainDegenerateSize(t *testing.T) {
	c := qt.New(t)
	surface := &gfxtest.Surface{Sizes: []gfx.Extent2D{{}, {Width: 640}, {Width: 800, Height: 600}}}
	drv, s := newSwapchain(c, surface)

	c.Assert(surface.Waits, qt.Equals, 2)
	c.Assert(drv.SwapchainsCreated, qt.Equals, 1)
	c.Assert(drv.LastSwapchainDesc.Extent, qt.Equals, gfx.Extent2D{Width: 800, Height: 600})
	c.Assert(s.Extent(), qt.Equals, gfx.Extent2D{Width: 800, Height: 600})

	// Minimize, then restore at a new size.
	surface.Sizes = []gfx.Extent2D{{}, {}, {}, {Width: 1024, Height: 768}}
	c.Assert(s.Recreate(), qt.IsNil)

	c.Assert(surface.Waits, qt.Equals, 5)
	c.Assert(drv.SwapchainsCreated, qt.Equals, 2)
	c.Assert(drv.LastSwapchainDesc.Extent, qt.Equals, gfx.Extent2D{Width: 1024, Height: 768})
	c.Assert(s.Extent(), qt.Equals, gfx.Extent2D{Width: 1024, Height: 768})

	// No swapchain was built while the size was degenerate.
	var waitsSeen, creates int
	for _, op := range drv.Ops {
		switch op.Name {
		case "WaitIdle":
			waitsSeen++
		case "CreateSwapchain":
			creates++
		}
	}
	c.Assert(waitsSeen, qt.Equals, 1)
	c.Assert(creates, qt.Equals, 2)
}

func TestSwapchainRecreateKeepsSlots(t *testing.T) {
	c := qt.New(t)
	drv, s := newSwapchain(c, gfxtest.NewSurface(800, 600))

	first := drv.LastSwapchainDesc
	c.Assert(first.Old, qt.Equals, gfx.Swapchain(0))
	c.Assert(first.MinImageCount, qt.Equals, uint32(render.DefaultSwapchainSize))
	images := s.Images()
	c.Assert(images, qt.HasLen, 3)
	oldHandle := images[0].Handle()

	c.Assert(s.Recreate(), qt.IsNil)
	c.Assert(s.Recreations(), qt.Equals, 1)
	c.Assert(drv.LastSwapchainDesc.Old, qt.Not(qt.Equals), gfx.Swapchain(0))
	c.Assert(drv.CountAll("DestroySwapchain"), qt.Equals, 1)
	c.Assert(drv.CountAll("DestroyImageView"), qt.Equals, 3)
	c.Assert(drv.CountAll("CreateFence"), qt.Equals, 2)
	c.Assert(drv.CountAll("CreateSemaphore"), qt.Equals, 4)

	for _, img := range s.Images() {
		c.Assert(img.Layout(), qt.Equals, gfx.LayoutUndefined)
		c.Assert(img.Handle(), qt.Not(qt.Equals), oldHandle)
	}

	s.Release()
	c.Assert(drv.Live(), qt.Equals, 0)
}

func TestSwapchainAcquireOutOfDate(t *testing.T) {
	c := qt.New(t)
	drv, s := newSwapchain(c, gfxtest.NewSurface(800, 600))
	drv.AcquireStatuses = []gfx.Status{gfx.StatusOutOfDate}

	_, ok := cycle(c, drv, s)
	c.Assert(ok, qt.Equals, false)
	c.Assert(drv.SwapchainsCreated, qt.Equals, 2)
	c.Assert(drv.CountAll("Submit"), qt.Equals, 0)

	// The skipped frame did not advance the slot.
	c.Assert(s.Slot(), qt.Equals, 0)
	frame, ok := cycle(c, drv, s)
	c.Assert(ok, qt.Equals, true)
	c.Assert(frame.Slot, qt.Equals, 0)
	c.Assert(drv.Violations, qt.HasLen, 0)
}

func TestSwapchainAcquireSuboptimalProceeds(t *testing.T) {
	c := qt.New(t)
	drv, s := newSwapchain(c, gfxtest.NewSurface(800, 600))
	drv.AcquireStatuses = []gfx.Status{gfx.StatusSuboptimal}

	_, ok := cycle(c, drv, s)
	c.Assert(ok, qt.Equals, true)
	c.Assert(drv.SwapchainsCreated, qt.Equals, 1)
}

func TestSwapchainPresentStale(t *testing.T) {
	for _, status := range []gfx.Status{gfx.StatusSuboptimal, gfx.StatusOutOfDate} {
		t.Run(status.String(), func(t *testing.T) {
			c := qt.New(t)
			drv, s := newSwapchain(c, gfxtest.NewSurface(800, 600))
			drv.PresentStatuses = []gfx.Status{status}

			frame, ok, err := s.Acquire()
			c.Assert(err, qt.IsNil)
			c.Assert(ok, qt.Equals, true)
			c.Assert(s.Begin(frame), qt.IsNil)
			c.Assert(drv.EndCommandBuffer(frame.CommandBuffer), qt.IsNil)
			c.Assert(s.Submit(frame), qt.IsNil)

			resized, err := s.Present(frame)
			c.Assert(err, qt.IsNil)
			c.Assert(resized, qt.Equals, true)
			c.Assert(drv.SwapchainsCreated, qt.Equals, 2)
			c.Assert(s.Slot(), qt.Equals, 1)
		})
	}
}

func TestSwapchainPresentResizeFlag(t *testing.T) {
	c := qt.New(t)
	surface := gfxtest.NewSurface(800, 600)
	drv, s := newSwapchain(c, surface)

	frame, ok, err := s.Acquire()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.Equals, true)
	c.Assert(s.Begin(frame), qt.IsNil)
	c.Assert(drv.EndCommandBuffer(frame.CommandBuffer), qt.IsNil)
	c.Assert(s.Submit(frame), qt.IsNil)

	surface.Resize(1280, 720)
	resized, err := s.Present(frame)
	c.Assert(err, qt.IsNil)
	c.Assert(resized, qt.Equals, true)
	c.Assert(surface.ResizePending(), qt.Equals, false)
	c.Assert(s.Extent(), qt.Equals, gfx.Extent2D{Width: 1280, Height: 720})
}

// edgeSurface reports a pending resize only to the first caller, like a
// flag cleared by another reader.
type edgeSurface struct {
	*gfxtest.Surface
}

func (s edgeSurface) ResizePending() bool {
	pending := s.Surface.Resized
	s.Surface.Resized = false
	return pending
}

func TestSwapchainLogsResizeThatTriggeredRebuild(t *testing.T) {
	c := qt.New(t)
	surface := edgeSurface{gfxtest.NewSurface(800, 600)}
	drv := gfxtest.NewDriver()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	s, err := render.NewSwapchain(drv, surface, render.Configuration{Log: log})
	c.Assert(err, qt.IsNil)

	frame, ok, err := s.Acquire()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.Equals, true)
	c.Assert(s.Begin(frame), qt.IsNil)
	c.Assert(drv.EndCommandBuffer(frame.CommandBuffer), qt.IsNil)
	c.Assert(s.Submit(frame), qt.IsNil)

	surface.Resize(1024, 768)
	resized, err := s.Present(frame)
	c.Assert(err, qt.IsNil)
	c.Assert(resized, qt.Equals, true)

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "present requires swapchain rebuild" {
			found = true
			c.Assert(entry.Data["resized"], qt.Equals, true)
		}
	}
	c.Assert(found, qt.Equals, true)
}

func TestSwapchainPlatformErrorsAreFatal(t *testing.T) {
	c := qt.New(t)
	drv, s := newSwapchain(c, gfxtest.NewSurface(800, 600))

	drv.AcquireErr = errors.New("surface lost")
	_, _, err := s.Acquire()
	c.Assert(err, qt.ErrorMatches, `acquire next image: surface lost`)

	frame, ok, err := s.Acquire()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.Equals, true)
	c.Assert(s.Begin(frame), qt.IsNil)
	c.Assert(drv.EndCommandBuffer(frame.CommandBuffer), qt.IsNil)
	c.Assert(s.Submit(frame), qt.IsNil)

	drv.PresentErr = errors.Wrap(gfx.ErrDeviceLost, "vk.QueuePresent()")
	_, err = s.Present(frame)
	c.Assert(errors.Cause(err), qt.Equals, gfx.ErrDeviceLost)
	c.Assert(drv.SwapchainsCreated, qt.Equals, 1)
}

func TestSwapchainLogsCreation(t *testing.T) {
	c := qt.New(t)
	log, hook := test.NewNullLogger()
	drv := gfxtest.NewDriver()

	_, err := render.NewSwapchain(drv, gfxtest.NewSurface(320, 200), render.Configuration{Log: log})
	c.Assert(err, qt.IsNil)

	entry := hook.LastEntry()
	c.Assert(entry, qt.Not(qt.IsNil))
	c.Assert(entry.Message, qt.Equals, "swapchain created")
	c.Assert(entry.Data["component"], qt.Equals, "swapchain")
	c.Assert(entry.Data["width"], qt.Equals, uint32(320))
	c.Assert(entry.Data["images"], qt.Equals, 3)
}
