// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/devblok/korender/gfx"
)

// Frame is one acquired presentable image paired with the frame slot
// that renders it.
type Frame struct {
	Slot          int
	ImageIndex    uint32
	CommandBuffer gfx.CommandBuffer
	Image         *Image
}

type frameSlot struct {
	fence          gfx.Fence
	imageAcquired  gfx.Semaphore
	renderFinished gfx.Semaphore
	commandBuffer  gfx.CommandBuffer
}

// Swapchain owns the presentable images and the frame slots, and paces
// the CPU so that a slot is only reused once its previous submission
// completed.
type Swapchain struct {
	drv     gfx.Driver
	surface Surface
	log     logrus.FieldLogger

	handle        gfx.Swapchain
	extent        gfx.Extent2D
	format        gfx.Format
	images        []*Image
	minImageCount uint32

	slots   []frameSlot
	current int

	recreations int
}

// NewSwapchain creates the frame slots and the first swapchain. It blocks
// while the surface has a degenerate size.
func NewSwapchain(drv gfx.Driver, surface Surface, cfg Configuration) (*Swapchain, error) {
	cfg = cfg.withDefaults()
	s := &Swapchain{
		drv:           drv,
		surface:       surface,
		log:           cfg.Log.WithField("component", "swapchain"),
		minImageCount: cfg.SwapchainSize,
		slots:         make([]frameSlot, cfg.FramesInFlight),
	}

	for idx := range s.slots {
		if err := s.createSlot(&s.slots[idx]); err != nil {
			s.Release()
			return nil, err
		}
	}
	if err := s.build(); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) createSlot(slot *frameSlot) error {
	var err error
	// Signaled so the first wait on every slot returns at once.
	if slot.fence, err = s.drv.CreateFence(true); err != nil {
		return errors.Wrap(err, "create frame fence")
	}
	if slot.imageAcquired, err = s.drv.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "create image acquired semaphore")
	}
	if slot.renderFinished, err = s.drv.CreateSemaphore(); err != nil {
		return errors.Wrap(err, "create render finished semaphore")
	}
	if slot.commandBuffer, err = s.drv.AllocateCommandBuffer(); err != nil {
		return errors.Wrap(err, "allocate frame command buffer")
	}
	return nil
}

// FramesInFlight returns the number of frame slots
func (s *Swapchain) FramesInFlight() int {
	return len(s.slots)
}

// Slot returns the index of the slot the next Acquire uses
func (s *Swapchain) Slot() int {
	return s.current
}

// Extent returns the size of the presentable images
func (s *Swapchain) Extent() gfx.Extent2D {
	return s.extent
}

// Format returns the format of the presentable images
func (s *Swapchain) Format() gfx.Format {
	return s.format
}

// Images returns the presentable images
func (s *Swapchain) Images() []*Image {
	return s.images
}

// Recreations returns how many times the swapchain was rebuilt after creation
func (s *Swapchain) Recreations() int {
	return s.recreations
}

// Acquire waits until the current slot is free and acquires the next
// presentable image. When the surface went stale the swapchain is rebuilt
// and ok is false; the frame must then be skipped.
func (s *Swapchain) Acquire() (frame Frame, ok bool, err error) {
	slot := &s.slots[s.current]
	if err := s.drv.WaitFence(slot.fence); err != nil {
		return Frame{}, false, errors.Wrapf(err, "wait for frame slot %d", s.current)
	}

	idx, status, err := s.drv.AcquireNextImage(s.handle, slot.imageAcquired)
	if err != nil {
		return Frame{}, false, errors.Wrap(err, "acquire next image")
	}
	if status == gfx.StatusOutOfDate {
		s.log.WithField("slot", s.current).Debug("acquire reported out of date surface")
		if err := s.Recreate(); err != nil {
			return Frame{}, false, err
		}
		return Frame{}, false, nil
	}
	if int(idx) >= len(s.images) {
		return Frame{}, false, errors.Errorf("acquired image index %d out of %d", idx, len(s.images))
	}

	return Frame{
		Slot:          s.current,
		ImageIndex:    idx,
		CommandBuffer: slot.commandBuffer,
		Image:         s.images[idx],
	}, true, nil
}

// Begin resets the frame's command buffer and starts recording into it.
func (s *Swapchain) Begin(frame Frame) error {
	if err := s.drv.ResetCommandBuffer(frame.CommandBuffer); err != nil {
		return errors.Wrapf(err, "reset command buffer of slot %d", frame.Slot)
	}
	return errors.Wrapf(s.drv.BeginCommandBuffer(frame.CommandBuffer, true), "begin command buffer of slot %d", frame.Slot)
}

// Submit submits the recorded frame. The slot's fence is reset right
// before the submission that signals it again.
func (s *Swapchain) Submit(frame Frame) error {
	slot := &s.slots[frame.Slot]
	if err := s.drv.ResetFence(slot.fence); err != nil {
		return errors.Wrapf(err, "reset fence of slot %d", frame.Slot)
	}
	err := s.drv.Submit(gfx.Submission{
		CommandBuffer: slot.commandBuffer,
		Wait:          slot.imageAcquired,
		WaitStage:     gfx.StageColorAttachmentOutput,
		Signal:        slot.renderFinished,
		Fence:         slot.fence,
	})
	return errors.Wrapf(err, "submit slot %d", frame.Slot)
}

// Present queues the frame's image for presentation and advances to the
// next slot. resized reports that the swapchain was rebuilt.
func (s *Swapchain) Present(frame Frame) (resized bool, err error) {
	slot := &s.slots[frame.Slot]
	status, err := s.drv.Present(s.handle, frame.ImageIndex, slot.renderFinished)
	s.current = (frame.Slot + 1) % len(s.slots)
	if err != nil {
		return false, errors.Wrap(err, "present")
	}

	pending := s.surface.ResizePending()
	if status.Stale() || pending {
		s.log.WithFields(logrus.Fields{
			"status":  status,
			"resized": pending,
		}).Debug("present requires swapchain rebuild")
		s.surface.AcknowledgeResize()
		if err := s.Recreate(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Recreate drains the device and rebuilds the swapchain for the current
// drawable size. Frame slots are kept.
func (s *Swapchain) Recreate() error {
	if err := s.drv.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait idle before swapchain rebuild")
	}
	if err := s.build(); err != nil {
		return err
	}
	s.recreations++
	return nil
}

func (s *Swapchain) drawableSize() gfx.Extent2D {
	for {
		extent := s.surface.DrawableSize()
		if !extent.Degenerate() {
			return extent
		}
		s.surface.WaitEvents()
	}
}

func (s *Swapchain) build() error {
	extent := s.drawableSize()

	s.releaseImages()
	old := s.handle
	info, err := s.drv.CreateSwapchain(gfx.SwapchainDesc{
		Extent:        extent,
		MinImageCount: s.minImageCount,
		Old:           old,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	if old != 0 {
		s.drv.DestroySwapchain(old)
	}
	s.handle = info.Handle
	s.extent = info.Extent
	s.format = info.Format

	for _, h := range info.Images {
		img, err := adoptImage(s.drv, h, gfx.ImageDesc{
			Width:     info.Extent.Width,
			Height:    info.Extent.Height,
			MipLevels: 1,
			Layers:    1,
			Samples:   1,
			Format:    info.Format,
			Usage:     gfx.ImageUsageColorAttachment,
		})
		if err != nil {
			return err
		}
		s.images = append(s.images, img)
	}

	s.log.WithFields(logrus.Fields{
		"width":  s.extent.Width,
		"height": s.extent.Height,
		"images": len(s.images),
	}).Info("swapchain created")
	return nil
}

func (s *Swapchain) releaseImages() {
	for _, img := range s.images {
		img.Release()
	}
	s.images = nil
}

// Release implements gfx.Releasable
func (s *Swapchain) Release() {
	if err := s.drv.WaitIdle(); err != nil {
		s.log.WithError(err).Warn("wait idle before swapchain release")
	}
	s.releaseImages()
	if s.handle != 0 {
		s.drv.DestroySwapchain(s.handle)
		s.handle = 0
	}
	for idx := range s.slots {
		slot := &s.slots[idx]
		if slot.commandBuffer != 0 {
			s.drv.FreeCommandBuffer(slot.commandBuffer)
		}
		if slot.fence != 0 {
			s.drv.DestroyFence(slot.fence)
		}
		if slot.imageAcquired != 0 {
			s.drv.DestroySemaphore(slot.imageAcquired)
		}
		if slot.renderFinished != 0 {
			s.drv.DestroySemaphore(slot.renderFinished)
		}
		*slot = frameSlot{}
	}
}
