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

// Renderer runs the frame loop: acquire, upload, record, submit, present.
type Renderer struct {
	drv       gfx.Driver
	cfg       Configuration
	log       logrus.FieldLogger
	swapchain *Swapchain
	stager    *Stager
	depth     *Image
	recorder  FrameRecorder
	clock     frameClock
	number    uint64
	stats     Stats
}

// NewRenderer sets up the swapchain, staging memory and depth attachment.
func NewRenderer(drv gfx.Driver, surface Surface, recorder FrameRecorder, cfg Configuration) (*Renderer, error) {
	cfg = cfg.withDefaults()
	r := &Renderer{
		drv:      drv,
		cfg:      cfg,
		log:      cfg.Log.WithField("component", "renderer"),
		recorder: recorder,
		clock:    frameClock{now: cfg.Clock},
	}

	var err error
	if r.swapchain, err = NewSwapchain(drv, surface, cfg); err != nil {
		return nil, err
	}
	if r.stager, err = NewStager(drv, cfg.FramesInFlight, cfg.StagingCapacity, cfg.Log); err != nil {
		r.Release()
		return nil, err
	}
	if err := r.createDepth(); err != nil {
		r.Release()
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"framesInFlight":  cfg.FramesInFlight,
		"stagingCapacity": cfg.StagingCapacity,
	}).Info("renderer ready")
	return r, nil
}

func (r *Renderer) createDepth() error {
	extent := r.swapchain.Extent()
	depth, err := NewImage(r.drv, gfx.ImageDesc{
		Width:  extent.Width,
		Height: extent.Height,
		Format: r.cfg.DepthFormat,
	}, ImageAttachment)
	if err != nil {
		return errors.Wrap(err, "create depth attachment")
	}
	if err := depth.TransitionLayout(gfx.LayoutUndefined, gfx.LayoutDepthAttachment); err != nil {
		depth.Release()
		return err
	}
	r.depth = depth
	return nil
}

func (r *Renderer) resize() error {
	r.stats.Recreations++
	if r.depth != nil {
		r.depth.Release()
		r.depth = nil
	}
	r.log.WithFields(logrus.Fields{
		"width":  r.swapchain.Extent().Width,
		"height": r.swapchain.Extent().Height,
	}).Debug("recreating size dependent attachments")
	return r.createDepth()
}

// Swapchain returns the swapchain frames are presented to
func (r *Renderer) Swapchain() *Swapchain {
	return r.swapchain
}

// Stager returns the staging manager
func (r *Renderer) Stager() *Stager {
	return r.stager
}

// Depth returns the current depth attachment
func (r *Renderer) Depth() *Image {
	return r.depth
}

// Stats returns frame loop counters
func (r *Renderer) Stats() Stats {
	return r.stats
}

// DrawFrame builds and presents one frame. It returns false when the frame
// was skipped because the swapchain had to be rebuilt first. Errors are
// fatal.
func (r *Renderer) DrawFrame() (bool, error) {
	frame, ok, err := r.swapchain.Acquire()
	if err != nil {
		return false, err
	}
	if !ok {
		r.stats.Skipped++
		return false, r.resize()
	}

	// The slot's fence was observed in Acquire, its staging memory is free.
	r.stager.NextFrame(frame.Slot)

	elapsed, delta := r.clock.tick()
	fc := FrameContext{
		Slot:       frame.Slot,
		ImageIndex: frame.ImageIndex,
		Number:     r.number,
		Elapsed:    elapsed,
		Delta:      delta,
		Extent:     r.swapchain.Extent(),
	}

	if err := r.recorder.Update(fc, r.stager); err != nil {
		return false, errors.Wrap(err, "update frame")
	}
	if err := r.record(frame, fc); err != nil {
		return false, err
	}
	if err := r.swapchain.Submit(frame); err != nil {
		return false, err
	}
	resized, err := r.swapchain.Present(frame)
	if err != nil {
		return false, err
	}

	r.number++
	r.stats.Frames++
	if resized {
		return true, r.resize()
	}
	return true, nil
}

func (r *Renderer) record(frame Frame, fc FrameContext) error {
	cb := frame.CommandBuffer
	if err := r.swapchain.Begin(frame); err != nil {
		return err
	}

	r.stager.Flush(cb)

	if err := frame.Image.Transition(cb, gfx.LayoutUndefined, gfx.LayoutColorAttachment); err != nil {
		return err
	}
	err := r.drv.CmdBeginRenderTarget(cb, gfx.RenderTarget{
		Color:       frame.Image.View(),
		ColorFormat: r.swapchain.Format(),
		Depth:       r.depth.View(),
		DepthFormat: r.cfg.DepthFormat,
		Extent:      fc.Extent,
		ClearColor:  r.cfg.ClearColor,
		ClearDepth:  1,
	})
	if err != nil {
		return errors.Wrap(err, "begin render target")
	}
	r.drv.CmdSetViewport(cb, gfx.ViewportFor(fc.Extent))
	r.drv.CmdSetScissor(cb, gfx.ScissorFor(fc.Extent))

	if err := r.recorder.Record(cb, fc); err != nil {
		return errors.Wrap(err, "record frame")
	}

	r.drv.CmdEndRenderTarget(cb)
	if err := frame.Image.Transition(cb, gfx.LayoutColorAttachment, gfx.LayoutPresentSrc); err != nil {
		return err
	}
	return errors.Wrap(r.drv.EndCommandBuffer(cb), "end frame command buffer")
}

// Release waits for the device and frees everything the renderer owns.
func (r *Renderer) Release() {
	if err := r.drv.WaitIdle(); err != nil {
		r.log.WithError(err).Warn("wait idle before release")
	}
	if r.depth != nil {
		r.depth.Release()
		r.depth = nil
	}
	if r.stager != nil {
		r.stager.Release()
		r.stager = nil
	}
	if r.swapchain != nil {
		r.swapchain.Release()
		r.swapchain = nil
	}
}
