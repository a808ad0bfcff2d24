// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides an in-memory gfx.Driver that records every call,
// executes copies on host memory and checks frame synchronization rules.
package gfxtest

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/devblok/korender/gfx"
)

// Op is one recorded driver call.
type Op struct {
	Name   string
	Handle gfx.Handle
}

func (o Op) String() string {
	return fmt.Sprintf("%s(%d)", o.Name, o.Handle)
}

// CopyCmd is a recorded buffer to buffer copy.
type CopyCmd struct {
	CommandBuffer gfx.CommandBuffer
	Src, Dst      gfx.Buffer
	Region        gfx.BufferCopy
}

// BarrierCmd is a recorded pipeline barrier.
type BarrierCmd struct {
	CommandBuffer gfx.CommandBuffer
	Barrier       gfx.PipelineBarrier
}

// BlitCmd is a recorded image blit.
type BlitCmd struct {
	CommandBuffer gfx.CommandBuffer
	Src, Dst      gfx.Image
	Blit          gfx.ImageBlit
}

// BindCmd is a recorded descriptor set binding.
type BindCmd struct {
	Layout        gfx.PipelineLayout
	Set           uint32
	DescriptorSet gfx.DescriptorSet
}

type fence struct {
	signaled  bool
	destroyed bool
}

type buffer struct {
	desc   gfx.BufferDesc
	data   []byte
	mapped bool
}

type commandBuffer struct {
	recording bool
	oneTime   bool
	// inFlight is the fence of the last submission of this buffer.
	inFlight gfx.Fence
}

type swapchain struct {
	images []gfx.Image
	next   uint32
}

// Driver implements gfx.Driver on host memory. GPU work completes the
// moment its fence is waited on, which makes every missing wait visible
// as a Violation.
type Driver struct {
	next gfx.Handle

	// Ops lists every call in order.
	Ops []Op

	// Violations lists synchronization rule breaks detected by the driver.
	Violations []string

	// ImageCount is the number of images each new swapchain gets.
	ImageCount int

	// AcquireStatuses and PresentStatuses are consumed one per call;
	// once empty every call succeeds.
	AcquireStatuses []gfx.Status
	PresentStatuses []gfx.Status

	// AcquireErr and PresentErr fail the next call when set.
	AcquireErr error
	PresentErr error

	// NonBlittable formats fail FormatSupportsLinearBlit.
	NonBlittable map[gfx.Format]bool

	Copies   []CopyCmd
	Barriers []BarrierCmd
	Blits    []BlitCmd
	Draws    []gfx.DrawIndexed

	// Bound lists descriptor set bindings, Pushes push constant payloads.
	Bound  []BindCmd
	Pushes [][]byte

	SwapchainsCreated int
	LastSwapchainDesc gfx.SwapchainDesc

	fences         map[gfx.Fence]*fence
	semaphores     map[gfx.Semaphore]bool
	commandBuffers map[gfx.CommandBuffer]*commandBuffer
	buffers        map[gfx.Buffer]*buffer
	images         map[gfx.Image]gfx.ImageDesc
	views          map[gfx.ImageView]gfx.Image
	swapchains     map[gfx.Swapchain]*swapchain
	submitted      map[gfx.CommandBuffer]int
}

// NewDriver returns a driver whose swapchains hold three images.
func NewDriver() *Driver {
	return &Driver{
		ImageCount:     3,
		NonBlittable:   make(map[gfx.Format]bool),
		fences:         make(map[gfx.Fence]*fence),
		semaphores:     make(map[gfx.Semaphore]bool),
		commandBuffers: make(map[gfx.CommandBuffer]*commandBuffer),
		buffers:        make(map[gfx.Buffer]*buffer),
		images:         make(map[gfx.Image]gfx.ImageDesc),
		views:          make(map[gfx.ImageView]gfx.Image),
		swapchains:     make(map[gfx.Swapchain]*swapchain),
		submitted:      make(map[gfx.CommandBuffer]int),
	}
}

var _ gfx.Driver = (*Driver)(nil)

func (d *Driver) handle() gfx.Handle {
	d.next++
	return d.next
}

func (d *Driver) record(name string, h gfx.Handle) {
	d.Ops = append(d.Ops, Op{Name: name, Handle: h})
}

func (d *Driver) violate(format string, args ...interface{}) {
	d.Violations = append(d.Violations, fmt.Sprintf(format, args...))
}

// Count returns how many times the named call was made on the handle.
func (d *Driver) Count(name string, h gfx.Handle) int {
	var n int
	for _, op := range d.Ops {
		if op.Name == name && op.Handle == h {
			n++
		}
	}
	return n
}

// CountAll returns how many times the named call was made.
func (d *Driver) CountAll(name string) int {
	var n int
	for _, op := range d.Ops {
		if op.Name == name {
			n++
		}
	}
	return n
}

// Live returns the number of objects not yet destroyed.
func (d *Driver) Live() int {
	n := len(d.semaphores) + len(d.commandBuffers) + len(d.buffers) +
		len(d.images) + len(d.views) + len(d.swapchains)
	for _, f := range d.fences {
		if !f.destroyed {
			n++
		}
	}
	return n
}

// BufferData returns the host copy of a buffer's contents.
func (d *Driver) BufferData(b gfx.Buffer) []byte {
	if buf, ok := d.buffers[b]; ok {
		return buf.data
	}
	return nil
}

// BufferDesc returns the description a buffer was created with.
func (d *Driver) BufferDesc(b gfx.Buffer) gfx.BufferDesc {
	if buf, ok := d.buffers[b]; ok {
		return buf.desc
	}
	return gfx.BufferDesc{}
}

// FenceSignaled reports the current state of a fence.
func (d *Driver) FenceSignaled(f gfx.Fence) bool {
	if fc, ok := d.fences[f]; ok {
		return fc.signaled
	}
	return false
}

// Submissions returns how many times cb was submitted.
func (d *Driver) Submissions(cb gfx.CommandBuffer) int {
	return d.submitted[cb]
}

// CreateFence implements gfx.Sync
func (d *Driver) CreateFence(signaled bool) (gfx.Fence, error) {
	f := gfx.Fence(d.handle())
	d.fences[f] = &fence{signaled: signaled}
	d.record("CreateFence", gfx.Handle(f))
	return f, nil
}

// WaitFence implements gfx.Sync. Pending work completes here.
func (d *Driver) WaitFence(f gfx.Fence) error {
	d.record("WaitFence", gfx.Handle(f))
	fc, ok := d.fences[f]
	if !ok || fc.destroyed {
		return errors.Wrap(gfx.ErrUnknownHandle, "WaitFence")
	}
	fc.signaled = true
	return nil
}

// ResetFence implements gfx.Sync
func (d *Driver) ResetFence(f gfx.Fence) error {
	d.record("ResetFence", gfx.Handle(f))
	fc, ok := d.fences[f]
	if !ok || fc.destroyed {
		return errors.Wrap(gfx.ErrUnknownHandle, "ResetFence")
	}
	if !fc.signaled {
		d.violate("fence %d reset while its work is in flight", f)
	}
	fc.signaled = false
	return nil
}

// DestroyFence implements gfx.Sync
func (d *Driver) DestroyFence(f gfx.Fence) {
	d.record("DestroyFence", gfx.Handle(f))
	if fc, ok := d.fences[f]; ok {
		fc.destroyed = true
	}
}

// CreateSemaphore implements gfx.Sync
func (d *Driver) CreateSemaphore() (gfx.Semaphore, error) {
	s := gfx.Semaphore(d.handle())
	d.semaphores[s] = true
	d.record("CreateSemaphore", gfx.Handle(s))
	return s, nil
}

// DestroySemaphore implements gfx.Sync
func (d *Driver) DestroySemaphore(s gfx.Semaphore) {
	d.record("DestroySemaphore", gfx.Handle(s))
	delete(d.semaphores, s)
}

// WaitIdle implements gfx.Sync. All pending work completes.
func (d *Driver) WaitIdle() error {
	d.record("WaitIdle", 0)
	for _, fc := range d.fences {
		fc.signaled = true
	}
	return nil
}

// AllocateCommandBuffer implements gfx.Commands
func (d *Driver) AllocateCommandBuffer() (gfx.CommandBuffer, error) {
	cb := gfx.CommandBuffer(d.handle())
	d.commandBuffers[cb] = &commandBuffer{}
	d.record("AllocateCommandBuffer", gfx.Handle(cb))
	return cb, nil
}

// FreeCommandBuffer implements gfx.Commands
func (d *Driver) FreeCommandBuffer(cb gfx.CommandBuffer) {
	d.record("FreeCommandBuffer", gfx.Handle(cb))
	if c, ok := d.commandBuffers[cb]; ok {
		d.checkReusable(cb, c, "freed")
	}
	delete(d.commandBuffers, cb)
}

func (d *Driver) checkReusable(cb gfx.CommandBuffer, c *commandBuffer, what string) {
	if c.inFlight == 0 {
		return
	}
	if fc, ok := d.fences[c.inFlight]; ok && !fc.signaled {
		d.violate("command buffer %d %s before fence %d was signaled", cb, what, c.inFlight)
	}
}

// BeginCommandBuffer implements gfx.Commands
func (d *Driver) BeginCommandBuffer(cb gfx.CommandBuffer, oneTime bool) error {
	d.record("BeginCommandBuffer", gfx.Handle(cb))
	c, ok := d.commandBuffers[cb]
	if !ok {
		return errors.Wrap(gfx.ErrUnknownHandle, "BeginCommandBuffer")
	}
	d.checkReusable(cb, c, "re-recorded")
	c.recording = true
	c.oneTime = oneTime
	return nil
}

// EndCommandBuffer implements gfx.Commands
func (d *Driver) EndCommandBuffer(cb gfx.CommandBuffer) error {
	d.record("EndCommandBuffer", gfx.Handle(cb))
	c, ok := d.commandBuffers[cb]
	if !ok {
		return errors.Wrap(gfx.ErrUnknownHandle, "EndCommandBuffer")
	}
	if !c.recording {
		d.violate("command buffer %d ended while not recording", cb)
	}
	c.recording = false
	return nil
}

// ResetCommandBuffer implements gfx.Commands
func (d *Driver) ResetCommandBuffer(cb gfx.CommandBuffer) error {
	d.record("ResetCommandBuffer", gfx.Handle(cb))
	c, ok := d.commandBuffers[cb]
	if !ok {
		return errors.Wrap(gfx.ErrUnknownHandle, "ResetCommandBuffer")
	}
	d.checkReusable(cb, c, "reset")
	c.recording = false
	return nil
}

// Submit implements gfx.Commands
func (d *Driver) Submit(s gfx.Submission) error {
	d.record("Submit", gfx.Handle(s.CommandBuffer))
	c, ok := d.commandBuffers[s.CommandBuffer]
	if !ok {
		return errors.Wrap(gfx.ErrUnknownHandle, "Submit")
	}
	if c.recording {
		d.violate("command buffer %d submitted while recording", s.CommandBuffer)
	}
	if s.Fence != 0 {
		fc, ok := d.fences[s.Fence]
		if !ok {
			return errors.Wrap(gfx.ErrUnknownHandle, "Submit fence")
		}
		if fc.signaled {
			d.violate("fence %d submitted while signaled", s.Fence)
		}
		c.inFlight = s.Fence
	}
	d.submitted[s.CommandBuffer]++
	return nil
}

// QueueWaitIdle implements gfx.Commands
func (d *Driver) QueueWaitIdle() error {
	d.record("QueueWaitIdle", 0)
	return nil
}

func (d *Driver) mustRecord(cb gfx.CommandBuffer, name string) {
	d.record(name, gfx.Handle(cb))
	if c, ok := d.commandBuffers[cb]; !ok || !c.recording {
		d.violate("%s recorded into command buffer %d outside recording", name, cb)
	}
}

// CmdCopyBuffer implements gfx.Recorder. The copy executes immediately.
func (d *Driver) CmdCopyBuffer(cb gfx.CommandBuffer, src, dst gfx.Buffer, region gfx.BufferCopy) {
	d.mustRecord(cb, "CmdCopyBuffer")
	d.Copies = append(d.Copies, CopyCmd{CommandBuffer: cb, Src: src, Dst: dst, Region: region})
	s, sok := d.buffers[src]
	t, tok := d.buffers[dst]
	if !sok || !tok {
		d.violate("copy between unknown buffers %d -> %d", src, dst)
		return
	}
	if region.SrcOffset+region.Size > uint64(len(s.data)) || region.DstOffset+region.Size > uint64(len(t.data)) {
		d.violate("copy region out of bounds %d -> %d", src, dst)
		return
	}
	copy(t.data[region.DstOffset:region.DstOffset+region.Size], s.data[region.SrcOffset:region.SrcOffset+region.Size])
}

// CmdCopyBufferToImage implements gfx.Recorder
func (d *Driver) CmdCopyBufferToImage(cb gfx.CommandBuffer, src gfx.Buffer, dst gfx.Image, region gfx.BufferImageCopy) {
	d.mustRecord(cb, "CmdCopyBufferToImage")
}

// CmdBlitImage implements gfx.Recorder
func (d *Driver) CmdBlitImage(cb gfx.CommandBuffer, src, dst gfx.Image, blit gfx.ImageBlit) {
	d.mustRecord(cb, "CmdBlitImage")
	d.Blits = append(d.Blits, BlitCmd{CommandBuffer: cb, Src: src, Dst: dst, Blit: blit})
}

// CmdPipelineBarrier implements gfx.Recorder
func (d *Driver) CmdPipelineBarrier(cb gfx.CommandBuffer, barrier gfx.PipelineBarrier) {
	d.mustRecord(cb, "CmdPipelineBarrier")
	d.Barriers = append(d.Barriers, BarrierCmd{CommandBuffer: cb, Barrier: barrier})
}

// CmdBeginRenderTarget implements gfx.Recorder
func (d *Driver) CmdBeginRenderTarget(cb gfx.CommandBuffer, target gfx.RenderTarget) error {
	d.mustRecord(cb, "CmdBeginRenderTarget")
	if _, ok := d.views[target.Color]; !ok {
		return errors.Wrap(gfx.ErrUnknownHandle, "render target color view")
	}
	return nil
}

// CmdEndRenderTarget implements gfx.Recorder
func (d *Driver) CmdEndRenderTarget(cb gfx.CommandBuffer) {
	d.mustRecord(cb, "CmdEndRenderTarget")
}

// CmdSetViewport implements gfx.Recorder
func (d *Driver) CmdSetViewport(cb gfx.CommandBuffer, viewport gfx.Viewport) {
	d.mustRecord(cb, "CmdSetViewport")
}

// CmdSetScissor implements gfx.Recorder
func (d *Driver) CmdSetScissor(cb gfx.CommandBuffer, scissor gfx.Rect) {
	d.mustRecord(cb, "CmdSetScissor")
}

// CmdBindPipeline implements gfx.Recorder
func (d *Driver) CmdBindPipeline(cb gfx.CommandBuffer, pipeline gfx.Pipeline) {
	d.mustRecord(cb, "CmdBindPipeline")
}

// CmdBindVertexBuffer implements gfx.Recorder
func (d *Driver) CmdBindVertexBuffer(cb gfx.CommandBuffer, buffer gfx.Buffer, offset uint64) {
	d.mustRecord(cb, "CmdBindVertexBuffer")
}

// CmdBindIndexBuffer implements gfx.Recorder
func (d *Driver) CmdBindIndexBuffer(cb gfx.CommandBuffer, buffer gfx.Buffer, offset uint64) {
	d.mustRecord(cb, "CmdBindIndexBuffer")
}

// CmdBindDescriptorSet implements gfx.Recorder
func (d *Driver) CmdBindDescriptorSet(cb gfx.CommandBuffer, layout gfx.PipelineLayout, set uint32, ds gfx.DescriptorSet) {
	d.mustRecord(cb, "CmdBindDescriptorSet")
	d.Bound = append(d.Bound, BindCmd{Layout: layout, Set: set, DescriptorSet: ds})
}

// CmdPushConstants implements gfx.Recorder
func (d *Driver) CmdPushConstants(cb gfx.CommandBuffer, layout gfx.PipelineLayout, offset uint32, data []byte) {
	d.mustRecord(cb, "CmdPushConstants")
	d.Pushes = append(d.Pushes, append([]byte(nil), data...))
}

// CmdDrawIndexed implements gfx.Recorder
func (d *Driver) CmdDrawIndexed(cb gfx.CommandBuffer, draw gfx.DrawIndexed) {
	d.mustRecord(cb, "CmdDrawIndexed")
	d.Draws = append(d.Draws, draw)
}

// CreateBuffer implements gfx.Resources
func (d *Driver) CreateBuffer(desc gfx.BufferDesc) (gfx.Buffer, error) {
	b := gfx.Buffer(d.handle())
	d.buffers[b] = &buffer{desc: desc, data: make([]byte, desc.Size)}
	d.record("CreateBuffer", gfx.Handle(b))
	return b, nil
}

// DestroyBuffer implements gfx.Resources
func (d *Driver) DestroyBuffer(b gfx.Buffer) {
	d.record("DestroyBuffer", gfx.Handle(b))
	delete(d.buffers, b)
}

// MapBuffer implements gfx.Resources
func (d *Driver) MapBuffer(b gfx.Buffer) ([]byte, error) {
	d.record("MapBuffer", gfx.Handle(b))
	buf, ok := d.buffers[b]
	if !ok {
		return nil, errors.Wrap(gfx.ErrUnknownHandle, "MapBuffer")
	}
	if !buf.desc.HostVisible {
		return nil, errors.New("MapBuffer: buffer is not host visible")
	}
	buf.mapped = true
	return buf.data, nil
}

// UnmapBuffer implements gfx.Resources
func (d *Driver) UnmapBuffer(b gfx.Buffer) {
	d.record("UnmapBuffer", gfx.Handle(b))
	if buf, ok := d.buffers[b]; ok {
		buf.mapped = false
	}
}

// CreateImage implements gfx.Resources
func (d *Driver) CreateImage(desc gfx.ImageDesc) (gfx.Image, error) {
	i := gfx.Image(d.handle())
	d.images[i] = desc
	d.record("CreateImage", gfx.Handle(i))
	return i, nil
}

// DestroyImage implements gfx.Resources
func (d *Driver) DestroyImage(i gfx.Image) {
	d.record("DestroyImage", gfx.Handle(i))
	delete(d.images, i)
}

// CreateImageView implements gfx.Resources
func (d *Driver) CreateImageView(i gfx.Image, desc gfx.ImageViewDesc) (gfx.ImageView, error) {
	if _, ok := d.images[i]; !ok {
		return 0, errors.Wrap(gfx.ErrUnknownHandle, "CreateImageView")
	}
	v := gfx.ImageView(d.handle())
	d.views[v] = i
	d.record("CreateImageView", gfx.Handle(v))
	return v, nil
}

// DestroyImageView implements gfx.Resources
func (d *Driver) DestroyImageView(v gfx.ImageView) {
	d.record("DestroyImageView", gfx.Handle(v))
	delete(d.views, v)
}

// FormatSupportsLinearBlit implements gfx.Resources
func (d *Driver) FormatSupportsLinearBlit(f gfx.Format) bool {
	return !d.NonBlittable[f]
}

// CreateSwapchain implements gfx.Presenter
func (d *Driver) CreateSwapchain(desc gfx.SwapchainDesc) (gfx.SwapchainInfo, error) {
	s := gfx.Swapchain(d.handle())
	d.record("CreateSwapchain", gfx.Handle(s))
	d.SwapchainsCreated++
	d.LastSwapchainDesc = desc

	sc := &swapchain{}
	for idx := 0; idx < d.ImageCount; idx++ {
		img := gfx.Image(d.handle())
		d.images[img] = gfx.ImageDesc{
			Width:     desc.Extent.Width,
			Height:    desc.Extent.Height,
			MipLevels: 1,
			Layers:    1,
			Format:    gfx.FormatB8G8R8A8Unorm,
		}
		sc.images = append(sc.images, img)
	}
	d.swapchains[s] = sc

	return gfx.SwapchainInfo{
		Handle: s,
		Images: append([]gfx.Image(nil), sc.images...),
		Extent: desc.Extent,
		Format: gfx.FormatB8G8R8A8Unorm,
	}, nil
}

// DestroySwapchain implements gfx.Presenter
func (d *Driver) DestroySwapchain(s gfx.Swapchain) {
	d.record("DestroySwapchain", gfx.Handle(s))
	if sc, ok := d.swapchains[s]; ok {
		for _, img := range sc.images {
			delete(d.images, img)
		}
	}
	delete(d.swapchains, s)
}

// AcquireNextImage implements gfx.Presenter. Images are handed out in order.
func (d *Driver) AcquireNextImage(s gfx.Swapchain, acquired gfx.Semaphore) (uint32, gfx.Status, error) {
	d.record("AcquireNextImage", gfx.Handle(s))
	if d.AcquireErr != nil {
		err := d.AcquireErr
		d.AcquireErr = nil
		return 0, gfx.StatusSuccess, err
	}
	sc, ok := d.swapchains[s]
	if !ok {
		return 0, gfx.StatusSuccess, errors.Wrap(gfx.ErrUnknownHandle, "AcquireNextImage")
	}
	status := gfx.StatusSuccess
	if len(d.AcquireStatuses) > 0 {
		status = d.AcquireStatuses[0]
		d.AcquireStatuses = d.AcquireStatuses[1:]
	}
	if status == gfx.StatusOutOfDate {
		return 0, status, nil
	}
	idx := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	return idx, status, nil
}

// Present implements gfx.Presenter
func (d *Driver) Present(s gfx.Swapchain, imageIndex uint32, wait gfx.Semaphore) (gfx.Status, error) {
	d.record("Present", gfx.Handle(s))
	if d.PresentErr != nil {
		err := d.PresentErr
		d.PresentErr = nil
		return gfx.StatusSuccess, err
	}
	if _, ok := d.swapchains[s]; !ok {
		return gfx.StatusSuccess, errors.Wrap(gfx.ErrUnknownHandle, "Present")
	}
	status := gfx.StatusSuccess
	if len(d.PresentStatuses) > 0 {
		status = d.PresentStatuses[0]
		d.PresentStatuses = d.PresentStatuses[1:]
	}
	return status, nil
}
