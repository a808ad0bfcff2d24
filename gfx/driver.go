// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// BufferDesc describes a buffer to be created by a Driver.
type BufferDesc struct {
	Size  uint64
	Usage BufferUsageFlags

	// HostVisible requests host visible and coherent memory that can be mapped.
	// Otherwise the buffer is placed in device local memory.
	HostVisible bool

	// Dedicated requests an allocation that backs only this buffer.
	Dedicated bool
}

// ImageDesc describes an image to be created by a Driver.
type ImageDesc struct {
	Width, Height uint32
	MipLevels     uint32
	Layers        uint32
	Samples       uint32
	Format        Format
	Usage         ImageUsageFlags

	// Cube marks a 6 layer image as cube compatible.
	Cube bool
}

// ImageViewDesc selects the subresources an image view covers.
type ImageViewDesc struct {
	Format    Format
	Aspect    Aspect
	MipLevels uint32
	Layers    uint32
	Cube      bool
}

// SwapchainDesc describes a swapchain to (re)build.
type SwapchainDesc struct {
	Extent        Extent2D
	MinImageCount uint32

	// Old is the swapchain being replaced, passed to the platform as a hint.
	Old Swapchain
}

// SwapchainInfo is what the platform actually built.
type SwapchainInfo struct {
	Handle Swapchain
	Images []Image
	Extent Extent2D
	Format Format
}

// Submission is one command buffer submitted to the graphics queue.
type Submission struct {
	CommandBuffer CommandBuffer

	// Wait is waited on at WaitStage before the buffer executes. Optional.
	Wait      Semaphore
	WaitStage Stage

	// Signal is signaled once the buffer finished executing. Optional.
	Signal Semaphore

	// Fence is signaled once the buffer finished executing. Optional.
	Fence Fence
}

// BufferCopy is a region copied between two buffers.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// BufferImageCopy copies a tightly packed buffer region into one
// mip level of an image.
type BufferImageCopy struct {
	BufferOffset uint64
	Aspect       Aspect
	MipLevel     uint32
	BaseLayer    uint32
	LayerCount   uint32
	Width        uint32
	Height       uint32
}

// ImageBlit scales one mip level of src into one mip level of dst.
type ImageBlit struct {
	Aspect     Aspect
	BaseLayer  uint32
	LayerCount uint32

	SrcLevel  uint32
	SrcWidth  uint32
	SrcHeight uint32

	DstLevel  uint32
	DstWidth  uint32
	DstHeight uint32
}

// BufferBarrier makes writes to a buffer range visible.
type BufferBarrier struct {
	Buffer    Buffer
	SrcAccess Access
	DstAccess Access
	Offset    uint64
	Size      uint64
}

// ImageBarrier transitions a range of image subresources between layouts.
type ImageBarrier struct {
	Image     Image
	Old       Layout
	New       Layout
	SrcAccess Access
	DstAccess Access
	Aspect    Aspect

	BaseMipLevel   uint32
	MipLevelCount  uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// PipelineBarrier is a single barrier command.
type PipelineBarrier struct {
	SrcStage Stage
	DstStage Stage
	Buffers  []BufferBarrier
	Images   []ImageBarrier
}

// RenderTarget describes the attachments a frame is rendered into.
type RenderTarget struct {
	Color       ImageView
	ColorFormat Format
	Depth       ImageView
	DepthFormat Format
	Extent      Extent2D
	ClearColor  [4]float32
	ClearDepth  float32
}

// DrawIndexed is the argument set of an indexed draw.
type DrawIndexed struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

// Sync covers fences, semaphores and whole device idling.
type Sync interface {
	CreateFence(signaled bool) (Fence, error)

	// WaitFence blocks without a timeout until the fence is signaled.
	WaitFence(f Fence) error
	ResetFence(f Fence) error
	DestroyFence(f Fence)

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	// WaitIdle blocks until every queue of the device is idle.
	WaitIdle() error
}

// Commands covers command buffer lifetime and queue submission.
type Commands interface {
	AllocateCommandBuffer() (CommandBuffer, error)
	FreeCommandBuffer(cb CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(cb CommandBuffer) error
	ResetCommandBuffer(cb CommandBuffer) error

	Submit(s Submission) error

	// QueueWaitIdle blocks until the graphics queue drained.
	QueueWaitIdle() error
}

// Recorder records commands into a command buffer in the recording state.
type Recorder interface {
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, region BufferCopy)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, region BufferImageCopy)
	CmdBlitImage(cb CommandBuffer, src, dst Image, blit ImageBlit)
	CmdPipelineBarrier(cb CommandBuffer, barrier PipelineBarrier)

	CmdBeginRenderTarget(cb CommandBuffer, target RenderTarget) error
	CmdEndRenderTarget(cb CommandBuffer)
	CmdSetViewport(cb CommandBuffer, viewport Viewport)
	CmdSetScissor(cb CommandBuffer, scissor Rect)

	CmdBindPipeline(cb CommandBuffer, pipeline Pipeline)
	CmdBindVertexBuffer(cb CommandBuffer, buffer Buffer, offset uint64)
	CmdBindIndexBuffer(cb CommandBuffer, buffer Buffer, offset uint64)
	CmdBindDescriptorSet(cb CommandBuffer, layout PipelineLayout, set uint32, ds DescriptorSet)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, offset uint32, data []byte)
	CmdDrawIndexed(cb CommandBuffer, draw DrawIndexed)
}

// Resources covers buffers, images and views.
type Resources interface {
	CreateBuffer(desc BufferDesc) (Buffer, error)
	DestroyBuffer(b Buffer)

	// MapBuffer maps a host visible buffer and returns its whole contents.
	MapBuffer(b Buffer) ([]byte, error)
	UnmapBuffer(b Buffer)

	CreateImage(desc ImageDesc) (Image, error)
	DestroyImage(i Image)
	CreateImageView(i Image, desc ImageViewDesc) (ImageView, error)
	DestroyImageView(v ImageView)

	// FormatSupportsLinearBlit reports whether optimally tiled images of
	// the format can be blitted with linear filtering.
	FormatSupportsLinearBlit(f Format) bool
}

// Presenter covers the swapchain and the presentation engine.
type Presenter interface {
	CreateSwapchain(desc SwapchainDesc) (SwapchainInfo, error)
	DestroySwapchain(s Swapchain)

	// AcquireNextImage returns the index of the next presentable image.
	// OutOfDate and Suboptimal are reported as a Status, never as an error.
	AcquireNextImage(s Swapchain, acquired Semaphore) (uint32, Status, error)

	// Present queues the image for presentation once wait is signaled.
	Present(s Swapchain, imageIndex uint32, wait Semaphore) (Status, error)
}

// Driver is the full set of device operations the renderer needs.
type Driver interface {
	Sync
	Commands
	Recorder
	Resources
	Presenter
}
