// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korender/gfx"
)

// Commands recorded here resolve their handles eagerly. An unknown handle
// means the caller released an object it is still recording with, and
// panics.

// CmdCopyBuffer implements gfx.Recorder
func (d *Device) CmdCopyBuffer(cb gfx.CommandBuffer, src, dst gfx.Buffer, region gfx.BufferCopy) {
	vk.CmdCopyBuffer(d.cmd(cb), d.mustBuffer(src), d.mustBuffer(dst), 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(region.SrcOffset),
		DstOffset: vk.DeviceSize(region.DstOffset),
		Size:      vk.DeviceSize(region.Size),
	}})
}

// CmdCopyBufferToImage implements gfx.Recorder. The image has to be in
// TransferDst.
func (d *Device) CmdCopyBufferToImage(cb gfx.CommandBuffer, src gfx.Buffer, dst gfx.Image, region gfx.BufferImageCopy) {
	vk.CmdCopyBufferToImage(d.cmd(cb), d.mustBuffer(src), d.mustImage(dst), vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		BufferOffset: vk.DeviceSize(region.BufferOffset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspect(region.Aspect),
			MipLevel:       region.MipLevel,
			BaseArrayLayer: region.BaseLayer,
			LayerCount:     orOne(region.LayerCount),
		},
		ImageExtent: vk.Extent3D{
			Width:  region.Width,
			Height: region.Height,
			Depth:  1,
		},
	}})
}

// CmdBlitImage implements gfx.Recorder. The source level has to be in
// TransferSrc and the destination level in TransferDst.
func (d *Device) CmdBlitImage(cb gfx.CommandBuffer, src, dst gfx.Image, blit gfx.ImageBlit) {
	subresource := func(level uint32) vk.ImageSubresourceLayers {
		return vk.ImageSubresourceLayers{
			AspectMask:     aspect(blit.Aspect),
			MipLevel:       level,
			BaseArrayLayer: blit.BaseLayer,
			LayerCount:     orOne(blit.LayerCount),
		}
	}
	region := vk.ImageBlit{
		SrcSubresource: subresource(blit.SrcLevel),
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: int32(blit.SrcWidth), Y: int32(blit.SrcHeight), Z: 1},
		},
		DstSubresource: subresource(blit.DstLevel),
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: int32(blit.DstWidth), Y: int32(blit.DstHeight), Z: 1},
		},
	}
	vk.CmdBlitImage(d.cmd(cb),
		d.mustImage(src), vk.ImageLayoutTransferSrcOptimal,
		d.mustImage(dst), vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterLinear)
}

// CmdPipelineBarrier implements gfx.Recorder
func (d *Device) CmdPipelineBarrier(cb gfx.CommandBuffer, barrier gfx.PipelineBarrier) {
	buffers := make([]vk.BufferMemoryBarrier, len(barrier.Buffers))
	for idx, b := range barrier.Buffers {
		size := vk.DeviceSize(b.Size)
		if b.Size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		buffers[idx] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       access(b.SrcAccess),
			DstAccessMask:       access(b.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              d.mustBuffer(b.Buffer),
			Offset:              vk.DeviceSize(b.Offset),
			Size:                size,
		}
	}
	images := make([]vk.ImageMemoryBarrier, len(barrier.Images))
	for idx, i := range barrier.Images {
		images[idx] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       access(i.SrcAccess),
			DstAccessMask:       access(i.DstAccess),
			OldLayout:           imageLayout(i.Old),
			NewLayout:           imageLayout(i.New),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               d.mustImage(i.Image),
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     aspect(i.Aspect),
				BaseMipLevel:   i.BaseMipLevel,
				LevelCount:     orOne(i.MipLevelCount),
				BaseArrayLayer: i.BaseArrayLayer,
				LayerCount:     orOne(i.LayerCount),
			},
		}
	}
	vk.CmdPipelineBarrier(d.cmd(cb), stage(barrier.SrcStage), stage(barrier.DstStage), 0,
		0, nil,
		uint32(len(buffers)), buffers,
		uint32(len(images)), images)
}

// CmdSetViewport implements gfx.Recorder
func (d *Device) CmdSetViewport(cb gfx.CommandBuffer, viewport gfx.Viewport) {
	vk.CmdSetViewport(d.cmd(cb), 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

// CmdSetScissor implements gfx.Recorder
func (d *Device) CmdSetScissor(cb gfx.CommandBuffer, scissor gfx.Rect) {
	vk.CmdSetScissor(d.cmd(cb), 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.X, Y: scissor.Y},
		Extent: extent(scissor.Extent),
	}})
}

// CmdBindPipeline implements gfx.Recorder
func (d *Device) CmdBindPipeline(cb gfx.CommandBuffer, pipeline gfx.Pipeline) {
	p := d.objects.must(kindPipeline, gfx.Handle(pipeline)).(vk.Pipeline)
	vk.CmdBindPipeline(d.cmd(cb), vk.PipelineBindPointGraphics, p)
}

// CmdBindVertexBuffer implements gfx.Recorder
func (d *Device) CmdBindVertexBuffer(cb gfx.CommandBuffer, buffer gfx.Buffer, offset uint64) {
	vk.CmdBindVertexBuffers(d.cmd(cb), 0, 1, []vk.Buffer{d.mustBuffer(buffer)}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

// CmdBindIndexBuffer implements gfx.Recorder. Indices are 32 bit.
func (d *Device) CmdBindIndexBuffer(cb gfx.CommandBuffer, buffer gfx.Buffer, offset uint64) {
	vk.CmdBindIndexBuffer(d.cmd(cb), d.mustBuffer(buffer), vk.DeviceSize(offset), vk.IndexTypeUint32)
}

// CmdBindDescriptorSet implements gfx.Recorder
func (d *Device) CmdBindDescriptorSet(cb gfx.CommandBuffer, layout gfx.PipelineLayout, set uint32, ds gfx.DescriptorSet) {
	l := d.objects.must(kindPipelineLayout, gfx.Handle(layout)).(vk.PipelineLayout)
	s := d.objects.must(kindDescriptorSet, gfx.Handle(ds)).(vk.DescriptorSet)
	vk.CmdBindDescriptorSets(d.cmd(cb), vk.PipelineBindPointGraphics, l, set, 1, []vk.DescriptorSet{s}, 0, nil)
}

// CmdPushConstants implements gfx.Recorder. Push constants are visible to
// the vertex and fragment stages.
func (d *Device) CmdPushConstants(cb gfx.CommandBuffer, layout gfx.PipelineLayout, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	l := d.objects.must(kindPipelineLayout, gfx.Handle(layout)).(vk.PipelineLayout)
	vk.CmdPushConstants(d.cmd(cb), l, pushConstantStages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

// CmdDrawIndexed implements gfx.Recorder
func (d *Device) CmdDrawIndexed(cb gfx.CommandBuffer, draw gfx.DrawIndexed) {
	vk.CmdDrawIndexed(d.cmd(cb), draw.IndexCount, draw.InstanceCount, draw.FirstIndex, draw.VertexOffset, draw.FirstInstance)
}
