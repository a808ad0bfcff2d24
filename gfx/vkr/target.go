// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korender/gfx"
)

type passKey struct {
	color, depth gfx.Format
}

type framebufferKey struct {
	color, depth gfx.ImageView
	extent       gfx.Extent2D
	pass         passKey
}

// attachments returns the attachment descriptions of a render pass.
// Attachments start and end in their attachment layouts: transitions in
// and out of them are recorded explicitly with barriers.
func attachments(key passKey) []vk.AttachmentDescription {
	descs := []vk.AttachmentDescription{{
		Format:         format(key.color),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}
	if key.depth != gfx.FormatUndefined {
		descs = append(descs, vk.AttachmentDescription{
			Format:         format(key.depth),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
	}
	return descs
}

// renderPass returns the cached render pass for a pair of formats.
func (d *Device) renderPass(key passKey) (vk.RenderPass, error) {
	if rp, ok := d.renderPasses[key]; ok {
		return rp, nil
	}

	descs := attachments(key)
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}
	if len(descs) > 1 {
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentWriteBit),
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descs)),
		PAttachments:    descs,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var rp vk.RenderPass
	if err := check(vk.CreateRenderPass(d.device, &rpci, nil, &rp), "vk.CreateRenderPass"); err != nil {
		return nil, err
	}
	d.renderPasses[key] = rp
	return rp, nil
}

// framebuffer returns the cached framebuffer for a set of attachments.
func (d *Device) framebuffer(key framebufferKey, rp vk.RenderPass) (vk.Framebuffer, error) {
	if fb, ok := d.framebuffers[key]; ok {
		return fb, nil
	}

	color, err := d.imageView(key.color)
	if err != nil {
		return nil, err
	}
	views := []vk.ImageView{color}
	if key.depth != 0 {
		depth, err := d.imageView(key.depth)
		if err != nil {
			return nil, err
		}
		views = append(views, depth)
	}

	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           key.extent.Width,
		Height:          key.extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := check(vk.CreateFramebuffer(d.device, &fci, nil, &fb), "vk.CreateFramebuffer"); err != nil {
		return nil, err
	}
	d.framebuffers[key] = fb
	return fb, nil
}

// purgeFramebuffers destroys every cached framebuffer using the view.
func (d *Device) purgeFramebuffers(view gfx.ImageView) {
	for key, fb := range d.framebuffers {
		if key.color == view || key.depth == view {
			vk.DestroyFramebuffer(d.device, fb, nil)
			delete(d.framebuffers, key)
		}
	}
}

func (d *Device) destroyTargets() {
	for key, fb := range d.framebuffers {
		vk.DestroyFramebuffer(d.device, fb, nil)
		delete(d.framebuffers, key)
	}
	for key, rp := range d.renderPasses {
		vk.DestroyRenderPass(d.device, rp, nil)
		delete(d.renderPasses, key)
	}
}

// CmdBeginRenderTarget implements gfx.Recorder. The color attachment has
// to be in ColorAttachment and the depth attachment in DepthAttachment.
func (d *Device) CmdBeginRenderTarget(cb gfx.CommandBuffer, target gfx.RenderTarget) error {
	commandBuffer, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	pass := passKey{color: target.ColorFormat}
	if target.Depth != 0 {
		pass.depth = target.DepthFormat
	}
	rp, err := d.renderPass(pass)
	if err != nil {
		return err
	}
	fb, err := d.framebuffer(framebufferKey{
		color:  target.Color,
		depth:  target.Depth,
		extent: target.Extent,
		pass:   pass,
	}, rp)
	if err != nil {
		return err
	}

	clearValues := []vk.ClearValue{vk.NewClearValue(target.ClearColor[:])}
	if target.Depth != 0 {
		clearValues = append(clearValues, vk.NewClearDepthStencil(target.ClearDepth, 0))
	}
	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: extent(target.Extent),
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(commandBuffer, &rpbi, vk.SubpassContentsInline)
	return nil
}

// CmdEndRenderTarget implements gfx.Recorder
func (d *Device) CmdEndRenderTarget(cb gfx.CommandBuffer) {
	vk.CmdEndRenderPass(d.cmd(cb))
}
