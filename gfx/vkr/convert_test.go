// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korender/gfx"
)

func TestImageLayout(t *testing.T) {
	c := qt.New(t)

	for _, l := range gfx.Layouts() {
		if l == gfx.LayoutUndefined {
			continue
		}
		c.Assert(imageLayout(l), qt.Not(qt.Equals), vk.ImageLayoutUndefined, qt.Commentf("%s", l))
	}
	c.Assert(imageLayout(gfx.LayoutPresentSrc), qt.Equals, vk.ImageLayoutPresentSrc)
	c.Assert(imageLayout(gfx.LayoutDepthAttachment), qt.Equals, vk.ImageLayoutDepthStencilAttachmentOptimal)
	c.Assert(imageLayout(gfx.Layout(-1)), qt.Equals, vk.ImageLayoutUndefined)
}

func TestMasksAreBitCompatible(t *testing.T) {
	c := qt.New(t)

	c.Assert(format(gfx.FormatR8G8B8A8Unorm), qt.Equals, vk.FormatR8g8b8a8Unorm)
	c.Assert(format(gfx.FormatD32Sfloat), qt.Equals, vk.FormatD32Sfloat)
	c.Assert(access(gfx.AccessTransferWrite), qt.Equals, vk.AccessFlags(vk.AccessTransferWriteBit))
	c.Assert(stage(gfx.StageColorAttachmentOutput), qt.Equals, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))
	c.Assert(aspect(gfx.AspectDepth|gfx.AspectStencil), qt.Equals,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit))
}

func TestPresentStatus(t *testing.T) {
	c := qt.New(t)

	tests := []struct {
		res    vk.Result
		status gfx.Status
		err    error
	}{
		{vk.Success, gfx.StatusSuccess, nil},
		{vk.Suboptimal, gfx.StatusSuboptimal, nil},
		{vk.ErrorOutOfDate, gfx.StatusOutOfDate, nil},
		{vk.ErrorDeviceLost, gfx.StatusSuccess, gfx.ErrDeviceLost},
	}
	for _, test := range tests {
		status, err := presentStatus(test.res, "vk.QueuePresent")
		c.Assert(status, qt.Equals, test.status)
		c.Assert(errors.Cause(err), qt.Equals, test.err)
	}

	_, err := presentStatus(vk.ErrorOutOfHostMemory, "vk.QueuePresent")
	c.Assert(err, qt.ErrorMatches, `vk\.QueuePresent\(\): .*`)
}

func TestImageCount(t *testing.T) {
	c := qt.New(t)

	c.Assert(imageCount(3, 2, 8), qt.Equals, uint32(3))
	c.Assert(imageCount(1, 2, 8), qt.Equals, uint32(2))
	c.Assert(imageCount(3, 1, 2), qt.Equals, uint32(2))
	// no upper limit
	c.Assert(imageCount(16, 2, 0), qt.Equals, uint32(16))
}

func TestSwapExtent(t *testing.T) {
	c := qt.New(t)

	min := gfx.Extent2D{Width: 1, Height: 1}
	max := gfx.Extent2D{Width: 4096, Height: 2048}
	requested := gfx.Extent2D{Width: 5000, Height: 600}

	current := gfx.Extent2D{Width: 640, Height: 480}
	c.Assert(swapExtent(requested, current, min, max), qt.Equals, current)

	undefined := gfx.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32}
	c.Assert(swapExtent(requested, undefined, min, max), qt.Equals, gfx.Extent2D{Width: 4096, Height: 600})
}

func TestAttachmentsKeepLayouts(t *testing.T) {
	c := qt.New(t)

	descs := attachments(passKey{color: gfx.FormatB8G8R8A8Unorm, depth: gfx.FormatD32Sfloat})
	c.Assert(descs, qt.HasLen, 2)
	c.Assert(descs[0].InitialLayout, qt.Equals, vk.ImageLayoutColorAttachmentOptimal)
	c.Assert(descs[0].FinalLayout, qt.Equals, vk.ImageLayoutColorAttachmentOptimal)
	c.Assert(descs[1].InitialLayout, qt.Equals, vk.ImageLayoutDepthStencilAttachmentOptimal)
	c.Assert(descs[1].FinalLayout, qt.Equals, vk.ImageLayoutDepthStencilAttachmentOptimal)

	c.Assert(attachments(passKey{color: gfx.FormatB8G8R8A8Unorm}), qt.HasLen, 1)
}
