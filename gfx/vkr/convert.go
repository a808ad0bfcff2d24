// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korender/gfx"
)

var layouts = [...]vk.ImageLayout{
	gfx.LayoutUndefined:       vk.ImageLayoutUndefined,
	gfx.LayoutTransferSrc:     vk.ImageLayoutTransferSrcOptimal,
	gfx.LayoutTransferDst:     vk.ImageLayoutTransferDstOptimal,
	gfx.LayoutShaderReadOnly:  vk.ImageLayoutShaderReadOnlyOptimal,
	gfx.LayoutColorAttachment: vk.ImageLayoutColorAttachmentOptimal,
	gfx.LayoutDepthAttachment: vk.ImageLayoutDepthStencilAttachmentOptimal,
	gfx.LayoutPresentSrc:      vk.ImageLayoutPresentSrc,
}

func imageLayout(l gfx.Layout) vk.ImageLayout {
	if l < 0 || int(l) >= len(layouts) {
		return vk.ImageLayoutUndefined
	}
	return layouts[l]
}

func format(f gfx.Format) vk.Format {
	return vk.Format(f)
}

func aspect(a gfx.Aspect) vk.ImageAspectFlags {
	return vk.ImageAspectFlags(a)
}

func access(a gfx.Access) vk.AccessFlags {
	return vk.AccessFlags(a)
}

func stage(s gfx.Stage) vk.PipelineStageFlags {
	return vk.PipelineStageFlags(s)
}

func extent(e gfx.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

// orOne treats a zero count in a descriptor as one.
func orOne(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}

func sampleCount(n uint32) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	}
	return vk.SampleCount1Bit
}

// presentStatus maps the results the presentation engine reports for a
// stale swapchain to a Status. Anything else that is not a success is an
// error.
func presentStatus(res vk.Result, call string) (gfx.Status, error) {
	switch res {
	case vk.Success:
		return gfx.StatusSuccess, nil
	case vk.Suboptimal:
		return gfx.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return gfx.StatusOutOfDate, nil
	case vk.ErrorDeviceLost:
		return gfx.StatusSuccess, errors.Wrap(gfx.ErrDeviceLost, call+"()")
	}
	return gfx.StatusSuccess, check(res, call)
}

// deviceResult is check with device loss reported as gfx.ErrDeviceLost.
func deviceResult(res vk.Result, call string) error {
	if res == vk.ErrorDeviceLost {
		return errors.Wrap(gfx.ErrDeviceLost, call+"()")
	}
	return check(res, call)
}
