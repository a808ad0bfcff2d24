// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/devblok/korender/gfx"
)

// ImageKind selects the usage of an Image.
type ImageKind int

// Image kinds
const (
	// ImageTexture is sampled by shaders and filled by transfers.
	ImageTexture ImageKind = iota
	// ImageAttachment is rendered into.
	ImageAttachment
)

// MipLevels returns the length of a full mip chain for the given size.
func MipLevels(width, height uint32) uint32 {
	m := width
	if height > m {
		m = height
	}
	if m == 0 {
		return 1
	}
	return uint32(bits.Len32(m))
}

// Image is a device image with a view and a tracked layout.
// The layout changes only through Transition and TransitionLayout.
type Image struct {
	drv    gfx.Driver
	handle gfx.Image
	view   gfx.ImageView
	desc   gfx.ImageDesc
	layout gfx.Layout

	// owned is false for images that belong to a swapchain.
	owned bool
}

// NewImage creates an image and a view covering all of it. Zero mip level,
// layer and sample counts default to one; cube images get six layers.
func NewImage(drv gfx.Driver, desc gfx.ImageDesc, kind ImageKind) (*Image, error) {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.Cube {
		desc.Layers = 6
	}
	if desc.Layers == 0 {
		desc.Layers = 1
	}
	if desc.Samples == 0 {
		desc.Samples = 1
	}

	switch kind {
	case ImageTexture:
		desc.Usage |= gfx.ImageUsageSampled | gfx.ImageUsageTransferDst | gfx.ImageUsageTransferSrc
	case ImageAttachment:
		if desc.Format.IsDepth() {
			desc.Usage |= gfx.ImageUsageDepthStencilAttachment
		} else {
			desc.Usage |= gfx.ImageUsageColorAttachment
		}
	}

	h, err := drv.CreateImage(desc)
	if err != nil {
		return nil, errors.Wrap(err, "create image")
	}
	img, err := adoptImage(drv, h, desc)
	if err != nil {
		drv.DestroyImage(h)
		return nil, err
	}
	img.owned = true
	return img, nil
}

// adoptImage wraps an image created elsewhere and gives it a view.
func adoptImage(drv gfx.Driver, h gfx.Image, desc gfx.ImageDesc) (*Image, error) {
	view, err := drv.CreateImageView(h, gfx.ImageViewDesc{
		Format:    desc.Format,
		Aspect:    desc.Format.Aspect(),
		MipLevels: desc.MipLevels,
		Layers:    desc.Layers,
		Cube:      desc.Cube,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image view")
	}
	return &Image{
		drv:    drv,
		handle: h,
		view:   view,
		desc:   desc,
		layout: gfx.LayoutUndefined,
	}, nil
}

// Handle returns the driver handle of the image
func (i *Image) Handle() gfx.Image {
	return i.handle
}

// View returns the view covering the whole image
func (i *Image) View() gfx.ImageView {
	return i.view
}

// Desc returns the description the image was created with
func (i *Image) Desc() gfx.ImageDesc {
	return i.desc
}

// Extent returns the size of mip level 0
func (i *Image) Extent() gfx.Extent2D {
	return gfx.Extent2D{Width: i.desc.Width, Height: i.desc.Height}
}

// Layout returns the layout the image was last transitioned to.
func (i *Image) Layout() gfx.Layout {
	return i.layout
}

// expect checks that old describes the image. Undefined always does,
// since it discards the contents.
func (i *Image) expect(old gfx.Layout) error {
	if old != gfx.LayoutUndefined && old != i.layout {
		return errors.Wrapf(gfx.ErrLayoutMismatch, "image %d is %s, transition expects %s", i.handle, i.layout, old)
	}
	return nil
}

func (i *Image) barrier(old, new gfx.Layout, masks gfx.TransitionMasks, baseLevel, levels uint32) gfx.ImageBarrier {
	return gfx.ImageBarrier{
		Image:          i.handle,
		Old:            old,
		New:            new,
		SrcAccess:      masks.SrcAccess,
		DstAccess:      masks.DstAccess,
		Aspect:         i.desc.Format.Aspect(),
		BaseMipLevel:   baseLevel,
		MipLevelCount:  levels,
		BaseArrayLayer: 0,
		LayerCount:     i.desc.Layers,
	}
}

// transitionLevels records a barrier for a range of mip levels without
// touching the tracked layout.
func (i *Image) transitionLevels(cb gfx.CommandBuffer, old, new gfx.Layout, baseLevel, levels uint32) error {
	masks, err := gfx.LookupTransition(old, new)
	if err != nil {
		return err
	}
	i.drv.CmdPipelineBarrier(cb, gfx.PipelineBarrier{
		SrcStage: masks.SrcStage,
		DstStage: masks.DstStage,
		Images:   []gfx.ImageBarrier{i.barrier(old, new, masks, baseLevel, levels)},
	})
	return nil
}

// Transition records a barrier moving the whole image from old to new.
// Pairs outside the transition table fail before the tracked layout is
// looked at.
func (i *Image) Transition(cb gfx.CommandBuffer, old, new gfx.Layout) error {
	masks, err := gfx.LookupTransition(old, new)
	if err != nil {
		return err
	}
	if err := i.expect(old); err != nil {
		return err
	}
	i.drv.CmdPipelineBarrier(cb, gfx.PipelineBarrier{
		SrcStage: masks.SrcStage,
		DstStage: masks.DstStage,
		Images:   []gfx.ImageBarrier{i.barrier(old, new, masks, 0, i.desc.MipLevels)},
	})
	i.layout = new
	return nil
}

// TransitionLayout transitions the image in a one-shot command buffer.
func (i *Image) TransitionLayout(old, new gfx.Layout) error {
	return OneShot(i.drv, func(cb gfx.CommandBuffer) error {
		return i.Transition(cb, old, new)
	})
}

// RecordMipMaps records the blits filling levels 1..n from level 0. The
// whole image has to be in TransferDst; afterwards every level is
// ShaderReadOnly.
func (i *Image) RecordMipMaps(cb gfx.CommandBuffer) error {
	if !i.drv.FormatSupportsLinearBlit(i.desc.Format) {
		return errors.Wrapf(gfx.ErrFormatNotBlittable, "format %d", i.desc.Format)
	}
	if i.layout != gfx.LayoutTransferDst {
		return errors.Wrapf(gfx.ErrLayoutMismatch, "mip generation needs transfer-dst, image %d is %s", i.handle, i.layout)
	}

	aspect := i.desc.Format.Aspect()
	width, height := i.desc.Width, i.desc.Height
	for level := uint32(1); level < i.desc.MipLevels; level++ {
		if err := i.transitionLevels(cb, gfx.LayoutTransferDst, gfx.LayoutTransferSrc, level-1, 1); err != nil {
			return err
		}

		dstWidth, dstHeight := half(width), half(height)
		for layer := uint32(0); layer < i.desc.Layers; layer++ {
			i.drv.CmdBlitImage(cb, i.handle, i.handle, gfx.ImageBlit{
				Aspect:     aspect,
				BaseLayer:  layer,
				LayerCount: 1,
				SrcLevel:   level - 1,
				SrcWidth:   width,
				SrcHeight:  height,
				DstLevel:   level,
				DstWidth:   dstWidth,
				DstHeight:  dstHeight,
			})
		}

		if err := i.transitionLevels(cb, gfx.LayoutTransferSrc, gfx.LayoutShaderReadOnly, level-1, 1); err != nil {
			return err
		}
		width, height = dstWidth, dstHeight
	}

	// The last level was only ever written to.
	if err := i.transitionLevels(cb, gfx.LayoutTransferDst, gfx.LayoutShaderReadOnly, i.desc.MipLevels-1, 1); err != nil {
		return err
	}
	i.layout = gfx.LayoutShaderReadOnly
	return nil
}

// GenerateMipMaps runs RecordMipMaps in a one-shot command buffer.
func (i *Image) GenerateMipMaps() error {
	return OneShot(i.drv, i.RecordMipMaps)
}

func half(v uint32) uint32 {
	if v > 1 {
		return v / 2
	}
	return 1
}

// Release implements gfx.Releasable
func (i *Image) Release() {
	if i.view != 0 {
		i.drv.DestroyImageView(i.view)
		i.view = 0
	}
	if i.owned && i.handle != 0 {
		i.drv.DestroyImage(i.handle)
	}
	i.handle = 0
}

// TextureData is tightly packed pixel data for level 0 of every layer.
type TextureData struct {
	Width, Height uint32
	Format        gfx.Format
	Pixels        []byte

	// Cube marks six consecutive faces.
	Cube bool

	// MipMaps requests a full mip chain.
	MipMaps bool
}

// NewTexture uploads data into a new sampled image and leaves every level
// in ShaderReadOnly.
func NewTexture(drv gfx.Driver, data TextureData) (*Image, error) {
	layers := uint64(1)
	if data.Cube {
		layers = 6
	}
	texel := uint64(data.Format.Size())
	if texel == 0 {
		return nil, errors.Errorf("texture format %d has no texel size", data.Format)
	}
	if want := uint64(data.Width) * uint64(data.Height) * layers * texel; want == 0 || uint64(len(data.Pixels)) != want {
		return nil, errors.Errorf("texture %dx%dx%d needs %d bytes of pixels, got %d",
			data.Width, data.Height, layers, want, len(data.Pixels))
	}

	levels := uint32(1)
	if data.MipMaps {
		levels = MipLevels(data.Width, data.Height)
	}

	img, err := NewImage(drv, gfx.ImageDesc{
		Width:     data.Width,
		Height:    data.Height,
		MipLevels: levels,
		Format:    data.Format,
		Cube:      data.Cube,
	}, ImageTexture)
	if err != nil {
		return nil, err
	}

	staging, err := NewBuffer(drv, uint64(len(data.Pixels)), BufferStaging)
	if err != nil {
		img.Release()
		return nil, err
	}
	defer staging.Release()

	if err := staging.Map(); err != nil {
		img.Release()
		return nil, err
	}
	if err := staging.From(data.Pixels, 0); err != nil {
		img.Release()
		return nil, err
	}
	staging.Unmap()

	err = OneShot(drv, func(cb gfx.CommandBuffer) error {
		if err := img.Transition(cb, gfx.LayoutUndefined, gfx.LayoutTransferDst); err != nil {
			return err
		}
		drv.CmdCopyBufferToImage(cb, staging.Handle(), img.Handle(), gfx.BufferImageCopy{
			Aspect:     data.Format.Aspect(),
			LayerCount: img.desc.Layers,
			Width:      data.Width,
			Height:     data.Height,
		})
		if levels > 1 {
			return img.RecordMipMaps(cb)
		}
		return img.Transition(cb, gfx.LayoutTransferDst, gfx.LayoutShaderReadOnly)
	})
	if err != nil {
		img.Release()
		return nil, errors.Wrap(err, "upload texture")
	}
	return img, nil
}
