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

type buffer struct {
	handle vk.Buffer
	memory *Memory
	desc   gfx.BufferDesc
}

// image is a device image. Swapchain images have no memory of their own.
type image struct {
	handle vk.Image
	memory *Memory
}

// CreateBuffer implements gfx.Resources. Every buffer gets an allocation
// of its own, so Dedicated needs no special handling.
func (d *Device) CreateBuffer(desc gfx.BufferDesc) (gfx.Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := check(vk.CreateBuffer(d.device, &createInfo, nil, &handle), "vk.CreateBuffer"); err != nil {
		return 0, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, handle, &req)
	req.Deref()

	prop := vk.MemoryPropertyDeviceLocalBit
	if desc.HostVisible {
		prop = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	memory, err := d.allocator.Malloc(req, prop)
	if err != nil {
		vk.DestroyBuffer(d.device, handle, nil)
		return 0, errors.Wrapf(err, "buffer of %d bytes", desc.Size)
	}
	if err := check(vk.BindBufferMemory(d.device, handle, memory.memory, 0), "vk.BindBufferMemory"); err != nil {
		memory.Release()
		vk.DestroyBuffer(d.device, handle, nil)
		return 0, err
	}

	return gfx.Buffer(d.objects.add(kindBuffer, &buffer{
		handle: handle,
		memory: memory,
		desc:   desc,
	})), nil
}

func (d *Device) buffer(b gfx.Buffer) (*buffer, error) {
	object, err := d.objects.get(kindBuffer, gfx.Handle(b))
	if err != nil {
		return nil, err
	}
	return object.(*buffer), nil
}

func (d *Device) mustBuffer(b gfx.Buffer) vk.Buffer {
	return d.objects.must(kindBuffer, gfx.Handle(b)).(*buffer).handle
}

// DestroyBuffer implements gfx.Resources
func (d *Device) DestroyBuffer(b gfx.Buffer) {
	if object, ok := d.objects.remove(kindBuffer, gfx.Handle(b)); ok {
		buf := object.(*buffer)
		vk.DestroyBuffer(d.device, buf.handle, nil)
		buf.memory.Release()
	}
}

// MapBuffer implements gfx.Resources
func (d *Device) MapBuffer(b gfx.Buffer) ([]byte, error) {
	buf, err := d.buffer(b)
	if err != nil {
		return nil, err
	}
	if !buf.desc.HostVisible {
		return nil, errors.Wrapf(gfx.ErrUnmappedBuffer, "buffer %d is not host visible", b)
	}
	ptr, err := buf.memory.Map()
	if err != nil {
		return nil, err
	}
	return hostBytes(ptr, buf.desc.Size), nil
}

// UnmapBuffer implements gfx.Resources
func (d *Device) UnmapBuffer(b gfx.Buffer) {
	if buf, err := d.buffer(b); err == nil {
		buf.memory.Unmap()
	}
}

// CreateImage implements gfx.Resources. Images are optimally tiled and
// live in device local memory.
func (d *Device) CreateImage(desc gfx.ImageDesc) (gfx.Image, error) {
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     orOne(desc.MipLevels),
		ArrayLayers:   orOne(desc.Layers),
		Format:        format(desc.Format),
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       sampleCount(desc.Samples),
	}
	if desc.Cube {
		createInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	var handle vk.Image
	if err := check(vk.CreateImage(d.device, &createInfo, nil, &handle), "vk.CreateImage"); err != nil {
		return 0, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, handle, &req)
	req.Deref()

	memory, err := d.allocator.Malloc(req, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.device, handle, nil)
		return 0, errors.Wrapf(err, "image %dx%d", desc.Width, desc.Height)
	}
	if err := check(vk.BindImageMemory(d.device, handle, memory.memory, 0), "vk.BindImageMemory"); err != nil {
		memory.Release()
		vk.DestroyImage(d.device, handle, nil)
		return 0, err
	}

	return gfx.Image(d.objects.add(kindImage, &image{
		handle: handle,
		memory: memory,
	})), nil
}

func (d *Device) image(i gfx.Image) (*image, error) {
	object, err := d.objects.get(kindImage, gfx.Handle(i))
	if err != nil {
		return nil, err
	}
	return object.(*image), nil
}

func (d *Device) mustImage(i gfx.Image) vk.Image {
	return d.objects.must(kindImage, gfx.Handle(i)).(*image).handle
}

// DestroyImage implements gfx.Resources. Swapchain images are left to
// DestroySwapchain.
func (d *Device) DestroyImage(i gfx.Image) {
	img, err := d.image(i)
	if err != nil || img.memory == nil {
		return
	}
	d.objects.remove(kindImage, gfx.Handle(i))
	vk.DestroyImage(d.device, img.handle, nil)
	img.memory.Release()
}

// CreateImageView implements gfx.Resources
func (d *Device) CreateImageView(i gfx.Image, desc gfx.ImageViewDesc) (gfx.ImageView, error) {
	img, err := d.image(i)
	if err != nil {
		return 0, err
	}

	layers := orOne(desc.Layers)
	viewType := vk.ImageViewType2d
	switch {
	case desc.Cube && layers == 6:
		viewType = vk.ImageViewTypeCube
	case layers > 1:
		viewType = vk.ImageViewType2dArray
	}

	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: viewType,
		Format:   format(desc.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect(desc.Aspect),
			BaseMipLevel:   0,
			LevelCount:     orOne(desc.MipLevels),
			BaseArrayLayer: 0,
			LayerCount:     layers,
		},
	}
	var view vk.ImageView
	if err := check(vk.CreateImageView(d.device, &ivci, nil, &view), "vk.CreateImageView"); err != nil {
		return 0, err
	}
	return gfx.ImageView(d.objects.add(kindImageView, view)), nil
}

func (d *Device) imageView(v gfx.ImageView) (vk.ImageView, error) {
	object, err := d.objects.get(kindImageView, gfx.Handle(v))
	if err != nil {
		return nil, err
	}
	return object.(vk.ImageView), nil
}

// DestroyImageView implements gfx.Resources. Framebuffers built on the
// view go with it.
func (d *Device) DestroyImageView(v gfx.ImageView) {
	object, ok := d.objects.remove(kindImageView, gfx.Handle(v))
	if !ok {
		return
	}
	d.purgeFramebuffers(v)
	vk.DestroyImageView(d.device, object.(vk.ImageView), nil)
}

// FormatSupportsLinearBlit implements gfx.Resources
func (d *Device) FormatSupportsLinearBlit(f gfx.Format) bool {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.physicalDevice, format(f), &props)
	props.Deref()
	required := vk.FormatFeatureFlags(vk.FormatFeatureSampledImageFilterLinearBit |
		vk.FormatFeatureBlitSrcBit | vk.FormatFeatureBlitDstBit)
	return props.OptimalTilingFeatures&required == required
}
