// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korender/gfx"
)

type swapchain struct {
	handle vk.Swapchain
	images []gfx.Image
}

// imageCount clamps the requested image count to what the surface allows.
// A maximum of zero means there is no upper limit.
func imageCount(requested, min, max uint32) uint32 {
	if requested < min {
		requested = min
	}
	if max > 0 && requested > max {
		requested = max
	}
	return requested
}

// swapExtent is the surface's current extent when it dictates one,
// otherwise the requested extent clamped to the surface limits.
func swapExtent(requested, current, min, max gfx.Extent2D) gfx.Extent2D {
	if current.Width != math.MaxUint32 {
		return current
	}
	clamp := func(v, lo, hi uint32) uint32 {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	return gfx.Extent2D{
		Width:  clamp(requested.Width, min.Width, max.Width),
		Height: clamp(requested.Height, min.Height, max.Height),
	}
}

// CreateSwapchain implements gfx.Presenter
func (d *Device) CreateSwapchain(desc gfx.SwapchainDesc) (gfx.SwapchainInfo, error) {
	surface := d.instance.Surface()

	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(d.physicalDevice, surface, &caps), "vk.GetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return gfx.SwapchainInfo{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	size := swapExtent(desc.Extent,
		gfx.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		gfx.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		gfx.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height})
	count := imageCount(desc.MinImageCount, caps.MinImageCount, caps.MaxImageCount)

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	oldSwapchain := vk.NullSwapchain
	if desc.Old != 0 {
		object, err := d.objects.get(kindSwapchain, gfx.Handle(desc.Old))
		if err != nil {
			return gfx.SwapchainInfo{}, err
		}
		oldSwapchain = object.(*swapchain).handle
	}

	scci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    count,
		ImageFormat:      d.surfaceFormat.Format,
		ImageColorSpace:  d.surfaceFormat.ColorSpace,
		ImageExtent:      extent(size),
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     oldSwapchain,
	}
	var handle vk.Swapchain
	if err := check(vk.CreateSwapchain(d.device, &scci, nil, &handle), "vk.CreateSwapchain"); err != nil {
		return gfx.SwapchainInfo{}, err
	}

	var numImages uint32
	if err := check(vk.GetSwapchainImages(d.device, handle, &numImages, nil), "vk.GetSwapchainImages"); err != nil {
		vk.DestroySwapchain(d.device, handle, nil)
		return gfx.SwapchainInfo{}, err
	}
	vkImages := make([]vk.Image, numImages)
	if err := check(vk.GetSwapchainImages(d.device, handle, &numImages, vkImages), "vk.GetSwapchainImages"); err != nil {
		vk.DestroySwapchain(d.device, handle, nil)
		return gfx.SwapchainInfo{}, err
	}

	sc := &swapchain{handle: handle}
	for _, img := range vkImages {
		sc.images = append(sc.images, gfx.Image(d.objects.add(kindImage, &image{handle: img})))
	}

	d.log.WithFields(logrus.Fields{
		"requested": desc.MinImageCount,
		"images":    numImages,
		"width":     size.Width,
		"height":    size.Height,
	}).Debug("swapchain built")

	return gfx.SwapchainInfo{
		Handle: gfx.Swapchain(d.objects.add(kindSwapchain, sc)),
		Images: append([]gfx.Image(nil), sc.images...),
		Extent: size,
		Format: gfx.Format(d.surfaceFormat.Format),
	}, nil
}

// DestroySwapchain implements gfx.Presenter. Views of its images have to
// be destroyed first.
func (d *Device) DestroySwapchain(s gfx.Swapchain) {
	object, ok := d.objects.remove(kindSwapchain, gfx.Handle(s))
	if !ok {
		return
	}
	sc := object.(*swapchain)
	for _, img := range sc.images {
		d.objects.remove(kindImage, gfx.Handle(img))
	}
	vk.DestroySwapchain(d.device, sc.handle, nil)
}

// AcquireNextImage implements gfx.Presenter
func (d *Device) AcquireNextImage(s gfx.Swapchain, acquired gfx.Semaphore) (uint32, gfx.Status, error) {
	object, err := d.objects.get(kindSwapchain, gfx.Handle(s))
	if err != nil {
		return 0, gfx.StatusSuccess, err
	}
	semaphore, err := d.semaphore(acquired)
	if err != nil {
		return 0, gfx.StatusSuccess, err
	}
	var idx uint32
	res := vk.AcquireNextImage(d.device, object.(*swapchain).handle, vk.MaxUint64, semaphore, vk.NullFence, &idx)
	status, err := presentStatus(res, "vk.AcquireNextImage")
	return idx, status, err
}

// Present implements gfx.Presenter
func (d *Device) Present(s gfx.Swapchain, imageIndex uint32, wait gfx.Semaphore) (gfx.Status, error) {
	object, err := d.objects.get(kindSwapchain, gfx.Handle(s))
	if err != nil {
		return gfx.StatusSuccess, err
	}
	sc := object.(*swapchain)
	if int(imageIndex) >= len(sc.images) {
		return gfx.StatusSuccess, errors.Errorf("present image %d of %d", imageIndex, len(sc.images))
	}

	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{sc.handle},
		PImageIndices:  []uint32{imageIndex},
	}
	if wait != 0 {
		semaphore, err := d.semaphore(wait)
		if err != nil {
			return gfx.StatusSuccess, err
		}
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{semaphore}
	}
	return presentStatus(vk.QueuePresent(d.queue, &presentInfo), "vk.QueuePresent")
}
