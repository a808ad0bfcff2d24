// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korender/gfx"
)

// DefaultMaxDescriptorSets is the descriptor pool size used when the
// configuration leaves it out.
const DefaultMaxDescriptorSets = 256

// DeviceConfiguration describes the logical device to create
type DeviceConfiguration struct {
	// Extensions are the device extensions every candidate has to support.
	Extensions []string

	// MaxDescriptorSets bounds the sets pipelines may allocate.
	MaxDescriptorSets uint32

	Log logrus.FieldLogger
}

// Device implements gfx.Driver for one logical Vulkan device with a single
// queue that does both graphics and presentation.
type Device struct {
	log      logrus.FieldLogger
	instance *Instance
	objects  *registry

	physicalDevice vk.PhysicalDevice
	device         vk.Device
	queue          vk.Queue
	queueFamily    uint32

	commandPool    vk.CommandPool
	descriptorPool vk.DescriptorPool
	sampler        vk.Sampler
	allocator      *MemoryAllocator

	surfaceFormat vk.SurfaceFormat
	renderPasses  map[passKey]vk.RenderPass
	framebuffers  map[framebufferKey]vk.Framebuffer
}

var _ gfx.Driver = (*Device)(nil)

// NewDevice picks the first physical device with a graphics queue that
// can present to the instance surface and all requested extensions, and
// creates a logical device on it.
func NewDevice(instance *Instance, cfg DeviceConfiguration) (*Device, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.MaxDescriptorSets == 0 {
		cfg.MaxDescriptorSets = DefaultMaxDescriptorSets
	}

	d := &Device{
		log:          cfg.Log.WithField("component", "vulkan"),
		instance:     instance,
		objects:      newRegistry(),
		renderPasses: make(map[passKey]vk.RenderPass),
		framebuffers: make(map[framebufferKey]vk.Framebuffer),
	}

	var (
		found   bool
		reasons []string
	)
	for _, pd := range instance.AvailableDevices() {
		family, reason := d.suitable(pd, cfg.Extensions)
		if reason != "" {
			reasons = append(reasons, reason)
			continue
		}
		d.physicalDevice, d.queueFamily, found = pd, family, true
		break
	}
	if !found {
		return nil, errors.Wrap(gfx.ErrNoSuitableDevice, strings.Join(reasons, "; "))
	}

	if err := d.createDevice(cfg.Extensions); err != nil {
		return nil, err
	}
	d.allocator = NewMemoryAllocator(d.device, d.physicalDevice)

	steps := []func() error{
		d.chooseSurfaceFormat,
		d.createCommandPool,
		func() error { return d.createDescriptorPool(cfg.MaxDescriptorSets) },
		d.createTextureSampler,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			d.Release()
			return nil, err
		}
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.physicalDevice, &props)
	props.Deref()
	d.log.WithFields(logrus.Fields{
		"device":      vk.ToString(props.DeviceName[:]),
		"queueFamily": d.queueFamily,
	}).Info("device created")
	return d, nil
}

// suitable returns the queue family to use, or why the device can't be used.
func (d *Device) suitable(pd vk.PhysicalDevice, extensions []string) (uint32, string) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	name := vk.ToString(props.DeviceName[:])

	available, err := deviceExtensions(pd)
	if err != nil {
		return 0, name + ": " + err.Error()
	}
	for _, ext := range extensions {
		if !contains(available, strings.TrimSuffix(ext, "\x00")) {
			return 0, name + ": missing extension " + ext
		}
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, queueFamilies)

	surface := d.instance.Surface()
	for idx := uint32(0); idx < queueFamilyCount; idx++ {
		queueFamilies[idx].Deref()
		if queueFamilies[idx].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		if surface != vk.NullSurface {
			var supportsPresent vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(pd, idx, surface, &supportsPresent)
			if !supportsPresent.B() {
				continue
			}
		}
		return idx, ""
	}
	return 0, name + ": no queue family can both draw and present"
}

func (d *Device) createDevice(extensions []string) error {
	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(d.physicalDevice, &features)
	features.Deref()

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy: features.SamplerAnisotropy,
		}},
	}
	var device vk.Device
	if err := check(vk.CreateDevice(d.physicalDevice, &dci, nil, &device), "vk.CreateDevice"); err != nil {
		return err
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, d.queueFamily, 0, &queue)
	d.device = device
	d.queue = queue
	return nil
}

// chooseSurfaceFormat prefers 8 bit BGRA with an sRGB color space.
func (d *Device) chooseSurfaceFormat() error {
	surface := d.instance.Surface()
	if surface == vk.NullSurface {
		d.surfaceFormat = vk.SurfaceFormat{
			Format:     vk.FormatB8g8r8a8Unorm,
			ColorSpace: vk.ColorSpaceSrgbNonlinear,
		}
		return nil
	}

	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, surface, &count, nil), "vk.GetPhysicalDeviceSurfaceFormats"); err != nil {
		return err
	}
	if count == 0 {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(): surface has no formats")
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, surface, &count, formats), "vk.GetPhysicalDeviceSurfaceFormats"); err != nil {
		return err
	}
	for idx := range formats {
		formats[idx].Deref()
	}

	d.surfaceFormat = formats[0]
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		d.surfaceFormat.Format = vk.FormatB8g8r8a8Unorm
		return nil
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			d.surfaceFormat = f
			break
		}
	}
	return nil
}

func (d *Device) createCommandPool() error {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var commandPool vk.CommandPool
	if err := check(vk.CreateCommandPool(d.device, &cpci, nil, &commandPool), "vk.CreateCommandPool"); err != nil {
		return err
	}
	d.commandPool = commandPool
	return nil
}

func (d *Device) createDescriptorPool(maxSets uint32) error {
	poolSizes := []vk.DescriptorPoolSize{{
		Type:            vk.DescriptorTypeUniformBuffer,
		DescriptorCount: maxSets,
	}, {
		Type:            vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: maxSets,
	}}
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var descriptorPool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(d.device, &dpci, nil, &descriptorPool), "vk.CreateDescriptorPool"); err != nil {
		return err
	}
	d.descriptorPool = descriptorPool
	return nil
}

func (d *Device) createTextureSampler() error {
	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(d.physicalDevice, &features)
	features.Deref()

	sci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        features.SamplerAnisotropy,
		MaxAnisotropy:           16,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MinLod:                  0,
		MaxLod:                  1000,
	}
	var sampler vk.Sampler
	if err := check(vk.CreateSampler(d.device, &sci, nil, &sampler), "vk.CreateSampler"); err != nil {
		return err
	}
	d.sampler = sampler
	return nil
}

// SurfaceFormat returns the format swapchain images are created with.
func (d *Device) SurfaceFormat() gfx.Format {
	return gfx.Format(d.surfaceFormat.Format)
}

// Live counts the device objects that have not been destroyed, per kind.
func (d *Device) Live() map[string]int {
	return d.objects.live()
}

// Release waits for the device, destroys what the device itself owns
// and warns about leaked objects.
func (d *Device) Release() {
	if d.device == nil {
		return
	}
	if err := d.WaitIdle(); err != nil {
		d.log.WithError(err).Warn("wait idle before device release")
	}

	d.destroyTargets()
	if d.sampler != nil {
		vk.DestroySampler(d.device, d.sampler, nil)
	}
	if d.descriptorPool != nil {
		vk.DestroyDescriptorPool(d.device, d.descriptorPool, nil)
	}
	if d.commandPool != nil {
		vk.DestroyCommandPool(d.device, d.commandPool, nil)
	}
	d.objects.reportLeaks(d.log)

	vk.DestroyDevice(d.device, nil)
	d.device = nil
}
