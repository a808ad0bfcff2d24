// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korender/gfx"
)

// CreateFence implements gfx.Sync
func (d *Device) CreateFence(signaled bool) (gfx.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check(vk.CreateFence(d.device, &fci, nil, &fence), "vk.CreateFence"); err != nil {
		return 0, err
	}
	return gfx.Fence(d.objects.add(kindFence, fence)), nil
}

func (d *Device) fence(f gfx.Fence) (vk.Fence, error) {
	object, err := d.objects.get(kindFence, gfx.Handle(f))
	if err != nil {
		return nil, err
	}
	return object.(vk.Fence), nil
}

// WaitFence implements gfx.Sync
func (d *Device) WaitFence(f gfx.Fence) error {
	fence, err := d.fence(f)
	if err != nil {
		return err
	}
	return deviceResult(vk.WaitForFences(d.device, 1, []vk.Fence{fence}, vk.True, vk.MaxUint64), "vk.WaitForFences")
}

// ResetFence implements gfx.Sync
func (d *Device) ResetFence(f gfx.Fence) error {
	fence, err := d.fence(f)
	if err != nil {
		return err
	}
	return check(vk.ResetFences(d.device, 1, []vk.Fence{fence}), "vk.ResetFences")
}

// DestroyFence implements gfx.Sync
func (d *Device) DestroyFence(f gfx.Fence) {
	if object, ok := d.objects.remove(kindFence, gfx.Handle(f)); ok {
		vk.DestroyFence(d.device, object.(vk.Fence), nil)
	}
}

// CreateSemaphore implements gfx.Sync
func (d *Device) CreateSemaphore() (gfx.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check(vk.CreateSemaphore(d.device, &sci, nil, &semaphore), "vk.CreateSemaphore"); err != nil {
		return 0, err
	}
	return gfx.Semaphore(d.objects.add(kindSemaphore, semaphore)), nil
}

// semaphore resolves an optional semaphore, zero being none.
func (d *Device) semaphore(s gfx.Semaphore) (vk.Semaphore, error) {
	if s == 0 {
		return vk.NullSemaphore, nil
	}
	object, err := d.objects.get(kindSemaphore, gfx.Handle(s))
	if err != nil {
		return nil, err
	}
	return object.(vk.Semaphore), nil
}

// DestroySemaphore implements gfx.Sync
func (d *Device) DestroySemaphore(s gfx.Semaphore) {
	if object, ok := d.objects.remove(kindSemaphore, gfx.Handle(s)); ok {
		vk.DestroySemaphore(d.device, object.(vk.Semaphore), nil)
	}
}

// WaitIdle implements gfx.Sync
func (d *Device) WaitIdle() error {
	return deviceResult(vk.DeviceWaitIdle(d.device), "vk.DeviceWaitIdle")
}
