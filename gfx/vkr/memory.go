// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korender/gfx"
)

// Memory is one device memory allocation.
type Memory struct {
	device vk.Device
	memory vk.DeviceMemory
	size   uint64
	mapped unsafe.Pointer
}

// Size returns the allocation size in bytes.
func (m *Memory) Size() uint64 {
	return m.size
}

// Map maps the whole allocation. Mapping twice returns the same pointer.
func (m *Memory) Map() (unsafe.Pointer, error) {
	if m.mapped != nil {
		return m.mapped, nil
	}
	var ptr unsafe.Pointer
	if err := check(vk.MapMemory(m.device, m.memory, 0, vk.DeviceSize(m.size), 0, &ptr), "vk.MapMemory"); err != nil {
		return nil, err
	}
	m.mapped = ptr
	return ptr, nil
}

// Unmap removes the mapping if there is one.
func (m *Memory) Unmap() {
	if m.mapped != nil {
		vk.UnmapMemory(m.device, m.memory)
		m.mapped = nil
	}
}

// Release unmaps and frees the allocation.
func (m *Memory) Release() {
	m.Unmap()
	if m.memory != vk.NullDeviceMemory {
		vk.FreeMemory(m.device, m.memory, nil)
		m.memory = vk.NullDeviceMemory
	}
}

// MemoryAllocator picks memory types and allocates device memory.
type MemoryAllocator struct {
	device        vk.Device
	memProperties vk.PhysicalDeviceMemoryProperties
}

// NewMemoryAllocator reads the memory properties of the physical device
// allocations are made for.
func NewMemoryAllocator(device vk.Device, phyDevice vk.PhysicalDevice) *MemoryAllocator {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(phyDevice, &memProperties)
	memProperties.Deref()
	for idx := uint32(0); idx < memProperties.MemoryTypeCount; idx++ {
		memProperties.MemoryTypes[idx].Deref()
	}
	return &MemoryAllocator{
		device:        device,
		memProperties: memProperties,
	}
}

// Malloc allocates memory satisfying req with the requested properties.
func (ma *MemoryAllocator) Malloc(req vk.MemoryRequirements, prop vk.MemoryPropertyFlagBits) (*Memory, error) {
	memTypeIdx, err := ma.findMemoryType(req.MemoryTypeBits, vk.MemoryPropertyFlags(prop))
	if err != nil {
		return nil, err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}

	var memory vk.DeviceMemory
	if err := check(vk.AllocateMemory(ma.device, &mai, nil, &memory), "vk.AllocateMemory"); err != nil {
		return nil, err
	}
	return &Memory{
		device: ma.device,
		memory: memory,
		size:   uint64(req.Size),
	}, nil
}

func (ma *MemoryAllocator) findMemoryType(filter uint32, prop vk.MemoryPropertyFlags) (uint32, error) {
	for idx := uint32(0); idx < ma.memProperties.MemoryTypeCount; idx++ {
		if filter&(1<<idx) != 0 && (ma.memProperties.MemoryTypes[idx].PropertyFlags&prop) == prop {
			return idx, nil
		}
	}
	return 0, errors.Wrapf(gfx.ErrNoMemoryType, "filter %#x, properties %#x", filter, prop)
}
