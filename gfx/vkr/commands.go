// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korender/gfx"
)

// AllocateCommandBuffer implements gfx.Commands
func (d *Device) AllocateCommandBuffer() (gfx.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := check(vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers), "vk.AllocateCommandBuffers"); err != nil {
		return 0, err
	}
	return gfx.CommandBuffer(d.objects.add(kindCommandBuffer, commandBuffers[0])), nil
}

func (d *Device) commandBuffer(cb gfx.CommandBuffer) (vk.CommandBuffer, error) {
	object, err := d.objects.get(kindCommandBuffer, gfx.Handle(cb))
	if err != nil {
		return nil, err
	}
	return object.(vk.CommandBuffer), nil
}

// cmd resolves a command buffer that is being recorded into.
func (d *Device) cmd(cb gfx.CommandBuffer) vk.CommandBuffer {
	return d.objects.must(kindCommandBuffer, gfx.Handle(cb)).(vk.CommandBuffer)
}

// FreeCommandBuffer implements gfx.Commands
func (d *Device) FreeCommandBuffer(cb gfx.CommandBuffer) {
	if object, ok := d.objects.remove(kindCommandBuffer, gfx.Handle(cb)); ok {
		vk.FreeCommandBuffers(d.device, d.commandPool, 1, []vk.CommandBuffer{object.(vk.CommandBuffer)})
	}
}

// BeginCommandBuffer implements gfx.Commands
func (d *Device) BeginCommandBuffer(cb gfx.CommandBuffer, oneTime bool) error {
	commandBuffer, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTime {
		cbbi.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return check(vk.BeginCommandBuffer(commandBuffer, &cbbi), "vk.BeginCommandBuffer")
}

// EndCommandBuffer implements gfx.Commands
func (d *Device) EndCommandBuffer(cb gfx.CommandBuffer) error {
	commandBuffer, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	return check(vk.EndCommandBuffer(commandBuffer), "vk.EndCommandBuffer")
}

// ResetCommandBuffer implements gfx.Commands
func (d *Device) ResetCommandBuffer(cb gfx.CommandBuffer) error {
	commandBuffer, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	return check(vk.ResetCommandBuffer(commandBuffer, 0), "vk.ResetCommandBuffer")
}

// Submit implements gfx.Commands
func (d *Device) Submit(s gfx.Submission) error {
	commandBuffer, err := d.commandBuffer(s.CommandBuffer)
	if err != nil {
		return err
	}
	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{commandBuffer},
	}
	if s.Wait != 0 {
		wait, err := d.semaphore(s.Wait)
		if err != nil {
			return err
		}
		si.WaitSemaphoreCount = 1
		si.PWaitSemaphores = []vk.Semaphore{wait}
		si.PWaitDstStageMask = []vk.PipelineStageFlags{stage(s.WaitStage)}
	}
	if s.Signal != 0 {
		signal, err := d.semaphore(s.Signal)
		if err != nil {
			return err
		}
		si.SignalSemaphoreCount = 1
		si.PSignalSemaphores = []vk.Semaphore{signal}
	}
	fence := vk.NullFence
	if s.Fence != 0 {
		if fence, err = d.fence(s.Fence); err != nil {
			return err
		}
	}
	return deviceResult(vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{si}, fence), "vk.QueueSubmit")
}

// QueueWaitIdle implements gfx.Commands
func (d *Device) QueueWaitIdle() error {
	return deviceResult(vk.QueueWaitIdle(d.queue), "vk.QueueWaitIdle")
}
