// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/pkg/errors"

	"github.com/devblok/korender/gfx"
)

// OneShot records fn into a temporary command buffer, submits it and
// blocks until the graphics queue is idle. Meant for initialization
// transfers only.
func OneShot(drv gfx.Driver, fn func(cb gfx.CommandBuffer) error) error {
	cb, err := drv.AllocateCommandBuffer()
	if err != nil {
		return errors.Wrap(err, "one-shot: allocate command buffer")
	}
	defer drv.FreeCommandBuffer(cb)

	if err := drv.BeginCommandBuffer(cb, true); err != nil {
		return errors.Wrap(err, "one-shot: begin")
	}
	if err := fn(cb); err != nil {
		return err
	}
	if err := drv.EndCommandBuffer(cb); err != nil {
		return errors.Wrap(err, "one-shot: end")
	}
	if err := drv.Submit(gfx.Submission{CommandBuffer: cb}); err != nil {
		return errors.Wrap(err, "one-shot: submit")
	}
	return errors.Wrap(drv.QueueWaitIdle(), "one-shot: wait")
}
