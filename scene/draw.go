// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package scene

import (
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/model"
	"github.com/devblok/korender/render"
)

var _ render.FrameRecorder = (*Scene)(nil)

// Update queues the camera uniform of the frame's slot.
func (s *Scene) Update(fc render.FrameContext, up render.Uploader) error {
	if fc.Slot < 0 || fc.Slot >= len(s.uniforms) {
		return errors.Errorf("frame slot %d has no camera uniform, %d exist", fc.Slot, len(s.uniforms))
	}
	s.rotation = glm.HomogRotate3DY(s.Spin * float32(fc.Elapsed.Seconds()))
	up.AddCopy(s.Camera.Uniform(fc.Extent).Bytes(), s.uniforms[fc.Slot].Handle())
	return nil
}

// Record binds the pipeline and geometry and issues every draw. Textures
// have to be readable by shaders by now.
func (s *Scene) Record(cb gfx.CommandBuffer, fc render.FrameContext) error {
	if fc.Slot < 0 || fc.Slot >= len(s.uniformSets) {
		return errors.Errorf("frame slot %d has no camera uniform, %d exist", fc.Slot, len(s.uniformSets))
	}
	for idx, m := range s.materials {
		if l := m.texture.Layout(); l != gfx.LayoutShaderReadOnly {
			return errors.Wrapf(gfx.ErrLayoutMismatch, "material %d texture is %s", idx, l)
		}
	}

	layout := s.binder.Layout()
	s.drv.CmdBindPipeline(cb, s.binder.Pipeline())
	s.drv.CmdBindVertexBuffer(cb, s.vertices.Handle(), 0)
	s.drv.CmdBindIndexBuffer(cb, s.indices.Handle(), 0)
	s.drv.CmdBindDescriptorSet(cb, layout, SetCamera, s.uniformSets[fc.Slot])

	bound := -1
	for _, d := range s.draws {
		mat := s.materials[d.Material]
		if d.Material != bound {
			s.drv.CmdBindDescriptorSet(cb, layout, SetMaterial, mat.set)
			bound = d.Material
		}
		push := model.PushConstants{
			Model: s.rotation.Mul4(d.Transform),
			Color: mat.color,
		}
		s.drv.CmdPushConstants(cb, layout, 0, push.Bytes())
		s.drv.CmdDrawIndexed(cb, gfx.DrawIndexed{
			IndexCount:    d.IndexCount,
			InstanceCount: 1,
			FirstIndex:    d.FirstIndex,
			VertexOffset:  d.VertexOffset,
		})
	}
	return nil
}
