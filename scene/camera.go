// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package scene

import (
	"math"

	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/model"
)

// Camera is a perspective camera looking at Target.
type Camera struct {
	Eye    glm.Vec3
	Target glm.Vec3
	Up     glm.Vec3

	// FovY is the vertical field of view in radians.
	FovY      float32
	Near, Far float32
}

// DefaultCamera looks at the origin from +Z.
func DefaultCamera() Camera {
	return Camera{
		Eye:  glm.Vec3{0, 0, 5},
		Up:   glm.Vec3{0, 1, 0},
		FovY: glm.DegToRad(45),
		Near: 0.1,
		Far:  100,
	}
}

// Frame moves the camera so a bounding box fills the view.
func (c Camera) Frame(min, max glm.Vec3) Camera {
	center := min.Add(max).Mul(0.5)
	radius := max.Sub(min).Len() / 2
	if radius == 0 {
		radius = 1
	}
	dir := c.Eye.Sub(c.Target)
	if dir.Len() == 0 {
		dir = glm.Vec3{0, 0, 1}
	}
	distance := radius / float32(math.Sin(float64(c.FovY/2)))
	c.Target = center
	c.Eye = center.Add(dir.Normalize().Mul(distance))
	c.Near = distance / 100
	c.Far = distance + 2*radius
	return c
}

// Uniform returns the view and projection for a render target of the
// given extent. Clip space Y points down, so the projection flips it.
func (c Camera) Uniform(extent gfx.Extent2D) model.Uniform {
	aspect := float32(1)
	if !extent.Degenerate() {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	proj := glm.Perspective(c.FovY, aspect, c.Near, c.Far)
	proj[5] *= -1
	return model.Uniform{
		View:       glm.LookAtV(c.Eye, c.Target, c.Up),
		Projection: proj,
	}
}
