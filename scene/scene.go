// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package scene turns a loaded model.Scene into GPU resources and records
// its draws every frame.
package scene

import (
	"bytes"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/devblok/korender/asset"
	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/model"
	"github.com/devblok/korender/render"
)

// Descriptor set numbers the shaders use
const (
	SetCamera   = 0
	SetMaterial = 1
)

// ErrEmptyScene is returned by Load for scenes without triangles.
var ErrEmptyScene = errors.New("scene has no geometry")

// Binder is the pipeline draws are recorded with and the source of
// its descriptor sets.
type Binder interface {
	Pipeline() gfx.Pipeline
	Layout() gfx.PipelineLayout

	// UniformSet returns a camera set reading size bytes of buf.
	UniformSet(buf gfx.Buffer, size uint64) (gfx.DescriptorSet, error)

	// TextureSet returns a material set sampling view.
	TextureSet(view gfx.ImageView) (gfx.DescriptorSet, error)
}

// Options configure Load
type Options struct {
	// FramesInFlight is the number of camera uniform buffers. Has to match
	// the renderer's.
	FramesInFlight int

	// Textures resolves material texture names. Without it every material
	// samples plain white.
	Textures asset.Loader

	// TextureFormat is the format textures are uploaded as.
	TextureFormat gfx.Format

	MipMaps bool

	Log logrus.FieldLogger
}

// Draw is one indexed draw of a mesh.
type Draw struct {
	VertexOffset int32
	VertexCount  uint32
	FirstIndex   uint32
	IndexCount   uint32
	Material     int
	Transform    glm.Mat4
}

type material struct {
	color   glm.Vec4
	texture *render.Image
	set     gfx.DescriptorSet
}

// Scene owns the device resources of one loaded model.Scene.
type Scene struct {
	drv    gfx.Driver
	binder Binder
	log    logrus.FieldLogger

	vertices *render.Buffer
	indices  *render.Buffer

	white     *render.Image
	textures  []*render.Image
	materials []material

	uniforms    []*render.Buffer
	uniformSets []gfx.DescriptorSet

	draws []Draw

	// Camera is read on every Update.
	Camera Camera

	// Spin rotates the whole scene around Y, in radians per second.
	Spin float32

	rotation glm.Mat4
}

// Load uploads the meshes of m into one vertex and one index buffer,
// uploads material textures and creates a camera uniform per frame slot.
func Load(drv gfx.Driver, binder Binder, m *model.Scene, opts Options) (*Scene, error) {
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = render.DefaultFramesInFlight
	}
	if opts.TextureFormat == gfx.FormatUndefined {
		opts.TextureFormat = gfx.FormatR8G8B8A8Unorm
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	s := &Scene{
		drv:      drv,
		binder:   binder,
		log:      opts.Log.WithField("component", "scene"),
		Camera:   DefaultCamera(),
		rotation: glm.Ident4(),
	}
	if err := s.loadGeometry(m); err != nil {
		s.Release()
		return nil, err
	}
	if err := s.loadMaterials(m, opts); err != nil {
		s.Release()
		return nil, err
	}
	if err := s.createUniforms(opts.FramesInFlight); err != nil {
		s.Release()
		return nil, err
	}

	if min, max, ok := bounds(m); ok {
		s.Camera = s.Camera.Frame(min, max)
	}

	s.log.WithFields(logrus.Fields{
		"meshes":    len(m.Meshes),
		"materials": len(s.materials),
		"draws":     len(s.draws),
	}).Info("scene loaded")
	return s, nil
}

func (s *Scene) loadGeometry(m *model.Scene) error {
	var (
		vertices []model.Vertex
		indices  []uint32
	)
	type span struct {
		vertexOffset int32
		vertexCount  uint32
		firstIndex   uint32
		indexCount   uint32
	}
	spans := make([]span, len(m.Meshes))
	for idx, mesh := range m.Meshes {
		spans[idx] = span{
			vertexOffset: int32(len(vertices)),
			vertexCount:  uint32(len(mesh.Vertices)),
			firstIndex:   uint32(len(indices)),
			indexCount:   uint32(len(mesh.Indices)),
		}
		vertices = append(vertices, mesh.Vertices...)
		indices = append(indices, mesh.Indices...)
	}
	if len(indices) == 0 {
		return ErrEmptyScene
	}

	for _, item := range m.Flatten() {
		if item.Mesh < 0 || item.Mesh >= len(spans) {
			return errors.Errorf("instance references mesh %d of %d", item.Mesh, len(spans))
		}
		sp := spans[item.Mesh]
		if sp.indexCount == 0 {
			continue
		}
		s.draws = append(s.draws, Draw{
			VertexOffset: sp.vertexOffset,
			VertexCount:  sp.vertexCount,
			FirstIndex:   sp.firstIndex,
			IndexCount:   sp.indexCount,
			Material:     item.Material,
			Transform:    item.Transform,
		})
	}

	var err error
	if s.vertices, err = render.Upload(s.drv, model.VertexBytes(vertices), render.BufferVertex); err != nil {
		return errors.Wrap(err, "upload vertices")
	}
	if s.indices, err = render.Upload(s.drv, model.IndexBytes(indices), render.BufferIndex); err != nil {
		return errors.Wrap(err, "upload indices")
	}
	return nil
}

var whitePixel = []byte{255, 255, 255, 255}

func (s *Scene) loadMaterials(m *model.Scene, opts Options) error {
	var err error
	s.white, err = render.NewTexture(s.drv, render.TextureData{
		Width:  1,
		Height: 1,
		Format: opts.TextureFormat,
		Pixels: whitePixel,
	})
	if err != nil {
		return errors.Wrap(err, "default texture")
	}

	// Materials without one point at the default, the last entry.
	mats := append(append([]model.Material(nil), m.Materials...), model.Material{
		Name:  "default",
		Color: glm.Vec4{1, 1, 1, 1},
	})
	loaded := make(map[string]*render.Image)
	for _, mm := range mats {
		tex := s.white
		if mm.Texture != "" && opts.Textures != nil {
			if t, ok := loaded[mm.Texture]; ok {
				tex = t
			} else if t, err := s.loadTexture(opts, mm.Texture); err != nil {
				s.log.WithError(err).WithField("texture", mm.Texture).Warn("texture not loaded, using white")
			} else {
				loaded[mm.Texture] = t
				s.textures = append(s.textures, t)
				tex = t
			}
		}
		set, err := s.binder.TextureSet(tex.View())
		if err != nil {
			return errors.Wrapf(err, "material %s", mm.Name)
		}
		s.materials = append(s.materials, material{
			color:   mm.Color,
			texture: tex,
			set:     set,
		})
	}

	for idx := range s.draws {
		if s.draws[idx].Material < 0 || s.draws[idx].Material >= len(m.Materials) {
			s.draws[idx].Material = len(s.materials) - 1
		}
	}
	return nil
}

func (s *Scene) loadTexture(opts Options, name string) (*render.Image, error) {
	data, err := opts.Textures.Load(name)
	if err != nil {
		return nil, err
	}
	img, err := model.DecodeTexture(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return render.NewTexture(s.drv, render.TextureData{
		Width:   uint32(b.Dx()),
		Height:  uint32(b.Dy()),
		Format:  opts.TextureFormat,
		Pixels:  model.GetPixels(img),
		MipMaps: opts.MipMaps,
	})
}

func (s *Scene) createUniforms(slots int) error {
	size := uint64(unsafe.Sizeof(model.Uniform{}))
	for slot := 0; slot < slots; slot++ {
		buf, err := render.NewBuffer(s.drv, size, render.BufferGPU)
		if err != nil {
			return errors.Wrap(err, "camera uniform")
		}
		s.uniforms = append(s.uniforms, buf)
		set, err := s.binder.UniformSet(buf.Handle(), size)
		if err != nil {
			return errors.Wrap(err, "camera uniform set")
		}
		s.uniformSets = append(s.uniformSets, set)
	}
	return nil
}

func bounds(m *model.Scene) (min, max glm.Vec3, ok bool) {
	for _, item := range m.Flatten() {
		if item.Mesh < 0 || item.Mesh >= len(m.Meshes) {
			continue
		}
		for _, v := range m.Meshes[item.Mesh].Vertices {
			p := item.Transform.Mul4x1(v.Pos.Vec4(1)).Vec3()
			if !ok {
				min, max, ok = p, p, true
				continue
			}
			for i := range p {
				if p[i] < min[i] {
					min[i] = p[i]
				}
				if p[i] > max[i] {
					max[i] = p[i]
				}
			}
		}
	}
	return min, max, ok
}

// Draws returns the draw list in recording order.
func (s *Scene) Draws() []Draw {
	return s.draws
}

// Texture returns the image a material samples. The index past the last
// material is the default.
func (s *Scene) Texture(material int) *render.Image {
	return s.materials[material].texture
}

// Release implements gfx.Releasable
func (s *Scene) Release() {
	for _, u := range s.uniforms {
		u.Release()
	}
	s.uniforms, s.uniformSets = nil, nil
	for _, t := range s.textures {
		t.Release()
	}
	s.textures, s.materials = nil, nil
	if s.white != nil {
		s.white.Release()
		s.white = nil
	}
	if s.indices != nil {
		s.indices.Release()
		s.indices = nil
	}
	if s.vertices != nil {
		s.vertices.Release()
		s.vertices = nil
	}
}
