// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package scene_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/korender/asset"
	"github.com/devblok/korender/gfx"
	"github.com/devblok/korender/gfx/gfxtest"
	"github.com/devblok/korender/model"
	"github.com/devblok/korender/render"
	"github.com/devblok/korender/scene"
)

// binder hands out fake descriptor sets and remembers what they bind.
type binder struct {
	next     gfx.DescriptorSet
	uniforms map[gfx.DescriptorSet]gfx.Buffer
	textures map[gfx.DescriptorSet]gfx.ImageView
}

func newBinder() *binder {
	return &binder{
		next:     1000,
		uniforms: make(map[gfx.DescriptorSet]gfx.Buffer),
		textures: make(map[gfx.DescriptorSet]gfx.ImageView),
	}
}

func (b *binder) Pipeline() gfx.Pipeline     { return 7 }
func (b *binder) Layout() gfx.PipelineLayout { return 8 }

func (b *binder) UniformSet(buf gfx.Buffer, size uint64) (gfx.DescriptorSet, error) {
	b.next++
	b.uniforms[b.next] = buf
	return b.next, nil
}

func (b *binder) TextureSet(view gfx.ImageView) (gfx.DescriptorSet, error) {
	b.next++
	b.textures[b.next] = view
	return b.next, nil
}

func triangle(offset float32) model.Mesh {
	return model.Mesh{
		Name: "triangle",
		Vertices: []model.Vertex{
			{Pos: glm.Vec3{offset, 0, 0}},
			{Pos: glm.Vec3{offset + 1, 0, 0}},
			{Pos: glm.Vec3{offset, 1, 0}},
		},
		Indices: []uint32{0, 1, 2},
	}
}

// testScene has two meshes, a textured and a plain material and three
// instances, one of them without a material.
func testScene() *model.Scene {
	return &model.Scene{
		Meshes: []model.Mesh{triangle(0), triangle(5)},
		Materials: []model.Material{
			{Name: "wood", Color: glm.Vec4{1, 1, 1, 1}, Texture: "wood.png"},
			{Name: "red", Color: glm.Vec4{1, 0, 0, 1}},
		},
		Nodes: []model.Node{{
			Transform: glm.Ident4(),
			Instances: []model.Instance{
				{Mesh: 0, Material: 0},
				{Mesh: 1, Material: 1},
			},
			Children: []model.Node{{
				Transform: glm.Translate3D(0, 2, 0),
				Instances: []model.Instance{{Mesh: 1, Material: -1}},
			}},
		}},
	}
}

func textureDir(c *qt.C, dir string) asset.Loader {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		img.Set(x, x, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	c.Assert(png.Encode(&buf, img), qt.IsNil)

	c.Assert(ioutil.WriteFile(filepath.Join(dir, "wood.png"), buf.Bytes(), 0644), qt.IsNil)
	return asset.Dir(dir)
}

func load(c *qt.C, drv *gfxtest.Driver, m *model.Scene, opts scene.Options) (*scene.Scene, *binder) {
	b := newBinder()
	if opts.Log == nil {
		opts.Log, _ = test.NewNullLogger()
	}
	s, err := scene.Load(drv, b, m, opts)
	c.Assert(err, qt.IsNil)
	return s, b
}

func TestLoad(t *testing.T) {
	c := qt.New(t)
	drv := gfxtest.NewDriver()

	s, b := load(c, drv, testScene(), scene.Options{Textures: textureDir(c, t.TempDir()), MipMaps: true})
	defer s.Release()

	c.Assert(s.Draws(), qt.HasLen, 3)
	c.Assert(s.Draws()[0].VertexOffset, qt.Equals, int32(0))
	c.Assert(s.Draws()[1].VertexOffset, qt.Equals, int32(3))
	c.Assert(s.Draws()[1].FirstIndex, qt.Equals, uint32(3))
	c.Assert(s.Draws()[1].IndexCount, qt.Equals, uint32(3))
	c.Assert(s.Draws()[2].Transform, qt.Equals, glm.Translate3D(0, 2, 0))

	// the instance without a material uses the default one
	c.Assert(s.Draws()[2].Material, qt.Equals, 2)

	// one camera set per slot, one texture set per material plus the default
	c.Assert(b.uniforms, qt.HasLen, render.DefaultFramesInFlight)
	c.Assert(b.textures, qt.HasLen, 3)

	wood := s.Texture(0)
	c.Assert(wood.Desc().Width, qt.Equals, uint32(4))
	c.Assert(wood.Desc().MipLevels, qt.Equals, uint32(3))
	c.Assert(wood.Layout(), qt.Equals, gfx.LayoutShaderReadOnly)
	c.Assert(s.Texture(1), qt.Equals, s.Texture(2))
	c.Assert(s.Texture(1) == wood, qt.Equals, false)

	c.Assert(drv.Violations, qt.HasLen, 0)
}

func TestLoadMissingTexture(t *testing.T) {
	c := qt.New(t)
	drv := gfxtest.NewDriver()
	log, hook := test.NewNullLogger()

	s, _ := load(c, drv, testScene(), scene.Options{
		Textures: asset.Dir(t.TempDir()),
		Log:      log,
	})
	defer s.Release()

	c.Assert(s.Texture(0), qt.Equals, s.Texture(1))
	c.Assert(hook.LastEntry().Level, qt.Equals, logrus.InfoLevel)
	c.Assert(hook.Entries[0].Level, qt.Equals, logrus.WarnLevel)
	c.Assert(hook.Entries[0].Data["texture"], qt.Equals, "wood.png")
}

func TestLoadEmpty(t *testing.T) {
	c := qt.New(t)
	drv := gfxtest.NewDriver()

	_, err := scene.Load(drv, newBinder(), &model.Scene{}, scene.Options{})
	c.Assert(errors.Cause(err), qt.Equals, scene.ErrEmptyScene)
	c.Assert(drv.Live(), qt.Equals, 0)

	bad := testScene()
	bad.Nodes[0].Instances[0].Mesh = 9
	_, err = scene.Load(drv, newBinder(), bad, scene.Options{})
	c.Assert(err, qt.ErrorMatches, "instance references mesh 9 of 2")
	c.Assert(drv.Live(), qt.Equals, 0)
}

func TestUpdate(t *testing.T) {
	c := qt.New(t)
	drv := gfxtest.NewDriver()
	s, b := load(c, drv, testScene(), scene.Options{})
	defer s.Release()

	log, _ := test.NewNullLogger()
	stager, err := render.NewStager(drv, 2, 4096, log)
	c.Assert(err, qt.IsNil)
	defer stager.Release()

	stager.NextFrame(1)
	extent := gfx.Extent2D{Width: 800, Height: 600}
	c.Assert(s.Update(render.FrameContext{Slot: 1, Extent: extent}, stager), qt.IsNil)
	c.Assert(stager.Pending(), qt.Equals, 1)
	c.Assert(stager.Cursor(), qt.Equals, uint64(128))

	cb, err := drv.AllocateCommandBuffer()
	c.Assert(err, qt.IsNil)
	c.Assert(drv.BeginCommandBuffer(cb, true), qt.IsNil)
	stager.Flush(cb)

	copied := drv.Copies[len(drv.Copies)-1]
	targets := make(map[gfx.Buffer]bool)
	for _, buf := range b.uniforms {
		targets[buf] = true
	}
	c.Assert(targets[copied.Dst], qt.Equals, true)
	c.Assert(drv.BufferData(copied.Dst), qt.DeepEquals, s.Camera.Uniform(extent).Bytes())

	err = s.Update(render.FrameContext{Slot: 2}, stager)
	c.Assert(err, qt.ErrorMatches, "frame slot 2 has no camera uniform, 2 exist")
}

func recording(c *qt.C, drv *gfxtest.Driver) gfx.CommandBuffer {
	cb, err := drv.AllocateCommandBuffer()
	c.Assert(err, qt.IsNil)
	c.Assert(drv.BeginCommandBuffer(cb, false), qt.IsNil)
	return cb
}

func TestRecord(t *testing.T) {
	c := qt.New(t)
	drv := gfxtest.NewDriver()
	s, b := load(c, drv, testScene(), scene.Options{Textures: textureDir(c, t.TempDir())})
	defer s.Release()

	cb := recording(c, drv)
	c.Assert(s.Record(cb, render.FrameContext{Slot: 0}), qt.IsNil)

	c.Assert(drv.Draws, qt.DeepEquals, []gfx.DrawIndexed{
		{IndexCount: 3, InstanceCount: 1},
		{IndexCount: 3, InstanceCount: 1, FirstIndex: 3, VertexOffset: 3},
		{IndexCount: 3, InstanceCount: 1, FirstIndex: 3, VertexOffset: 3},
	})

	// camera first, then a material set whenever the material changes
	c.Assert(drv.Bound, qt.HasLen, 4)
	c.Assert(drv.Bound[0].Set, qt.Equals, uint32(scene.SetCamera))
	_, isUniform := b.uniforms[drv.Bound[0].DescriptorSet]
	c.Assert(isUniform, qt.Equals, true)
	for _, bind := range drv.Bound[1:] {
		c.Assert(bind.Set, qt.Equals, uint32(scene.SetMaterial))
		c.Assert(bind.Layout, qt.Equals, gfx.PipelineLayout(8))
	}
	c.Assert(b.textures[drv.Bound[1].DescriptorSet], qt.Equals, s.Texture(0).View())

	// model matrix and color per draw
	c.Assert(drv.Pushes, qt.HasLen, 3)
	red := model.PushConstants{Model: glm.Ident4(), Color: glm.Vec4{1, 0, 0, 1}}
	c.Assert(drv.Pushes[1], qt.DeepEquals, red.Bytes())
	lifted := model.PushConstants{Model: glm.Translate3D(0, 2, 0), Color: glm.Vec4{1, 1, 1, 1}}
	c.Assert(drv.Pushes[2], qt.DeepEquals, lifted.Bytes())

	c.Assert(drv.Violations, qt.HasLen, 0)
}

func TestRecordRequiresSampledTextures(t *testing.T) {
	c := qt.New(t)
	drv := gfxtest.NewDriver()
	s, _ := load(c, drv, testScene(), scene.Options{})
	defer s.Release()

	cb := recording(c, drv)
	c.Assert(s.Texture(1).Transition(cb, gfx.LayoutUndefined, gfx.LayoutTransferDst), qt.IsNil)

	err := s.Record(cb, render.FrameContext{Slot: 0})
	c.Assert(errors.Cause(err), qt.Equals, gfx.ErrLayoutMismatch)
	c.Assert(drv.Draws, qt.HasLen, 0)
}

func TestSpin(t *testing.T) {
	c := qt.New(t)
	drv := gfxtest.NewDriver()
	m := testScene()
	m.Nodes[0].Children = nil
	s, _ := load(c, drv, m, scene.Options{})
	defer s.Release()
	s.Spin = 1

	log, _ := test.NewNullLogger()
	stager, err := render.NewStager(drv, 2, 4096, log)
	c.Assert(err, qt.IsNil)
	defer stager.Release()

	stager.NextFrame(0)
	fc := render.FrameContext{Elapsed: 2 * time.Second}
	c.Assert(s.Update(fc, stager), qt.IsNil)
	c.Assert(s.Record(recording(c, drv), fc), qt.IsNil)

	spun := model.PushConstants{Model: glm.HomogRotate3DY(2), Color: glm.Vec4{1, 1, 1, 1}}
	c.Assert(drv.Pushes[0], qt.DeepEquals, spun.Bytes())
}

func TestRelease(t *testing.T) {
	c := qt.New(t)
	drv := gfxtest.NewDriver()
	s, _ := load(c, drv, testScene(), scene.Options{Textures: textureDir(c, t.TempDir()), MipMaps: true})

	s.Release()
	s.Release()
	c.Assert(drv.Live(), qt.Equals, 0)
}

func TestRenderScene(t *testing.T) {
	c := qt.New(t)
	drv := gfxtest.NewDriver()
	s, _ := load(c, drv, testScene(), scene.Options{})

	log, _ := test.NewNullLogger()
	r, err := render.NewRenderer(drv, gfxtest.NewSurface(640, 480), s, render.Configuration{
		StagingCapacity: 4096,
		Log:             log,
	})
	c.Assert(err, qt.IsNil)

	for i := 0; i < 4; i++ {
		_, err := r.DrawFrame()
		c.Assert(err, qt.IsNil)
	}
	c.Assert(r.Stats().Frames, qt.Equals, uint64(4))
	c.Assert(drv.Draws, qt.HasLen, 4*len(s.Draws()))
	c.Assert(drv.Violations, qt.HasLen, 0)

	r.Release()
	s.Release()
	c.Assert(drv.Live(), qt.Equals, 0)
}

func TestCamera(t *testing.T) {
	c := qt.New(t)

	cam := scene.DefaultCamera()
	u := cam.Uniform(gfx.Extent2D{Width: 800, Height: 400})
	c.Assert(u.Projection[5] < 0, qt.Equals, true)
	c.Assert(u.Projection[0]*2, qt.Equals, -u.Projection[5])

	// degenerate extents keep a square aspect
	sq := cam.Uniform(gfx.Extent2D{})
	c.Assert(sq.Projection[0], qt.Equals, -sq.Projection[5])

	framed := cam.Frame(glm.Vec3{-1, -1, -1}, glm.Vec3{1, 1, 1})
	c.Assert(framed.Target, qt.Equals, glm.Vec3{0, 0, 0})
	c.Assert(framed.Eye.X(), qt.Equals, float32(0))
	c.Assert(framed.Eye.Z() > 1, qt.Equals, true)
	c.Assert(framed.Far > framed.Eye.Z()+1, qt.Equals, true)
}
