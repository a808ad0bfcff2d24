// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model is the in-memory form of a loaded scene: meshes, materials
// and the node hierarchy placing them, plus the vertex and uniform layouts
// shared with the shaders.
package model

import (
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/korender/gfx"
)

// Vertex is a model vertex
type Vertex struct {
	Pos    glm.Vec3
	Normal glm.Vec3
	UV     glm.Vec2
	Color  glm.Vec4
}

// Uniform holds the camera matrices. The model matrix of each draw
// is pushed as a constant instead.
type Uniform struct {
	View       glm.Mat4
	Projection glm.Mat4
}

// PushConstants are pushed before every draw.
type PushConstants struct {
	Model glm.Mat4
	Color glm.Vec4
}

// PushConstantsSize is the push constant range the pipeline declares.
const PushConstantsSize = unsafe.Sizeof(PushConstants{})

// Bytes returns a copy of the constants as raw bytes
func (p PushConstants) Bytes() []byte {
	out := make([]byte, unsafe.Sizeof(p))
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&p)), unsafe.Sizeof(p)))
	return out
}

// VertexLayout describes Vertex to the pipeline builder.
func VertexLayout() gfx.VertexLayout {
	return gfx.VertexLayout{
		Stride: uint32(unsafe.Sizeof(Vertex{})),
		Attributes: []gfx.VertexAttribute{
			{
				Location: 0,
				Format:   gfx.FormatR32G32B32Sfloat,
				Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
			},
			{
				Location: 1,
				Format:   gfx.FormatR32G32B32Sfloat,
				Offset:   uint32(unsafe.Offsetof(Vertex{}.Normal)),
			},
			{
				Location: 2,
				Format:   gfx.FormatR32G32Sfloat,
				Offset:   uint32(unsafe.Offsetof(Vertex{}.UV)),
			},
			{
				Location: 3,
				Format:   gfx.FormatR32G32B32A32Sfloat,
				Offset:   uint32(unsafe.Offsetof(Vertex{}.Color)),
			},
		},
	}
}

// VertexBytes views vertices as raw bytes without copying.
func VertexBytes(vs []Vertex) []byte {
	if len(vs) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vs[0])), len(vs)*int(unsafe.Sizeof(Vertex{})))
}

// IndexBytes views indices as raw bytes without copying.
func IndexBytes(is []uint32) []byte {
	if len(is) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&is[0])), len(is)*4)
}

// Bytes returns a copy of the uniform as raw bytes
func (u Uniform) Bytes() []byte {
	out := make([]byte, unsafe.Sizeof(u))
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&u)), unsafe.Sizeof(u)))
	return out
}

// MatrixBytes returns a copy of m as raw bytes, column major.
func MatrixBytes(m glm.Mat4) []byte {
	out := make([]byte, unsafe.Sizeof(m))
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&m)), unsafe.Sizeof(m)))
	return out
}

// Scene is a loaded scene description.
type Scene struct {
	Meshes    []Mesh
	Materials []Material
	Nodes     []Node
}

// Mesh is one indexed triangle list with a single material.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

// Material is a diffuse color and an optional texture.
type Material struct {
	ID    string
	Name  string
	Color glm.Vec4

	// Texture names a file relative to the scene, if any.
	Texture string
}

// Instance places a mesh with a material; Material is -1 for none.
type Instance struct {
	Mesh     int
	Material int
}

// Node is one element of the scene hierarchy.
type Node struct {
	Name      string
	Transform glm.Mat4
	Instances []Instance
	Children  []Node
}

// Item is a mesh placed in world space.
type Item struct {
	Instance
	Transform glm.Mat4
}

// Flatten walks the hierarchy and returns every instance with its world
// transform, parents before children.
func (s *Scene) Flatten() []Item {
	var items []Item
	for _, n := range s.Nodes {
		items = flatten(items, n, glm.Ident4())
	}
	return items
}

func flatten(items []Item, n Node, parent glm.Mat4) []Item {
	world := parent.Mul4(n.Transform)
	for _, in := range n.Instances {
		items = append(items, Item{Instance: in, Transform: world})
	}
	for _, c := range n.Children {
		items = flatten(items, c, world)
	}
	return items
}
