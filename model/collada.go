// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"encoding/xml"
	"strconv"
	"strings"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/devblok/korender/model/collada"
)

// ErrSourceNotFound is returned when a mesh input points at nothing.
var ErrSourceNotFound = errors.New("source not found")

// ImportCollada reads a Collada (.dae) document into a Scene. Every
// triangle group becomes its own Mesh.
func ImportCollada(fileContents []byte) (*Scene, error) {
	var doc collada.Collada
	if err := xml.Unmarshal(fileContents, &doc); err != nil {
		return nil, errors.Wrap(err, "collada")
	}

	s := &Scene{}
	materialIndex := make(map[string]int)
	for _, m := range doc.Materials {
		materialIndex[m.ID] = len(s.Materials)
		s.Materials = append(s.Materials, importMaterial(&doc, m))
	}

	// geometry ID -> meshes built from it, with their material symbols
	type geometryMeshes struct {
		meshes  []int
		symbols []string
	}
	geometries := make(map[string]geometryMeshes)
	for _, g := range doc.Geometries {
		var gm geometryMeshes
		for _, tris := range g.Mesh.Triangles {
			mesh, err := importTriangles(g, tris)
			if err != nil {
				return nil, errors.Wrapf(err, "geometry %s", g.ID)
			}
			gm.meshes = append(gm.meshes, len(s.Meshes))
			gm.symbols = append(gm.symbols, tris.Material)
			s.Meshes = append(s.Meshes, mesh)
		}
		geometries[g.ID] = gm
	}

	resolve := func(symbol string, bindings []collada.InstanceMaterial) int {
		for _, b := range bindings {
			if b.Symbol == symbol {
				symbol = strings.TrimPrefix(b.Target, "#")
				break
			}
		}
		if idx, ok := materialIndex[symbol]; ok {
			return idx
		}
		return -1
	}

	var importNode func(n collada.Node) Node
	importNode = func(n collada.Node) Node {
		node := Node{
			Name:      n.Name,
			Transform: matrix(n.Matrix.Data),
		}
		for _, ig := range n.InstanceGeometry {
			gm := geometries[strings.TrimPrefix(ig.URL, "#")]
			for idx, mesh := range gm.meshes {
				node.Instances = append(node.Instances, Instance{
					Mesh:     mesh,
					Material: resolve(gm.symbols[idx], ig.Materials),
				})
			}
		}
		for _, c := range n.Children {
			node.Children = append(node.Children, importNode(c))
		}
		return node
	}

	if len(doc.VisualScenes) > 0 {
		for _, n := range doc.VisualScenes[0].Nodes {
			s.Nodes = append(s.Nodes, importNode(n))
		}
		return s, nil
	}

	// No hierarchy: place every mesh once at the origin.
	root := Node{Name: "root", Transform: glm.Ident4()}
	for _, g := range doc.Geometries {
		gm := geometries[g.ID]
		for idx, mesh := range gm.meshes {
			root.Instances = append(root.Instances, Instance{
				Mesh:     mesh,
				Material: resolve(gm.symbols[idx], nil),
			})
		}
	}
	s.Nodes = []Node{root}
	return s, nil
}

// matrix converts Collada's row major matrix. Anything but 16 floats
// is treated as identity.
func matrix(data []float32) glm.Mat4 {
	if len(data) != 16 {
		return glm.Ident4()
	}
	var m glm.Mat4
	copy(m[:], data)
	return m.Transpose()
}

func importTriangles(g collada.Geometry, tris collada.Triangles) (Mesh, error) {
	stride := tris.Stride()
	if stride == 0 {
		return Mesh{}, errors.New("triangles without inputs")
	}

	var (
		positions, normals, uvs   collada.Source
		posStride, normStr, uvStr int
	)
	posOff, normOff, uvOff := -1, -1, -1
	for _, in := range tris.Inputs {
		switch in.Semantic {
		case "VERTEX":
			// VERTEX points at <vertices>, which points at the positions.
			for _, vin := range g.Mesh.Vertices.Inputs {
				if vin.Semantic == "POSITION" {
					src, err := findSource(g.Mesh.Source, vin.Source)
					if err != nil {
						return Mesh{}, err
					}
					positions, posOff, posStride = src, int(in.Offset), accessorStride(src, 3)
				}
			}
		case "NORMAL":
			src, err := findSource(g.Mesh.Source, in.Source)
			if err != nil {
				return Mesh{}, err
			}
			normals, normOff, normStr = src, int(in.Offset), accessorStride(src, 3)
		case "TEXCOORD":
			if in.Set != 0 {
				continue
			}
			src, err := findSource(g.Mesh.Source, in.Source)
			if err != nil {
				return Mesh{}, err
			}
			uvs, uvOff, uvStr = src, int(in.Offset), accessorStride(src, 2)
		}
	}
	if posOff < 0 {
		return Mesh{}, errors.Wrap(ErrSourceNotFound, "positions")
	}

	mesh := Mesh{Name: g.Name}
	if tris.Material != "" {
		mesh.Name += "/" + tris.Material
	}

	// Identical index tuples share a vertex.
	seen := make(map[string]uint32)
	for idx := 0; idx+stride <= len(tris.Index); idx += stride {
		tuple := tris.Index[idx : idx+stride]
		key := tupleKey(tuple)
		if vi, ok := seen[key]; ok {
			mesh.Indices = append(mesh.Indices, vi)
			continue
		}

		vert := Vertex{Color: glm.Vec4{1, 1, 1, 1}}
		p, err := element(positions.Floats.Data, tuple[posOff], posStride, 3)
		if err != nil {
			return Mesh{}, err
		}
		vert.Pos = glm.Vec3{p[0], p[1], p[2]}
		if normOff >= 0 {
			n, err := element(normals.Floats.Data, tuple[normOff], normStr, 3)
			if err != nil {
				return Mesh{}, err
			}
			vert.Normal = glm.Vec3{n[0], n[1], n[2]}
		}
		if uvOff >= 0 {
			t, err := element(uvs.Floats.Data, tuple[uvOff], uvStr, 2)
			if err != nil {
				return Mesh{}, err
			}
			// Collada's V axis points up, Vulkan's down.
			vert.UV = glm.Vec2{t[0], 1 - t[1]}
		}

		vi := uint32(len(mesh.Vertices))
		seen[key] = vi
		mesh.Vertices = append(mesh.Vertices, vert)
		mesh.Indices = append(mesh.Indices, vi)
	}
	return mesh, nil
}

func tupleKey(tuple []int) string {
	var b strings.Builder
	for _, v := range tuple {
		b.WriteString(strconv.Itoa(v))
		b.WriteByte(',')
	}
	return b.String()
}

func accessorStride(src collada.Source, def int) int {
	if src.Accessor.Stride > 0 {
		return src.Accessor.Stride
	}
	return def
}

func element(data []float32, index, stride, width int) ([]float32, error) {
	start := index * stride
	if index < 0 || start+width > len(data) {
		return nil, errors.Errorf("index %d out of range of %d floats", index, len(data))
	}
	return data[start : start+width], nil
}

func findSource(sources []collada.Source, ref string) (collada.Source, error) {
	id := strings.TrimPrefix(ref, "#")
	for _, s := range sources {
		if s.ID == id {
			return s, nil
		}
	}
	return collada.Source{}, errors.Wrap(ErrSourceNotFound, id)
}

func importMaterial(doc *collada.Collada, m collada.Material) Material {
	mat := Material{
		ID:    m.ID,
		Name:  m.Name,
		Color: glm.Vec4{1, 1, 1, 1},
	}

	var effect *collada.Effect
	for idx := range doc.Effects {
		if doc.Effects[idx].ID == strings.TrimPrefix(m.InstanceEffect.URL, "#") {
			effect = &doc.Effects[idx]
		}
	}
	if effect == nil {
		return mat
	}

	diffuse := effect.Diffuse
	if len(diffuse.Color.Data) == 0 && diffuse.Texture.Texture == "" {
		diffuse = effect.Lambert
	}
	if c := diffuse.Color.Data; len(c) == 4 {
		mat.Color = glm.Vec4{c[0], c[1], c[2], c[3]}
	}

	// texture -> sampler2D -> surface -> image, or texture -> image directly
	ref := diffuse.Texture.Texture
	if ref == "" {
		return mat
	}
	params := make(map[string]collada.NewParam)
	for _, p := range effect.NewParams {
		params[p.SID] = p
	}
	if sampler, ok := params[ref]; ok && sampler.SamplerSource != "" {
		if surface, ok := params[sampler.SamplerSource]; ok && surface.SurfaceInit != "" {
			ref = surface.SurfaceInit
		}
	}
	for _, img := range doc.Images {
		if img.ID == ref {
			mat.Texture = strings.TrimPrefix(img.InitFrom, "file://")
		}
	}
	return mat
}
