// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package collada holds the subset of the Collada 1.4 schema the importer reads.
package collada

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Collada is the top-level Collada object
type Collada struct {
	Images       []Image       `xml:"library_images>image"`
	Effects      []Effect      `xml:"library_effects>effect"`
	Materials    []Material    `xml:"library_materials>material"`
	Geometries   []Geometry    `xml:"library_geometries>geometry"`
	VisualScenes []VisualScene `xml:"library_visual_scenes>visual_scene"`
}

// Image references a texture file
type Image struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	InitFrom string `xml:"init_from"`
}

// Effect describes how a material is shaded. Only the diffuse term
// of the common profile is read.
type Effect struct {
	ID        string     `xml:"id,attr"`
	NewParams []NewParam `xml:"profile_COMMON>newparam"`
	Diffuse   Diffuse    `xml:"profile_COMMON>technique>phong>diffuse"`
	Lambert   Diffuse    `xml:"profile_COMMON>technique>lambert>diffuse"`
}

// NewParam declares a surface or a sampler inside an effect
type NewParam struct {
	SID           string `xml:"sid,attr"`
	SurfaceInit   string `xml:"surface>init_from"`
	SamplerSource string `xml:"sampler2D>source"`
}

// Diffuse is either a color or a texture reference
type Diffuse struct {
	Color   Floats  `xml:"color"`
	Texture Texture `xml:"texture"`
}

// Texture points at a sampler newparam
type Texture struct {
	Texture  string `xml:"texture,attr"`
	TexCoord string `xml:"texcoord,attr"`
}

// Material links a name to an effect
type Material struct {
	ID             string         `xml:"id,attr"`
	Name           string         `xml:"name,attr"`
	InstanceEffect InstanceEffect `xml:"instance_effect"`
}

// InstanceEffect references an effect by URL
type InstanceEffect struct {
	URL string `xml:"url,attr"`
}

// Geometry represents Collada's geometry
type Geometry struct {
	Mesh Mesh   `xml:"mesh"`
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

// Mesh contains all the primitive data
type Mesh struct {
	Source    []Source    `xml:"source"`
	Vertices  Vertices    `xml:"vertices"`
	Triangles []Triangles `xml:"triangles"`
}

// Source links to other sources where data is present
type Source struct {
	ID       string   `xml:"id,attr"`
	Floats   Floats   `xml:"float_array"`
	Accessor Accessor `xml:"technique_common>accessor"`
}

// Accessor tells how many floats make up one element of a source
type Accessor struct {
	Count  int `xml:"count,attr"`
	Stride int `xml:"stride,attr"`
}

// Floats is the array of floats
type Floats struct {
	ID   string
	Data []float32
}

// UnmarshalXML unmarshals the array of floats
func (f *Floats) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "id":
			f.ID = attr.Value
		}
	}
	var raw string
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	for _, r := range strings.Fields(raw) {
		num, err := strconv.ParseFloat(r, 32)
		if err != nil {
			return err
		}
		f.Data = append(f.Data, float32(num))
	}
	return nil
}

// Vertices contains the list of vertices
type Vertices struct {
	ID     string  `xml:"id,attr"`
	Inputs []Input `xml:"input"`
}

// Triangles contain the list of triangles
type Triangles struct {
	Count    int     `xml:"count,attr"`
	Material string  `xml:"material,attr"`
	Inputs   []Input `xml:"input"`
	Index    []int
}

// Stride is the number of indices per vertex.
func (t *Triangles) Stride() int {
	var stride uint
	for _, in := range t.Inputs {
		if in.Offset+1 > stride {
			stride = in.Offset + 1
		}
	}
	return int(stride)
}

// UnmarshalXML parses the index list
func (t *Triangles) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "count":
			num, err := strconv.Atoi(attr.Value)
			if err != nil {
				return err
			}
			t.Count = num
		case "material":
			t.Material = attr.Value
		}
	}

	for {
		token, err := d.Token()
		if err != nil {
			return err
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "input":
				var input Input
				if err := d.DecodeElement(&input, &el); err != nil {
					return err
				}
				t.Inputs = append(t.Inputs, input)
			case "p":
				var raw string
				if err := d.DecodeElement(&raw, &el); err != nil {
					return err
				}
				fields := strings.Fields(raw)
				ints := make([]int, 0, len(fields))
				for _, r := range fields {
					num, err := strconv.Atoi(r)
					if err != nil {
						return err
					}
					ints = append(ints, num)
				}
				t.Index = ints
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if el == start.End() {
				return nil
			}
		}
	}
}

// Input is Collada'a input type
type Input struct {
	Semantic string `xml:"semantic,attr"`
	Source   string `xml:"source,attr"`
	Offset   uint   `xml:"offset,attr"`
	Set      uint   `xml:"set,attr"`
}

// VisualScene is the node hierarchy of a document
type VisualScene struct {
	ID    string `xml:"id,attr"`
	Nodes []Node `xml:"node"`
}

// Node places geometry in the scene
type Node struct {
	ID               string             `xml:"id,attr"`
	Name             string             `xml:"name,attr"`
	Matrix           Floats             `xml:"matrix"`
	InstanceGeometry []InstanceGeometry `xml:"instance_geometry"`
	Children         []Node             `xml:"node"`
}

// InstanceGeometry references a geometry and binds its materials
type InstanceGeometry struct {
	URL       string             `xml:"url,attr"`
	Materials []InstanceMaterial `xml:"bind_material>technique_common>instance_material"`
}

// InstanceMaterial maps a triangle group's material symbol to a material
type InstanceMaterial struct {
	Symbol string `xml:"symbol,attr"`
	Target string `xml:"target,attr"`
}
