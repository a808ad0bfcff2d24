// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package collada_test

import (
	"encoding/xml"
	"testing"

	"github.com/devblok/korender/model/collada"
)

func TestTrianglesDecode(t *testing.T) {
	data := `
		<triangles material="Material-material" count="2">
		<input semantic="VERTEX" source="#Quad-mesh-vertices" offset="0"/>
		<input semantic="NORMAL" source="#Quad-mesh-normals" offset="1"/>
		<input semantic="TEXCOORD" source="#Quad-mesh-map-0" offset="2" set="0"/>
		<p>0 0 0  1 0 1
		   2 0 2 0 0 0 2 0 2 3 0 3</p>
		<extra><technique profile="MAYA"/></extra>
		</triangles>
	`
	var triangles collada.Triangles
	if err := xml.Unmarshal([]byte(data), &triangles); err != nil {
		t.Fatal(err)
	}

	if triangles.Material != "Material-material" {
		t.Fatalf("incorrect material: %s", triangles.Material)
	}
	if triangles.Count != 2 {
		t.Fatalf("incorrect count: %d", triangles.Count)
	}
	if len(triangles.Inputs) != 3 {
		t.Fatalf("number of inputs incorrect: %d", len(triangles.Inputs))
	}
	if triangles.Stride() != 3 {
		t.Fatalf("incorrect stride: %d", triangles.Stride())
	}
	if len(triangles.Index) != 2*3*3 {
		t.Fatalf("number of index elements incorrect: %d", len(triangles.Index))
	}
}

func TestInputDecode(t *testing.T) {
	data := `
	<object>
		<input semantic="VERTEX" source="#Cube-mesh-vertices" offset="0" />
		<input semantic="NORMAL" source="#Cube-mesh-normals" offset="1" />
		<input semantic="TEXCOORD" source="#Cube-mesh-map-1" offset="2" set="1" />
	</object>
	`

	type Object struct {
		XMLName xml.Name        `xml:"object"`
		Inputs  []collada.Input `xml:"input"`
	}

	var obj Object
	if err := xml.Unmarshal([]byte(data), &obj); err != nil {
		t.Fatal(err)
	}

	expected := []collada.Input{
		{Semantic: "VERTEX", Source: "#Cube-mesh-vertices", Offset: 0},
		{Semantic: "NORMAL", Source: "#Cube-mesh-normals", Offset: 1},
		{Semantic: "TEXCOORD", Source: "#Cube-mesh-map-1", Offset: 2, Set: 1},
	}
	if len(obj.Inputs) != len(expected) {
		t.Fatalf("expected %d inputs, got %d", len(expected), len(obj.Inputs))
	}
	for idx, in := range obj.Inputs {
		if in != expected[idx] {
			t.Errorf("input %d: expected %+v, got %+v", idx, expected[idx], in)
		}
	}
}

func TestFloatsDecode(t *testing.T) {
	data := `<float_array id="Cube-mesh-normals-array" count="36">0 0 -1 0 0 1 1 0 -2.38419e-7 0 -1 -4.76837e-7 -1 2.38419e-7 -1.49012e-7 2.68221e-7 1 2.38419e-7 0 0 -1 0 0 1 1 -5.96046e-7 3.27825e-7 -4.76837e-7 -1 0 -1 2.38419e-7 -1.19209e-7 2.08616e-7 1 0</float_array>`

	var floats collada.Floats
	if err := xml.Unmarshal([]byte(data), &floats); err != nil {
		t.Fatal(err)
	}

	if len(floats.Data) != 36 {
		t.Fatalf("bad number of floats, got: %d", len(floats.Data))
	}
	if floats.ID != "Cube-mesh-normals-array" {
		t.Fatalf("bad id, got: %s", floats.ID)
	}
	if floats.Data[2] != -1 {
		t.Fatalf("bad value, got: %f", floats.Data[2])
	}
}

func TestFloatsDecodeBadNumber(t *testing.T) {
	data := `<float_array id="broken">0 1 x</float_array>`

	var floats collada.Floats
	if err := xml.Unmarshal([]byte(data), &floats); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestVisualSceneDecode(t *testing.T) {
	data := `
	<COLLADA>
		<library_visual_scenes>
			<visual_scene id="Scene">
				<node id="Parent" name="Parent">
					<matrix sid="transform">1 0 0 2 0 1 0 0 0 0 1 0 0 0 0 1</matrix>
					<instance_geometry url="#Cube-mesh" name="Cube">
						<bind_material><technique_common>
							<instance_material symbol="Material-material" target="#Material-material"/>
						</technique_common></bind_material>
					</instance_geometry>
					<node id="Child" name="Child"/>
				</node>
			</visual_scene>
		</library_visual_scenes>
	</COLLADA>
	`
	var doc collada.Collada
	if err := xml.Unmarshal([]byte(data), &doc); err != nil {
		t.Fatal(err)
	}

	if len(doc.VisualScenes) != 1 || len(doc.VisualScenes[0].Nodes) != 1 {
		t.Fatalf("unexpected scene structure: %+v", doc.VisualScenes)
	}
	parent := doc.VisualScenes[0].Nodes[0]
	if len(parent.Matrix.Data) != 16 || parent.Matrix.Data[3] != 2 {
		t.Fatalf("bad matrix: %v", parent.Matrix.Data)
	}
	if len(parent.InstanceGeometry) != 1 || parent.InstanceGeometry[0].URL != "#Cube-mesh" {
		t.Fatalf("bad geometry instance: %+v", parent.InstanceGeometry)
	}
	if m := parent.InstanceGeometry[0].Materials; len(m) != 1 || m[0].Target != "#Material-material" {
		t.Fatalf("bad material binding: %+v", m)
	}
	if len(parent.Children) != 1 || parent.Children[0].Name != "Child" {
		t.Fatalf("bad children: %+v", parent.Children)
	}
}
