// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package shaders holds the GLSL sources of the scene pipeline. The
// SPIR-V binaries next to them are embedded into the viewer with packr.
package shaders

//go:generate glslangValidator -V scene.vert -o scene.vert.spv
//go:generate glslangValidator -V scene.frag -o scene.frag.spv

// Names of the compiled shader binaries
const (
	Vertex   = "scene.vert.spv"
	Fragment = "scene.frag.spv"
)
