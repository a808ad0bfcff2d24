// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// Format is a pixel or vertex attribute format. The values are
// the Vulkan ones so backends may convert by a plain cast.
type Format uint32

// Formats used by the renderer
const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
	FormatD16Unorm           Format = 124
	FormatD32Sfloat          Format = 126
	FormatD24UnormS8Uint     Format = 129
	FormatD32SfloatS8Uint    Format = 130
)

// IsDepth reports whether the format carries a depth component.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD32Sfloat, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// HasStencil reports whether the format carries a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

// Size returns the bytes of one texel or attribute, zero for Undefined.
func (f Format) Size() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb,
		FormatD32Sfloat, FormatD24UnormS8Uint:
		return 4
	case FormatD16Unorm:
		return 2
	case FormatR32G32Sfloat, FormatD32SfloatS8Uint:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	}
	return 0
}

// Aspect returns the image aspect that views of this format address.
func (f Format) Aspect() Aspect {
	if !f.IsDepth() {
		return AspectColor
	}
	if f.HasStencil() {
		return AspectDepth | AspectStencil
	}
	return AspectDepth
}

// Aspect selects color, depth or stencil parts of an image.
type Aspect uint32

// Image aspects
const (
	AspectColor   Aspect = 0x1
	AspectDepth   Aspect = 0x2
	AspectStencil Aspect = 0x4
)

// Access is a memory access mask, bit compatible with VkAccessFlags.
type Access uint32

// Memory access bits
const (
	AccessIndirectCommandRead         Access = 0x00000001
	AccessIndexRead                   Access = 0x00000002
	AccessVertexAttributeRead         Access = 0x00000004
	AccessUniformRead                 Access = 0x00000008
	AccessShaderRead                  Access = 0x00000020
	AccessShaderWrite                 Access = 0x00000040
	AccessColorAttachmentRead         Access = 0x00000080
	AccessColorAttachmentWrite        Access = 0x00000100
	AccessDepthStencilAttachmentRead  Access = 0x00000200
	AccessDepthStencilAttachmentWrite Access = 0x00000400
	AccessTransferRead                Access = 0x00000800
	AccessTransferWrite               Access = 0x00001000
	AccessHostWrite                   Access = 0x00004000
	AccessMemoryRead                  Access = 0x00008000
	AccessMemoryWrite                 Access = 0x00010000
)

// Stage is a pipeline stage mask, bit compatible with VkPipelineStageFlags.
type Stage uint32

// Pipeline stage bits
const (
	StageTopOfPipe             Stage = 0x00000001
	StageDrawIndirect          Stage = 0x00000002
	StageVertexInput           Stage = 0x00000004
	StageVertexShader          Stage = 0x00000008
	StageFragmentShader        Stage = 0x00000080
	StageEarlyFragmentTests    Stage = 0x00000100
	StageLateFragmentTests     Stage = 0x00000200
	StageColorAttachmentOutput Stage = 0x00000400
	StageComputeShader         Stage = 0x00000800
	StageTransfer              Stage = 0x00001000
	StageBottomOfPipe          Stage = 0x00002000
	StageHost                  Stage = 0x00004000
	StageAllGraphics           Stage = 0x00008000
	StageAllCommands           Stage = 0x00010000
)

// BufferUsageFlags mirror VkBufferUsageFlags.
type BufferUsageFlags uint32

// Buffer usage bits
const (
	BufferUsageTransferSrc BufferUsageFlags = 0x001
	BufferUsageTransferDst BufferUsageFlags = 0x002
	BufferUsageUniform     BufferUsageFlags = 0x010
	BufferUsageStorage     BufferUsageFlags = 0x020
	BufferUsageIndex       BufferUsageFlags = 0x040
	BufferUsageVertex      BufferUsageFlags = 0x080
	BufferUsageIndirect    BufferUsageFlags = 0x100
)

// ImageUsageFlags mirror VkImageUsageFlags.
type ImageUsageFlags uint32

// Image usage bits
const (
	ImageUsageTransferSrc            ImageUsageFlags = 0x01
	ImageUsageTransferDst            ImageUsageFlags = 0x02
	ImageUsageSampled                ImageUsageFlags = 0x04
	ImageUsageStorage                ImageUsageFlags = 0x08
	ImageUsageColorAttachment        ImageUsageFlags = 0x10
	ImageUsageDepthStencilAttachment ImageUsageFlags = 0x20
)
