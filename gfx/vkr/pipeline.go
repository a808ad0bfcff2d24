// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/korender/gfx"
)

const pushConstantStages = vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)

// PipelineConfiguration describes a graphics pipeline with a camera
// uniform at set 0 and a material texture at set 1.
type PipelineConfiguration struct {
	// VertexShader and FragmentShader are SPIR-V binaries.
	VertexShader   []byte
	FragmentShader []byte

	Vertex           gfx.VertexLayout
	PushConstantSize uint32

	// ColorFormat and DepthFormat select the render pass the pipeline is
	// compatible with.
	ColorFormat gfx.Format
	DepthFormat gfx.Format
}

// Pipeline is a graphics pipeline together with its layout. It hands out
// the descriptor sets draws bind.
type Pipeline struct {
	device *Device

	modules    []vk.ShaderModule
	setLayouts []vk.DescriptorSetLayout
	layout     vk.PipelineLayout
	pipeline   vk.Pipeline

	handle       gfx.Pipeline
	layoutHandle gfx.PipelineLayout
	sets         []gfx.DescriptorSet
}

// NewPipeline builds a pipeline drawing indexed triangle lists with back
// face culling and depth testing. Viewport and scissor are dynamic.
func NewPipeline(d *Device, cfg PipelineConfiguration) (*Pipeline, error) {
	p := &Pipeline{device: d}
	if err := p.build(cfg); err != nil {
		p.Release()
		return nil, err
	}
	p.handle = gfx.Pipeline(d.objects.add(kindPipeline, p.pipeline))
	p.layoutHandle = gfx.PipelineLayout(d.objects.add(kindPipelineLayout, p.layout))
	return p, nil
}

func (p *Pipeline) build(cfg PipelineConfiguration) error {
	d := p.device
	stages := make([]vk.PipelineShaderStageCreateInfo, 0, 2)
	for _, shader := range []struct {
		code  []byte
		stage vk.ShaderStageFlagBits
		name  string
	}{
		{cfg.VertexShader, vk.ShaderStageVertexBit, "vertex"},
		{cfg.FragmentShader, vk.ShaderStageFragmentBit, "fragment"},
	} {
		module, err := newShaderModule(d.device, shader.code)
		if err != nil {
			return errors.Wrapf(err, "%s shader", shader.name)
		}
		p.modules = append(p.modules, module)
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  shader.stage,
			Module: module,
			PName:  safeString("main"),
		})
	}

	for _, binding := range []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}, {
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}} {
		dslci := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: 1,
			PBindings:    []vk.DescriptorSetLayoutBinding{binding},
		}
		var setLayout vk.DescriptorSetLayout
		if err := check(vk.CreateDescriptorSetLayout(d.device, &dslci, nil, &setLayout), "vk.CreateDescriptorSetLayout"); err != nil {
			return err
		}
		p.setLayouts = append(p.setLayouts, setLayout)
	}

	plci := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(p.setLayouts)),
		PSetLayouts:    p.setLayouts,
	}
	if cfg.PushConstantSize > 0 {
		plci.PushConstantRangeCount = 1
		plci.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: pushConstantStages,
			Offset:     0,
			Size:       cfg.PushConstantSize,
		}}
	}
	if err := check(vk.CreatePipelineLayout(d.device, &plci, nil, &p.layout), "vk.CreatePipelineLayout"); err != nil {
		return err
	}

	rp, err := d.renderPass(passKey{color: cfg.ColorFormat, depth: cfg.DepthFormat})
	if err != nil {
		return err
	}

	attributes := make([]vk.VertexInputAttributeDescription, len(cfg.Vertex.Attributes))
	for idx, attr := range cfg.Vertex.Attributes {
		attributes[idx] = vk.VertexInputAttributeDescription{
			Location: attr.Location,
			Binding:  0,
			Format:   format(attr.Format),
			Offset:   attr.Offset,
		}
	}
	bindings := []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    cfg.Vertex.Stride,
		InputRate: vk.VertexInputRateVertex,
	}}

	depthTest := vk.Bool32(vk.False)
	if cfg.DepthFormat != gfx.FormatUndefined {
		depthTest = vk.True
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  depthTest,
			DepthWriteEnable: depthTest,
			DepthCompareOp:   vk.CompareOpLess,
			Back: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
			Front: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: 0xF,
				BlendEnable:    vk.False,
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateViewport,
				vk.DynamicStateScissor,
			},
		},
		Layout:     p.layout,
		RenderPass: rp,
	}}

	var cache vk.PipelineCache
	pipelines := make([]vk.Pipeline, 1)
	if err := check(vk.CreateGraphicsPipelines(d.device, cache, 1, gpci, nil, pipelines), "vk.CreateGraphicsPipelines"); err != nil {
		return err
	}
	p.pipeline = pipelines[0]
	return nil
}

func newShaderModule(device vk.Device, code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Errorf("shader code of %d bytes is not SPIR-V", len(code))
	}
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    SliceUint32(code),
	}
	var module vk.ShaderModule
	if err := check(vk.CreateShaderModule(device, &smci, nil, &module), "vk.CreateShaderModule"); err != nil {
		return nil, err
	}
	return module, nil
}

// Pipeline returns the pipeline handle draws bind
func (p *Pipeline) Pipeline() gfx.Pipeline {
	return p.handle
}

// Layout returns the pipeline layout handle sets and push constants use
func (p *Pipeline) Layout() gfx.PipelineLayout {
	return p.layoutHandle
}

func (p *Pipeline) allocateSet(setLayout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	d := p.device
	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{setLayout},
	}
	var set vk.DescriptorSet
	if err := check(vk.AllocateDescriptorSets(d.device, &dsai, &set), "vk.AllocateDescriptorSets"); err != nil {
		return nil, err
	}
	return set, nil
}

func (p *Pipeline) register(set vk.DescriptorSet) gfx.DescriptorSet {
	h := gfx.DescriptorSet(p.device.objects.add(kindDescriptorSet, set))
	p.sets = append(p.sets, h)
	return h
}

// UniformSet returns a set 0 descriptor reading size bytes of buf.
func (p *Pipeline) UniformSet(buf gfx.Buffer, size uint64) (gfx.DescriptorSet, error) {
	b, err := p.device.buffer(buf)
	if err != nil {
		return 0, err
	}
	set, err := p.allocateSet(p.setLayouts[0])
	if err != nil {
		return 0, err
	}
	vk.UpdateDescriptorSets(p.device.device, 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: b.handle,
			Offset: 0,
			Range:  vk.DeviceSize(size),
		}},
	}}, 0, nil)
	return p.register(set), nil
}

// TextureSet returns a set 1 descriptor sampling view, which has to be in
// ShaderReadOnly by the time draws use it.
func (p *Pipeline) TextureSet(view gfx.ImageView) (gfx.DescriptorSet, error) {
	v, err := p.device.imageView(view)
	if err != nil {
		return 0, err
	}
	set, err := p.allocateSet(p.setLayouts[1])
	if err != nil {
		return 0, err
	}
	vk.UpdateDescriptorSets(p.device.device, 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     p.device.sampler,
			ImageView:   v,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	}}, 0, nil)
	return p.register(set), nil
}

// Release frees the descriptor sets handed out and destroys the pipeline.
func (p *Pipeline) Release() {
	d := p.device
	var sets []vk.DescriptorSet
	for _, h := range p.sets {
		if object, ok := d.objects.remove(kindDescriptorSet, gfx.Handle(h)); ok {
			sets = append(sets, object.(vk.DescriptorSet))
		}
	}
	if len(sets) > 0 {
		vk.FreeDescriptorSets(d.device, d.descriptorPool, uint32(len(sets)), &sets[0])
	}
	p.sets = nil

	if p.handle != 0 {
		d.objects.remove(kindPipeline, gfx.Handle(p.handle))
		p.handle = 0
	}
	if p.layoutHandle != 0 {
		d.objects.remove(kindPipelineLayout, gfx.Handle(p.layoutHandle))
		p.layoutHandle = 0
	}
	if p.pipeline != nil {
		vk.DestroyPipeline(d.device, p.pipeline, nil)
		p.pipeline = nil
	}
	if p.layout != nil {
		vk.DestroyPipelineLayout(d.device, p.layout, nil)
		p.layout = nil
	}
	for _, l := range p.setLayouts {
		vk.DestroyDescriptorSetLayout(d.device, l, nil)
	}
	p.setLayouts = nil
	for _, m := range p.modules {
		vk.DestroyShaderModule(d.device, m, nil)
	}
	p.modules = nil
}
