// Package pipeline builds the render pipeline that draws the cube: the
// embedded WGSL shader, its bind group layout, and the pipeline state.
package pipeline

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hellocube/internal/scene"
)

var (
	//go:embed shaders/cube_vertex.wgsl
	vertexStage string
	//go:embed shaders/cube_color.wgsl
	colorStage string
	//go:embed shaders/cube_texture.wgsl
	textureStage string
)

// ShaderSource returns the WGSL module for the given draw mode.
func ShaderSource(useTexture bool) string {
	if useTexture {
		return vertexStage + textureStage
	}
	return vertexStage + colorStage
}

// Bind group 0 slots. The texture and sampler exist only with UseTexture.
const (
	BindingCamera  = 0
	BindingModel   = 1
	BindingTexture = 2
	BindingSampler = 3
)

// Vertex buffer slots.
const (
	SlotVertex   = 0
	SlotInstance = 1
)

// DepthFormat is the depth target format.
const DepthFormat = gputypes.TextureFormatDepth32Float

// TextureFormat is the format of the sampled cube texture.
const TextureFormat = gputypes.TextureFormatRGBA8Unorm

// ErrShaderInvalid is returned when the embedded shader fails validation.
var ErrShaderInvalid = errors.New("pipeline: shader failed validation")

// Options configures Build.
type Options struct {
	// ColorFormat is the back-buffer format.
	ColorFormat gputypes.TextureFormat

	// UseDepth enables depth testing against a DepthFormat attachment.
	UseDepth bool

	// UseTexture binds a TextureFormat texture and a filtering sampler and
	// shades with them.
	UseTexture bool
}

// Pipeline owns the shader module, layouts, and render pipeline.
type Pipeline struct {
	device hal.Device
	opts   Options

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
}

// ValidateShader runs both embedded shader variants through naga's parser,
// lowering and validator.
func ValidateShader() error {
	for _, textured := range []bool{false, true} {
		if err := validateWGSL(ShaderSource(textured)); err != nil {
			return err
		}
	}
	return nil
}

func validateWGSL(src string) error {
	ast, err := naga.Parse(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShaderInvalid, err)
	}
	module, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShaderInvalid, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShaderInvalid, err)
	}
	if len(verrs) > 0 {
		return fmt.Errorf("%w: %w", ErrShaderInvalid, verrs[0])
	}
	return nil
}

// Build validates the shader and creates every pipeline object on device.
// On error, anything already created is released.
func Build(device hal.Device, opts Options) (*Pipeline, error) {
	if opts.ColorFormat == gputypes.TextureFormatUndefined {
		opts.ColorFormat = gputypes.TextureFormatBGRA8Unorm
	}
	if err := validateWGSL(ShaderSource(opts.UseTexture)); err != nil {
		return nil, err
	}

	p := &Pipeline{device: device, opts: opts}
	if err := p.build(); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) build() error {
	shader, err := p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "cube_shader",
		Source: hal.ShaderSource{WGSL: ShaderSource(p.opts.UseTexture)},
	})
	if err != nil {
		return fmt.Errorf("pipeline: create shader module: %w", err)
	}
	p.shader = shader

	bindLayout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "cube_bind_layout",
		Entries: p.layoutEntries(),
	})
	if err != nil {
		return fmt.Errorf("pipeline: create bind group layout: %w", err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "cube_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("pipeline: create pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout

	desc := &hal.RenderPipelineDescriptor{
		Label:  "cube_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: "vs_main",
			Buffers:    VertexLayouts(),
		},
		Fragment: &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    p.opts.ColorFormat,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleStrip,
			FrontFace: gputypes.FrontFaceCW,
			CullMode:  gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if p.opts.UseDepth {
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            DepthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keepStencil(),
			StencilBack:       keepStencil(),
		}
	}
	pipeline, err := p.device.CreateRenderPipeline(desc)
	if err != nil {
		return fmt.Errorf("pipeline: create render pipeline: %w", err)
	}
	p.pipeline = pipeline
	return nil
}

func (p *Pipeline) layoutEntries() []gputypes.BindGroupLayoutEntry {
	entries := []gputypes.BindGroupLayoutEntry{
		{
			Binding:    BindingCamera,
			Visibility: gputypes.ShaderStageVertex,
			Buffer: &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: scene.MatrixSize,
			},
		},
		{
			Binding:    BindingModel,
			Visibility: gputypes.ShaderStageVertex,
			Buffer: &gputypes.BufferBindingLayout{
				Type:             gputypes.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   scene.MatrixSize,
			},
		},
	}
	if p.opts.UseTexture {
		entries = append(entries,
			gputypes.BindGroupLayoutEntry{
				Binding:    BindingTexture,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			gputypes.BindGroupLayoutEntry{
				Binding:    BindingSampler,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		)
	}
	return entries
}

func keepStencil() hal.StencilFaceState {
	return hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
}

// VertexLayouts describes the per-vertex strip buffer and the per-instance
// offset buffer.
func VertexLayouts() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: scene.VertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
				{Format: gputypes.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
			},
		},
		{
			ArrayStride: scene.InstanceStride,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 3},
			},
		},
	}
}

// Render returns the render pipeline.
func (p *Pipeline) Render() hal.RenderPipeline { return p.pipeline }

// BindGroupLayout returns the layout of bind group 0.
func (p *Pipeline) BindGroupLayout() hal.BindGroupLayout { return p.bindLayout }

// UsesTexture reports whether bind group 0 carries the texture and sampler.
func (p *Pipeline) UsesTexture() bool { return p.opts.UseTexture }

// UsesDepth reports whether the pipeline expects a depth attachment.
func (p *Pipeline) UsesDepth() bool { return p.opts.UseDepth }

// ColorFormat returns the color target format.
func (p *Pipeline) ColorFormat() gputypes.TextureFormat { return p.opts.ColorFormat }

// Destroy releases pipeline resources in reverse creation order.
func (p *Pipeline) Destroy() {
	if p.device == nil {
		return
	}
	if p.pipeline != nil {
		p.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		p.device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.shader != nil {
		p.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}
