package pipeline

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/hellocube/internal/scene"
)

func createNoopDevice(t *testing.T) hal.Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	adapters := instance.EnumerateAdapters(nil)
	require.NotEmpty(t, adapters)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	require.NoError(t, err)
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device
}

func TestValidateShader(t *testing.T) {
	require.NoError(t, ValidateShader())
}

func TestValidateRejectsBrokenWGSL(t *testing.T) {
	err := validateWGSL("@vertex fn vs_main( -> vec4<f32> { }")
	assert.ErrorIs(t, err, ErrShaderInvalid)
}

func TestShaderVariants(t *testing.T) {
	color, textured := ShaderSource(false), ShaderSource(true)
	assert.Contains(t, color, "fn vs_main")
	assert.Contains(t, textured, "fn vs_main")
	assert.NotContains(t, color, "textureSample")
	assert.Contains(t, textured, "textureSample")
}

func TestLayoutEntries(t *testing.T) {
	plain := (&Pipeline{}).layoutEntries()
	require.Len(t, plain, 2)

	textured := (&Pipeline{opts: Options{UseTexture: true}}).layoutEntries()
	require.Len(t, textured, 4)
	assert.Equal(t, uint32(BindingTexture), textured[2].Binding)
	assert.NotNil(t, textured[2].Texture)
	assert.Equal(t, uint32(BindingSampler), textured[3].Binding)
	assert.NotNil(t, textured[3].Sampler)
}

func TestBuild(t *testing.T) {
	for _, opts := range []Options{{}, {UseDepth: true}, {UseTexture: true}, {UseDepth: true, UseTexture: true}} {
		p, err := Build(createNoopDevice(t), opts)
		require.NoError(t, err)
		assert.NotNil(t, p.Render())
		assert.NotNil(t, p.BindGroupLayout())
		assert.Equal(t, opts.UseDepth, p.UsesDepth())
		assert.Equal(t, opts.UseTexture, p.UsesTexture())
		assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, p.ColorFormat())

		p.Destroy()
		assert.Nil(t, p.Render())
		p.Destroy()
	}
}

func TestVertexLayouts(t *testing.T) {
	layouts := VertexLayouts()
	require.Len(t, layouts, 2)

	v := layouts[SlotVertex]
	assert.Equal(t, uint64(scene.VertexStride), v.ArrayStride)
	assert.Equal(t, gputypes.VertexStepModeVertex, v.StepMode)
	var end uint64
	for _, a := range v.Attributes {
		end = max(end, a.Offset+a.Format.Size())
	}
	assert.Equal(t, uint64(scene.VertexStride), end, "attributes must cover the stride")

	inst := layouts[SlotInstance]
	assert.Equal(t, gputypes.VertexStepModeInstance, inst.StepMode)
	assert.Equal(t, uint64(scene.InstanceStride), inst.ArrayStride)
}
