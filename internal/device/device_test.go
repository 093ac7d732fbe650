package device

import (
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name    string
		want    gputypes.Backend
		auto    bool
		wantErr bool
	}{
		{"", gputypes.BackendEmpty, true, false},
		{"auto", gputypes.BackendEmpty, true, false},
		{"Vulkan", gputypes.BackendVulkan, false, false},
		{"metal", gputypes.BackendMetal, false, false},
		{"d3d12", gputypes.BackendDX12, false, false},
		{"gles", gputypes.BackendGL, false, false},
		{"noop", gputypes.BackendEmpty, false, false},
		{"glide", gputypes.BackendEmpty, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, auto, err := ParseBackend(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownBackend)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.auto, auto)
		})
	}
}

func TestOpenNoop(t *testing.T) {
	o, err := Open(Options{Backend: "noop"})
	require.NoError(t, err)
	defer o.Destroy()

	assert.NotNil(t, o.HalDevice())
	assert.NotNil(t, o.HalQueue())
	assert.False(t, o.External())
	assert.Equal(t, "Noop Adapter", o.Info().Name)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, o.SurfaceFormat())
	assert.Equal(t, gpucontext.AdapterTypeUnknown, o.AdapterInfo().Type)

	s, err := o.CreateSurface(0, 0)
	require.NoError(t, err)
	s.Destroy()
}

func TestOpenMissingBackend(t *testing.T) {
	if _, ok := hal.GetBackend(gputypes.BackendMetal); ok {
		t.Skip("metal backend registered")
	}
	_, err := Open(Options{Backend: "metal"})
	assert.ErrorIs(t, err, hal.ErrBackendNotFound)
}

func TestDestroyIdempotent(t *testing.T) {
	o, err := Open(Options{Backend: "noop"})
	require.NoError(t, err)
	o.Destroy()
	o.Destroy()
	assert.Nil(t, o.HalDevice())
}

func TestSelectAdapter(t *testing.T) {
	adapters := []hal.ExposedAdapter{
		{Info: gputypes.AdapterInfo{Name: "other", DeviceType: gputypes.DeviceTypeOther}},
		{Info: gputypes.AdapterInfo{Name: "cpu", DeviceType: gputypes.DeviceTypeCPU}},
		{Info: gputypes.AdapterInfo{Name: "igpu", DeviceType: gputypes.DeviceTypeIntegratedGPU}},
	}
	assert.Equal(t, "igpu", selectAdapter(adapters, false).Info.Name)
	assert.Equal(t, "cpu", selectAdapter(adapters, true).Info.Name)
	assert.Equal(t, "other", selectAdapter(adapters[:1], true).Info.Name)
}

// provider wraps an Owner the way a host application exposes its device.
type provider struct{ *Owner }

func (p provider) HalDevice() any { return p.Owner.HalDevice() }
func (p provider) HalQueue() any  { return p.Owner.HalQueue() }

func TestFromProvider(t *testing.T) {
	host, err := Open(Options{Backend: "noop"})
	require.NoError(t, err)
	defer host.Destroy()

	o, err := FromProvider(provider{host})
	require.NoError(t, err)
	assert.True(t, o.External())
	assert.Equal(t, host.HalDevice(), o.HalDevice())

	o.Destroy()
	assert.NotNil(t, host.HalDevice(), "wrapped device must stay open")

	_, err = o.CreateSurface(0, 0)
	assert.Error(t, err)
}

func TestFromProviderRejectsNonHAL(t *testing.T) {
	host, err := Open(Options{Backend: "noop"})
	require.NoError(t, err)
	defer host.Destroy()

	_, err = FromProvider(host)
	assert.ErrorIs(t, err, ErrNotHAL)
}
