package record

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/hellocube/fence"
	"github.com/gogpu/hellocube/internal/frame"
	"github.com/gogpu/hellocube/internal/pipeline"
)

// spyDevice records the commands encoded through it.
type spyDevice struct {
	hal.Device
	log   []string
	freed int

	beginErr, endErr error
}

func (d *spyDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &spyEncoder{CommandEncoder: enc, d: d}, nil
}

func (d *spyDevice) FreeCommandBuffer(cb hal.CommandBuffer) {
	d.freed++
	d.Device.FreeCommandBuffer(cb)
}

type spyEncoder struct {
	hal.CommandEncoder
	d *spyDevice
}

func (e *spyEncoder) BeginEncoding(label string) error {
	if e.d.beginErr != nil {
		return e.d.beginErr
	}
	return e.CommandEncoder.BeginEncoding(label)
}

func (e *spyEncoder) EndEncoding() (hal.CommandBuffer, error) {
	if e.d.endErr != nil {
		return nil, e.d.endErr
	}
	return e.CommandEncoder.EndEncoding()
}

func (e *spyEncoder) DiscardEncoding() {
	e.d.log = append(e.d.log, "discard")
	e.CommandEncoder.DiscardEncoding()
}

func (e *spyEncoder) TransitionTextures(barriers []hal.TextureBarrier) {
	for _, b := range barriers {
		e.d.log = append(e.d.log, fmt.Sprintf("barrier %d->%d", b.Usage.OldUsage, b.Usage.NewUsage))
	}
	e.CommandEncoder.TransitionTextures(barriers)
}

func (e *spyEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	depth := desc.DepthStencilAttachment != nil
	e.d.log = append(e.d.log, fmt.Sprintf("begin depth=%v", depth))
	return &spyPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), d: e.d}
}

type spyPass struct {
	hal.RenderPassEncoder
	d *spyDevice
}

func (p *spyPass) SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32) {
	p.d.log = append(p.d.log, fmt.Sprintf("bind %v", offsets))
	p.RenderPassEncoder.SetBindGroup(index, group, offsets)
}

func (p *spyPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.d.log = append(p.d.log, fmt.Sprintf("draw %d x%d", vertexCount, instanceCount))
}

func (p *spyPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.d.log = append(p.d.log, fmt.Sprintf("drawIndexed %d x%d", indexCount, instanceCount))
}

func (p *spyPass) End() {
	p.d.log = append(p.d.log, "end")
	p.RenderPassEncoder.End()
}

type fixture struct {
	dev  *spyDevice
	tl   *fence.SoftwareTimeline
	sync *fence.Synchronizer
	rs   *frame.ResourceSet
	tex  hal.Texture
	view hal.TextureView
}

func newFixture(t *testing.T, depth bool) (*fixture, *pipeline.Pipeline) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	require.NoError(t, err)

	dev := &spyDevice{Device: openDev.Device}
	pipe, err := pipeline.Build(dev, pipeline.Options{UseDepth: depth})
	require.NoError(t, err)

	tl := fence.NewDeferredTimeline()
	sync := fence.NewSynchronizer(tl, fence.WithTimeout(0))
	rs, err := frame.New(dev, openDev.Queue, sync, pipe.BindGroupLayout(), frame.Options{Slots: 1, UseDepth: depth, Width: 8, Height: 8})
	require.NoError(t, err)

	tex, err := dev.CreateTexture(&hal.TextureDescriptor{
		Label:         "back",
		Size:          hal.Extent3D{Width: 8, Height: 8, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	require.NoError(t, err)
	view, err := dev.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: "back_view"})
	require.NoError(t, err)

	t.Cleanup(func() {
		rs.Destroy()
		pipe.Destroy()
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return &fixture{dev: dev, tl: tl, sync: sync, rs: rs, tex: tex, view: view}, pipe
}

func (f *fixture) input() FrameInput {
	return FrameInput{
		Texture:  f.tex,
		View:     f.view,
		Width:    8,
		Height:   8,
		Clear:    gputypes.Color{R: 0.5, G: 0.6, B: 0.4, A: 1},
		Bindings: f.rs.Bindings(0),
	}
}

func TestRecordInstancedIndexed(t *testing.T) {
	f, pipe := newFixture(t, true)
	r := New(f.dev, pipe, f.sync, Options{Instanced: true, Indexed: true})

	cb, err := r.Record(f.input())
	require.NoError(t, err)
	require.NotNil(t, cb)

	assert.Equal(t, []string{
		"barrier 0->16",
		"begin depth=true",
		"bind [0]",
		"drawIndexed 34 x7",
		"end",
		"barrier 16->0",
	}, f.dev.log)
	assert.Equal(t, uint64(1), r.Recorded())
}

func TestRecordPerCube(t *testing.T) {
	f, pipe := newFixture(t, false)
	r := New(f.dev, pipe, f.sync, Options{})

	_, err := r.Record(f.input())
	require.NoError(t, err)

	var draws, binds []string
	for _, l := range f.dev.log {
		switch {
		case strings.HasPrefix(l, "draw"):
			draws = append(draws, l)
		case strings.HasPrefix(l, "bind"):
			binds = append(binds, l)
		}
	}
	require.Len(t, draws, 7)
	assert.Equal(t, "draw 34 x1", draws[0])
	assert.Equal(t, "bind [0]", binds[0])
	assert.Equal(t, fmt.Sprintf("bind [%d]", 6*frame.UniformAlign), binds[6])
	assert.Contains(t, f.dev.log, "begin depth=false")
}

func TestRecordBusyUntilRetired(t *testing.T) {
	f, pipe := newFixture(t, false)
	r := New(f.dev, pipe, f.sync, Options{Instanced: true})

	_, err := r.Record(f.input())
	require.NoError(t, err)
	assert.True(t, r.Busy())

	_, err = r.Record(f.input())
	assert.ErrorIs(t, err, ErrRecorderBusy, "recorded but not submitted")

	c := f.sync.NextCounter()
	require.NoError(t, r.Submitted(c))
	require.NoError(t, f.sync.Signal(c))
	assert.True(t, r.Busy(), "one submitted buffer fills a depth-1 recorder")
	assert.Equal(t, 0, r.Retire())
	assert.Equal(t, 1, r.InFlight())

	f.tl.Complete(c)
	assert.Equal(t, 1, r.Retire())
	assert.False(t, r.Busy())
	assert.Equal(t, 1, f.dev.freed)

	_, err = r.Record(f.input())
	require.NoError(t, err)
}

func TestRecordOverlapsFrames(t *testing.T) {
	f, pipe := newFixture(t, false)
	r := New(f.dev, pipe, f.sync, Options{Instanced: true, MaxInFlight: 2})

	var counters []uint64
	for i := 0; i < 2; i++ {
		_, err := r.Record(f.input())
		require.NoError(t, err)
		c := f.sync.NextCounter()
		require.NoError(t, r.Submitted(c))
		require.NoError(t, f.sync.Signal(c))
		counters = append(counters, c)
	}
	assert.True(t, r.Busy())
	_, err := r.Record(f.input())
	assert.ErrorIs(t, err, ErrRecorderBusy)

	f.tl.Complete(counters[0])
	assert.Equal(t, 1, r.Retire())
	assert.Equal(t, 1, r.InFlight())
	assert.False(t, r.Busy())

	r.Destroy()
	assert.Equal(t, 2, f.dev.freed)
	assert.Equal(t, 0, r.InFlight())
}

func TestSubmittedWithoutRecord(t *testing.T) {
	f, pipe := newFixture(t, false)
	r := New(f.dev, pipe, f.sync, Options{})
	assert.ErrorIs(t, r.Submitted(1), ErrNotRecorded)
}

func TestRecordNoTextureSkipsBarriers(t *testing.T) {
	f, pipe := newFixture(t, false)
	r := New(f.dev, pipe, f.sync, Options{Instanced: true, Indexed: true})

	in := f.input()
	in.Texture = nil
	_, err := r.Record(in)
	require.NoError(t, err)
	for _, l := range f.dev.log {
		assert.NotContains(t, l, "barrier")
	}
}

func TestDiscard(t *testing.T) {
	f, pipe := newFixture(t, false)
	r := New(f.dev, pipe, f.sync, Options{})
	_, err := r.Record(f.input())
	require.NoError(t, err)

	r.Discard()
	assert.False(t, r.Busy())
	r.Destroy()
	assert.Equal(t, 1, f.dev.freed)
}

func TestRecordDiscardsEncoderOnFailure(t *testing.T) {
	encodeErr := errors.New("out of memory")
	for _, tc := range []struct {
		name       string
		begin, end error
	}{
		{"begin", encodeErr, nil},
		{"end", nil, encodeErr},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f, pipe := newFixture(t, false)
			f.dev.beginErr, f.dev.endErr = tc.begin, tc.end
			r := New(f.dev, pipe, f.sync, Options{Instanced: true, Indexed: true})

			_, err := r.Record(f.input())
			require.ErrorIs(t, err, encodeErr)
			assert.Equal(t, "discard", f.dev.log[len(f.dev.log)-1])
			assert.False(t, r.Busy(), "a failed Record leaves nothing pending")

			f.dev.beginErr, f.dev.endErr = nil, nil
			_, err = r.Record(f.input())
			require.NoError(t, err)
		})
	}
}
