// Package record builds the one command buffer each frame submits.
package record

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hellocube/fence"
	"github.com/gogpu/hellocube/internal/frame"
	"github.com/gogpu/hellocube/internal/pipeline"
	"github.com/gogpu/hellocube/internal/scene"
)

var (
	// ErrRecorderBusy is returned by Record while a recorded buffer awaits
	// Submitted, or while MaxInFlight submitted buffers are unretired.
	ErrRecorderBusy = errors.New("record: command buffers not retired")

	// ErrNotRecorded is returned by Submitted without a prior Record.
	ErrNotRecorded = errors.New("record: nothing recorded")
)

// UsagePresentable is the usage a back buffer holds outside a frame. The
// HAL has no present usage flag; None lets the backend pick the layout the
// surface expects.
const UsagePresentable = gputypes.TextureUsageNone

// Options selects how the cubes are drawn.
type Options struct {
	// Instanced draws all cubes with one instanced draw; otherwise one
	// draw per cube with a dynamic world-matrix offset.
	Instanced bool

	// Indexed draws through the index buffer.
	Indexed bool

	// MaxInFlight bounds the submitted, unretired command buffers.
	// Zero means 1.
	MaxInFlight int
}

// FrameInput is everything one frame draws with.
type FrameInput struct {
	// Texture is the back buffer. A nil texture skips the state barriers.
	Texture hal.Texture
	View    hal.TextureView

	Width, Height uint32
	Clear         gputypes.Color
	Bindings      frame.Bindings
}

type inflight struct {
	cmdBuf  hal.CommandBuffer
	counter uint64
}

// Recorder records frames. A command buffer is freed only after the fence
// confirms the counter it was submitted with.
type Recorder struct {
	device hal.Device
	pipe   *pipeline.Pipeline
	sync   *fence.Synchronizer
	opts   Options

	recorded hal.CommandBuffer
	inflight []inflight
	frames   uint64
}

// New returns a recorder drawing with pipe.
func New(device hal.Device, pipe *pipeline.Pipeline, sync *fence.Synchronizer, opts Options) *Recorder {
	if opts.MaxInFlight < 1 {
		opts.MaxInFlight = 1
	}
	return &Recorder{device: device, pipe: pipe, sync: sync, opts: opts}
}

// Busy reports whether Record would return ErrRecorderBusy.
func (r *Recorder) Busy() bool {
	return r.recorded != nil || len(r.inflight) >= r.opts.MaxInFlight
}

// InFlight returns the number of submitted, unretired command buffers.
func (r *Recorder) InFlight() int { return len(r.inflight) }

// Recorded returns the number of command buffers recorded.
func (r *Recorder) Recorded() uint64 { return r.frames }

// Record builds the frame's command buffer: back buffer to render
// attachment, clear, draw the cubes, back to presentable.
func (r *Recorder) Record(in FrameInput) (hal.CommandBuffer, error) {
	if r.Busy() {
		return nil, ErrRecorderBusy
	}

	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "cube_frame"})
	if err != nil {
		return nil, fmt.Errorf("record: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("cube_frame"); err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("record: begin encoding: %w", err)
	}

	if in.Texture != nil {
		encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: in.Texture,
			Usage: hal.TextureUsageTransition{
				OldUsage: UsagePresentable,
				NewUsage: gputypes.TextureUsageRenderAttachment,
			},
		}})
	}

	desc := &hal.RenderPassDescriptor{
		Label: "cube_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       in.View,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: in.Clear,
		}},
	}
	if r.pipe.UsesDepth() {
		if in.Bindings.DepthView == nil {
			encoder.DiscardEncoding()
			return nil, errors.New("record: pipeline uses depth but no depth view bound")
		}
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            in.Bindings.DepthView,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpDiscard,
			DepthClearValue: 1.0,
		}
	}

	rp := encoder.BeginRenderPass(desc)
	rp.SetViewport(0, 0, float32(in.Width), float32(in.Height), 0, 1)
	rp.SetScissorRect(0, 0, in.Width, in.Height)
	rp.SetPipeline(r.pipe.Render())
	rp.SetVertexBuffer(pipeline.SlotVertex, in.Bindings.Vertex, 0)
	rp.SetVertexBuffer(pipeline.SlotInstance, in.Bindings.Instance, 0)
	if r.opts.Indexed {
		rp.SetIndexBuffer(in.Bindings.Index, gputypes.IndexFormatUint32, 0)
	}
	r.draw(rp, in.Bindings.BindGroup)
	rp.End()

	if in.Texture != nil {
		encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: in.Texture,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: UsagePresentable,
			},
		}})
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("record: end encoding: %w", err)
	}
	r.recorded = cmdBuf
	r.frames++
	return cmdBuf, nil
}

// draw issues the cube draws. Instanced mode reads world slot 0 (the shared
// spin) and places cubes by the instance buffer. Otherwise each draw reads
// its own world slot and instance 0, whose offset is the origin.
func (r *Recorder) draw(rp hal.RenderPassEncoder, group hal.BindGroup) {
	if r.opts.Instanced {
		rp.SetBindGroup(0, group, []uint32{0})
		r.drawCube(rp, scene.InstanceCount)
		return
	}
	for i := 0; i < scene.InstanceCount; i++ {
		rp.SetBindGroup(0, group, []uint32{uint32(i * frame.UniformAlign)}) //nolint:gosec // bounded by InstanceCount
		r.drawCube(rp, 1)
	}
}

func (r *Recorder) drawCube(rp hal.RenderPassEncoder, instances uint32) {
	if r.opts.Indexed {
		rp.DrawIndexed(scene.VertexCount, instances, 0, 0, 0)
		return
	}
	rp.Draw(scene.VertexCount, instances, 0, 0)
}

// Submitted ties the recorded command buffer to the counter its submission
// will signal.
func (r *Recorder) Submitted(counter uint64) error {
	if r.recorded == nil {
		return ErrNotRecorded
	}
	r.inflight = append(r.inflight, inflight{cmdBuf: r.recorded, counter: counter})
	r.recorded = nil
	return nil
}

// Retire frees every submitted command buffer whose counter the fence has
// confirmed and returns how many were freed.
func (r *Recorder) Retire() int {
	kept := r.inflight[:0]
	freed := 0
	for _, f := range r.inflight {
		if r.sync.IsComplete(f.counter) {
			r.device.FreeCommandBuffer(f.cmdBuf)
			freed++
			continue
		}
		kept = append(kept, f)
	}
	clear(r.inflight[len(kept):])
	r.inflight = kept
	return freed
}

// Discard frees a recorded command buffer that was never submitted.
func (r *Recorder) Discard() {
	if r.recorded != nil {
		r.device.FreeCommandBuffer(r.recorded)
		r.recorded = nil
	}
}

// Destroy releases every command buffer still held. Callers flush the
// fence first.
func (r *Recorder) Destroy() {
	r.Discard()
	for _, f := range r.inflight {
		r.device.FreeCommandBuffer(f.cmdBuf)
	}
	r.inflight = nil
}
