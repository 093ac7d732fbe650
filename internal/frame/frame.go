// Package frame owns the CPU-written, GPU-read resources of the cube sample
// and refuses any write the GPU may still be reading.
//
// Static resources (vertices, indices, instance offsets and the optional
// sampled texture) are filled once. Per
// frame data (world matrices, view-projection) lives in one copy per ring
// slot, so a slot can be refilled while another frame is in flight. Every
// write checks the resource's last-use counter against the fence and
// returns ErrResourceInFlight when the GPU has not confirmed it.
package frame

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/hellocube/fence"
	"github.com/gogpu/hellocube/internal/pipeline"
	"github.com/gogpu/hellocube/internal/scene"
)

// UniformAlign is the alignment of every uniform block, and so the stride
// between dynamic-offset world matrices.
const UniformAlign = 256

var (
	// ErrResourceInFlight is returned by a write to a resource referenced by
	// a submitted frame the fence has not yet confirmed complete.
	ErrResourceInFlight = errors.New("frame: resource in use by GPU")

	// ErrOutOfRange is returned by a write past the end of a buffer.
	ErrOutOfRange = errors.New("frame: write out of range")

	// ErrBadSlot is returned for a slot outside [0, Slots).
	ErrBadSlot = errors.New("frame: invalid slot")
)

// Kind names a buffer in the set.
type Kind int

// Buffers in the set.
const (
	KindVertex Kind = iota
	KindIndex
	KindInstance
	KindWorld
	KindViewProj
	KindTexture
)

func (k Kind) String() string {
	switch k {
	case KindVertex:
		return "vertex"
	case KindIndex:
		return "index"
	case KindInstance:
		return "instance"
	case KindWorld:
		return "world"
	case KindViewProj:
		return "viewproj"
	case KindTexture:
		return "texture"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Options configures New.
type Options struct {
	// Slots is the number of per-frame copies, normally the fence ring depth.
	Slots int

	// UseDepth creates a depth target sized Width x Height.
	UseDepth bool

	// UseTexture creates the sampled cube texture and binds it with a
	// sampler. The layout passed to New must come from a pipeline built
	// with UseTexture.
	UseTexture bool

	Width, Height uint32
}

type slotResources struct {
	world     hal.Buffer
	viewProj  hal.Buffer
	bindGroup hal.BindGroup
	lastUse   uint64
}

// ResourceSet holds the buffers, bind groups and depth target.
type ResourceSet struct {
	device hal.Device
	queue  hal.Queue
	sync   *fence.Synchronizer

	vertex   hal.Buffer
	index    hal.Buffer
	instance hal.Buffer
	// staticUse is the last counter that read the shared buffers.
	staticUse uint64

	slots   []slotResources
	depth   depthTarget
	texture cubeTexture
}

// WorldBufferSize is the size of one slot's world buffer.
const WorldBufferSize = scene.InstanceCount * UniformAlign

// New creates the buffers, uploads the static geometry and, if enabled,
// the depth target. layout is the pipeline's bind group 0 layout.
func New(device hal.Device, queue hal.Queue, sync *fence.Synchronizer, layout hal.BindGroupLayout, opts Options) (*ResourceSet, error) {
	if opts.Slots < 1 {
		return nil, fmt.Errorf("%w: %d slots", ErrBadSlot, opts.Slots)
	}
	rs := &ResourceSet{
		device: device,
		queue:  queue,
		sync:   sync,
		slots:  make([]slotResources, opts.Slots),
	}
	if err := rs.create(layout, opts); err != nil {
		rs.Destroy()
		return nil, err
	}
	return rs, nil
}

func (rs *ResourceSet) create(layout hal.BindGroupLayout, opts Options) error {
	vertices := scene.Float32Bytes(scene.CubeVertices())
	indices := scene.Uint32Bytes(scene.CubeIndices())
	offsets := instanceBytes()

	var err error
	if opts.UseTexture {
		if err = rs.texture.create(rs.device); err != nil {
			return err
		}
	}
	if rs.vertex, err = rs.createBuffer("cube_vertices", uint64(len(vertices)), gputypes.BufferUsageVertex); err != nil {
		return err
	}
	if rs.index, err = rs.createBuffer("cube_indices", uint64(len(indices)), gputypes.BufferUsageIndex); err != nil {
		return err
	}
	if rs.instance, err = rs.createBuffer("cube_instances", uint64(len(offsets)), gputypes.BufferUsageVertex); err != nil {
		return err
	}

	for i := range rs.slots {
		s := &rs.slots[i]
		if s.world, err = rs.createBuffer(fmt.Sprintf("cube_world_%d", i), WorldBufferSize, gputypes.BufferUsageUniform); err != nil {
			return err
		}
		if s.viewProj, err = rs.createBuffer(fmt.Sprintf("cube_viewproj_%d", i), UniformAlign, gputypes.BufferUsageUniform); err != nil {
			return err
		}
		s.bindGroup, err = rs.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  fmt.Sprintf("cube_bind_%d", i),
			Layout: layout,
			Entries: append([]gputypes.BindGroupEntry{
				{Binding: pipeline.BindingCamera, Resource: gputypes.BufferBinding{Buffer: s.viewProj.NativeHandle(), Offset: 0, Size: scene.MatrixSize}},
				{Binding: pipeline.BindingModel, Resource: gputypes.BufferBinding{Buffer: s.world.NativeHandle(), Offset: 0, Size: scene.MatrixSize}},
			}, rs.texture.entries()...),
		})
		if err != nil {
			return fmt.Errorf("frame: create bind group %d: %w", i, err)
		}
	}

	if err := rs.Write(0, KindVertex, 0, vertices); err != nil {
		return err
	}
	if err := rs.Write(0, KindIndex, 0, indices); err != nil {
		return err
	}
	if err := rs.Write(0, KindInstance, 0, offsets); err != nil {
		return err
	}
	if opts.UseTexture {
		if err := rs.WriteTexture(scene.Checkerboard()); err != nil {
			return err
		}
	}

	if opts.UseDepth {
		if err := rs.depth.create(rs.device, opts.Width, opts.Height); err != nil {
			return err
		}
	}
	return nil
}

func (rs *ResourceSet) createBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := rs.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("frame: create %s buffer: %w", label, err)
	}
	return buf, nil
}

func instanceBytes() []byte {
	flat := make([]float32, 0, scene.InstanceCount*3)
	for i := 0; i < scene.InstanceCount; i++ {
		o := scene.InstanceOffset(i)
		flat = append(flat, o[0], o[1], o[2])
	}
	return scene.Float32Bytes(flat)
}

func (rs *ResourceSet) buffer(slot int, kind Kind) (hal.Buffer, uint64, *uint64) {
	switch kind {
	case KindVertex:
		return rs.vertex, scene.VertexCount * scene.VertexStride, &rs.staticUse
	case KindIndex:
		return rs.index, scene.VertexCount * 4, &rs.staticUse
	case KindInstance:
		return rs.instance, scene.InstanceCount * scene.InstanceStride, &rs.staticUse
	case KindWorld:
		return rs.slots[slot].world, WorldBufferSize, &rs.slots[slot].lastUse
	case KindViewProj:
		return rs.slots[slot].viewProj, UniformAlign, &rs.slots[slot].lastUse
	}
	return nil, 0, nil
}

// Writable reports whether the slot's per-frame buffers may be written.
func (rs *ResourceSet) Writable(slot int) bool {
	return rs.sync.IsComplete(rs.slots[slot].lastUse)
}

// Write copies data into the kind buffer of slot at offset. Static kinds
// ignore slot. It fails with ErrResourceInFlight while a submitted frame
// that reads the buffer is unconfirmed.
func (rs *ResourceSet) Write(slot int, kind Kind, offset uint64, data []byte) error {
	if slot < 0 || slot >= len(rs.slots) {
		return fmt.Errorf("%w: %d", ErrBadSlot, slot)
	}
	buf, size, lastUse := rs.buffer(slot, kind)
	if buf == nil {
		return fmt.Errorf("frame: no %s buffer", kind)
	}
	if offset+uint64(len(data)) > size {
		return fmt.Errorf("%w: %s [%d, %d) of %d", ErrOutOfRange, kind, offset, offset+uint64(len(data)), size)
	}
	if !rs.sync.IsComplete(*lastUse) {
		return fmt.Errorf("%w: %s last used by frame %d, completed %d",
			ErrResourceInFlight, kind, *lastUse, rs.sync.Completed())
	}
	if err := rs.queue.WriteBuffer(buf, offset, data); err != nil {
		return fmt.Errorf("frame: write %s: %w", kind, err)
	}
	return nil
}

// WriteWorld uploads one world matrix per cube, each at a UniformAlign
// boundary.
func (rs *ResourceSet) WriteWorld(slot int, worlds []f32.Mat4) error {
	if len(worlds) > scene.InstanceCount {
		return fmt.Errorf("%w: %d world matrices", ErrOutOfRange, len(worlds))
	}
	data := make([]byte, len(worlds)*UniformAlign)
	for i, m := range worlds {
		scene.PutMatrix(data[i*UniformAlign:], m)
	}
	return rs.Write(slot, KindWorld, 0, data)
}

// WriteViewProj uploads the camera matrix.
func (rs *ResourceSet) WriteViewProj(slot int, m f32.Mat4) error {
	data := make([]byte, scene.MatrixSize)
	scene.PutMatrix(data, m)
	return rs.Write(slot, KindViewProj, 0, data)
}

// MarkInUse records that the frame signaled with counter reads slot's
// buffers, the static resources, and the depth target.
func (rs *ResourceSet) MarkInUse(slot int, counter uint64) {
	rs.slots[slot].lastUse = counter
	rs.staticUse = counter
	if rs.depth.view != nil {
		rs.depth.lastUse = counter
	}
}

// LastUse returns the counter that last read slot's buffers.
func (rs *ResourceSet) LastUse(slot int) uint64 { return rs.slots[slot].lastUse }

// Bindings returns what the recorder needs to draw from slot.
func (rs *ResourceSet) Bindings(slot int) Bindings {
	return Bindings{
		Vertex:    rs.vertex,
		Index:     rs.index,
		Instance:  rs.instance,
		BindGroup: rs.slots[slot].bindGroup,
		DepthView: rs.depth.view,
	}
}

// Bindings is the set of resources bound for one draw.
type Bindings struct {
	Vertex    hal.Buffer
	Index     hal.Buffer
	Instance  hal.Buffer
	BindGroup hal.BindGroup
	DepthView hal.TextureView
}

// Destroy releases all resources. Callers flush the fence first.
func (rs *ResourceSet) Destroy() {
	if rs.device == nil {
		return
	}
	rs.depth.destroy(rs.device)
	for i := range rs.slots {
		s := &rs.slots[i]
		if s.bindGroup != nil {
			rs.device.DestroyBindGroup(s.bindGroup)
		}
		if s.viewProj != nil {
			rs.device.DestroyBuffer(s.viewProj)
		}
		if s.world != nil {
			rs.device.DestroyBuffer(s.world)
		}
		*s = slotResources{}
	}
	for _, b := range []hal.Buffer{rs.instance, rs.index, rs.vertex} {
		if b != nil {
			rs.device.DestroyBuffer(b)
		}
	}
	rs.vertex, rs.index, rs.instance = nil, nil, nil
	rs.texture.destroy(rs.device)
	rs.device = nil
}
