// Package device owns the logical GPU device and its submission queue.
//
// An Owner either opens its own device through a registered HAL backend or
// wraps one supplied by a host through [gpucontext.DeviceProvider]. In both
// cases it exposes the device to the rest of the frame loop as hal types and
// implements DeviceProvider itself, so it can be handed to other gogpu
// libraries unchanged.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hellocube/internal/logging"
)

var (
	// ErrUnknownBackend is returned for a backend name that is not recognized.
	ErrUnknownBackend = errors.New("device: unknown backend")

	// ErrNoAdapter is returned when the selected backend exposes no adapters.
	ErrNoAdapter = errors.New("device: no GPU adapters found")

	// ErrNotHAL is returned when an external provider does not expose hal types.
	ErrNotHAL = errors.New("device: provider does not expose HAL types")
)

// autoOrder is the backend preference when no backend is named.
var autoOrder = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
	gputypes.BackendEmpty,
}

// ParseBackend maps a configuration name to a backend. "auto" and the empty
// string report auto=true.
func ParseBackend(name string) (backend gputypes.Backend, auto bool, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return gputypes.BackendEmpty, true, nil
	case "vulkan", "vk":
		return gputypes.BackendVulkan, false, nil
	case "metal", "mtl":
		return gputypes.BackendMetal, false, nil
	case "dx12", "d3d12":
		return gputypes.BackendDX12, false, nil
	case "gl", "gles", "opengl":
		return gputypes.BackendGL, false, nil
	case "noop", "empty", "software":
		return gputypes.BackendEmpty, false, nil
	default:
		return gputypes.BackendEmpty, false, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Options selects the backend and adapter.
type Options struct {
	// Backend is a name accepted by ParseBackend.
	Backend string

	// PreferSoftware picks a CPU adapter over a hardware one when both exist.
	PreferSoftware bool

	// SurfaceFormat is reported through DeviceProvider. Zero means BGRA8Unorm.
	SurfaceFormat gputypes.TextureFormat
}

// Owner holds the device and queue. It is the last component torn down.
type Owner struct {
	instance hal.Instance
	adapter  hal.Adapter
	info     gputypes.AdapterInfo
	device   hal.Device
	queue    hal.Queue
	format   gputypes.TextureFormat

	// external is set when the device belongs to a host provider and must
	// not be destroyed here.
	external bool
}

// Open creates an instance on the selected backend, picks an adapter and
// opens a device on it.
func Open(opts Options) (*Owner, error) {
	variant, auto, err := ParseBackend(opts.Backend)
	if err != nil {
		return nil, err
	}

	var backend hal.Backend
	if auto {
		for _, v := range autoOrder {
			if b, ok := hal.GetBackend(v); ok {
				backend = b
				break
			}
		}
		if backend == nil {
			return nil, fmt.Errorf("device: auto: %w", hal.ErrBackendNotFound)
		}
	} else {
		b, ok := hal.GetBackend(variant)
		if !ok {
			return nil, fmt.Errorf("device: %s: %w", variant, hal.ErrBackendNotFound)
		}
		backend = b
	}

	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("device: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := selectAdapter(adapters, opts.PreferSoftware)

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("device: open device: %w", err)
	}

	o := &Owner{
		instance: instance,
		adapter:  selected.Adapter,
		info:     selected.Info,
		device:   openDev.Device,
		queue:    openDev.Queue,
		format:   surfaceFormat(opts.SurfaceFormat),
	}
	logging.Logger().Info("device: opened",
		"backend", backend.Variant().String(),
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType.String())
	return o, nil
}

// FromProvider wraps a host-owned device. The provider must also expose
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
// Destroy leaves a wrapped device open.
func FromProvider(provider gpucontext.DeviceProvider) (*Owner, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHAL
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNotHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNotHAL)
	}

	info := provider.AdapterInfo()
	o := &Owner{
		info: gputypes.AdapterInfo{
			Name:       info.Name,
			DeviceType: deviceType(info.Type),
		},
		device:   dev,
		queue:    queue,
		format:   surfaceFormat(provider.SurfaceFormat()),
		external: true,
	}
	if a, ok := provider.Adapter().(hal.Adapter); ok {
		o.adapter = a
	}
	logging.Logger().Info("device: using shared device", "adapter", info.Name)
	return o, nil
}

// selectAdapter prefers a discrete or integrated GPU, or a CPU adapter when
// preferSoftware is set, and falls back to the first adapter.
func selectAdapter(adapters []hal.ExposedAdapter, preferSoftware bool) *hal.ExposedAdapter {
	if preferSoftware {
		for i := range adapters {
			if adapters[i].Info.DeviceType == gputypes.DeviceTypeCPU {
				return &adapters[i]
			}
		}
	}
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
	}
	return &adapters[0]
}

func surfaceFormat(f gputypes.TextureFormat) gputypes.TextureFormat {
	if f == gputypes.TextureFormatUndefined {
		return gputypes.TextureFormatBGRA8Unorm
	}
	return f
}

func deviceType(t gpucontext.AdapterType) gputypes.DeviceType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		return gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// HAL accessors used by the rest of the frame loop.

// HalDevice returns the device as hal.Device.
func (o *Owner) HalDevice() hal.Device { return o.device }

// HalQueue returns the queue as hal.Queue.
func (o *Owner) HalQueue() hal.Queue { return o.queue }

// Info returns the selected adapter's metadata.
func (o *Owner) Info() gputypes.AdapterInfo { return o.info }

// External reports whether the device belongs to a host provider.
func (o *Owner) External() bool { return o.external }

// CreateSurface creates a presentation surface from platform handles.
func (o *Owner) CreateSurface(display, window uintptr) (hal.Surface, error) {
	if o.instance == nil {
		return nil, errors.New("device: shared device has no instance")
	}
	s, err := o.instance.CreateSurface(display, window)
	if err != nil {
		return nil, fmt.Errorf("device: create surface: %w", err)
	}
	return s, nil
}

// gpucontext.DeviceProvider

// Device returns the device.
func (o *Owner) Device() gpucontext.Device { return o.device }

// Queue returns the queue.
func (o *Owner) Queue() gpucontext.Queue { return o.queue }

// Adapter returns the adapter, which may be nil for a wrapped device.
func (o *Owner) Adapter() gpucontext.Adapter { return o.adapter }

// SurfaceFormat returns the swap-chain format.
func (o *Owner) SurfaceFormat() gputypes.TextureFormat { return o.format }

// AdapterInfo returns the adapter name and type.
func (o *Owner) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: o.info.Name, Type: adapterType(o.info.DeviceType)}
}

var _ gpucontext.DeviceProvider = (*Owner)(nil)

// Destroy waits for the device to go idle and releases the device and
// instance. A wrapped device is left open. Destroy is idempotent.
func (o *Owner) Destroy() {
	if o.device == nil {
		return
	}
	if !o.external {
		if err := o.device.WaitIdle(); err != nil {
			logging.Logger().Warn("device: wait idle before destroy", "error", err)
		}
		o.device.Destroy()
		if o.instance != nil {
			o.instance.Destroy()
		}
	}
	o.device = nil
	o.queue = nil
	o.instance = nil
	o.adapter = nil
}
