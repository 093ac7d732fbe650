package frame

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hellocube/internal/pipeline"
)

// depthTarget is the depth attachment, sized to the back buffers.
type depthTarget struct {
	tex     hal.Texture
	view    hal.TextureView
	width   uint32
	height  uint32
	lastUse uint64
}

func (d *depthTarget) create(device hal.Device, width, height uint32) error {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "cube_depth",
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        pipeline.DepthFormat,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("frame: create depth texture: %w", err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "cube_depth_view",
		Format:        pipeline.DepthFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectDepthOnly,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return fmt.Errorf("frame: create depth view: %w", err)
	}
	d.tex, d.view = tex, view
	d.width, d.height = width, height
	return nil
}

func (d *depthTarget) destroy(device hal.Device) {
	if d.view != nil {
		device.DestroyTextureView(d.view)
		d.view = nil
	}
	if d.tex != nil {
		device.DestroyTexture(d.tex)
		d.tex = nil
	}
}

// DepthSize returns the depth target size, or zero without one.
func (rs *ResourceSet) DepthSize() (width, height uint32) {
	return rs.depth.width, rs.depth.height
}

// ResizeDepth recreates the depth target at the new size. It is a no-op
// without a depth target or when the size is unchanged, and fails with
// ErrResourceInFlight while the old target may still be in use.
func (rs *ResourceSet) ResizeDepth(width, height uint32) error {
	if rs.depth.view == nil {
		return nil
	}
	if rs.depth.width == width && rs.depth.height == height {
		return nil
	}
	if !rs.sync.IsComplete(rs.depth.lastUse) {
		return fmt.Errorf("%w: depth last used by frame %d", ErrResourceInFlight, rs.depth.lastUse)
	}
	rs.depth.destroy(rs.device)
	return rs.depth.create(rs.device, width, height)
}
