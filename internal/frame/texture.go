package frame

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hellocube/internal/pipeline"
	"github.com/gogpu/hellocube/internal/scene"
)

// cubeTexture is the sampled texture, its view and sampler. It is static:
// every frame reads it, and it is written only through WriteTexture.
type cubeTexture struct {
	tex     hal.Texture
	view    hal.TextureView
	sampler hal.Sampler
}

func (c *cubeTexture) create(device hal.Device) error {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "cube_texture",
		Size:          hal.Extent3D{Width: scene.TextureSize, Height: scene.TextureSize, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        pipeline.TextureFormat,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("frame: create texture: %w", err)
	}
	c.tex = tex

	c.view, err = device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "cube_texture_view",
		Format:        pipeline.TextureFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		return fmt.Errorf("frame: create texture view: %w", err)
	}

	c.sampler, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "cube_sampler",
		AddressModeU: gputypes.AddressModeRepeat,
		AddressModeV: gputypes.AddressModeRepeat,
		AddressModeW: gputypes.AddressModeRepeat,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return fmt.Errorf("frame: create sampler: %w", err)
	}
	return nil
}

func (c *cubeTexture) destroy(device hal.Device) {
	if c.sampler != nil {
		device.DestroySampler(c.sampler)
	}
	if c.view != nil {
		device.DestroyTextureView(c.view)
	}
	if c.tex != nil {
		device.DestroyTexture(c.tex)
	}
	*c = cubeTexture{}
}

func (c *cubeTexture) entries() []gputypes.BindGroupEntry {
	if c.view == nil {
		return nil
	}
	return []gputypes.BindGroupEntry{
		{Binding: pipeline.BindingTexture, Resource: gputypes.TextureViewBinding{TextureView: c.view.NativeHandle()}},
		{Binding: pipeline.BindingSampler, Resource: gputypes.SamplerBinding{Sampler: c.sampler.NativeHandle()}},
	}
}

// HasTexture reports whether the set carries the sampled texture.
func (rs *ResourceSet) HasTexture() bool { return rs.texture.tex != nil }

// WriteTexture uploads img, which must be TextureSize square, into the cube
// texture. Like the other static resources it is refused with
// ErrResourceInFlight while a submitted frame that samples it is
// unconfirmed.
func (rs *ResourceSet) WriteTexture(img *image.RGBA) error {
	if rs.texture.tex == nil {
		return fmt.Errorf("frame: no %s resource", KindTexture)
	}
	if img.Bounds() != image.Rect(0, 0, scene.TextureSize, scene.TextureSize) {
		return fmt.Errorf("%w: %s %v, want %dx%d", ErrOutOfRange, KindTexture, img.Bounds(), scene.TextureSize, scene.TextureSize)
	}
	if !rs.sync.IsComplete(rs.staticUse) {
		return fmt.Errorf("%w: %s last used by frame %d, completed %d",
			ErrResourceInFlight, KindTexture, rs.staticUse, rs.sync.Completed())
	}
	err := rs.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  rs.texture.tex,
			MipLevel: 0,
			Aspect:   gputypes.TextureAspectAll,
		},
		img.Pix,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(img.Stride), //nolint:gosec // TextureSize*4
			RowsPerImage: scene.TextureSize,
		},
		&hal.Extent3D{Width: scene.TextureSize, Height: scene.TextureSize, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("frame: write %s: %w", KindTexture, err)
	}
	return nil
}
