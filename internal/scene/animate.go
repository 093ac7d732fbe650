package scene

import (
	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"
)

// Camera describes a left-handed perspective camera.
type Camera struct {
	Eye    f32.Vec3
	Target f32.Vec3
	Up     f32.Vec3
	FovY   float32
	Near   float32
	Far    float32
}

// DefaultCamera looks at the origin from (5, 5, -5) with a 45 degree
// vertical field of view.
func DefaultCamera() Camera {
	return Camera{
		Eye:    f32.Vec3{5, 5, -5},
		Target: f32.Vec3{0, 0, 0},
		Up:     f32.Vec3{0, 1, 0},
		FovY:   math32.Pi / 4,
		Near:   0.1,
		Far:    100,
	}
}

// ViewProjection returns view * projection for a viewport of the given size.
// A zero height is treated as 1 to keep the aspect finite.
func (c Camera) ViewProjection(width, height uint32) f32.Mat4 {
	if height == 0 {
		height = 1
	}
	aspect := float32(width) / float32(height)
	view := LookAtLH(c.Eye, c.Target, c.Up)
	proj := PerspectiveFovLH(c.FovY, aspect, c.Near, c.Far)
	return Mul(view, proj)
}

// Spin returns the shared rotation of every cube at time t (seconds):
// scale, then t radians around Y, then t/2 around X.
func Spin(t float32) f32.Mat4 {
	return Mul(Mul(Scaling(CubeScale), RotationY(t)), RotationX(t/2))
}

// World returns the world matrix of cube i at time t.
func World(t float32, i int) f32.Mat4 {
	o := InstanceOffset(i)
	return Mul(Spin(t), Translation(f32.Vec3{o[0], o[1], o[2]}))
}

// ClearColor returns the animated background color at time t (seconds).
func ClearColor(t float64) gputypes.Color {
	tt := float32(t)
	return gputypes.Color{
		R: float64(math32.Sin(tt)*0.25 + 0.5),
		G: float64(math32.Sin(tt*0.5)*0.4 + 0.6),
		B: 0.4,
		A: 1,
	}
}
