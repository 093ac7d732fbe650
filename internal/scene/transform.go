package scene

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"golang.org/x/image/math/f32"
)

// Matrices are stored row-major for row vectors (v' = v * M), with the
// translation in the last row. Uploaded as-is, WGSL reads them column-major,
// which is the transpose, so shaders multiply matrix * vector.

// MatrixSize is the byte size of one mat4x4<f32>.
const MatrixSize = 16 * 4

// Identity returns the identity matrix.
func Identity() f32.Mat4 {
	return f32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns a * b.
func Mul(a, b f32.Mat4) f32.Mat4 {
	var m f32.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[r*4+k] * b[k*4+c]
			}
			m[r*4+c] = sum
		}
	}
	return m
}

// Scaling returns a uniform scale.
func Scaling(s float32) f32.Mat4 {
	return f32.Mat4{
		s, 0, 0, 0,
		0, s, 0, 0,
		0, 0, s, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a translation by v.
func Translation(v f32.Vec3) f32.Mat4 {
	return f32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		v[0], v[1], v[2], 1,
	}
}

// RotationX returns a rotation of angle radians around the X axis.
func RotationX(angle float32) f32.Mat4 {
	s, c := math32.Sin(angle), math32.Cos(angle)
	return f32.Mat4{
		1, 0, 0, 0,
		0, c, s, 0,
		0, -s, c, 0,
		0, 0, 0, 1,
	}
}

// RotationY returns a rotation of angle radians around the Y axis.
func RotationY(angle float32) f32.Mat4 {
	s, c := math32.Sin(angle), math32.Cos(angle)
	return f32.Mat4{
		c, 0, -s, 0,
		0, 1, 0, 0,
		s, 0, c, 0,
		0, 0, 0, 1,
	}
}

// LookAtLH returns a left-handed view matrix.
func LookAtLH(eye, target, up f32.Vec3) f32.Mat4 {
	z := normalize(sub(target, eye))
	x := normalize(cross(up, z))
	y := cross(z, x)
	return f32.Mat4{
		x[0], y[0], z[0], 0,
		x[1], y[1], z[1], 0,
		x[2], y[2], z[2], 0,
		-dot(x, eye), -dot(y, eye), -dot(z, eye), 1,
	}
}

// PerspectiveFovLH returns a left-handed perspective projection mapping
// view depth [near, far] to clip depth [0, 1].
func PerspectiveFovLH(fovY, aspect, near, far float32) f32.Mat4 {
	yScale := 1 / math32.Tan(fovY/2)
	xScale := yScale / aspect
	q := far / (far - near)
	return f32.Mat4{
		xScale, 0, 0, 0,
		0, yScale, 0, 0,
		0, 0, q, 1,
		0, 0, -near * q, 0,
	}
}

// TransformPoint applies m to p (w = 1) and returns the homogeneous result.
func TransformPoint(m f32.Mat4, p f32.Vec3) f32.Vec4 {
	var out f32.Vec4
	in := [4]float32{p[0], p[1], p[2], 1}
	for c := 0; c < 4; c++ {
		for k := 0; k < 4; k++ {
			out[c] += in[k] * m[k*4+c]
		}
	}
	return out
}

// PutMatrix writes m into buf as little-endian float32 values.
// buf must hold at least MatrixSize bytes.
func PutMatrix(buf []byte, m f32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}

// Float32Bytes encodes values as little-endian bytes.
func Float32Bytes(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// Uint32Bytes encodes values as little-endian bytes.
func Uint32Bytes(values []uint32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func sub(a, b f32.Vec3) f32.Vec3 { return f32.Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func dot(a, b f32.Vec3) float32 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func cross(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(v f32.Vec3) f32.Vec3 {
	l := math32.Sqrt(dot(v, v))
	if l == 0 {
		return v
	}
	return f32.Vec3{v[0] / l, v[1] / l, v[2] / l}
}
