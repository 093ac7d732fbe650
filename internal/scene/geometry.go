// Package scene holds the static cube geometry and the per-frame transforms
// and clear color of the rotating-cube sample.
package scene

// Vertex layout: position (vec3<f32>), color (vec3<f32>), uv (vec2<f32>).
const (
	// FloatsPerVertex is the number of float32 values per vertex.
	FloatsPerVertex = 8

	// VertexStride is the byte stride of one vertex.
	VertexStride = FloatsPerVertex * 4

	// VertexCount is the number of strip vertices in the cube.
	VertexCount = 34

	// InstanceCount is the number of cubes drawn per frame.
	InstanceCount = 7

	// InstanceStride is the byte stride of one instance offset (vec3<f32>).
	InstanceStride = 3 * 4

	// CubeScale is the uniform scale applied to every cube.
	CubeScale = 0.3

	// InstanceSpread divides the raw instance offsets.
	InstanceSpread = 3
)

// cubeVertices is one long triangle strip; repeated vertices join faces
// with degenerate triangles.
var cubeVertices = [VertexCount * FloatsPerVertex]float32{
	-1, -1, -1, 1, 1, 1, 0, 0, // front
	-1, 1, -1, 1, 1, 1, 0, 1,
	1, -1, -1, 1, 1, 1, 1, 0,
	1, 1, -1, 1, 1, 1, 1, 1,
	1, 1, -1, 1, 1, 1, 1, 1,
	-1, -1, 1, 1, 1, 1, 0, 0, // back
	-1, -1, 1, 1, 1, 1, 0, 0,
	1, -1, 1, 1, 1, 1, 1, 0,
	-1, 1, 1, 1, 1, 1, 0, 1,
	1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1,
	-1, 1, -1, 1, 1, 1, 0, 0, // top
	-1, 1, -1, 1, 1, 1, 0, 0,
	-1, 1, 1, 1, 1, 1, 0, 1,
	1, 1, -1, 1, 1, 1, 1, 0,
	1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1,
	-1, -1, -1, 1, 1, 1, 0, 0, // bottom
	-1, -1, -1, 1, 1, 1, 0, 0,
	1, -1, -1, 1, 1, 1, 1, 0,
	-1, -1, 1, 1, 1, 1, 0, 1,
	1, -1, 1, 1, 1, 1, 1, 1,
	1, -1, 1, 1, 1, 1, 1, 1,
	-1, -1, -1, 1, 1, 1, 0, 0, // left
	-1, -1, -1, 1, 1, 1, 0, 0,
	-1, -1, 1, 1, 1, 1, 0, 1,
	-1, 1, -1, 1, 1, 1, 1, 0,
	-1, 1, 1, 1, 1, 1, 1, 1,
	-1, 1, 1, 1, 1, 1, 1, 1,
	1, -1, -1, 1, 1, 1, 0, 0, // right
	1, -1, -1, 1, 1, 1, 0, 0,
	1, 1, -1, 1, 1, 1, 1, 0,
	1, -1, 1, 1, 1, 1, 0, 1,
	1, 1, 1, 1, 1, 1, 1, 1,
}

// instanceOffsets places the seven cubes: one at the origin and one on each
// side of every axis.
var instanceOffsets = [InstanceCount][3]float32{
	{0, 0, 0},
	{4, 0, 0},
	{-4, 0, 0},
	{0, 4, 0},
	{0, -4, 0},
	{0, 0, 4},
	{0, 0, -4},
}

// CubeVertices returns a copy of the cube's strip vertices.
func CubeVertices() []float32 {
	out := make([]float32, len(cubeVertices))
	copy(out, cubeVertices[:])
	return out
}

// CubeIndices returns the index list for the strip (the identity sequence).
func CubeIndices() []uint32 {
	out := make([]uint32, VertexCount)
	for i := range out {
		out[i] = uint32(i) //nolint:gosec // VertexCount fits uint32
	}
	return out
}

// InstanceOffsets returns the raw per-instance offsets, flattened to
// InstanceCount vec3 values.
func InstanceOffsets() []float32 {
	out := make([]float32, 0, InstanceCount*3)
	for _, o := range instanceOffsets {
		out = append(out, o[0], o[1], o[2])
	}
	return out
}

// InstanceOffset returns the offset of cube i, already divided by
// InstanceSpread.
func InstanceOffset(i int) [3]float32 {
	o := instanceOffsets[i]
	return [3]float32{o[0] / InstanceSpread, o[1] / InstanceSpread, o[2] / InstanceSpread}
}
