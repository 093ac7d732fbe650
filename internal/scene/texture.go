package scene

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// TextureSize is the edge length of the cube texture in texels.
const TextureSize = 256

// checkerCells is the number of cells per texture edge.
const checkerCells = 8

var checkerColors = [2]color.RGBA{
	{R: 0xf2, G: 0xf2, B: 0xf2, A: 0xff},
	{R: 0xd9, G: 0x6b, B: 0x2b, A: 0xff},
}

// Checkerboard returns the TextureSize square RGBA texture mapped onto every
// cube face: an 8x8 checkerboard scaled up with sharp cell edges.
func Checkerboard() *image.RGBA {
	cells := image.NewRGBA(image.Rect(0, 0, checkerCells, checkerCells))
	for y := 0; y < checkerCells; y++ {
		for x := 0; x < checkerCells; x++ {
			cells.SetRGBA(x, y, checkerColors[(x+y)%2])
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, TextureSize, TextureSize))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), cells, cells.Bounds(), xdraw.Src, nil)
	return dst
}
