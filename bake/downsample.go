package bake

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
)

// Downsample produces successively halved copies of a captured image
// down to 1x1, Catmull-Rom filtered. Baked environment maps and LUTs use
// the chain as CPU-side mip level sources before upload.
//
// The returned slice starts at the source image (level 0). Non-square
// and non-power-of-two inputs are legal; each level halves both axes
// with a floor of one pixel.
func Downsample(src *image.RGBA) []*image.RGBA {
	levels := []*image.RGBA{src}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	for w > 1 || h > 1 {
		w = max(w/2, 1)
		h = max(h/2, 1)
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), levels[len(levels)-1], levels[len(levels)-1].Bounds(), draw.Src, nil)
		levels = append(levels, dst)
	}
	return levels
}

// CaptureChain captures the named image and returns its full downsample
// chain. Convenience for bakes that feed mipmapped uploads.
func CaptureChain(device hal.Device, queue hal.Queue, c *framegraph.CompiledGraph, name string) ([]*image.RGBA, error) {
	img, err := Capture(device, queue, c, name)
	if err != nil {
		return nil, fmt.Errorf("capture chain %q: %w", name, err)
	}
	return Downsample(img), nil
}
