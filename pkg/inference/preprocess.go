// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package inference

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/pkg/errors"

	antlererrors "github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/geometry"
)

// decodeImage decodes an encoded image; failures classify as corrupt input.
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(antlererrors.ErrCorruptInput, "decode image: %v", err)
	}
	return img, nil
}

// letterbox records how an image was fitted into the square model input so
// detections can be mapped back to source pixels.
type letterbox struct {
	scale float64
	padX  int
	padY  int
}

// toSource maps a center-format box from model input space back to source
// pixel space, clamped to the source bounds. Degenerate boxes come back
// with zero area.
func (l letterbox) toSource(cx, cy, w, h float64, srcW, srcH int) geometry.Rect {
	x1 := (cx - w/2 - float64(l.padX)) / l.scale
	y1 := (cy - h/2 - float64(l.padY)) / l.scale
	x2 := (cx + w/2 - float64(l.padX)) / l.scale
	y2 := (cy + h/2 - float64(l.padY)) / l.scale

	xi1 := clampInt(int(math.Round(x1)), 0, srcW)
	yi1 := clampInt(int(math.Round(y1)), 0, srcH)
	xi2 := clampInt(int(math.Round(x2)), 0, srcW)
	yi2 := clampInt(int(math.Round(y2)), 0, srcH)
	if xi2 <= xi1 || yi2 <= yi1 {
		return geometry.Rect{}
	}
	return geometry.Rect{X: xi1, Y: yi1, W: xi2 - xi1, H: yi2 - yi1}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// letterboxCHW scales the image into a size×size square preserving aspect
// ratio, pads the remainder with neutral gray and returns CHW float32 in
// [0,1] plus the mapping back to source pixels. YOLO-family input
// convention.
func letterboxCHW(img image.Image, size int) ([]float32, letterbox) {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	scale := math.Min(float64(size)/float64(srcW), float64(size)/float64(srcH))
	dstW := int(math.Round(float64(srcW) * scale))
	dstH := int(math.Round(float64(srcH) * scale))
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	padX := (size - dstW) / 2
	padY := (size - dstH) / 2

	const gray = float32(114.0 / 255.0)
	data := make([]float32, 3*size*size)
	for i := range data {
		data[i] = gray
	}
	plane := size * size

	for y := 0; y < dstH; y++ {
		srcY := bounds.Min.Y + y*srcH/dstH
		for x := 0; x < dstW; x++ {
			srcX := bounds.Min.X + x*srcW/dstW
			r, g, b := pixelRGB(img, srcX, srcY)
			idx := (y+padY)*size + (x + padX)
			data[idx] = float32(r) / 255
			data[plane+idx] = float32(g) / 255
			data[2*plane+idx] = float32(b) / 255
		}
	}

	return data, letterbox{scale: scale, padX: padX, padY: padY}
}

// resizeCHW resizes the image to w×h without preserving aspect ratio and
// returns CHW float32 normalised as (pixel - mean) / std. Embedder input
// convention.
func resizeCHW(img image.Image, w, h int, mean, std float32) []float32 {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	data := make([]float32, 3*w*h)
	plane := w * h

	for y := 0; y < h; y++ {
		srcY := bounds.Min.Y + y*srcH/h
		for x := 0; x < w; x++ {
			srcX := bounds.Min.X + x*srcW/w
			r, g, b := pixelRGB(img, srcX, srcY)
			idx := y*w + x
			data[idx] = (float32(r) - mean) / std
			data[plane+idx] = (float32(g) - mean) / std
			data[2*plane+idx] = (float32(b) - mean) / std
		}
	}

	return data
}

// pixelRGB reads one pixel as 8-bit RGB with fast paths for the decoders'
// native formats; the generic path handles everything else.
func pixelRGB(img image.Image, x, y int) (uint8, uint8, uint8) {
	switch src := img.(type) {
	case *image.RGBA:
		off := src.PixOffset(x, y)
		return src.Pix[off], src.Pix[off+1], src.Pix[off+2]
	case *image.NRGBA:
		off := src.PixOffset(x, y)
		return src.Pix[off], src.Pix[off+1], src.Pix[off+2]
	case *image.YCbCr:
		yi := src.YOffset(x, y)
		ci := src.COffset(x, y)
		return color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
	default:
		r, g, b, _ := img.At(x, y).RGBA()
		return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
	}
}
