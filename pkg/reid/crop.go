// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package reid

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"

	antlererrors "github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/geometry"
)

const cropJpegQuality = 90

// CropDetection cuts the padded bounding box out of the source image and
// re-encodes it for the embedder. The pad fraction applies to the box's
// own dimensions and the window is clamped to image bounds.
func CropDetection(imageBytes []byte, box geometry.Rect, padFrac float64) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, errors.Wrapf(antlererrors.ErrCorruptInput, "decode image: %v", err)
	}

	bounds := src.Bounds()
	padded := box.PadClamped(padFrac, bounds.Dx(), bounds.Dy())
	if padded.W <= 0 || padded.H <= 0 {
		return nil, errors.Wrapf(antlererrors.ErrCorruptInput,
			"box %dx%d at (%d,%d) lies outside a %dx%d image",
			box.W, box.H, box.X, box.Y, bounds.Dx(), bounds.Dy())
	}

	out := image.NewRGBA(image.Rect(0, 0, padded.W, padded.H))
	draw.Draw(out, out.Bounds(), src, image.Pt(bounds.Min.X+padded.X, bounds.Min.Y+padded.Y), draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: cropJpegQuality}); err != nil {
		return nil, errors.Wrap(err, "encode crop")
	}
	return buf.Bytes(), nil
}
