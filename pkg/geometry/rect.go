// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package geometry

// Rect is an axis-aligned box in image pixel coordinates, origin top-left.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (r Rect) Area() int {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

func (r Rect) Right() int  { return r.X + r.W }
func (r Rect) Bottom() int { return r.Y + r.H }

// Intersect returns the overlapping region of two rects; a rect with zero
// area when they are disjoint.
func (r Rect) Intersect(o Rect) Rect {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.Right(), o.Right())
	y2 := min(r.Bottom(), o.Bottom())
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// IoU is intersection area over union area. Degenerate boxes yield 0.
func IoU(a, b Rect) float64 {
	inter := a.Intersect(b).Area()
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// PadClamped grows the rect by frac of its width and height on every side,
// clamped to the image bounds. Used to give the embedder context around a
// detector box.
func (r Rect) PadClamped(frac float64, imgW, imgH int) Rect {
	padX := int(float64(r.W) * frac)
	padY := int(float64(r.H) * frac)
	x1 := max(0, r.X-padX)
	y1 := max(0, r.Y-padY)
	x2 := min(imgW, r.Right()+padX)
	y2 := min(imgH, r.Bottom()+padY)
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}
