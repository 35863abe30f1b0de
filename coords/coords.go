// Package coords carries the affine geometry used to place recognized text
// onto PDF pages: normalized recognition boxes to pixel boxes, pixel boxes to
// point boxes, and the content-space correction for rotated pages.
package coords

import (
	"errors"
	"math"
)

// Matrix is a PDF-style affine transform (a b c d e f):
// x' = a*x + c*y + e, y' = b*x + d*y + f.
type Matrix [6]float64

// Point is a location in PDF points, origin bottom-left.
type Point struct{ X, Y float64 }

// Rect is an axis-aligned box, origin bottom-left.
type Rect struct{ X, Y, W, H float64 }

func Identity() Matrix                { return Matrix{1, 0, 0, 1, 0, 0} }
func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }

// RotateDeg rotates counterclockwise about the origin.
func RotateDeg(deg float64) Matrix {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	return Matrix{c, s, -s, c, 0, 0}
}

// Multiply composes transforms: the receiver applies first, o second.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

// Apply transforms a point.
func (m Matrix) Apply(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

// Inverse returns the inverse transform, or an error for a singular matrix.
func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func (m Matrix) IsIdentity() bool { return m == Identity() }

// Corners returns the rect's corners counterclockwise from bottom-left.
func (r Rect) Corners() [4]Point {
	return [4]Point{
		{r.X, r.Y},
		{r.X + r.W, r.Y},
		{r.X + r.W, r.Y + r.H},
		{r.X, r.Y + r.H},
	}
}

// FromNormalized maps a normalized box (fractions of the image dimensions,
// origin bottom-left) onto pixel coordinates.
func FromNormalized(x, y, w, h float64, widthPx, heightPx int) Rect {
	return Rect{
		X: x * float64(widthPx),
		Y: y * float64(heightPx),
		W: w * float64(widthPx),
		H: h * float64(heightPx),
	}
}

// ToPoints rescales a pixel rect into PDF points at the given render DPI.
// A non-positive dpi means the pixels already are points (passthrough images).
func (r Rect) ToPoints(dpi int) Rect {
	if dpi <= 0 {
		return r
	}
	s := 72.0 / float64(dpi)
	return Rect{X: r.X * s, Y: r.Y * s, W: r.W * s, H: r.H * s}
}

// NormalizeRotation folds an arbitrary /Rotate value onto {0, 90, 180, 270}.
func NormalizeRotation(rotation int) int {
	r := rotation % 360
	if r < 0 {
		r += 360
	}
	return r
}

// OverlayCorrection maps overlay content authored against the rendered
// (rotation-applied) page image back onto the page's rotation-invariant
// content stream. widthPt and heightPt are the unrotated media box size.
func OverlayCorrection(rotation int, widthPt, heightPt float64) Matrix {
	switch NormalizeRotation(rotation) {
	case 90:
		// rotate -90 about the origin, then shift up by the page height
		return Matrix{0, -1, 1, 0, 0, heightPt}
	case 180:
		return Matrix{-1, 0, 0, -1, widthPt, heightPt}
	case 270:
		return Matrix{0, 1, -1, 0, widthPt, 0}
	default:
		return Identity()
	}
}
