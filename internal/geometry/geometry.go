// Package geometry computes the crop and layout rectangles used when a camera
// frame is composited into a booth frame. Every function is pure: identical
// inputs always yield bit-identical rectangles.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	// ErrInvalidDimensions is returned when a source size or target aspect
	// ratio is not strictly positive.
	ErrInvalidDimensions = errors.New("geometry: dimensions must be positive")

	// ErrDegenerateLayout is returned when the border thickness leaves no
	// room for the photo rectangle.
	ErrDegenerateLayout = errors.New("geometry: border leaves an empty photo area")
)

// Crop is a sub-rectangle of a source raster in source pixel coordinates.
// Coordinates are fractional; callers round when they need integer pixels.
type Crop struct {
	X, Y float64
	W, H float64
}

// Aspect returns W/H.
func (c Crop) Aspect() float64 {
	return c.W / c.H
}

// Rect converts the crop to integer pixels clamped to a sourceW x sourceH
// raster. The minimum edge is floored and the maximum edge ceiled so a thin
// crop keeps every source pixel it touches; the result is at least 1x1 for
// any non-empty raster.
func (c Crop) Rect(sourceW, sourceH int) image.Rectangle {
	const eps = 1e-9
	minX, maxX := pixelSpan(c.X, c.X+c.W, sourceW, eps)
	minY, maxY := pixelSpan(c.Y, c.Y+c.H, sourceH, eps)
	return image.Rect(minX, minY, maxX, maxY).Intersect(image.Rect(0, 0, sourceW, sourceH))
}

// pixelSpan returns [floor(lo), ceil(hi)) clamped to [0, size) and widened
// to at least one pixel. eps absorbs float noise on whole-pixel edges.
func pixelSpan(lo, hi float64, size int, eps float64) (int, int) {
	a := int(math.Floor(lo + eps))
	b := int(math.Ceil(hi - eps))
	if size <= 0 {
		return 0, 0
	}
	a = min(max(a, 0), size-1)
	b = min(max(b, a+1), size)
	return a, b
}

// CoverCrop returns the largest rectangle with aspect ratio destAspect that
// fits inside a sourceW x sourceH raster, centered on the cropped axis.
// This is "cover" fitting: the subject is cropped, never letterboxed.
func CoverCrop(sourceW, sourceH, destAspect float64) (Crop, error) {
	if !(sourceW > 0) || !(sourceH > 0) || !(destAspect > 0) ||
		math.IsInf(destAspect, 0) || math.IsInf(sourceW, 0) || math.IsInf(sourceH, 0) {
		return Crop{}, fmt.Errorf("%w: source %vx%v, aspect %v", ErrInvalidDimensions, sourceW, sourceH, destAspect)
	}

	sourceAspect := sourceW / sourceH
	if sourceAspect > destAspect {
		cropW := sourceH * destAspect
		return Crop{X: (sourceW - cropW) / 2, Y: 0, W: cropW, H: sourceH}, nil
	}

	cropH := sourceW / destAspect
	return Crop{X: 0, Y: (sourceH - cropH) / 2, W: sourceW, H: cropH}, nil
}

// Layout is the destination geometry of one composited frame.
type Layout struct {
	// GutterW is the width of the branding strip on the left edge.
	GutterW int
	// Photo is where the camera image is drawn.
	Photo image.Rectangle
}

// PhotoAspect returns the aspect ratio of the photo rectangle.
func (l Layout) PhotoAspect() float64 {
	return float64(l.Photo.Dx()) / float64(l.Photo.Dy())
}

// Gutter returns the gutter rectangle for an output of height outputH.
func (l Layout) Gutter(outputH int) image.Rectangle {
	return image.Rect(0, 0, l.GutterW, outputH)
}

// GutterLayout splits an outputW x outputH surface into a left gutter of
// outputW*gutterFraction pixels and a photo rectangle inset from the
// remaining area by borderThickness on all four sides.
//
// A border that would collapse the photo rectangle is reported as
// ErrDegenerateLayout rather than clamped.
func GutterLayout(outputW, outputH int, gutterFraction float64, borderThickness int) (Layout, error) {
	if outputW <= 0 || outputH <= 0 {
		return Layout{}, fmt.Errorf("%w: output %dx%d", ErrInvalidDimensions, outputW, outputH)
	}
	if gutterFraction < 0 || gutterFraction >= 1 || math.IsNaN(gutterFraction) {
		return Layout{}, fmt.Errorf("%w: gutter fraction %v outside [0,1)", ErrInvalidDimensions, gutterFraction)
	}
	if borderThickness < 0 {
		return Layout{}, fmt.Errorf("%w: border thickness %d", ErrInvalidDimensions, borderThickness)
	}

	gutterW := int(math.Round(float64(outputW) * gutterFraction))
	remainingW := outputW - gutterW

	if 2*borderThickness >= outputH || 2*borderThickness >= remainingW {
		return Layout{}, fmt.Errorf("%w: border %d with photo area %dx%d", ErrDegenerateLayout, borderThickness, remainingW, outputH)
	}

	photo := image.Rect(
		gutterW+borderThickness,
		borderThickness,
		outputW-borderThickness,
		outputH-borderThickness,
	)

	return Layout{GutterW: gutterW, Photo: photo}, nil
}
