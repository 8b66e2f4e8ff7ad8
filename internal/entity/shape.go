package entity

import (
	"fmt"

	"cell-tracer/internal/pixelops"
	"cell-tracer/pkg/geometry"
)

// UpdateContour replaces the entity's shape. The integer contour, bounding
// box, slice and mask are all rebuilt from contour. On error the entity is
// left untouched.
func (e *Entity) UpdateContour(contour geometry.Contour) error {
	if len(contour) == 0 {
		return fmt.Errorf("no rings: %w", ErrInvalidContour)
	}
	for i, ring := range contour {
		if len(ring) == 0 {
			return fmt.Errorf("ring %d has no points: %w", i, ErrInvalidContour)
		}
	}
	if !contour.Finite() {
		return fmt.Errorf("non-finite coordinate: %w", ErrInvalidContour)
	}

	ic := contour.Round()
	lo, hi, ok := ic.Bounds()
	if !ok {
		return fmt.Errorf("no points: %w", ErrInvalidContour)
	}
	mask := pixelops.ContourToMask(ic, lo, hi)
	if mask.Empty() {
		return fmt.Errorf("contour rasterizes to nothing: %w", ErrInvalidContour)
	}

	e.Contour = contour.Clone()
	e.IntContour = ic
	e.BBox = [2]geometry.PointInt{lo, hi}
	e.Slc = pixelops.SliceFromBounds(lo, hi)
	e.Mask = mask
	return nil
}

// FromContours is UpdateContour under the name the generators use.
func (e *Entity) FromContours(contour geometry.Contour) error {
	return e.UpdateContour(contour)
}

// FromIntContour sets the shape from pixel coordinates.
func (e *Entity) FromIntContour(contour geometry.IntContour) error {
	return e.UpdateContour(contour.ToFloat())
}

// FromMask traces mask placed at slc and sets the entity's shape from the
// result. A non-nil offset (col, row) shifts slc before tracing.
func (e *Entity) FromMask(slc pixelops.Slice, mask pixelops.Mask, offset *geometry.PointInt) error {
	if mask.Rows != slc.Rows.Len() || mask.Cols != slc.Cols.Len() {
		return fmt.Errorf("mask %dx%d does not match slice %dx%d: %w",
			mask.Rows, mask.Cols, slc.Rows.Len(), slc.Cols.Len(), ErrInvalidContour)
	}
	if offset != nil {
		slc = slc.Shift(offset.Y, offset.X)
	}
	contour := pixelops.MaskToContour(slc, mask)
	if len(contour) == 0 {
		return fmt.Errorf("empty mask: %w", ErrInvalidContour)
	}
	return e.FromIntContour(contour)
}

// MoveBy translates every shape representation by (dcol, drow). The mask
// itself does not change.
func (e *Entity) MoveBy(dcol, drow int) {
	if !e.HasShape() {
		return
	}
	e.Contour = e.Contour.Translate(float64(dcol), float64(drow))
	e.IntContour = e.IntContour.Translate(dcol, drow)
	d := geometry.PointInt{X: dcol, Y: drow}
	e.BBox = [2]geometry.PointInt{e.BBox[0].Add(d), e.BBox[1].Add(d)}
	e.Slc = e.Slc.Shift(drow, dcol)
}

// Dilated returns the mask grown by a circular kernel, with its slice.
// The entity is not modified.
func (e *Entity) Dilated(radius int) (pixelops.Slice, pixelops.Mask, error) {
	return pixelops.Dilate(e.Slc, e.Mask, radius)
}
