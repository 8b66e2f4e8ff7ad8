// Package pixelops provides the pixel-level primitives behind entity shapes:
// label lookup, contour tracing, contour filling and circular dilation.
//
// Coordinates follow the image convention. Slices and masks are indexed
// (row, col); contour points are (col, row).
package pixelops

import (
	"errors"

	"cell-tracer/pkg/geometry"
)

var (
	// ErrNotFound is returned when a label or id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRadius is returned for negative dilation or brush radii.
	ErrInvalidRadius = errors.New("invalid radius")
	// ErrInvalidID is returned for a zero or negative label/id.
	ErrInvalidID = errors.New("invalid id")
)

// Span is a half-open index range [Start, Stop).
type Span struct {
	Start int `json:"start"`
	Stop  int `json:"stop"`
}

// Len returns the number of indices in the span.
func (s Span) Len() int {
	if s.Stop < s.Start {
		return 0
	}
	return s.Stop - s.Start
}

// Slice selects a rectangular subarray of an image: Rows then Cols.
type Slice struct {
	Rows Span `json:"rows"`
	Cols Span `json:"cols"`
}

// SliceFromBounds returns the slice covering the inclusive pixel corners lo..hi.
func SliceFromBounds(lo, hi geometry.PointInt) Slice {
	return Slice{
		Rows: Span{Start: lo.Y, Stop: hi.Y + 1},
		Cols: Span{Start: lo.X, Stop: hi.X + 1},
	}
}

// Shape returns (rows, cols).
func (s Slice) Shape() (int, int) {
	return s.Rows.Len(), s.Cols.Len()
}

// Origin returns the top-left pixel as a (col, row) point.
func (s Slice) Origin() geometry.PointInt {
	return geometry.PointInt{X: s.Cols.Start, Y: s.Rows.Start}
}

// Shift moves the slice by drow rows and dcol columns.
func (s Slice) Shift(drow, dcol int) Slice {
	return Slice{
		Rows: Span{Start: s.Rows.Start + drow, Stop: s.Rows.Stop + drow},
		Cols: Span{Start: s.Cols.Start + dcol, Stop: s.Cols.Stop + dcol},
	}
}

// Grow expands the slice by n on every side.
func (s Slice) Grow(n int) Slice {
	return Slice{
		Rows: Span{Start: s.Rows.Start - n, Stop: s.Rows.Stop + n},
		Cols: Span{Start: s.Cols.Start - n, Stop: s.Cols.Stop + n},
	}
}

// Within reports whether the slice lies entirely inside an image of the given size.
func (s Slice) Within(height, width int) bool {
	return s.Rows.Start >= 0 && s.Cols.Start >= 0 &&
		s.Rows.Stop <= height && s.Cols.Stop <= width
}

// Intersect returns the overlap of two slices; ok is false when they are disjoint.
func (s Slice) Intersect(o Slice) (Slice, bool) {
	r := Slice{
		Rows: Span{Start: max(s.Rows.Start, o.Rows.Start), Stop: min(s.Rows.Stop, o.Rows.Stop)},
		Cols: Span{Start: max(s.Cols.Start, o.Cols.Start), Stop: min(s.Cols.Stop, o.Cols.Stop)},
	}
	if r.Rows.Len() == 0 || r.Cols.Len() == 0 {
		return Slice{}, false
	}
	return r, true
}

// Mask is a row-major boolean raster.
type Mask struct {
	Rows int
	Cols int
	Bits []bool
}

// NewMask returns an all-false mask.
func NewMask(rows, cols int) Mask {
	if rows < 0 || cols < 0 {
		rows, cols = 0, 0
	}
	return Mask{Rows: rows, Cols: cols, Bits: make([]bool, rows*cols)}
}

// MaskFromInts builds a mask from rows of 0/1 values.
func MaskFromInts(rows [][]int) Mask {
	if len(rows) == 0 {
		return Mask{}
	}
	m := NewMask(len(rows), len(rows[0]))
	for r, row := range rows {
		for c, v := range row {
			if c < m.Cols && v != 0 {
				m.Bits[r*m.Cols+c] = true
			}
		}
	}
	return m
}

// At returns the value at (row, col); out-of-range reads are false.
func (m Mask) At(row, col int) bool {
	if row < 0 || col < 0 || row >= m.Rows || col >= m.Cols {
		return false
	}
	return m.Bits[row*m.Cols+col]
}

// Set writes the value at (row, col). Out-of-range writes are ignored.
func (m Mask) Set(row, col int, v bool) {
	if row < 0 || col < 0 || row >= m.Rows || col >= m.Cols {
		return
	}
	m.Bits[row*m.Cols+col] = v
}

// Count returns the number of true cells.
func (m Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Empty reports whether no cell is set.
func (m Mask) Empty() bool {
	for _, b := range m.Bits {
		if b {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (m Mask) Clone() Mask {
	return Mask{Rows: m.Rows, Cols: m.Cols, Bits: append([]bool(nil), m.Bits...)}
}

// Equal reports whether two masks have the same shape and cells.
func (m Mask) Equal(o Mask) bool {
	if m.Rows != o.Rows || m.Cols != o.Cols {
		return false
	}
	for i := range m.Bits {
		if m.Bits[i] != o.Bits[i] {
			return false
		}
	}
	return true
}

// LabelMap is a row-major integer label image. Zero is background.
type LabelMap struct {
	Width  int
	Height int
	Pix    []uint32
}

// NewLabelMap returns an all-background label map.
func NewLabelMap(width, height int) LabelMap {
	return LabelMap{Width: width, Height: height, Pix: make([]uint32, width*height)}
}

// LabelMapFromRows builds a label map from rows of values.
func LabelMapFromRows(rows [][]uint32) LabelMap {
	if len(rows) == 0 {
		return LabelMap{}
	}
	lm := NewLabelMap(len(rows[0]), len(rows))
	for r, row := range rows {
		copy(lm.Pix[r*lm.Width:(r+1)*lm.Width], row)
	}
	return lm
}

// At returns the label at (row, col).
func (lm LabelMap) At(row, col int) uint32 {
	return lm.Pix[row*lm.Width+col]
}

// Set writes the label at (row, col).
func (lm LabelMap) Set(row, col int, v uint32) {
	lm.Pix[row*lm.Width+col] = v
}
