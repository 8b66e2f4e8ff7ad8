package pixelops

import (
	"fmt"
	"slices"
)

// DefaultSearchWindow is the half-width of the window BoundingBoxOfValue
// scans around the first occurrence of a label.
const DefaultSearchWindow = 300

// BoundingBoxOfValue locates the region labelled value and returns its tight
// slice and the boolean submask labels[slc] == value.
//
// Only a window of at most window pixels around the first occurrence is
// scanned. Pass window <= 0 (or anything larger than the map) for exact
// extents over the whole array.
func BoundingBoxOfValue(labels LabelMap, value uint32, window int) (Slice, Mask, error) {
	if value == 0 {
		return Slice{}, Mask{}, fmt.Errorf("label 0 is background: %w", ErrInvalidID)
	}
	first := slices.Index(labels.Pix, value)
	if first < 0 {
		return Slice{}, Mask{}, fmt.Errorf("label %d: %w", value, ErrNotFound)
	}
	r0, c0 := first/labels.Width, first%labels.Width

	// The first row-major occurrence is already on the top row of the region.
	win := Slice{
		Rows: Span{Start: r0, Stop: labels.Height},
		Cols: Span{Start: 0, Stop: labels.Width},
	}
	if window > 0 {
		win.Rows.Stop = min(labels.Height, r0+window+1)
		win.Cols = Span{Start: max(0, c0-window), Stop: min(labels.Width, c0+window+1)}
	}

	minR, maxR := r0, r0
	minC, maxC := c0, c0
	for r := win.Rows.Start; r < win.Rows.Stop; r++ {
		row := labels.Pix[r*labels.Width : (r+1)*labels.Width]
		for c := win.Cols.Start; c < win.Cols.Stop; c++ {
			if row[c] != value {
				continue
			}
			minR, maxR = min(minR, r), max(maxR, r)
			minC, maxC = min(minC, c), max(maxC, c)
		}
	}

	slc := Slice{
		Rows: Span{Start: minR, Stop: maxR + 1},
		Cols: Span{Start: minC, Stop: maxC + 1},
	}
	mask := NewMask(slc.Shape())
	for r := minR; r <= maxR; r++ {
		for c := minC; c <= maxC; c++ {
			if labels.At(r, c) == value {
				mask.Bits[(r-minR)*mask.Cols+(c-minC)] = true
			}
		}
	}
	return slc, mask, nil
}

// Labels returns the distinct positive labels of a map in ascending order.
func Labels(labels LabelMap) []uint32 {
	seen := make(map[uint32]struct{})
	for _, v := range labels.Pix {
		if v != 0 {
			seen[v] = struct{}{}
		}
	}
	out := make([]uint32, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
