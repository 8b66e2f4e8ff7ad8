package pixelops

// maskAt reads a placed mask at an image-frame pixel.
func maskAt(slc Slice, mask Mask, row, col int) bool {
	return mask.At(row-slc.Rows.Start, col-slc.Cols.Start)
}

// Overlaps reports whether two placed masks share at least one pixel.
func Overlaps(sa Slice, ma Mask, sb Slice, mb Mask) bool {
	common, ok := sa.Intersect(sb)
	if !ok {
		return false
	}
	for r := common.Rows.Start; r < common.Rows.Stop; r++ {
		for c := common.Cols.Start; c < common.Cols.Stop; c++ {
			if maskAt(sa, ma, r, c) && maskAt(sb, mb, r, c) {
				return true
			}
		}
	}
	return false
}

// Touches reports whether two placed masks share a pixel or a pixel edge.
// Diagonal contact does not count.
func Touches(sa Slice, ma Mask, sb Slice, mb Mask) bool {
	if _, ok := sa.Grow(1).Intersect(sb); !ok {
		return false
	}
	for r := 0; r < ma.Rows; r++ {
		for c := 0; c < ma.Cols; c++ {
			if !ma.Bits[r*ma.Cols+c] {
				continue
			}
			row, col := sa.Rows.Start+r, sa.Cols.Start+c
			if maskAt(sb, mb, row, col) ||
				maskAt(sb, mb, row-1, col) || maskAt(sb, mb, row+1, col) ||
				maskAt(sb, mb, row, col-1) || maskAt(sb, mb, row, col+1) {
				return true
			}
		}
	}
	return false
}
