package geometry

// Ring is one closed polygon ring in float coordinates.
type Ring []Point2D

// IntRing is one closed polygon ring in pixel coordinates.
type IntRing []PointInt

// Contour is an ordered list of rings. Every ring is an outer part;
// holes are not represented.
type Contour []Ring

// IntContour is a Contour rounded to pixel coordinates.
type IntContour []IntRing

// Round rounds every point to the nearest pixel.
func (c Contour) Round() IntContour {
	out := make(IntContour, len(c))
	for i, ring := range c {
		r := make(IntRing, len(ring))
		for j, p := range ring {
			r[j] = p.Round()
		}
		out[i] = r
	}
	return out
}

// Finite reports whether every coordinate is a finite number.
func (c Contour) Finite() bool {
	for _, ring := range c {
		for _, p := range ring {
			if !p.Finite() {
				return false
			}
		}
	}
	return true
}

// Points returns the total number of points over all rings.
func (c Contour) Points() int {
	n := 0
	for _, ring := range c {
		n += len(ring)
	}
	return n
}

// Clone returns a deep copy.
func (c Contour) Clone() Contour {
	if c == nil {
		return nil
	}
	out := make(Contour, len(c))
	for i, ring := range c {
		out[i] = append(Ring(nil), ring...)
	}
	return out
}

// Translate returns the contour shifted by (dx, dy).
func (c Contour) Translate(dx, dy float64) Contour {
	out := make(Contour, len(c))
	for i, ring := range c {
		r := make(Ring, len(ring))
		for j, p := range ring {
			r[j] = Point2D{X: p.X + dx, Y: p.Y + dy}
		}
		out[i] = r
	}
	return out
}

// ToFloat converts every point to float coordinates.
func (c IntContour) ToFloat() Contour {
	out := make(Contour, len(c))
	for i, ring := range c {
		r := make(Ring, len(ring))
		for j, p := range ring {
			r[j] = p.ToFloat()
		}
		out[i] = r
	}
	return out
}

// Bounds returns the inclusive min and max corners over all points.
// ok is false when the contour holds no points.
func (c IntContour) Bounds() (lo, hi PointInt, ok bool) {
	for _, ring := range c {
		for _, p := range ring {
			if !ok {
				lo, hi, ok = p, p, true
				continue
			}
			lo = lo.Min(p)
			hi = hi.Max(p)
		}
	}
	return lo, hi, ok
}

// Translate returns the contour shifted by (dx, dy).
func (c IntContour) Translate(dx, dy int) IntContour {
	out := make(IntContour, len(c))
	for i, ring := range c {
		r := make(IntRing, len(ring))
		for j, p := range ring {
			r[j] = PointInt{X: p.X + dx, Y: p.Y + dy}
		}
		out[i] = r
	}
	return out
}

// Equal reports whether two contours hold the same rings in the same order.
func (c IntContour) Equal(other IntContour) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if len(c[i]) != len(other[i]) {
			return false
		}
		for j := range c[i] {
			if c[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}
