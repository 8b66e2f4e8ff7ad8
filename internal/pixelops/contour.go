package pixelops

import (
	"image"

	"cell-tracer/pkg/geometry"

	"gocv.io/x/gocv"
)

// MaskToContour traces the boundary of every connected part of mask as a
// flat list of integer rings (no hierarchy). Runs of colinear boundary
// pixels collapse to their endpoints. Points are returned as (col, row) in
// the parent image frame given by slc. A single-pixel part yields a
// one-point ring.
func MaskToContour(slc Slice, mask Mask) geometry.IntContour {
	if mask.Rows == 0 || mask.Cols == 0 || mask.Empty() {
		return nil
	}

	// Pad by one pixel so parts touching the mask edge trace like interior ones.
	mat := maskToMat(mask, 1)
	defer mat.Close()

	contours := gocv.FindContours(mat, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer contours.Close()

	dx := slc.Cols.Start - 1
	dy := slc.Rows.Start - 1
	out := make(geometry.IntContour, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		ring := make(geometry.IntRing, 0, contour.Size())
		for j := 0; j < contour.Size(); j++ {
			pt := contour.At(j)
			ring = append(ring, geometry.PointInt{X: pt.X + dx, Y: pt.Y + dy})
		}
		if len(ring) > 0 {
			out = append(out, ring)
		}
	}
	return out
}

// ContourToMask fills every ring of contour into a mask spanning the
// inclusive pixel box lo..hi. Boundary pixels are inside. Each ring is
// filled on its own, so overlapping rings never cancel out. Points outside
// the box are clipped.
func ContourToMask(contour geometry.IntContour, lo, hi geometry.PointInt) Mask {
	rows := hi.Y - lo.Y + 1
	cols := hi.X - lo.X + 1
	if rows <= 0 || cols <= 0 {
		return Mask{}
	}

	mat := newZeroMat(rows, cols)
	defer mat.Close()
	fillRings(&mat, contour, lo)
	return matToMask(mat)
}

// fillRings draws each ring filled into mat, shifting points by -origin.
func fillRings(mat *gocv.Mat, contour geometry.IntContour, origin geometry.PointInt) {
	for _, ring := range contour {
		if len(ring) == 0 {
			continue
		}
		pts := make([]image.Point, len(ring))
		for i, p := range ring {
			pts[i] = image.Point{X: p.X - origin.X, Y: p.Y - origin.Y}
		}
		pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
		gocv.DrawContours(mat, pv, 0, white, -1)
		pv.Close()
	}
}
