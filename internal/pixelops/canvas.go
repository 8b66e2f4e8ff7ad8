package pixelops

import (
	"image"

	"cell-tracer/pkg/geometry"

	"gocv.io/x/gocv"
)

// Canvas is a working raster anchored at an image-frame origin. Shape
// algebra paints masks, disks and rectangles into it and reads the union
// back as a tight slice and mask. A Canvas must be closed.
type Canvas struct {
	origin geometry.PointInt
	mat    gocv.Mat
}

// NewCanvas allocates a cleared canvas covering the inclusive pixel box lo..hi.
func NewCanvas(lo, hi geometry.PointInt) *Canvas {
	rows := max(hi.Y-lo.Y+1, 1)
	cols := max(hi.X-lo.X+1, 1)
	return &Canvas{origin: lo, mat: newZeroMat(rows, cols)}
}

// Close releases the underlying Mat.
func (c *Canvas) Close() error {
	return c.mat.Close()
}

// Bounds returns the inclusive pixel box covered by the canvas.
func (c *Canvas) Bounds() (geometry.PointInt, geometry.PointInt) {
	hi := geometry.PointInt{X: c.origin.X + c.mat.Cols() - 1, Y: c.origin.Y + c.mat.Rows() - 1}
	return c.origin, hi
}

// Paint sets every pixel of mask placed at slc.
func (c *Canvas) Paint(slc Slice, mask Mask) {
	c.writeMask(slc, mask, 255)
}

// Clear resets every pixel of mask placed at slc.
func (c *Canvas) Clear(slc Slice, mask Mask) {
	c.writeMask(slc, mask, 0)
}

func (c *Canvas) writeMask(slc Slice, mask Mask, v uint8) {
	rows, cols := c.mat.Rows(), c.mat.Cols()
	for r := 0; r < mask.Rows; r++ {
		y := slc.Rows.Start + r - c.origin.Y
		if y < 0 || y >= rows {
			continue
		}
		for col := 0; col < mask.Cols; col++ {
			x := slc.Cols.Start + col - c.origin.X
			if x < 0 || x >= cols || !mask.Bits[r*mask.Cols+col] {
				continue
			}
			c.mat.SetUCharAt(y, x, v)
		}
	}
}

// PaintContour fills every ring of an integer contour.
func (c *Canvas) PaintContour(contour geometry.IntContour) {
	fillRings(&c.mat, contour, c.origin)
}

// PaintDisk fills a disk of the given radius centred on a pixel.
func (c *Canvas) PaintDisk(center geometry.PointInt, radius int) {
	gocv.Circle(&c.mat, c.local(center), radius, white, -1)
}

// ClearDisk resets a disk of the given radius centred on a pixel.
func (c *Canvas) ClearDisk(center geometry.PointInt, radius int) {
	gocv.Circle(&c.mat, c.local(center), radius, black, -1)
}

// PaintRect sets every pixel of r.
func (c *Canvas) PaintRect(r geometry.RectInt) {
	c.fillRect(r, 255)
}

// ClearRect resets every pixel of r.
func (c *Canvas) ClearRect(r geometry.RectInt) {
	c.fillRect(r, 0)
}

func (c *Canvas) fillRect(r geometry.RectInt, v uint8) {
	lo := c.local(r.Min())
	rect := image.Rect(lo.X, lo.Y, lo.X+r.Width, lo.Y+r.Height).
		Intersect(image.Rect(0, 0, c.mat.Cols(), c.mat.Rows()))
	if rect.Empty() {
		return
	}
	roi := c.mat.Region(rect)
	roi.SetTo(gocv.NewScalar(float64(v), 0, 0, 0))
	roi.Close()
}

// Mask returns the tight slice and mask of all set pixels.
// ok is false when the canvas is empty.
func (c *Canvas) Mask() (Slice, Mask, bool) {
	if gocv.CountNonZero(c.mat) == 0 {
		return Slice{}, Mask{}, false
	}
	full := matToMask(c.mat)
	minR, maxR, minC, maxC := full.Rows, -1, full.Cols, -1
	for r := 0; r < full.Rows; r++ {
		for col := 0; col < full.Cols; col++ {
			if !full.Bits[r*full.Cols+col] {
				continue
			}
			minR, maxR = min(minR, r), max(maxR, r)
			minC, maxC = min(minC, col), max(maxC, col)
		}
	}
	out := NewMask(maxR-minR+1, maxC-minC+1)
	for r := minR; r <= maxR; r++ {
		copy(out.Bits[(r-minR)*out.Cols:(r-minR+1)*out.Cols], full.Bits[r*full.Cols+minC:r*full.Cols+maxC+1])
	}
	slc := Slice{
		Rows: Span{Start: c.origin.Y + minR, Stop: c.origin.Y + maxR + 1},
		Cols: Span{Start: c.origin.X + minC, Stop: c.origin.X + maxC + 1},
	}
	return slc, out, true
}

func (c *Canvas) local(p geometry.PointInt) image.Point {
	return image.Point{X: p.X - c.origin.X, Y: p.Y - c.origin.Y}
}

// DiskUnion rasterizes the union of disks of the given radius centred on
// each point. ok is false for an empty path.
func DiskUnion(points []geometry.PointInt, radius int) (Slice, Mask, bool) {
	if len(points) == 0 || radius < 0 {
		return Slice{}, Mask{}, false
	}
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo, hi = lo.Min(p), hi.Max(p)
	}
	r := geometry.PointInt{X: radius, Y: radius}
	canvas := NewCanvas(geometry.PointInt{X: lo.X - r.X, Y: lo.Y - r.Y}, hi.Add(r))
	defer canvas.Close()
	for _, p := range points {
		canvas.PaintDisk(p, radius)
	}
	return canvas.Mask()
}
