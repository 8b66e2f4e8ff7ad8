package pixelops

import (
	"image/color"

	"gocv.io/x/gocv"
)

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// newZeroMat allocates a single-channel 8-bit Mat cleared to zero.
func newZeroMat(rows, cols int) gocv.Mat {
	mat := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return mat
}

// maskToMat copies a mask into an 8-bit Mat with pad zero pixels on every side.
func maskToMat(m Mask, pad int) gocv.Mat {
	mat := newZeroMat(m.Rows+2*pad, m.Cols+2*pad)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if m.Bits[r*m.Cols+c] {
				mat.SetUCharAt(r+pad, c+pad, 255)
			}
		}
	}
	return mat
}

// matToMask reads every non-zero pixel of an 8-bit Mat as true.
func matToMask(mat gocv.Mat) Mask {
	m := NewMask(mat.Rows(), mat.Cols())
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if mat.GetUCharAt(r, c) != 0 {
				m.Bits[r*m.Cols+c] = true
			}
		}
	}
	return m
}
