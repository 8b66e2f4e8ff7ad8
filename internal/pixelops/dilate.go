package pixelops

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Dilate grows mask by a circular structuring element of the given radius.
//
// Radius 0 returns an unchanged copy. Radius k pads the mask by k on every
// side, so the returned slice is slc grown by k and the mask gains 2k rows
// and columns.
func Dilate(slc Slice, mask Mask, radius int) (Slice, Mask, error) {
	if radius < 0 {
		return Slice{}, Mask{}, fmt.Errorf("dilate by %d: %w", radius, ErrInvalidRadius)
	}
	if radius == 0 {
		return slc, mask.Clone(), nil
	}

	src := maskToMat(mask, radius)
	defer src.Close()

	kernel := circleKernel(radius)
	defer kernel.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Dilate(src, &dst, kernel)

	return slc.Grow(radius), matToMask(dst), nil
}

// circleKernel returns a (2k+1)x(2k+1) element whose set cells lie within
// distance k of the centre cell.
func circleKernel(k int) gocv.Mat {
	size := 2*k + 1
	kernel := newZeroMat(size, size)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			di, dj := i-k, j-k
			if di*di+dj*dj <= k*k {
				kernel.SetUCharAt(i, j, 1)
			}
		}
	}
	return kernel
}
