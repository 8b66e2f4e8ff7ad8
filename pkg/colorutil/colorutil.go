// Package colorutil provides the color helpers used to paint entities.
package colorutil

import (
	"image/color"
	"math"
)

// Background and outline colors.
var (
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Grey  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// RGBToHSV converts RGB (0-255) to HSV (OpenCV convention: H 0-180, S 0-255, V 0-255).
func RGBToHSV(r, g, b float64) (h, s, v float64) {
	r /= 255.0
	g /= 255.0
	b /= 255.0

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	diff := maxC - minC

	v = maxC * 255.0

	if maxC == 0 {
		s = 0
	} else {
		s = (diff / maxC) * 255.0
	}

	switch {
	case diff == 0:
		h = 0
	case maxC == r:
		h = 60 * math.Mod((g-b)/diff, 6)
	case maxC == g:
		h = 60 * ((b-r)/diff + 2)
	default:
		h = 60 * ((r-g)/diff + 4)
	}
	if h < 0 {
		h += 360
	}
	return h / 2, s, v
}

// HSVToRGB is the inverse of RGBToHSV, using the same ranges.
func HSVToRGB(h, s, v float64) (r, g, b float64) {
	h = math.Mod(h*2, 360)
	if h < 0 {
		h += 360
	}
	s /= 255.0
	v /= 255.0

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return (r + m) * 255, (g + m) * 255, (b + m) * 255
}

// Wheel returns n fully saturated colors evenly spaced around the hue
// circle.
func Wheel(n int) []color.RGBA {
	out := make([]color.RGBA, n)
	for i := range out {
		out[i] = hue(180 * float64(i) / float64(n))
	}
	return out
}

func hue(h float64) color.RGBA {
	r, g, b := HSVToRGB(h, 255, 255)
	return color.RGBA{R: uint8(math.Round(r)), G: uint8(math.Round(g)), B: uint8(math.Round(b)), A: 255}
}

// ClusterColor picks a color for a cluster label. Consecutive labels are
// separated by the golden angle so neighbouring clusters stay distinct
// without knowing the cluster count. Negative labels are grey.
func ClusterColor(label int) color.RGBA {
	if label < 0 {
		return Grey
	}
	const golden = 137.50776405003785 / 2 // in the 0-180 hue range
	return hue(math.Mod(float64(label)*golden, 180))
}

// WithAlpha returns c with alpha a, premultiplied.
func WithAlpha(c color.RGBA, a uint8) color.RGBA {
	scale := func(v uint8) uint8 { return uint8(uint16(v) * uint16(a) / 255) }
	return color.RGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: a}
}
