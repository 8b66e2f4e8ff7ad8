// Package image loads channel stacks and reads and writes label pixmaps.
package image

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/tiff"
)

// Channel is one grayscale exposure of a stack, with its metadata
// (marker name, exposure, ...). Pixels are row-major.
type Channel struct {
	Name   string
	Path   string
	Meta   map[string]string
	Width  int
	Height int
	Pix    []float64
}

// NewChannel returns a zeroed channel.
func NewChannel(name string, width, height int, meta map[string]string) *Channel {
	return &Channel{
		Name:   name,
		Meta:   maps.Clone(meta),
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height),
	}
}

// Load decodes a PNG, JPEG or TIFF file into a channel. The channel name is
// the file name without its extension.
func Load(path string, meta map[string]string) (*Channel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	ch, err := Decode(file, channelName(path), meta)
	if err != nil {
		return nil, err
	}
	ch.Path = path
	return ch, nil
}

// Decode reads any registered image format into a channel.
func Decode(r io.Reader, name string, meta map[string]string) (*Channel, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(name, img, meta), nil
}

// FromImage converts an image to a channel. Gray and Gray16 keep their raw
// values; colour images are converted to 16-bit luminance.
func FromImage(name string, img image.Image, meta map[string]string) *Channel {
	b := img.Bounds()
	ch := NewChannel(name, b.Dx(), b.Dy(), meta)
	for y := 0; y < ch.Height; y++ {
		for x := 0; x < ch.Width; x++ {
			ch.Pix[y*ch.Width+x] = grayValue(img, b.Min.X+x, b.Min.Y+y)
		}
	}
	return ch
}

func grayValue(img image.Image, x, y int) float64 {
	switch im := img.(type) {
	case *image.Gray:
		return float64(im.GrayAt(x, y).Y)
	case *image.Gray16:
		return float64(im.Gray16At(x, y).Y)
	default:
		return float64(color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
	}
}

// At returns the pixel at (row, col).
func (c *Channel) At(row, col int) float64 {
	return c.Pix[row*c.Width+col]
}

// Set writes the pixel at (row, col).
func (c *Channel) Set(row, col int, v float64) {
	c.Pix[row*c.Width+col] = v
}

// Stack is an ordered list of co-registered channels.
type Stack []*Channel

// Validate checks that the stack is non-empty and all channels share
// the dimensions of the first.
func (s Stack) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("empty image stack")
	}
	w, h := s[0].Width, s[0].Height
	for _, ch := range s[1:] {
		if ch.Width != w || ch.Height != h {
			return fmt.Errorf("channel %q is %dx%d, want %dx%d", ch.Name, ch.Width, ch.Height, w, h)
		}
	}
	return nil
}

// Size returns the common (width, height).
func (s Stack) Size() (int, int) {
	if len(s) == 0 {
		return 0, 0
	}
	return s[0].Width, s[0].Height
}

// MetaKeys returns every metadata key present on any channel, sorted.
func (s Stack) MetaKeys() []string {
	seen := make(map[string]struct{})
	for _, ch := range s {
		for k := range ch.Meta {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

func channelName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	return slices.Contains(SupportedFormats(), strings.ToLower(filepath.Ext(path)))
}
