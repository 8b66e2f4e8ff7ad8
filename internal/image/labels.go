package image

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/pixelops"
	"cell-tracer/internal/storage"

	"golang.org/x/image/tiff"
)

// MaxLabel is the largest object id a 16-bit label pixmap can hold.
const MaxLabel = math.MaxUint16

// LabelMapFromImage reads label values from an image. Gray and Gray16
// pixels are the label; paletted images use the palette index; colour
// images pack 8-bit RGB as R<<16 | G<<8 | B.
func LabelMapFromImage(img image.Image) pixelops.LabelMap {
	b := img.Bounds()
	lm := pixelops.NewLabelMap(b.Dx(), b.Dy())
	for y := 0; y < lm.Height; y++ {
		for x := 0; x < lm.Width; x++ {
			px, py := b.Min.X+x, b.Min.Y+y
			var v uint32
			switch im := img.(type) {
			case *image.Gray16:
				v = uint32(im.Gray16At(px, py).Y)
			case *image.Gray:
				v = uint32(im.GrayAt(px, py).Y)
			case *image.Paletted:
				v = uint32(im.ColorIndexAt(px, py))
			default:
				r, g, bl, _ := img.At(px, py).RGBA()
				v = (r>>8)<<16 | (g>>8)<<8 | bl>>8
			}
			lm.Set(y, x, v)
		}
	}
	return lm
}

// LoadLabels decodes a label pixmap file.
func LoadLabels(path string) (pixelops.LabelMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return pixelops.LabelMap{}, fmt.Errorf("failed to open label image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return pixelops.LabelMap{}, fmt.Errorf("failed to decode label image: %w", err)
	}
	return LabelMapFromImage(img), nil
}

// LabelImage paints each active entity's object id into a 16-bit image.
// Later entities overwrite earlier ones where masks overlap. A positive
// dilate grows every mask first. Pixels outside the image are dropped.
func LabelImage(width, height int, entities []*entity.Entity, dilate int) (*image.Gray16, error) {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for _, e := range entities {
		if !e.IsActive() || !e.HasShape() {
			continue
		}
		if e.ObjectID <= 0 || e.ObjectID > MaxLabel {
			return nil, fmt.Errorf("object id %d does not fit a 16-bit label: %w", e.ObjectID, entity.ErrInvalidID)
		}
		slc, mask, err := e.Dilated(dilate)
		if err != nil {
			return nil, err
		}
		off := img.PixOffset(0, 0)
		for r := 0; r < mask.Rows; r++ {
			y := slc.Rows.Start + r
			if y < 0 || y >= height {
				continue
			}
			for c := 0; c < mask.Cols; c++ {
				x := slc.Cols.Start + c
				if x < 0 || x >= width || !mask.At(r, c) {
					continue
				}
				i := off + y*img.Stride + 2*x
				img.Pix[i] = uint8(e.ObjectID >> 8)
				img.Pix[i+1] = uint8(e.ObjectID)
			}
		}
	}
	return img, nil
}

// EncodeLabels writes a label image as TIFF or PNG. format is "tiff" or
// "png".
func EncodeLabels(w io.Writer, img *image.Gray16, format string) error {
	switch format {
	case "tiff", "tif":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case "png":
		return png.Encode(w, img)
	default:
		return fmt.Errorf("unsupported label format %q", format)
	}
}

// FormatFromPath picks the label format from a file extension.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	default:
		return "tiff"
	}
}

// WriteLabels renders entities to a 16-bit label pixmap file; the format
// follows the extension.
func WriteLabels(path string, width, height int, entities []*entity.Entity, dilate int) error {
	img, err := LabelImage(width, height, entities, dilate)
	if err != nil {
		return err
	}
	return storage.WriteFile(path, func(w io.Writer) error {
		if err := EncodeLabels(w, img, FormatFromPath(path)); err != nil {
			return fmt.Errorf("failed to encode label image: %w", err)
		}
		return nil
	})
}
