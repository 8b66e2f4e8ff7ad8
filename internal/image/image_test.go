package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/pixelops"
	"cell-tracer/pkg/geometry"
)

func TestDecodeGray16Channel(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 3, 2))
	src.SetGray16(2, 1, color.Gray16{Y: 1234})
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}

	ch, err := Decode(&buf, "CD3", map[string]string{"marker": "CD3"})
	if err != nil {
		t.Fatal(err)
	}
	if ch.Width != 3 || ch.Height != 2 || ch.At(1, 2) != 1234 || ch.At(0, 0) != 0 {
		t.Errorf("channel %dx%d value %v", ch.Width, ch.Height, ch.At(1, 2))
	}
	if ch.Meta["marker"] != "CD3" {
		t.Errorf("meta = %v", ch.Meta)
	}
}

func TestLoadNamesChannelAfterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CD8_exposure.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	ch, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ch.Name != "CD8_exposure" || ch.Path != path {
		t.Errorf("name %q path %q", ch.Name, ch.Path)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.png"), nil); err == nil {
		t.Errorf("missing file loaded")
	}
}

func TestStackValidate(t *testing.T) {
	a := NewChannel("a", 4, 4, nil)
	b := NewChannel("b", 4, 4, map[string]string{"marker": "x"})
	if err := (Stack{a, b}).Validate(); err != nil {
		t.Errorf("matching stack: %v", err)
	}
	if err := (Stack{a, NewChannel("c", 5, 4, nil)}).Validate(); err == nil {
		t.Errorf("mismatched stack accepted")
	}
	if err := (Stack{}).Validate(); err == nil {
		t.Errorf("empty stack accepted")
	}
	if keys := (Stack{a, b}).MetaKeys(); len(keys) != 1 || keys[0] != "marker" {
		t.Errorf("meta keys = %v", keys)
	}
}

func TestLabelMapFromImage(t *testing.T) {
	g := image.NewGray16(image.Rect(0, 0, 2, 1))
	g.SetGray16(1, 0, color.Gray16{Y: 40000})
	lm := LabelMapFromImage(g)
	if lm.At(0, 1) != 40000 || lm.At(0, 0) != 0 {
		t.Errorf("gray16 labels = %v", lm.Pix)
	}

	rgb := image.NewRGBA(image.Rect(0, 0, 1, 1))
	rgb.Set(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	if v := LabelMapFromImage(rgb).At(0, 0); v != 1<<16|2<<8|3 {
		t.Errorf("rgb label = %d", v)
	}
}

func labelled(t *testing.T, id int, x0, y0, x1, y1 int) *entity.Entity {
	t.Helper()
	e := entity.NewRandom()
	e.SetObjectID(id)
	if err := e.FromIntContour(geometry.IntContour{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}}); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestWriteLabelsRoundTrip(t *testing.T) {
	a := labelled(t, 1, 1, 1, 2, 2)
	b := labelled(t, 300, 2, 2, 3, 3)
	hist := labelled(t, 7, 0, 0, 0, 0)
	hist.Retire()

	for _, ext := range []string{".png", ".tif"} {
		path := filepath.Join(t.TempDir(), "labels"+ext)
		if err := WriteLabels(path, 5, 5, []*entity.Entity{a, b, hist}, 0); err != nil {
			t.Fatalf("%s: %v", ext, err)
		}
		lm, err := LoadLabels(path)
		if err != nil {
			t.Fatalf("%s: %v", ext, err)
		}
		if lm.At(1, 1) != 1 || lm.At(2, 2) != 300 || lm.At(3, 3) != 300 || lm.At(0, 0) != 0 {
			t.Errorf("%s: labels = %v", ext, lm.Pix)
		}
		_, mask, err := pixelops.BoundingBoxOfValue(lm, 1, 0)
		if err != nil || mask.Count() != 3 {
			t.Errorf("%s: label 1 has %d pixels (%v)", ext, mask.Count(), err)
		}
	}
}

func TestLabelImageDilateAndLimits(t *testing.T) {
	a := labelled(t, 2, 2, 2, 2, 2)
	img, err := LabelImage(5, 5, []*entity.Entity{a}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if img.Gray16At(2, 1).Y != 2 || img.Gray16At(1, 1).Y != 0 {
		t.Errorf("dilated label wrong")
	}

	big := labelled(t, 70000, 0, 0, 1, 1)
	if _, err := LabelImage(5, 5, []*entity.Entity{big}, 0); !errors.Is(err, entity.ErrInvalidID) {
		t.Errorf("oversized id: %v", err)
	}
}
