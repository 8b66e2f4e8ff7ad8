package generate

import (
	"context"
	"errors"
	"testing"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/pixelops"
	"cell-tracer/pkg/geometry"
)

func TestFromPixmapScenario(t *testing.T) {
	labels := pixelops.LabelMapFromRows([][]uint32{
		{0, 0, 0, 0},
		{0, 1, 1, 0},
		{0, 1, 1, 0},
		{0, 0, 0, 2},
	})
	l := ledger.New(ledger.Options{})
	got, err := FromPixmap(context.Background(), l, labels, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || l.Len() != 2 {
		t.Fatalf("generated %d entities, ledger holds %d", len(got), l.Len())
	}

	a := l.GetEntity(ledger.ByID(1))
	if a == nil {
		t.Fatal("no entity for label 1")
	}
	if a.BBox != [2]geometry.PointInt{{X: 1, Y: 1}, {X: 2, Y: 2}} {
		t.Errorf("A bbox = %v", a.BBox)
	}
	if !a.Mask.Equal(pixelops.MaskFromInts([][]int{{1, 1}, {1, 1}})) {
		t.Errorf("A mask = %v", a.Mask.Bits)
	}
	if a.Scalars[entity.ObjectIDKey] != 1 || a.EType != entity.Cell {
		t.Errorf("A scalars %v etype %v", a.Scalars, a.EType)
	}

	b := l.GetEntity(ledger.ByID(2))
	if b == nil {
		t.Fatal("no entity for label 2")
	}
	if b.BBox != [2]geometry.PointInt{{X: 3, Y: 3}, {X: 3, Y: 3}} || b.Mask.Count() != 1 {
		t.Errorf("B bbox %v mask %v", b.BBox, b.Mask.Bits)
	}
}

func TestFromPixmapMasksMatchLabels(t *testing.T) {
	labels := pixelops.LabelMapFromRows([][]uint32{
		{7, 7, 0, 3, 3},
		{7, 0, 0, 3, 0},
		{0, 0, 9, 9, 9},
		{4000000000, 0, 0, 9, 0},
	})
	l := ledger.New(ledger.Options{})
	opts := DefaultOptions()
	opts.Workers = 3
	if _, err := FromPixmap(context.Background(), l, labels, opts); err != nil {
		t.Fatal(err)
	}
	for _, v := range pixelops.Labels(labels) {
		e := l.GetEntity(ledger.ByID(int(v)))
		if e == nil {
			t.Errorf("label %d missing", v)
			continue
		}
		_, want, _ := pixelops.BoundingBoxOfValue(labels, v, 0)
		if !e.Mask.Equal(want) {
			t.Errorf("label %d mask %v, want %v", v, e.Mask.Bits, want.Bits)
		}
	}
}

func TestFromPixmapSinglePixel(t *testing.T) {
	labels := pixelops.NewLabelMap(1, 1)
	labels.Set(0, 0, 5)
	l := ledger.New(ledger.Options{})
	got, err := FromPixmap(context.Background(), l, labels, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Mask.Rows != 1 || got[0].Mask.Cols != 1 || !got[0].Mask.At(0, 0) {
		t.Fatalf("got %+v", got)
	}
}

func TestFromPixmapBackgroundOnly(t *testing.T) {
	l := ledger.New(ledger.Options{})
	got, err := FromPixmap(context.Background(), l, pixelops.NewLabelMap(3, 3), DefaultOptions())
	if err != nil || len(got) != 0 || l.Len() != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestFromPixmapCancelled(t *testing.T) {
	labels := pixelops.LabelMapFromRows([][]uint32{{1, 2, 3}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := ledger.New(ledger.Options{})
	_, err := FromPixmap(ctx, l, labels, DefaultOptions())
	if !errors.Is(err, entity.ErrCancelled) {
		t.Fatalf("got %v, want ErrCancelled", err)
	}
	if l.Len() != 0 {
		t.Errorf("cancelled run added %d entities", l.Len())
	}
}

func TestFromPixmapRollsBackOnDuplicate(t *testing.T) {
	l := ledger.New(ledger.Options{})
	if _, err := l.MakeEntityWithID(2); err != nil {
		t.Fatal(err)
	}
	labels := pixelops.LabelMapFromRows([][]uint32{{1, 0, 2}})
	if _, err := FromPixmap(context.Background(), l, labels, DefaultOptions()); !errors.Is(err, entity.ErrDuplicateID) {
		t.Fatalf("got %v, want ErrDuplicateID", err)
	}
	if l.Len() != 1 || l.GetEntity(ledger.ByID(1)) != nil {
		t.Errorf("partial result left in ledger")
	}
}

func TestFromContours(t *testing.T) {
	l := ledger.New(ledger.Options{})
	polys := []Polygon{
		{ID: 4, Contour: geometry.Contour{{{X: 0.4, Y: 0.4}, {X: 2.6, Y: 0}, {X: 3, Y: 2}, {X: 0, Y: 2}}}},
		{ID: 9, Contour: geometry.Contour{{{X: 10, Y: 10}}}},
	}
	got, err := FromContours(l, polys, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entities", len(got))
	}
	if got[0].IntContour[0][0] != (geometry.PointInt{X: 0, Y: 0}) || got[0].IntContour[0][1] != (geometry.PointInt{X: 3, Y: 0}) {
		t.Errorf("contour not rounded: %v", got[0].IntContour)
	}
	if l.GetEntity(ledger.ByID(9)).Area() != 1 {
		t.Errorf("single point polygon area %d", got[1].Area())
	}
}

func TestFromContoursRollsBack(t *testing.T) {
	l := ledger.New(ledger.Options{})
	polys := []Polygon{
		{ID: 1, Contour: geometry.Contour{{{X: 0, Y: 0}, {X: 1, Y: 1}}}},
		{ID: 1, Contour: geometry.Contour{{{X: 5, Y: 5}}}},
	}
	if _, err := FromContours(l, polys, DefaultOptions()); !errors.Is(err, entity.ErrDuplicateID) {
		t.Fatalf("got %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("rollback left %d entities", l.Len())
	}

	bad := []Polygon{{ID: 0, Contour: geometry.Contour{{{X: 1, Y: 1}}}}}
	if _, err := FromContours(l, bad, DefaultOptions()); !errors.Is(err, entity.ErrInvalidID) {
		t.Errorf("id 0: %v", err)
	}
}
