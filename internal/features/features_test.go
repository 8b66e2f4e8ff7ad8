package features

import (
	"context"
	"errors"
	"math"
	"testing"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/image"
	"cell-tracer/internal/ledger"
	"cell-tracer/pkg/geometry"
)

func filled(name, marker string, w, h int, v float64) *image.Channel {
	ch := image.NewChannel(name, w, h, map[string]string{"marker": marker})
	for i := range ch.Pix {
		ch.Pix[i] = v
	}
	return ch
}

func addSquare(t *testing.T, l *ledger.Ledger, id, x0, y0, x1, y1 int) *entity.Entity {
	t.Helper()
	e, err := l.MakeEntityWithID(id)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.FromIntContour(geometry.IntContour{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}}); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestExtractScenario(t *testing.T) {
	l := ledger.New(ledger.Options{})
	e := addSquare(t, l, 1, 1, 1, 3, 3)
	stack := image.Stack{filled("a", "CD3", 6, 6, 10), filled("b", "CD8", 6, 6, 4)}

	reducers, err := Lookup([]string{"mean", "sum"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := Extract(context.Background(), l, stack, Options{GroupBy: "marker", Reducers: reducers})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{
		"marker_CD3_mean": 10,
		"marker_CD3_sum":  90,
		"marker_CD8_mean": 4,
		"marker_CD8_sum":  36,
	}
	for k, v := range want {
		if got, ok := e.Scalar(k); !ok || got != v {
			t.Errorf("%s = %v (%v), want %v", k, got, ok, v)
		}
	}
	if res.Entities != 1 || len(res.Keys) != 4 || res.Failures != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestExtractSkipsChannelsWithoutKey(t *testing.T) {
	l := ledger.New(ledger.Options{})
	e := addSquare(t, l, 1, 0, 0, 1, 1)
	bare := image.NewChannel("dapi", 4, 4, nil)
	stack := image.Stack{bare, filled("b", "CD8", 4, 4, 2)}

	if _, err := Extract(context.Background(), l, stack, Options{GroupBy: "marker"}); err != nil {
		t.Fatal(err)
	}
	if len(e.Scalars) != 3 || e.Scalars["marker_CD8_mean"] != 2 {
		t.Errorf("scalars = %v", e.Scalars)
	}

	if _, err := Extract(context.Background(), l, image.Stack{bare}, Options{GroupBy: "marker"}); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("missing key: %v", err)
	}
}

func TestExtractPolicies(t *testing.T) {
	stack := image.Stack{filled("a", "CD3", 4, 4, 1)}

	l := ledger.New(ledger.Options{})
	in := addSquare(t, l, 1, 0, 0, 1, 1)
	out := addSquare(t, l, 2, 2, 2, 5, 5)

	res, err := Extract(context.Background(), l, stack, Options{GroupBy: "marker", Policy: Ignore})
	if err != nil {
		t.Fatal(err)
	}
	if !out.HasTag(OutOfBoundsTag) || len(out.Scalars) != 1 || res.OutOfBounds != 1 {
		t.Errorf("ignore: tags %v scalars %v", out.SortedTags(), out.Scalars)
	}
	if in.HasTag(OutOfBoundsTag) || in.Scalars["marker_CD3_sum"] != 4 {
		t.Errorf("in-bounds entity: %v %v", in.SortedTags(), in.Scalars)
	}

	if _, err := Extract(context.Background(), l, stack, Options{GroupBy: "marker", Policy: Crop}); err != nil {
		t.Fatal(err)
	}
	if out.Scalars["marker_CD3_sum"] != 4 {
		t.Errorf("crop sum = %v, want the 2x2 inside part", out.Scalars["marker_CD3_sum"])
	}

	fresh := ledger.New(ledger.Options{})
	kept := addSquare(t, fresh, 1, 0, 0, 1, 1)
	addSquare(t, fresh, 2, 2, 2, 5, 5)
	if _, err := Extract(context.Background(), fresh, stack, Options{GroupBy: "marker", Policy: Raise}); !errors.Is(err, entity.ErrOutOfBounds) {
		t.Fatalf("raise: %v", err)
	}
	if len(kept.Scalars) != 1 {
		t.Errorf("failed extraction committed results: %v", kept.Scalars)
	}

	if _, err := Extract(context.Background(), fresh, stack, Options{GroupBy: "marker", Policy: Policy(7)}); err == nil {
		t.Errorf("invalid policy accepted")
	}
}

func TestReducerFailureRecordsNaN(t *testing.T) {
	l := ledger.New(ledger.Options{})
	e := addSquare(t, l, 1, 0, 0, 1, 1)
	stack := image.Stack{filled("a", "CD3", 4, 4, 1)}
	reducers := map[string]Reducer{
		"boom":  func([]float64) (float64, error) { panic("bad reducer") },
		"fails": func([]float64) (float64, error) { return 0, errors.New("no") },
		"sum":   Builtin["sum"],
	}
	res, err := Extract(context.Background(), l, stack, Options{GroupBy: "marker", Reducers: reducers})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(e.Scalars["marker_CD3_boom"]) || !math.IsNaN(e.Scalars["marker_CD3_fails"]) {
		t.Errorf("failures not NaN: %v", e.Scalars)
	}
	if e.Scalars["marker_CD3_sum"] != 4 || res.Failures != 2 {
		t.Errorf("sum %v failures %d", e.Scalars["marker_CD3_sum"], res.Failures)
	}
}

func TestExtractCancelled(t *testing.T) {
	l := ledger.New(ledger.Options{})
	e := addSquare(t, l, 1, 0, 0, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Extract(ctx, l, image.Stack{filled("a", "CD3", 4, 4, 1)}, Options{GroupBy: "marker"})
	if !errors.Is(err, entity.ErrCancelled) {
		t.Fatalf("got %v", err)
	}
	if len(e.Scalars) != 1 {
		t.Errorf("cancelled run committed %v", e.Scalars)
	}
}

func TestBuiltinReducers(t *testing.T) {
	x := []float64{4, 1, 3, 2}
	cases := map[string]float64{
		"mean": 2.5, "sum": 10, "median": 2.5, "min": 1, "max": 4, "area": 4,
		"std": math.Sqrt(1.25),
	}
	for name, want := range cases {
		got, err := Builtin[name](x)
		if err != nil || math.Abs(got-want) > 1e-12 {
			t.Errorf("%s = %v, %v; want %v", name, got, err, want)
		}
	}
	if v, _ := Builtin["median"]([]float64{5, 1, 3}); v != 3 {
		t.Errorf("odd median = %v", v)
	}
	if v, _ := Builtin["median"]([]float64{8, 2}); v != 5 {
		t.Errorf("two-value median = %v", v)
	}
	if v, _ := Builtin["median"]([]float64{7}); v != 7 {
		t.Errorf("single-value median = %v", v)
	}
	if x[0] != 4 || x[1] != 1 {
		t.Errorf("median reordered its input: %v", x)
	}
	if _, err := Builtin["mean"](nil); !errors.Is(err, ErrEmptySample) {
		t.Errorf("empty mean: %v", err)
	}
	if _, err := Lookup([]string{"mode"}); err == nil {
		t.Errorf("unknown reducer accepted")
	}
}

func TestParsePolicy(t *testing.T) {
	for s, want := range map[string]Policy{"ignore": Ignore, "CROP": Crop, "raise": Raise} {
		if got, err := ParsePolicy(s); err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParsePolicy("skip"); err == nil {
		t.Errorf("unknown policy accepted")
	}
}
