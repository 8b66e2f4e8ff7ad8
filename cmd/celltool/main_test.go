package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cellimage "cell-tracer/internal/image"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/persist"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("celltool %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// fixture writes a 12x12 label pixmap with labels 1 and 2 and a uniform
// channel image reading 10.
func fixture(t *testing.T) (dir, pixmap, channel string) {
	t.Helper()
	dir = t.TempDir()
	labels := image.NewGray16(image.Rect(0, 0, 12, 12))
	for y := 2; y <= 4; y++ {
		for x := 2; x <= 4; x++ {
			labels.SetGray16(x, y, color.Gray16{Y: 1})
		}
	}
	for y := 7; y <= 9; y++ {
		for x := 6; x <= 10; x++ {
			labels.SetGray16(x, y, color.Gray16{Y: 2})
		}
	}
	pixmap = filepath.Join(dir, "labels.png")
	writePNG(t, pixmap, labels)

	ch := image.NewGray(image.Rect(0, 0, 12, 12))
	for i := range ch.Pix {
		ch.Pix[i] = 10
	}
	channel = filepath.Join(dir, "cd3.png")
	writePNG(t, channel, ch)
	return dir, pixmap, channel
}

func loadLedger(t *testing.T, path string) *ledger.Ledger {
	t.Helper()
	l := ledger.New(ledger.Options{})
	if _, err := persist.LoadFile(path, l, persist.Options{Strict: true}); err != nil {
		t.Fatal(err)
	}
	return l
}

func TestPipeline(t *testing.T) {
	dir, pixmap, channel := fixture(t)
	ent := filepath.Join(dir, "cells.ent")

	out := mustRun(t, "generate", pixmap, ent, "--log-level", "error")
	if !strings.Contains(out, "2 entities") {
		t.Errorf("generate output %q", out)
	}
	l := loadLedger(t, ent)
	if l.ActiveLen() != 2 || l.GetEntity(ledger.ByID(2)).Area() != 15 {
		t.Fatalf("generated %d entities", l.ActiveLen())
	}

	// Label image round trip reproduces the input pixmap.
	labelsOut := filepath.Join(dir, "out.png")
	mustRun(t, "topixmap", ent, labelsOut, "--width", "12", "--height", "12")
	want, _ := cellimage.LoadLabels(pixmap)
	got, err := cellimage.LoadLabels(labelsOut)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want.Pix {
		if got.Pix[i] != want.Pix[i] {
			t.Fatalf("pixel %d = %d, want %d", i, got.Pix[i], want.Pix[i])
		}
	}

	// Features.
	csvOut := filepath.Join(dir, "features.csv")
	measured := filepath.Join(dir, "measured.ent")
	mustRun(t, "extract", ent, channel+":marker=CD3", "--out", csvOut, "--save", measured, "--reducers", "mean,area")
	data, err := os.ReadFile(csvOut)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "object_id,eid,marker_CD3_area,marker_CD3_mean" || len(lines) != 3 {
		t.Fatalf("table:\n%s", data)
	}
	if !strings.HasSuffix(lines[1], ",9,10") || !strings.HasSuffix(lines[2], ",15,10") {
		t.Errorf("rows:\n%s", data)
	}
	if v, _ := loadLedger(t, measured).GetEntity(ledger.ByID(1)).Scalar("marker_CD3_mean"); v != 10 {
		t.Errorf("saved scalar = %v", v)
	}

	// Cluster assignments.
	assign := filepath.Join(dir, "clusters.csv")
	if err := os.WriteFile(assign, []byte("object_id,cluster\n1,0\n2,1\n7,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out = mustRun(t, "mergecsv", measured, assign)
	if !strings.Contains(out, "2 of 3") {
		t.Errorf("mergecsv output %q", out)
	}
	if v, ok := loadLedger(t, measured).GetEntity(ledger.ByID(2)).Scalar("cluster"); !ok || v != 1 {
		t.Errorf("cluster = %v, %v", v, ok)
	}

	drawn := filepath.Join(dir, "clusters.png")
	mustRun(t, "clusterdraw", measured, drawn, "--width", "12", "--height", "12")
	if _, err := os.Stat(drawn); err != nil {
		t.Errorf("clusterdraw wrote nothing: %v", err)
	}

	// Legacy round trip keeps ids and scalars.
	legacy := filepath.Join(dir, "cells.json")
	mustRun(t, "convert", measured, legacy)
	back := filepath.Join(dir, "back.ent")
	mustRun(t, "convert", legacy, back, "--to", "current", "--strict")
	if v, _ := loadLedger(t, back).GetEntity(ledger.ByID(2)).Scalar("cluster"); v != 1 {
		t.Errorf("cluster after legacy round trip = %v", v)
	}
}

func TestMetricsFile(t *testing.T) {
	dir, pixmap, _ := fixture(t)
	metricsPath := filepath.Join(dir, "celltool.prom")
	mustRun(t, "generate", pixmap, filepath.Join(dir, "cells.ent"), "--metrics-file", metricsPath)
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "celltracer_entities_generated_total 2") {
		t.Errorf("metrics:\n%s", data)
	}
}

func TestErrors(t *testing.T) {
	dir, pixmap, _ := fixture(t)
	cases := [][]string{
		{"generate", filepath.Join(dir, "missing.png"), filepath.Join(dir, "x.ent")},
		{"generate", pixmap, filepath.Join(dir, "x.ent"), "--etype", "blob"},
		{"convert", pixmap, filepath.Join(dir, "x.ent")},
		{"convert", "a", "b", "--to", "yaml"},
		{"topixmap", filepath.Join(dir, "missing.ent"), filepath.Join(dir, "x.png")},
		{"generate", pixmap, filepath.Join(dir, "x.ent"), "--log-level", "loud"},
	}
	for _, args := range cases {
		if _, err := run(t, args...); err == nil {
			t.Errorf("celltool %s: want error", strings.Join(args, " "))
		}
	}
}

func TestParseChannelArg(t *testing.T) {
	path, meta, err := parseChannelArg("/data/cd3.tif:marker=CD3,exposure=20")
	if err != nil || path != "/data/cd3.tif" || meta["marker"] != "CD3" || meta["exposure"] != "20" {
		t.Errorf("got %q %v %v", path, meta, err)
	}
	path, meta, _ = parseChannelArg("/data/cd3.tif")
	if path != "/data/cd3.tif" || len(meta) != 0 {
		t.Errorf("plain path: %q %v", path, meta)
	}
	if _, _, err := parseChannelArg("x.tif:marker=CD3,oops"); err == nil {
		t.Error("want error for malformed metadata")
	}
}

func TestVersion(t *testing.T) {
	if out := mustRun(t, "version"); !strings.HasPrefix(out, "celltool ") {
		t.Errorf("version output %q", out)
	}
}
