package table

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"
)

func population(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New(ledger.Options{})
	for id := 1; id <= 3; id++ {
		e, err := l.MakeEntityWithID(id)
		if err != nil {
			t.Fatal(err)
		}
		e.EType = entity.Cell
		e.SetScalar("marker_CD3_mean", float64(10*id))
		if id != 2 {
			e.SetScalar("area", float64(id))
		}
	}
	gone, _ := l.MakeEntityWithID(4)
	gone.SetScalar("retired_only", 1)
	if err := l.Retire(gone); err != nil {
		t.Fatal(err)
	}
	return l
}

func TestFromLedger(t *testing.T) {
	tbl := FromLedger(population(t))
	if !slices.Equal(tbl.Columns, []string{"area", "marker_CD3_mean"}) {
		t.Errorf("Columns = %v", tbl.Columns)
	}
	if len(tbl.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(tbl.Rows))
	}
	for i, row := range tbl.Rows {
		if row.ObjectID != i+1 {
			t.Errorf("row %d id = %d", i, row.ObjectID)
		}
	}
	if !math.IsNaN(tbl.Rows[1].Value("area")) {
		t.Errorf("missing value = %v, want NaN", tbl.Rows[1].Value("area"))
	}

	sel := FromLedger(population(t), "marker_CD3_mean")
	if !slices.Equal(sel.Columns, []string{"marker_CD3_mean"}) {
		t.Errorf("selected Columns = %v", sel.Columns)
	}
}

func TestWriteCSV(t *testing.T) {
	tbl := FromLedger(population(t))
	var buf bytes.Buffer
	if err := WriteCSV(&buf, tbl); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "object_id,eid,area,marker_CD3_mean" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4", len(lines))
	}
	fields := strings.Split(lines[2], ",")
	if fields[0] != "2" || fields[2] != "" || fields[3] != "20" || len(fields[1]) != 32 {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestReadAssignments(t *testing.T) {
	in := "cell, cluster, other\n1, 0, x\n2.0, 3, y\n3, , z\n"
	got, err := ReadAssignments(strings.NewReader(in), "cell", "cluster")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != (Assignment{1, 0}) || got[1] != (Assignment{2, 3}) {
		t.Errorf("assignments = %v", got)
	}
	if got[2].ObjectID != 3 || !math.IsNaN(got[2].Value) {
		t.Errorf("empty value = %v", got[2])
	}

	if _, err := ReadAssignments(strings.NewReader(in), "id", "cluster"); !errors.Is(err, ErrNoColumn) {
		t.Errorf("missing column: err = %v", err)
	}
	if _, err := ReadAssignments(strings.NewReader("cell,cluster\n0,1\n"), "cell", "cluster"); !errors.Is(err, entity.ErrInvalidID) {
		t.Errorf("zero id: err = %v", err)
	}
	if _, err := ReadAssignments(strings.NewReader("cell,cluster\n1.5,1\n"), "cell", "cluster"); !errors.Is(err, entity.ErrInvalidID) {
		t.Errorf("fractional id: err = %v", err)
	}

	got, err = ReadAssignments(strings.NewReader("cell,cluster\n4294967295,2\n"), "cell", "cluster")
	if err != nil || len(got) != 1 || got[0].ObjectID != math.MaxUint32 {
		t.Errorf("32-bit label: %v, %v", got, err)
	}
	if _, err := ReadAssignments(strings.NewReader("cell,cluster\n4294967296,2\n"), "cell", "cluster"); !errors.Is(err, entity.ErrInvalidID) {
		t.Errorf("id past 32 bits: err = %v", err)
	}
}

func TestApply(t *testing.T) {
	l := population(t)
	applied, missing := Apply(l, []Assignment{{1, 2}, {3, 0}, {9, 1}, {4, 5}, {9, 1}}, "cluster")
	if applied != 2 {
		t.Errorf("applied = %d, want 2", applied)
	}
	if !slices.Equal(missing, []int{4, 9}) {
		t.Errorf("missing = %v, want [4 9]", missing)
	}
	if v, ok := l.GetEntity(ledger.ByID(1)).Scalar("cluster"); !ok || v != 2 {
		t.Errorf("cluster of 1 = %v, %v", v, ok)
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "features.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	tbl := FromLedger(population(t))
	if err := WriteSQLite(ctx, db, "features", tbl); err != nil {
		t.Fatal(err)
	}
	// A second write replaces the table.
	if err := WriteSQLite(ctx, db, "features", tbl); err != nil {
		t.Fatal(err)
	}
	got, err := ReadSQLite(ctx, db, "features")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got.Columns, tbl.Columns) || len(got.Rows) != len(tbl.Rows) {
		t.Fatalf("read back %v with %d rows", got.Columns, len(got.Rows))
	}
	for i, row := range got.Rows {
		want := tbl.Rows[i]
		if row.ObjectID != want.ObjectID || row.Eid != want.Eid {
			t.Errorf("row %d = %d/%s, want %d/%s", i, row.ObjectID, row.Eid, want.ObjectID, want.Eid)
		}
		for _, c := range tbl.Columns {
			g, w := row.Value(c), want.Value(c)
			if g != w && !(math.IsNaN(g) && math.IsNaN(w)) {
				t.Errorf("row %d %s = %v, want %v", i, c, g, w)
			}
		}
	}

	if err := WriteSQLite(ctx, db, "bad name; drop", tbl); err == nil {
		t.Error("invalid table name accepted")
	}
}
