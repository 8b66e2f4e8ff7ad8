// Package table flattens entity scalars into feature tables and reads
// cluster assignments back.
package table

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"

	"github.com/google/uuid"
)

// Fixed leading columns.
const (
	ObjectIDColumn = "object_id"
	EidColumn      = "eid"
)

var ErrNoColumn = errors.New("column not found")

// Row is one entity's scalar values.
type Row struct {
	ObjectID int
	Eid      uuid.UUID
	Values   map[string]float64
}

// Table is a set of rows sharing Columns. Missing values are NaN.
type Table struct {
	Columns []string
	Rows    []Row
}

// FromLedger builds a table of the active entities, in ledger iteration
// order. With no keys, the columns are every scalar key present, sorted.
func FromLedger(l *ledger.Ledger, keys ...string) Table {
	var t Table
	seen := make(map[string]bool)
	for e := range l.IterActive() {
		row := Row{ObjectID: e.ObjectID, Eid: e.Eid, Values: make(map[string]float64)}
		for k, v := range e.Scalars {
			if k == entity.ObjectIDKey {
				continue
			}
			row.Values[k] = v
			if !seen[k] {
				seen[k] = true
				t.Columns = append(t.Columns, k)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if len(keys) > 0 {
		t.Columns = slices.Clone(keys)
	} else {
		slices.Sort(t.Columns)
	}
	return t
}

// Value returns the row's value for col, NaN if absent.
func (r Row) Value(col string) float64 {
	if v, ok := r.Values[col]; ok {
		return v
	}
	return math.NaN()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes a header row and one line per Row. NaN is written as an
// empty field.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	header := append([]string{ObjectIDColumn, EidColumn}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range t.Rows {
		record[0] = strconv.Itoa(row.ObjectID)
		record[1] = entity.EidHex(row.Eid)
		for i, col := range t.Columns {
			record[i+2] = formatValue(row.Value(col))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Assignment is one parsed line of a cluster assignment file.
type Assignment struct {
	ObjectID int
	Value    float64
}

// ReadAssignments reads idCol and valueCol from a CSV file with a header
// row. Rows whose id is not a positive integer are rejected.
func ReadAssignments(r io.Reader, idCol, valueCol string) ([]Assignment, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idIdx := slices.Index(header, idCol)
	if idIdx < 0 {
		return nil, fmt.Errorf("%q: %w", idCol, ErrNoColumn)
	}
	valIdx := slices.Index(header, valueCol)
	if valIdx < 0 {
		return nil, fmt.Errorf("%q: %w", valueCol, ErrNoColumn)
	}

	var out []Assignment
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		id, err := parseID(rec[idIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		v := math.NaN()
		if s := strings.TrimSpace(rec[valIdx]); s != "" {
			if v, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, valueCol, err)
			}
		}
		out = append(out, Assignment{ObjectID: id, Value: v})
	}
	return out, nil
}

// parseID accepts integers written as floats, e.g. "12.0".
func parseID(s string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 || f != math.Trunc(f) || f > math.MaxUint32 {
		return 0, fmt.Errorf("object id %q: %w", s, entity.ErrInvalidID)
	}
	return int(f), nil
}

// Apply stores each assignment as scalar key on the active entity with the
// matching id. Ids with no active entity are returned, ascending.
func Apply(l *ledger.Ledger, assignments []Assignment, key string) (applied int, missing []int) {
	for _, a := range assignments {
		e := l.GetEntity(ledger.ByID(a.ObjectID))
		if e == nil {
			missing = append(missing, a.ObjectID)
			continue
		}
		e.SetScalar(key, a.Value)
		l.Touch(e)
		applied++
	}
	slices.SortFunc(missing, cmp.Compare[int])
	return applied, slices.Compact(missing)
}
