package table

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cell-tracer/internal/entity"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// WriteSQLite replaces table name with t in a single transaction. NaN is
// stored as NULL.
func WriteSQLite(ctx context.Context, db *sql.DB, name string, t Table) (retErr error) {
	if !tableName.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	cols := []string{quote(ObjectIDColumn) + " INTEGER", quote(EidColumn) + " TEXT PRIMARY KEY"}
	for _, c := range t.Columns {
		cols = append(cols, quote(c)+" REAL")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(name)); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quote(name), strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)+2), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quote(name), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns)+2)
	for _, row := range t.Rows {
		args[0] = row.ObjectID
		args[1] = entity.EidHex(row.Eid)
		for i, c := range t.Columns {
			if v := row.Value(c); math.IsNaN(v) {
				args[i+2] = nil
			} else {
				args[i+2] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", row.Eid, err)
		}
	}
	return tx.Commit()
}

// ReadSQLite loads a table written by WriteSQLite.
func ReadSQLite(ctx context.Context, db *sql.DB, name string) (Table, error) {
	if !tableName.MatchString(name) {
		return Table{}, fmt.Errorf("invalid table name %q", name)
	}
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quote(name)+" ORDER BY rowid")
	if err != nil {
		return Table{}, fmt.Errorf("select: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return Table{}, err
	}
	if len(names) < 2 || names[0] != ObjectIDColumn || names[1] != EidColumn {
		return Table{}, fmt.Errorf("table %s is not a feature table", name)
	}
	t := Table{Columns: names[2:]}
	for rows.Next() {
		var (
			id     int
			eidHex string
			vals   = make([]sql.NullFloat64, len(t.Columns))
			dest   = []any{&id, &eidHex}
		)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return Table{}, fmt.Errorf("scan: %w", err)
		}
		eid, err := entity.ParseEid(eidHex)
		if err != nil {
			return Table{}, err
		}
		row := Row{ObjectID: id, Eid: eid, Values: make(map[string]float64)}
		for i, v := range vals {
			if v.Valid {
				row.Values[t.Columns[i]] = v.Float64
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}
