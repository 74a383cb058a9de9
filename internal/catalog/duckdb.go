// duckdb.go - Tables in a DuckDB database served as datasets
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/tephra-labs/tephra/pkg/dataset"
)

// DuckDB serves the tables of a database as datasets. Numeric columns
// become variables over a synthetic "row" axis; other columns are left
// out. Refs are table names, schema-qualified outside main.
type DuckDB struct {
	name string
	path string
	db   *sql.DB
}

// OpenDuckDB opens the database at path and serves its tables under name.
// Use ":memory:" for a transient database.
func OpenDuckDB(name, path string) (*DuckDB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging duckdb at %s: %w", path, err)
	}
	return &DuckDB{name: name, path: path, db: db}, nil
}

// NewDuckDBStore wraps an existing connection. The store takes ownership
// and closes it.
func NewDuckDBStore(name string, db *sql.DB) *DuckDB {
	return &DuckDB{name: name, db: db}
}

// Name returns the store's registry name.
func (d *DuckDB) Name() string { return d.name }

// Entries lists the user tables, schema-qualified outside main.
func (d *DuckDB) Entries(ctx context.Context) ([]Entry, error) {
	const query = `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_schema, table_name
	`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var schema, table string
		if err := rows.Scan(&schema, &table); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		ref := table
		if schema != "main" {
			ref = schema + "." + table
		}
		entries = append(entries, Entry{Store: d.name, Ref: ref})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return entries, nil
}

// Describe reports a table's columns, row count, and the numeric columns
// that would become variables.
func (d *DuckDB) Describe(ctx context.Context, ref string) (*Info, error) {
	schema, table := splitTableRef(ref)

	cols, err := d.columns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &NotFoundError{Store: d.name, Ref: ref}
	}

	info := &Info{
		Store:   d.name,
		Ref:     ref,
		Dims:    []string{"row"},
		Columns: cols,
	}
	for _, c := range cols {
		if numericType(c.Type) {
			info.Vars = append(info.Vars, c.Name)
		}
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", quoteIdent(schema), quoteIdent(table))
	if err := d.db.QueryRowContext(ctx, countQuery).Scan(&info.Rows); err != nil {
		// Non-fatal, the count is informational.
		info.Rows = 0
	}
	return info, nil
}

// Open reads a table into a dataset, one variable per numeric column over
// a synthetic "row" axis. NULL cells become NaN.
func (d *DuckDB) Open(ctx context.Context, ref string) (*dataset.Dataset, error) {
	schema, table := splitTableRef(ref)

	cols, err := d.columns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &NotFoundError{Store: d.name, Ref: ref}
	}

	var numeric []string
	for _, c := range cols {
		if numericType(c.Type) {
			numeric = append(numeric, c.Name)
		}
	}
	if len(numeric) == 0 {
		return nil, fmt.Errorf("table %s in store %s has no numeric columns", ref, d.name)
	}

	sel := make([]string, len(numeric))
	for i, name := range numeric {
		sel[i] = fmt.Sprintf("CAST(%s AS DOUBLE)", quoteIdent(name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s.%s",
		strings.Join(sel, ", "), quoteIdent(schema), quoteIdent(table))

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", ref, err)
	}
	defer func() { _ = rows.Close() }()

	values := make([][]float64, len(numeric))
	for i := range values {
		values[i] = make([]float64, 0)
	}
	cells := make([]sql.NullFloat64, len(numeric))
	ptrs := make([]any, len(numeric))
	for i := range cells {
		ptrs[i] = &cells[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning table %s: %w", ref, err)
		}
		for i, c := range cells {
			if c.Valid {
				values[i] = append(values[i], c.Float64)
			} else {
				values[i] = append(values[i], math.NaN())
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading table %s: %w", ref, err)
	}

	n := len(values[0])
	row := make([]float64, n)
	for i := range row {
		row[i] = float64(i)
	}

	ds := dataset.New(table)
	ds.Attrs["store"] = d.name
	ds.Coords["row"] = row
	for i, name := range numeric {
		ds.Vars[name] = &dataset.Variable{Dims: []string{"row"}, Values: values[i]}
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("table %s: %w", ref, err)
	}
	return ds, nil
}

// Close closes the database.
func (d *DuckDB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DuckDB) columns(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	const query = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`
	rows, err := d.db.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("querying columns of %s.%s: %w", schema, table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying columns of %s.%s: %w", schema, table, err)
	}
	return cols, nil
}

// splitTableRef splits schema.table, defaulting the schema to main.
func splitTableRef(ref string) (schema, table string) {
	if parts := strings.SplitN(ref, ".", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "main", ref
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func numericType(t string) bool {
	t = strings.ToUpper(t)
	if strings.HasPrefix(t, "DECIMAL") || strings.HasPrefix(t, "NUMERIC") {
		return true
	}
	switch t {
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT",
		"FLOAT", "REAL", "DOUBLE":
		return true
	}
	return false
}

var _ Store = (*DuckDB)(nil)
