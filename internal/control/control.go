// Package control manages the session-scoped control table: one row per
// configured table carrying the effective per-table flags, the accumulated
// QA findings, and the final row counts. The table is a real temporary
// table so the operator can query and edit it between phases.
package control

import (
	"context"
	"fmt"
	"strings"

	"github.com/stagemerge/stagemerge/internal/db"
	"github.com/stagemerge/stagemerge/internal/model"
	"github.com/stagemerge/stagemerge/internal/query"
)

// DefaultName is the control table name used when none is configured.
const DefaultName = "ups_control"

// Error field identifiers accepted by AppendError.
const (
	FieldNullErrors = "null_errors"
	FieldPKErrors   = "pk_errors"
	FieldFKErrors   = "fk_errors"
	FieldCKErrors   = "ck_errors"
)

var errorFields = map[string]bool{
	FieldNullErrors: true,
	FieldPKErrors:   true,
	FieldFKErrors:   true,
	FieldCKErrors:   true,
}

// Record is one control table row.
type Record struct {
	TableName         string
	ExcludeCols       string
	ExcludeNullChecks string
	Interactive       bool
	NullErrors        string
	PKErrors          string
	FKErrors          string
	CKErrors          string
	RowsUpdated       int64
	RowsInserted      int64
}

// HasErrors reports whether any QA family recorded a finding for this table.
func (r *Record) HasErrors() bool {
	return r.NullErrors != "" || r.PKErrors != "" || r.FKErrors != "" || r.CKErrors != ""
}

// ExcludeColsList splits the comma-separated exclude_cols field.
func (r *Record) ExcludeColsList() []string { return splitList(r.ExcludeCols) }

// ExcludeNullChecksList splits the comma-separated exclude_null_checks field.
func (r *Record) ExcludeNullChecksList() []string { return splitList(r.ExcludeNullChecks) }

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

const selectColumns = `table_name, exclude_cols, exclude_null_checks, interactive,
	null_errors, pk_errors, fk_errors, ck_errors, rows_updated, rows_inserted`

// Table is the handle on the session's control table.
type Table struct {
	exec db.Executor
	name string // validated identifier
}

// New creates a handle on a control table with the given name. The name must
// already be a validated identifier.
func New(exec db.Executor, name string) *Table {
	return &Table{exec: exec, name: name}
}

// Name returns the control table name.
func (t *Table) Name() string { return t.name }

// Create creates the temporary control table. It lives for the session and
// disappears with it.
func (t *Table) Create(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TEMPORARY TABLE %s (
	table_name text PRIMARY KEY,
	exclude_cols text,
	exclude_null_checks text,
	interactive boolean NOT NULL DEFAULT false,
	null_errors text,
	pk_errors text,
	fk_errors text,
	ck_errors text,
	rows_updated integer NOT NULL DEFAULT 0,
	rows_inserted integer NOT NULL DEFAULT 0
)`, query.QuoteIdentifier(t.name))
	_, err := t.exec.Exec(ctx, ddl)
	return err
}

// Seed inserts one row per configured table with the run-level defaults.
// Empty exclude lists are stored as NULL.
func (t *Table) Seed(ctx context.Context, tables []string, excludeCols, excludeNullChecks []string, interactive bool) error {
	stmt := fmt.Sprintf(
		`INSERT INTO %s (table_name, exclude_cols, exclude_null_checks, interactive) VALUES ($1, $2, $3, $4)`,
		query.QuoteIdentifier(t.name))
	for _, table := range tables {
		if _, err := t.exec.Exec(ctx, stmt, table, nullable(excludeCols), nullable(excludeNullChecks), interactive); err != nil {
			return err
		}
	}
	return nil
}

func nullable(list []string) any {
	if len(list) == 0 {
		return nil
	}
	return strings.Join(list, ",")
}

// Get returns the control row for one table.
func (t *Table) Get(ctx context.Context, table string) (*Record, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM %s WHERE table_name = $1`,
		selectColumns, query.QuoteIdentifier(t.name))
	rs, err := t.exec.Query(ctx, stmt, table)
	if err != nil {
		return nil, err
	}
	if rs.Empty() {
		return nil, fmt.Errorf("control table has no row for %q", table)
	}
	return scanRecord(rs.Rows[0]), nil
}

// AppendError appends a finding to one of the four error fields, comma
// separated. Error fields only grow during a run.
func (t *Table) AppendError(ctx context.Context, table, field, finding string) error {
	if !errorFields[field] {
		return fmt.Errorf("unknown control error field %q", field)
	}
	stmt := fmt.Sprintf(
		`UPDATE %s SET %s = CASE WHEN %s IS NULL THEN $1 ELSE %s || ', ' || $1 END WHERE table_name = $2`,
		query.QuoteIdentifier(t.name), field, field, field)
	_, err := t.exec.Exec(ctx, stmt, finding, table)
	return err
}

// SetRowsUpdated records the UPDATE row count after an upsert.
func (t *Table) SetRowsUpdated(ctx context.Context, table string, n int64) error {
	return t.setCount(ctx, table, "rows_updated", n)
}

// SetRowsInserted records the INSERT row count after an upsert.
func (t *Table) SetRowsInserted(ctx context.Context, table string, n int64) error {
	return t.setCount(ctx, table, "rows_inserted", n)
}

func (t *Table) setCount(ctx context.Context, table, field string, n int64) error {
	stmt := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE table_name = $2`,
		query.QuoteIdentifier(t.name), field)
	_, err := t.exec.Exec(ctx, stmt, n, table)
	return err
}

// Snapshot returns every control row, ordered by table name.
func (t *Table) Snapshot(ctx context.Context) ([]Record, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM %s ORDER BY table_name`,
		selectColumns, query.QuoteIdentifier(t.name))
	rs, err := t.exec.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, rs.Len())
	for i := range rs.Rows {
		out = append(out, *scanRecord(rs.Rows[i]))
	}
	return out, nil
}

// Drop removes the control table. Harmless if the session is about to end
// anyway.
func (t *Table) Drop(ctx context.Context) error {
	_, err := t.exec.Exec(ctx, "DROP TABLE IF EXISTS "+query.QuoteIdentifier(t.name))
	return err
}

func scanRecord(row []any) *Record {
	r := &Record{
		TableName:         model.AsString(row[0]),
		ExcludeCols:       model.AsString(row[1]),
		ExcludeNullChecks: model.AsString(row[2]),
		NullErrors:        model.AsString(row[4]),
		PKErrors:          model.AsString(row[5]),
		FKErrors:          model.AsString(row[6]),
		CKErrors:          model.AsString(row[7]),
		RowsUpdated:       model.AsInt64(row[8]),
		RowsInserted:      model.AsInt64(row[9]),
	}
	if b, ok := row[3].(bool); ok {
		r.Interactive = b
	}
	return r
}
