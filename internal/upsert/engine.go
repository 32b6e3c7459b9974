// Package upsert synthesizes and executes the merge DML: update-only,
// insert-only, or both. Each table's merge is gated on its QA outcome and,
// in interactive mode, on operator confirmation of a preview.
package upsert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stagemerge/stagemerge/internal/catalog"
	"github.com/stagemerge/stagemerge/internal/control"
	"github.com/stagemerge/stagemerge/internal/db"
	"github.com/stagemerge/stagemerge/internal/model"
	"github.com/stagemerge/stagemerge/internal/prompt"
)

// Method selects the merge strategy.
type Method string

const (
	// MethodUpsert updates matched rows, then inserts absent ones.
	MethodUpsert Method = "upsert"
	// MethodUpdate only updates rows whose key already exists in base.
	MethodUpdate Method = "update"
	// MethodInsert only inserts rows whose key is absent from base.
	MethodInsert Method = "insert"
)

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodUpsert, MethodUpdate, MethodInsert:
		return Method(s), nil
	default:
		return "", fmt.Errorf("unknown upsert method %q (want upsert, update, or insert)", s)
	}
}

// Config wires an Engine.
type Config struct {
	Exec        db.Executor
	Control     *control.Table
	Prompter    prompt.Prompter
	Logger      *slog.Logger
	Tables      []string // configuration order
	Descriptors map[string]*model.TableDescriptor
	Method      Method
	SampleLimit int
}

// Engine executes the merge for each table.
type Engine struct {
	exec        db.Executor
	ctrl        *control.Table
	prompter    prompt.Prompter
	logger      *slog.Logger
	tables      []string
	descriptors map[string]*model.TableDescriptor
	method      Method
	sampleLimit int
}

// New creates an upsert engine.
func New(cfg Config) *Engine {
	limit := cfg.SampleLimit
	if limit <= 0 {
		limit = 1000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		exec:        cfg.Exec,
		ctrl:        cfg.Control,
		prompter:    cfg.Prompter,
		logger:      logger,
		tables:      cfg.Tables,
		descriptors: cfg.Descriptors,
		method:      cfg.Method,
		sampleLimit: limit,
	}
}

// UpsertAll merges every table in configuration order.
func (e *Engine) UpsertAll(ctx context.Context) error {
	for _, table := range e.tables {
		if err := e.UpsertOne(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

// UpsertOne merges one table. Tables whose control row carries QA findings
// are skipped with a logged reason; that is not an error. Row counts land in
// the control table once the DML has run.
func (e *Engine) UpsertOne(ctx context.Context, table string) error {
	rec, err := e.ctrl.Get(ctx, table)
	if err != nil {
		return err
	}
	if rec.HasErrors() {
		e.logger.Info("skipping upsert, QA checks failed", "table", table)
		return nil
	}

	d := e.descriptors[table]
	if !d.HasPrimaryKey() && e.method != MethodInsert {
		return &catalog.SchemaError{
			Detail: fmt.Sprintf("table %s has no primary key, required for method %q", d.BaseName, e.method),
		}
	}

	dmlCols := effectiveDMLColumns(d, rec)

	if e.method == MethodUpdate || e.method == MethodUpsert {
		if err := e.runUpdate(ctx, table, d, rec, dmlCols); err != nil {
			return err
		}
	}
	if e.method == MethodInsert || e.method == MethodUpsert {
		if err := e.runInsert(ctx, table, d, rec, dmlCols); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runUpdate(ctx context.Context, table string, d *model.TableDescriptor, rec *control.Record, dmlCols []string) error {
	setCols := nonKeyColumns(d, dmlCols)
	if len(setCols) == 0 {
		e.logger.Info("all columns belong to the primary key, nothing to update", "table", table)
		return nil
	}

	if rec.Interactive {
		preview, err := e.exec.Query(ctx, updatePreviewSQL(d, setCols, e.sampleLimit))
		if err != nil {
			return err
		}
		if !preview.Empty() {
			proceed, err := e.confirmDirection(table, "update", preview)
			if err != nil || !proceed {
				return err
			}
		}
	}

	n, err := e.exec.Exec(ctx, updateSQL(d, setCols))
	if err != nil {
		return err
	}
	e.logger.Info("rows updated", "table", d.BaseName, "rows", n)
	return e.ctrl.SetRowsUpdated(ctx, table, n)
}

func (e *Engine) runInsert(ctx context.Context, table string, d *model.TableDescriptor, rec *control.Record, dmlCols []string) error {
	if rec.Interactive {
		preview, err := e.exec.Query(ctx, insertPreviewSQL(d, e.sampleLimit))
		if err != nil {
			return err
		}
		if !preview.Empty() {
			proceed, err := e.confirmDirection(table, "insert", preview)
			if err != nil || !proceed {
				return err
			}
		}
	}

	n, err := e.exec.Exec(ctx, insertSQL(d, dmlCols))
	if err != nil {
		return err
	}
	e.logger.Info("rows inserted", "table", d.BaseName, "rows", n)
	return e.ctrl.SetRowsInserted(ctx, table, n)
}

// confirmDirection asks the operator about one merge direction. Returns
// (false, nil) on skip and prompt.ErrCancelled on cancel.
func (e *Engine) confirmDirection(table, direction string, preview *model.Rowset) (bool, error) {
	title := fmt.Sprintf("Confirm %s of %s", direction, table)
	message := fmt.Sprintf("%d row(s) staged for %s", preview.Len(), direction)
	decision, err := e.prompter.Confirm(title, message, preview)
	if err != nil {
		return false, err
	}
	switch decision {
	case prompt.Cancel:
		return false, prompt.ErrCancelled
	case prompt.Skip:
		e.logger.Info("operator skipped merge step", "table", table, "direction", direction)
		return false, nil
	default:
		return true, nil
	}
}

// effectiveDMLColumns applies operator edits to the control row's
// exclude_cols on top of the descriptor's DML column list.
func effectiveDMLColumns(d *model.TableDescriptor, rec *control.Record) []string {
	exclude := make(map[string]bool)
	for _, c := range rec.ExcludeColsList() {
		exclude[c] = true
	}
	cols := make([]string, 0, len(d.DMLColumns))
	for _, c := range d.DMLColumns {
		if !exclude[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

func nonKeyColumns(d *model.TableDescriptor, cols []string) []string {
	pk := make(map[string]bool, len(d.PrimaryKey))
	for _, c := range d.PrimaryKey {
		pk[c] = true
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !pk[c] {
			out = append(out, c)
		}
	}
	return out
}
