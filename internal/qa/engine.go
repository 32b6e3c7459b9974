// Package qa runs the four pre-merge integrity check families over the
// configured tables and accumulates findings in the control table. The
// checks mirror the constraints declared on the base tables but run against
// the staging rows, so problems surface before any DML.
package qa

import (
	"context"
	"log/slog"

	"github.com/stagemerge/stagemerge/internal/control"
	"github.com/stagemerge/stagemerge/internal/db"
	"github.com/stagemerge/stagemerge/internal/model"
	"github.com/stagemerge/stagemerge/internal/prompt"
)

// Config wires an Engine.
type Config struct {
	Exec        db.Executor
	Control     *control.Table
	Prompter    prompt.Prompter
	Logger      *slog.Logger
	Tables      []string // configuration order
	Descriptors map[string]*model.TableDescriptor
	StgSchema   string
	SampleLimit int
}

// Engine orchestrates the NOT-NULL, PK, FK, and CK checks.
type Engine struct {
	exec        db.Executor
	ctrl        *control.Table
	prompter    prompt.Prompter
	logger      *slog.Logger
	tables      []string
	descriptors map[string]*model.TableDescriptor
	loadSet     map[string]bool
	stgSchema   string
	sampleLimit int
}

// New creates a QA engine.
func New(cfg Config) *Engine {
	loadSet := make(map[string]bool, len(cfg.Tables))
	for _, t := range cfg.Tables {
		loadSet[t] = true
	}
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
		loadSet:     loadSet,
		stgSchema:   cfg.StgSchema,
		sampleLimit: limit,
	}
}

// CheckAll runs every family over every table in configuration order and
// reports whether QA passed (no error field set on any control row). A table
// failing one family is still subjected to the rest, so the summary is
// complete.
func (e *Engine) CheckAll(ctx context.Context) (bool, error) {
	for _, table := range e.tables {
		e.logger.Info("running QA checks", "table", table)
		if err := e.CheckNulls(ctx, table); err != nil {
			return false, err
		}
		if err := e.CheckPrimaryKey(ctx, table); err != nil {
			return false, err
		}
		if err := e.CheckForeignKeys(ctx, table); err != nil {
			return false, err
		}
		if err := e.CheckConstraints(ctx, table); err != nil {
			return false, err
		}
	}

	records, err := e.ctrl.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	for i := range records {
		if records[i].HasErrors() {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) descriptor(table string) *model.TableDescriptor {
	return e.descriptors[table]
}

// stgDisplay is the human-readable staging table name used in findings,
// e.g. "staging.authors".
func (e *Engine) stgDisplay(table string) string {
	return e.stgSchema + "." + table
}

// confirm surfaces a finding and its sample through the prompter. Returns
// prompt.ErrCancelled when the operator cancels the run.
func (e *Engine) confirm(title, message string, sample *model.Rowset) error {
	decision, err := e.prompter.Confirm(title, message, sample)
	if err != nil {
		return err
	}
	if decision == prompt.Cancel {
		return prompt.ErrCancelled
	}
	return nil
}
