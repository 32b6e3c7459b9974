package stagemerge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/stagemerge/stagemerge/internal/catalog"
	"github.com/stagemerge/stagemerge/internal/control"
	"github.com/stagemerge/stagemerge/internal/db"
	"github.com/stagemerge/stagemerge/internal/model"
	"github.com/stagemerge/stagemerge/internal/prompt"
	"github.com/stagemerge/stagemerge/internal/qa"
	"github.com/stagemerge/stagemerge/internal/upsert"
)

// ControlRecord is one row of the session control table.
type ControlRecord = control.Record

// ErrCancelled is returned by QA and upsert entry points when the operator
// cancels from a prompt. Run converts it to OutcomeCancelled.
var ErrCancelled = prompt.ErrCancelled

// runState tracks the orchestrator through its lifecycle.
type runState int

const (
	stateInit runState = iota
	stateInspected
	stateQARun
	stateQAFailed
	stateUpsertRun
	stateCancelled
	stateFinalized
	stateClosed
)

// Upserter is the run handle. Build one with New, then either call Run for
// the full sequence or drive the QA and upsert phases individually.
type Upserter struct {
	cfg      Config
	sess     *db.Session
	insp     *catalog.Inspector
	ctrl     *control.Table
	qa       *qa.Engine
	ups      *upsert.Engine
	logger   *slog.Logger
	out      outWriter
	runID    string
	state    runState
	started  time.Time
	tables   []string
	descript map[string]*model.TableDescriptor
}

// New validates the configuration, opens (or adopts) the session, begins the
// transaction, inspects the catalog for every configured table, and creates
// and seeds the control table. Any ConfigError or SchemaError surfaces here,
// before QA or DML.
func New(ctx context.Context, cfg Config) (*Upserter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	var sess *db.Session
	var err error
	if cfg.DB != nil {
		sess, err = db.Adopt(ctx, cfg.DB)
	} else {
		sess, err = db.Open(ctx, cfg.DSN())
	}
	if err != nil {
		return nil, err
	}

	u := &Upserter{
		cfg:     cfg,
		sess:    sess,
		logger:  logger,
		out:     outWriter{w: out},
		runID:   uuid.Must(uuid.NewV7()).String(),
		started: time.Now(),
		tables:  cfg.Tables,
	}

	if err := u.inspect(ctx); err != nil {
		sess.Close(ctx)
		return nil, err
	}
	return u, nil
}

// inspect validates schemas, builds every table descriptor, and seeds the
// control table. Fails before any DML on schema problems.
func (u *Upserter) inspect(ctx context.Context) error {
	u.insp = catalog.New(u.sess, u.cfg.StagingSchema, u.cfg.BaseSchema)

	for _, schema := range []string{u.cfg.StagingSchema, u.cfg.BaseSchema} {
		ok, err := u.insp.SchemaExists(ctx, schema)
		if err != nil {
			return err
		}
		if !ok {
			return &catalog.SchemaError{Detail: fmt.Sprintf("schema %q does not exist", schema)}
		}
	}

	u.descript = make(map[string]*model.TableDescriptor, len(u.tables))
	for _, table := range u.tables {
		d, err := u.insp.Describe(ctx, table, u.cfg.ExcludeCols, u.cfg.ExcludeNullCheckCols)
		if err != nil {
			return err
		}
		if !d.HasPrimaryKey() && u.cfg.Method != MethodInsert {
			return &catalog.SchemaError{
				Detail: fmt.Sprintf("table %s has no primary key, required for method %q", d.BaseName, u.cfg.Method),
			}
		}
		u.descript[table] = d
		u.logger.Debug("inspected table", "run_id", u.runID, "table", table,
			"columns", len(d.Columns), "pk_columns", len(d.PrimaryKey),
			"foreign_keys", len(d.ForeignKeys), "check_constraints", len(d.CheckConstraints))
	}

	u.ctrl = control.New(u.sess, u.cfg.ControlTable)
	if err := u.ctrl.Create(ctx); err != nil {
		return err
	}
	if err := u.ctrl.Seed(ctx, u.tables, u.cfg.ExcludeCols, u.cfg.ExcludeNullCheckCols, u.cfg.Interactive); err != nil {
		return err
	}

	prompter := u.newPrompter()
	u.qa = qa.New(qa.Config{
		Exec:        u.sess,
		Control:     u.ctrl,
		Prompter:    prompter,
		Logger:      u.logger,
		Tables:      u.tables,
		Descriptors: u.descript,
		StgSchema:   u.cfg.StagingSchema,
		SampleLimit: u.cfg.SampleLimit,
	})
	u.ups = upsert.New(upsert.Config{
		Exec:        u.sess,
		Control:     u.ctrl,
		Prompter:    prompter,
		Logger:      u.logger,
		Tables:      u.tables,
		Descriptors: u.descript,
		Method:      u.cfg.Method,
		SampleLimit: u.cfg.SampleLimit,
	})

	u.state = stateInspected
	return nil
}

func (u *Upserter) newPrompter() prompt.Prompter {
	if !u.cfg.Interactive {
		return prompt.Silent{}
	}
	switch u.cfg.Prompter {
	case PrompterGUI:
		return prompt.TUI{}
	case PrompterSilent:
		return prompt.Silent{}
	default:
		return prompt.NewTerminal(os.Stdin, os.Stderr)
	}
}

// Run executes the full sequence: QA over every table, the gate, the merges,
// the summary, and the final commit or rollback. The returned Outcome is the
// terminal state; a non-nil error means the run aborted on a database or
// schema failure and was rolled back.
func (u *Upserter) Run(ctx context.Context) (Outcome, error) {
	u.logger.Info("starting run", "run_id", u.runID,
		"staging_schema", u.cfg.StagingSchema, "base_schema", u.cfg.BaseSchema,
		"tables", len(u.tables), "method", string(u.cfg.Method), "commit", u.cfg.Commit)

	passed, err := u.QAAll(ctx)
	if err != nil {
		if errors.Is(err, prompt.ErrCancelled) {
			return u.cancel(ctx)
		}
		return 0, u.abort(ctx, err)
	}
	if !passed {
		u.state = stateQAFailed
		u.logger.Warn("QA checks failed, no changes will be made", "run_id", u.runID)
		u.emitSummary(ctx)
		u.rollback(ctx)
		u.state = stateFinalized
		u.finish(OutcomeQAFailed)
		return OutcomeQAFailed, nil
	}

	u.state = stateUpsertRun
	if err := u.ups.UpsertAll(ctx); err != nil {
		if errors.Is(err, prompt.ErrCancelled) {
			return u.cancel(ctx)
		}
		return 0, u.abort(ctx, err)
	}

	u.emitSummary(ctx)

	outcome := OutcomeNoCommit
	if u.cfg.Commit {
		if err := u.Commit(ctx); err != nil {
			return 0, u.abort(ctx, err)
		}
		outcome = OutcomeCommitted
	} else {
		u.rollback(ctx)
	}
	u.state = stateFinalized
	u.finish(outcome)
	return outcome, nil
}

// cancel handles operator cancellation: partial summary, rollback, exit.
func (u *Upserter) cancel(ctx context.Context) (Outcome, error) {
	u.state = stateCancelled
	u.logger.Warn("run cancelled by operator", "run_id", u.runID)
	u.emitSummary(ctx)
	u.rollback(ctx)
	u.finish(OutcomeCancelled)
	return OutcomeCancelled, nil
}

// abort rolls back after a database or schema failure and passes the error
// through.
func (u *Upserter) abort(ctx context.Context, err error) error {
	u.rollback(ctx)
	u.out.notice(false)
	return err
}

// finish logs elapsed time and prints the committed/rolled-back notice.
func (u *Upserter) finish(outcome Outcome) {
	u.out.notice(outcome == OutcomeCommitted)
	u.logger.Info("run finished", "run_id", u.runID,
		"outcome", outcome.String(), "elapsed", time.Since(u.started).Round(time.Millisecond).String())
}

// QAAll runs all four check families over every configured table and
// reports whether QA passed.
func (u *Upserter) QAAll(ctx context.Context) (bool, error) {
	u.state = stateQARun
	return u.qa.CheckAll(ctx)
}

// QAOneNull runs the NOT-NULL check for one table.
func (u *Upserter) QAOneNull(ctx context.Context, table string) error {
	if err := u.knownTable(table); err != nil {
		return err
	}
	return u.qa.CheckNulls(ctx, table)
}

// QAOnePK runs the duplicate-key check for one table.
func (u *Upserter) QAOnePK(ctx context.Context, table string) error {
	if err := u.knownTable(table); err != nil {
		return err
	}
	return u.qa.CheckPrimaryKey(ctx, table)
}

// QAOneFK runs the foreign-key check for one table.
func (u *Upserter) QAOneFK(ctx context.Context, table string) error {
	if err := u.knownTable(table); err != nil {
		return err
	}
	return u.qa.CheckForeignKeys(ctx, table)
}

// QAOneCK runs the check-constraint check for one table.
func (u *Upserter) QAOneCK(ctx context.Context, table string) error {
	if err := u.knownTable(table); err != nil {
		return err
	}
	return u.qa.CheckConstraints(ctx, table)
}

// UpsertAll merges every configured table, honouring the per-table QA gate.
func (u *Upserter) UpsertAll(ctx context.Context) error {
	u.state = stateUpsertRun
	return u.ups.UpsertAll(ctx)
}

// UpsertOne merges one table, honouring its QA gate.
func (u *Upserter) UpsertOne(ctx context.Context, table string) error {
	if err := u.knownTable(table); err != nil {
		return err
	}
	return u.ups.UpsertOne(ctx, table)
}

// Commit drops the control table and commits the transaction.
func (u *Upserter) Commit(ctx context.Context) error {
	if err := u.ctrl.Drop(ctx); err != nil {
		return err
	}
	return u.sess.Commit(ctx)
}

// Rollback rolls the transaction back. Safe to call more than once.
func (u *Upserter) Rollback(ctx context.Context) error {
	return u.sess.Rollback(ctx)
}

// Close rolls back any open transaction and releases the session. Pools
// passed in through Config.DB stay open.
func (u *Upserter) Close(ctx context.Context) error {
	u.state = stateClosed
	return u.sess.Close(ctx)
}

// ControlSnapshot returns the current control table contents.
func (u *Upserter) ControlSnapshot(ctx context.Context) ([]ControlRecord, error) {
	return u.ctrl.Snapshot(ctx)
}

func (u *Upserter) knownTable(table string) error {
	for _, t := range u.tables {
		if t == table {
			return nil
		}
	}
	return configErrorf("table %q is not in the configured table list", table)
}

// rollback is the quiet internal variant; a failure here is logged and
// otherwise ignored because the session is going away regardless.
func (u *Upserter) rollback(ctx context.Context) {
	if err := u.sess.Rollback(ctx); err != nil {
		u.logger.Debug("rollback failed", "run_id", u.runID, "error", err)
	}
}

// emitSummary renders the control table in configuration order.
func (u *Upserter) emitSummary(ctx context.Context) {
	records := make([]control.Record, 0, len(u.tables))
	for _, table := range u.tables {
		rec, err := u.ctrl.Get(ctx, table)
		if err != nil {
			u.logger.Debug("summary unavailable", "run_id", u.runID, "error", err)
			return
		}
		records = append(records, *rec)
	}
	u.out.summary(records)
}
