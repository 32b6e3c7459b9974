// Package cli implements the stagemerge command line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stagemerge/stagemerge"
	"github.com/stagemerge/stagemerge/internal/config"
)

// Exit codes reported to the shell.
const (
	exitOK        = 0
	exitConfig    = 1
	exitQAFailed  = 2
	exitCancelled = 3
	exitDatabase  = 4
)

// options collects every flag value.
type options struct {
	host           string
	port           int
	database       string
	user           string
	stagingSchema  string
	baseSchema     string
	encoding       string
	tables         []string
	excludeColumns []string
	nullColumns    []string
	upsertMethod   string
	commit         bool
	interactive    bool
	gui            bool
	quiet          bool
	debug          bool
	logfile        string
	configFile     string
	generateConfig bool
}

// exitError carries a shell exit code through cobra. A nil inner error
// means the cause was already reported (e.g. via the summary).
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute runs the CLI and returns the process exit code.
func Execute(version, commit, date string) int {
	cmd := newRootCmd(version, commit, date)
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return exitCodeFor(err)
}

func newRootCmd(version, commit, date string) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "stagemerge",
		Short: "Validate staged rows and merge them into base tables",
		Long: `Stagemerge checks the rows in a staging schema against the constraints
declared on the matching base-schema tables (NOT NULL, primary key, foreign
key, check constraints) and, when every check passes, merges them into the
base tables with update, insert, or combined upsert statements. The whole
run executes in one transaction: everything is committed or nothing is.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "", "Database host")
	f.IntVar(&opts.port, "port", 5432, "Database port")
	f.StringVarP(&opts.database, "database", "d", "", "Database name")
	f.StringVarP(&opts.user, "user", "u", "", "Database user")
	f.StringVarP(&opts.stagingSchema, "staging-schema", "s", "staging", "Staging schema name")
	f.StringVarP(&opts.baseSchema, "base-schema", "b", "public", "Base schema name")
	f.StringVar(&opts.encoding, "encoding", "utf-8", "Client encoding")
	f.StringSliceVarP(&opts.tables, "tables", "t", nil, "Table name(s) to process, in order")
	f.StringSliceVarP(&opts.excludeColumns, "exclude-columns", "e", nil, "Columns excluded from UPDATE/INSERT lists")
	f.StringSliceVarP(&opts.nullColumns, "null-columns", "n", nil, "Columns exempted from the NOT-NULL check")
	f.StringVarP(&opts.upsertMethod, "upsert-method", "m", "upsert", "Merge method: upsert, update, or insert")
	f.BoolVarP(&opts.commit, "commit", "c", false, "Commit changes to the database")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "Confirm each destructive step on the console")
	f.BoolVar(&opts.gui, "gui", false, "Use the full-screen confirmation dialog (implies --interactive)")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress console output")
	f.BoolVar(&opts.debug, "debug", false, "Enable debug output")
	f.StringVarP(&opts.logfile, "logfile", "l", "", "Write log messages to a file instead of stderr")
	f.StringVarP(&opts.configFile, "config-file", "f", "", "YAML configuration file (file values win over flags)")
	f.BoolVar(&opts.generateConfig, "generate-config", false, "Print a YAML configuration template and exit")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	if opts.generateConfig {
		return generateConfig(cmd, opts)
	}

	if opts.configFile != "" {
		file, err := config.Load(opts.configFile)
		if err != nil {
			return err
		}
		applyFile(opts, file)
	}
	if opts.gui {
		opts.interactive = true
	}

	logger, closeLog, err := setupLogger(opts)
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}
	defer closeLog()

	cfg, err := buildConfig(opts, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ups, err := stagemerge.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer ups.Close(ctx)

	outcome, err := ups.Run(ctx)
	if err != nil {
		return err
	}
	switch outcome {
	case stagemerge.OutcomeQAFailed:
		return &exitError{code: exitQAFailed}
	case stagemerge.OutcomeCancelled:
		return &exitError{code: exitCancelled}
	default:
		return nil
	}
}

func generateConfig(cmd *cobra.Command, opts *options) error {
	file := &config.File{
		Host:           opts.host,
		Database:       opts.database,
		User:           opts.user,
		StagingSchema:  opts.stagingSchema,
		BaseSchema:     opts.baseSchema,
		Encoding:       opts.encoding,
		Tables:         opts.tables,
		ExcludeColumns: opts.excludeColumns,
		NullColumns:    opts.nullColumns,
		UpsertMethod:   opts.upsertMethod,
		Logfile:        opts.logfile,
	}
	if cmd.Flags().Changed("port") {
		file.Port = &opts.port
	}
	for _, b := range []struct {
		name string
		val  *bool
		dst  **bool
	}{
		{"commit", &opts.commit, &file.Commit},
		{"interactive", &opts.interactive, &file.Interactive},
		{"gui", &opts.gui, &file.GUI},
		{"quiet", &opts.quiet, &file.Quiet},
		{"debug", &opts.debug, &file.Debug},
	} {
		if cmd.Flags().Changed(b.name) {
			*b.dst = b.val
		}
	}

	out, err := config.Template(file)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

// applyFile overlays file values onto the flag values. The file wins for
// every key it sets.
func applyFile(opts *options, f *config.File) {
	if f.Host != "" {
		opts.host = f.Host
	}
	if f.Port != nil {
		opts.port = *f.Port
	}
	if f.Database != "" {
		opts.database = f.Database
	}
	if f.User != "" {
		opts.user = f.User
	}
	if f.StagingSchema != "" {
		opts.stagingSchema = f.StagingSchema
	}
	if f.BaseSchema != "" {
		opts.baseSchema = f.BaseSchema
	}
	if f.Encoding != "" {
		opts.encoding = f.Encoding
	}
	if len(f.Tables) > 0 {
		opts.tables = f.Tables
	}
	if len(f.ExcludeColumns) > 0 {
		opts.excludeColumns = f.ExcludeColumns
	}
	if len(f.NullColumns) > 0 {
		opts.nullColumns = f.NullColumns
	}
	if f.UpsertMethod != "" {
		opts.upsertMethod = f.UpsertMethod
	}
	if f.Commit != nil {
		opts.commit = *f.Commit
	}
	if f.Interactive != nil {
		opts.interactive = *f.Interactive
	}
	if f.GUI != nil {
		opts.gui = *f.GUI
	}
	if f.Quiet != nil {
		opts.quiet = *f.Quiet
	}
	if f.Debug != nil {
		opts.debug = *f.Debug
	}
	if f.Logfile != "" {
		opts.logfile = f.Logfile
	}
}
