package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/stagemerge/stagemerge"
	"github.com/stagemerge/stagemerge/internal/catalog"
	"github.com/stagemerge/stagemerge/internal/config"
	"github.com/stagemerge/stagemerge/internal/db"
)

// setupLogger builds the run logger: a colored console handler on stderr,
// or a plain text handler when logging to a file, or a discard handler when
// quiet. The returned func closes the log file, if any.
func setupLogger(opts *options) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}

	if opts.logfile != "" {
		file, err := os.OpenFile(opts.logfile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open logfile: %w", err)
		}
		logger := slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}))
		return logger, func() { file.Close() }, nil
	}

	if opts.quiet {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		return logger, func() {}, nil
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	return logger, func() {}, nil
}

// buildConfig assembles the run configuration from the resolved options.
func buildConfig(opts *options, logger *slog.Logger) (stagemerge.Config, error) {
	password, err := resolvePassword(opts)
	if err != nil {
		return stagemerge.Config{}, &exitError{code: exitConfig, err: err}
	}

	out := io.Writer(os.Stderr)
	if opts.quiet {
		out = io.Discard
	}

	prompter := stagemerge.PrompterSilent
	if opts.interactive {
		prompter = stagemerge.PrompterTerminal
		if opts.gui {
			prompter = stagemerge.PrompterGUI
		}
	}

	cfg := stagemerge.Config{
		Host:                 opts.host,
		Port:                 opts.port,
		Database:             opts.database,
		User:                 opts.user,
		Password:             password,
		Encoding:             opts.encoding,
		StagingSchema:        opts.stagingSchema,
		BaseSchema:           opts.baseSchema,
		Tables:               opts.tables,
		Method:               stagemerge.Method(opts.upsertMethod),
		Commit:               opts.commit,
		Interactive:          opts.interactive,
		Prompter:             prompter,
		ExcludeCols:          opts.excludeColumns,
		ExcludeNullCheckCols: opts.nullColumns,
		Logger:               logger,
		Out:                  out,
	}

	logger.Debug("effective settings",
		"host", cfg.Host, "port", cfg.Port, "database", cfg.Database, "user", cfg.User,
		"staging_schema", cfg.StagingSchema, "base_schema", cfg.BaseSchema,
		"tables", cfg.Tables, "method", string(cfg.Method),
		"commit", cfg.Commit, "interactive", cfg.Interactive,
		"exclude_columns", cfg.ExcludeCols, "null_columns", cfg.ExcludeNullCheckCols)

	return cfg, nil
}

// resolvePassword returns the database password from PGPASSWORD, or prompts
// on the terminal when one is attached. An empty password is passed through
// for servers with trust or peer auth.
func resolvePassword(opts *options) (string, error) {
	v := viper.New()
	if err := v.BindEnv("pgpassword", "PGPASSWORD"); err != nil {
		return "", err
	}
	if pw := v.GetString("pgpassword"); pw != "" {
		return pw, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", nil
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", opts.user)
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pwBytes), nil
}

// exitCodeFor maps error categories to shell exit codes.
func exitCodeFor(err error) int {
	if errors.Is(err, stagemerge.ErrCancelled) {
		return exitCancelled
	}
	var dbErr *db.Error
	if errors.As(err, &dbErr) {
		return exitDatabase
	}
	var cfgErr *stagemerge.ConfigError
	var fileErr *config.Error
	var schemaErr *catalog.SchemaError
	if errors.As(err, &cfgErr) || errors.As(err, &fileErr) || errors.As(err, &schemaErr) {
		return exitConfig
	}
	return exitConfig
}
