// Package stagemerge validates staged rows against the constraints of their
// base-schema tables and merges them with update, insert, or combined upsert
// statements, all inside a single transaction.
package stagemerge

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/jmoiron/sqlx"

	"github.com/stagemerge/stagemerge/internal/control"
	"github.com/stagemerge/stagemerge/internal/query"
	"github.com/stagemerge/stagemerge/internal/upsert"
)

// Method selects the merge strategy. See the upsert engine for semantics.
type Method = upsert.Method

// Merge strategies.
const (
	MethodUpsert = upsert.MethodUpsert
	MethodUpdate = upsert.MethodUpdate
	MethodInsert = upsert.MethodInsert
)

// Prompter kinds selectable for interactive runs.
const (
	PrompterSilent   = "silent"
	PrompterTerminal = "terminal"
	PrompterGUI      = "gui"
)

// ConfigError reports an invalid configuration: a bad identifier, an unknown
// upsert method, or an impossible option combination. Raised before any SQL
// runs.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string { return "config: " + e.Detail }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Detail: fmt.Sprintf(format, args...)}
}

// Config describes one run. It is read once by New and never mutated.
type Config struct {
	// Connection parameters. Ignored when DB is set.
	Host     string
	Port     int
	Database string
	User     string
	Password string
	Encoding string // advisory client_encoding, default utf-8

	// DB is an optional pre-opened pool. The caller keeps ownership; the
	// run still executes in its own transaction.
	DB *sqlx.DB

	StagingSchema string // default "staging"
	BaseSchema    string // default "public"

	// Tables to process, in order. At least one.
	Tables []string

	Method      Method // default MethodUpsert
	Commit      bool
	Interactive bool
	Prompter    string // PrompterSilent, PrompterTerminal, or PrompterGUI

	ExcludeCols          []string // removed from UPDATE/INSERT column lists
	ExcludeNullCheckCols []string // exempted from the NOT-NULL check

	// ControlTable is the session temp table name, default "ups_control".
	ControlTable string

	// SampleLimit bounds interactive row samples, default 1000.
	SampleLimit int

	// Logger receives progress and findings. Defaults to slog.Default().
	Logger *slog.Logger
	// Out receives the human-readable summary tables and the final
	// committed/rolled-back notice. Defaults to stderr.
	Out io.Writer
}

// withDefaults fills zero values and returns a copy.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.Encoding == "" {
		c.Encoding = "utf-8"
	}
	if c.StagingSchema == "" {
		c.StagingSchema = "staging"
	}
	if c.BaseSchema == "" {
		c.BaseSchema = "public"
	}
	if c.Method == "" {
		c.Method = MethodUpsert
	}
	if c.ControlTable == "" {
		c.ControlTable = control.DefaultName
	}
	if c.SampleLimit == 0 {
		c.SampleLimit = 1000
	}
	if c.Prompter == "" {
		if c.Interactive {
			c.Prompter = PrompterTerminal
		} else {
			c.Prompter = PrompterSilent
		}
	}
	return c
}

// validate checks every identifier and option before any SQL is issued.
func (c Config) validate() error {
	if len(c.Tables) == 0 {
		return configErrorf("at least one table is required")
	}
	if c.DB == nil {
		if c.Host == "" {
			return configErrorf("database host is required")
		}
		if c.Database == "" {
			return configErrorf("database name is required")
		}
		if c.User == "" {
			return configErrorf("database user is required")
		}
	}
	if _, err := upsert.ParseMethod(string(c.Method)); err != nil {
		return &ConfigError{Detail: err.Error()}
	}
	switch c.Prompter {
	case PrompterSilent, PrompterTerminal, PrompterGUI:
	default:
		return configErrorf("unknown prompter %q", c.Prompter)
	}

	idents := []string{c.StagingSchema, c.BaseSchema, c.ControlTable}
	idents = append(idents, c.Tables...)
	idents = append(idents, c.ExcludeCols...)
	idents = append(idents, c.ExcludeNullCheckCols...)
	if err := query.ValidateIdentifiers(idents); err != nil {
		return &ConfigError{Detail: err.Error()}
	}
	return nil
}

// DSN renders the pgx connection string for the configured server.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := url.Values{}
	if c.Encoding != "" {
		q.Set("client_encoding", c.Encoding)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
