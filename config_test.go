package stagemerge

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Host:     "localhost",
		Database: "library",
		User:     "loader",
		Tables:   []string{"genres", "books"},
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := validConfig().withDefaults()
	if cfg.Port != 5432 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.StagingSchema != "staging" || cfg.BaseSchema != "public" {
		t.Errorf("schemas = %s/%s", cfg.StagingSchema, cfg.BaseSchema)
	}
	if cfg.Method != MethodUpsert {
		t.Errorf("Method = %s", cfg.Method)
	}
	if cfg.Encoding != "utf-8" {
		t.Errorf("Encoding = %s", cfg.Encoding)
	}
	if cfg.ControlTable != "ups_control" {
		t.Errorf("ControlTable = %s", cfg.ControlTable)
	}
	if cfg.SampleLimit != 1000 {
		t.Errorf("SampleLimit = %d", cfg.SampleLimit)
	}
	if cfg.Prompter != PrompterSilent {
		t.Errorf("Prompter = %s", cfg.Prompter)
	}
}

func TestConfigDefaultPrompterInteractive(t *testing.T) {
	cfg := validConfig()
	cfg.Interactive = true
	cfg = cfg.withDefaults()
	if cfg.Prompter != PrompterTerminal {
		t.Errorf("Prompter = %s", cfg.Prompter)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no tables", func(c *Config) { c.Tables = nil }, "at least one table"},
		{"no host", func(c *Config) { c.Host = "" }, "host is required"},
		{"no database", func(c *Config) { c.Database = "" }, "database name is required"},
		{"no user", func(c *Config) { c.User = "" }, "user is required"},
		{"bad method", func(c *Config) { c.Method = "merge" }, "unknown upsert method"},
		{"bad prompter", func(c *Config) { c.Prompter = "carrier-pigeon" }, "unknown prompter"},
		{"bad table identifier", func(c *Config) { c.Tables = []string{"books; DROP TABLE genres"} }, "invalid identifier"},
		{"bad schema identifier", func(c *Config) { c.StagingSchema = "stg-1" }, "invalid identifier"},
		{"bad exclude column", func(c *Config) { c.ExcludeCols = []string{"bad col"} }, "invalid identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.withDefaults().validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q should contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := validConfig().withDefaults()
	cfg.Password = "s3cret"
	dsn := cfg.DSN()
	for _, want := range []string{
		"postgres://", "loader:s3cret@localhost:5432/library", "client_encoding=utf-8",
	} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN missing %q: %s", want, dsn)
		}
	}
}

func TestConfigDSNNoPassword(t *testing.T) {
	dsn := validConfig().withDefaults().DSN()
	if strings.Contains(dsn, ":@") || strings.Contains(dsn, "s3cret") {
		t.Errorf("unexpected credential rendering: %s", dsn)
	}
	if !strings.Contains(dsn, "loader@localhost") {
		t.Errorf("user missing from DSN: %s", dsn)
	}
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{OutcomeCommitted, "committed"},
		{OutcomeNoCommit, "rolled back (no commit requested)"},
		{OutcomeQAFailed, "rolled back (QA failed)"},
		{OutcomeCancelled, "rolled back (cancelled by operator)"},
	}
	for _, tt := range tests {
		if got := tt.o.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.o, got, tt.want)
		}
	}
}

func TestKnownTable(t *testing.T) {
	u := &Upserter{tables: []string{"genres", "books"}}
	if err := u.knownTable("books"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := u.knownTable("authors")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}
