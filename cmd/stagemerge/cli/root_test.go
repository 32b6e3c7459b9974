package cli

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stagemerge/stagemerge"
	"github.com/stagemerge/stagemerge/internal/catalog"
	"github.com/stagemerge/stagemerge/internal/config"
	"github.com/stagemerge/stagemerge/internal/db"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"config error", &stagemerge.ConfigError{Detail: "bad identifier"}, exitConfig},
		{"config file error", &config.Error{Detail: "unknown key"}, exitConfig},
		{"schema error", &catalog.SchemaError{Detail: "missing table"}, exitConfig},
		{"database error", &db.Error{Op: "exec", Err: errors.New("boom")}, exitDatabase},
		{"wrapped database error", fmt.Errorf("run: %w", &db.Error{Op: "query", Err: errors.New("down")}), exitDatabase},
		{"cancelled", stagemerge.ErrCancelled, exitCancelled},
		{"unknown", errors.New("mystery"), exitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestApplyFilePrecedence(t *testing.T) {
	opts := &options{
		host:         "flag-host",
		port:         5432,
		database:     "flag-db",
		upsertMethod: "upsert",
		commit:       false,
	}
	port := 5433
	commit := true
	applyFile(opts, &config.File{
		Host:   "file-host",
		Port:   &port,
		Commit: &commit,
		Tables: []string{"genres"},
	})

	if opts.host != "file-host" {
		t.Errorf("file host must win, got %q", opts.host)
	}
	if opts.port != 5433 {
		t.Errorf("file port must win, got %d", opts.port)
	}
	if !opts.commit {
		t.Error("file commit must win")
	}
	if opts.database != "flag-db" {
		t.Errorf("unset file keys must not override flags, got %q", opts.database)
	}
	if opts.upsertMethod != "upsert" {
		t.Errorf("unset file method must not override, got %q", opts.upsertMethod)
	}
	if len(opts.tables) != 1 || opts.tables[0] != "genres" {
		t.Errorf("tables = %v", opts.tables)
	}
}

func TestGenerateConfig(t *testing.T) {
	cmd := newRootCmd("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--generate-config", "--host", "db1", "--tables", "genres,books", "--commit"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := out.String()
	for _, want := range []string{"host: db1", "- genres", "- books", "commit: true", "upsert_method: upsert"} {
		if !strings.Contains(text, want) {
			t.Errorf("template missing %q:\n%s", want, text)
		}
	}
}

func TestVersionFlag(t *testing.T) {
	cmd := newRootCmd("1.2.3", "abc", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "1.2.3") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestMissingTablesFails(t *testing.T) {
	cmd := newRootCmd("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--host", "db1", "--database", "lib", "--user", "loader", "--quiet"})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error without tables")
	}
	var cfgErr *stagemerge.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}
