// Package config reads and writes the YAML run configuration consumed by
// the CLI. Keys mirror the long flag names. Values present in a file take
// precedence over flags; unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML run configuration. Pointer fields distinguish "absent"
// from zero so a file only overrides what it actually sets.
type File struct {
	Host           string   `yaml:"host,omitempty"`
	Port           *int     `yaml:"port,omitempty"`
	Database       string   `yaml:"database,omitempty"`
	User           string   `yaml:"user,omitempty"`
	StagingSchema  string   `yaml:"staging_schema,omitempty"`
	BaseSchema     string   `yaml:"base_schema,omitempty"`
	Encoding       string   `yaml:"encoding,omitempty"`
	Tables         []string `yaml:"tables,omitempty"`
	ExcludeColumns []string `yaml:"exclude_columns,omitempty"`
	NullColumns    []string `yaml:"null_columns,omitempty"`
	UpsertMethod   string   `yaml:"upsert_method,omitempty"`
	Commit         *bool    `yaml:"commit,omitempty"`
	Interactive    *bool    `yaml:"interactive,omitempty"`
	GUI            *bool    `yaml:"gui,omitempty"`
	Quiet          *bool    `yaml:"quiet,omitempty"`
	Debug          *bool    `yaml:"debug,omitempty"`
	Logfile        string   `yaml:"logfile,omitempty"`
}

// Error reports an unreadable or invalid configuration file.
type Error struct {
	Detail string
}

func (e *Error) Error() string { return "config file: " + e.Detail }

// Load reads and strictly parses a YAML configuration file. Unknown keys
// are an error.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Detail: err.Error()}
	}
	return Parse(data)
}

// Parse strictly decodes YAML configuration content.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &File{}, nil
		}
		return nil, &Error{Detail: err.Error()}
	}
	return &f, nil
}

// Template renders f as a YAML document suitable for --generate-config,
// with every key present so the operator can see the full surface.
func Template(f *File) ([]byte, error) {
	full := *f
	if full.Port == nil {
		full.Port = ptr(5432)
	}
	if full.StagingSchema == "" {
		full.StagingSchema = "staging"
	}
	if full.BaseSchema == "" {
		full.BaseSchema = "public"
	}
	if full.Encoding == "" {
		full.Encoding = "utf-8"
	}
	if full.UpsertMethod == "" {
		full.UpsertMethod = "upsert"
	}
	if full.Tables == nil {
		full.Tables = []string{}
	}
	if full.ExcludeColumns == nil {
		full.ExcludeColumns = []string{}
	}
	if full.NullColumns == nil {
		full.NullColumns = []string{}
	}
	for _, b := range []**bool{&full.Commit, &full.Interactive, &full.GUI, &full.Quiet, &full.Debug} {
		if *b == nil {
			*b = ptr(false)
		}
	}

	// Marshal without omitempty so absent keys still appear in the template.
	out, err := yaml.Marshal(templateDoc(full))
	if err != nil {
		return nil, fmt.Errorf("render config template: %w", err)
	}
	return out, nil
}

// templateDoc mirrors File without omitempty tags.
type templateDoc struct {
	Host           string   `yaml:"host"`
	Port           *int     `yaml:"port"`
	Database       string   `yaml:"database"`
	User           string   `yaml:"user"`
	StagingSchema  string   `yaml:"staging_schema"`
	BaseSchema     string   `yaml:"base_schema"`
	Encoding       string   `yaml:"encoding"`
	Tables         []string `yaml:"tables"`
	ExcludeColumns []string `yaml:"exclude_columns"`
	NullColumns    []string `yaml:"null_columns"`
	UpsertMethod   string   `yaml:"upsert_method"`
	Commit         *bool    `yaml:"commit"`
	Interactive    *bool    `yaml:"interactive"`
	GUI            *bool    `yaml:"gui"`
	Quiet          *bool    `yaml:"quiet"`
	Debug          *bool    `yaml:"debug"`
	Logfile        string   `yaml:"logfile"`
}

func ptr[T any](v T) *T { return &v }
