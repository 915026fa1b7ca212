package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_YAMLWithDefaults(t *testing.T) {
	path := writeConfig(t, "quarry.yaml", `
InputFile: input/queries.csv
OutputDirectory: output
Delimiter: ","
MaxResults: 10
MinWait: 100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.InputFile != "input/queries.csv" || cfg.OutputDirectory != "output" || cfg.Comma() != ',' {
		t.Errorf("unexpected i/o options %+v", cfg)
	}
	if cfg.MaxResults != 10 || cfg.MinWait != 100*time.Millisecond {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if !cfg.ExactMatches || !cfg.RemoveSpecialCharacters || !cfg.DetectLanguages {
		t.Errorf("boolean defaults not applied: %+v", cfg)
	}
	if cfg.MaxWait != 2*time.Second || cfg.WaitOnError != 30*time.Second || cfg.Timeout != 30*time.Second {
		t.Errorf("duration defaults not applied: %+v", cfg)
	}
	if cfg.RetryLimit != 3 || cfg.ProgressEvery != 10 || cfg.Concurrency != 1 || cfg.TLSProfile != "go" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoad_TOMLAndJSON(t *testing.T) {
	toml := writeConfig(t, "quarry.toml", `
InputFile = "q.tsv"
OutputDirectory = "out"
Delimiter = "\t"
ExactMatches = false
UserAgents = ["UA-One/1.0", "UA-Two/2.0"]
`)
	cfg, err := Load(toml)
	if err != nil {
		t.Fatalf("Load toml: %v", err)
	}
	if cfg.ExactMatches || cfg.Comma() != '\t' || len(cfg.UserAgents) != 2 {
		t.Errorf("unexpected toml config %+v", cfg)
	}

	js := writeConfig(t, "quarry.json", `{"InputFile": "a.csv", "OutputDirectory": "o", "Delimiter": ";", "ArchiveBackend": "SQLite", "ArchiveDSN": "a.db"}`)
	cfg, err = Load(js)
	if err != nil {
		t.Fatalf("Load json: %v", err)
	}
	if cfg.ArchiveBackend != "sqlite" {
		t.Errorf("expected lower-cased backend, got %q", cfg.ArchiveBackend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "quarry.yaml", "InputFile: a.csv\nOutputDirectory: out\nDelimiter: ','\nMaxResults: 10\n")
	t.Setenv("QUARRY_MAXRESULTS", "7")
	t.Setenv("QUARRY_DETECTLANGUAGES", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxResults != 7 || cfg.DetectLanguages {
		t.Errorf("environment overrides not applied: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}

	path := writeConfig(t, "neg.yaml", "MinWait: -5\n")
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for negative duration, got %v", err)
	}
}

func valid() *Config {
	return &Config{
		InputFile:       "in.csv",
		OutputDirectory: "out",
		Delimiter:       ",",
		MaxResults:      25,
		MinWait:         500 * time.Millisecond,
		MaxWait:         2 * time.Second,
		RetryLimit:      3,
		Concurrency:     1,
		TLSProfile:      "go",
		ReportFormat:    "text",
		LogLevel:        "info",
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"ok", func(*Config) {}, nil},
		{"no input", func(c *Config) { c.InputFile = "" }, ErrMissing},
		{"no output", func(c *Config) { c.OutputDirectory = "" }, ErrMissing},
		{"no delimiter", func(c *Config) { c.Delimiter = "" }, ErrMissing},
		{"long delimiter", func(c *Config) { c.Delimiter = ";;" }, ErrInvalid},
		{"zero results", func(c *Config) { c.MaxResults = 0 }, ErrInvalid},
		{"wait window", func(c *Config) { c.MinWait = 3 * time.Second }, ErrInvalid},
		{"negative retries", func(c *Config) { c.RetryLimit = -1 }, ErrInvalid},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalid},
		{"bad port", func(c *Config) { c.MetricsPort = 70000 }, ErrInvalid},
		{"bad profile", func(c *Config) { c.TLSProfile = "netscape" }, ErrInvalid},
		{"bad report", func(c *Config) { c.ReportFormat = "html" }, ErrInvalid},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, ErrInvalid},
		{"bad backend", func(c *Config) { c.ArchiveBackend = "mongo" }, ErrInvalid},
		{"backend without dsn", func(c *Config) { c.ArchiveBackend = "json" }, ErrMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	err := (&Config{MaxResults: 1, Concurrency: 1}).Validate()
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 3 {
		t.Errorf("expected three missing options, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = (%v, %v), want %v", in, got, err, want)
		}
	}
}

func TestValidateArchive(t *testing.T) {
	cases := []struct {
		cfg  Config
		want error
	}{
		{Config{}, ErrMissing},
		{Config{ArchiveBackend: "redis", ArchiveDSN: "x"}, ErrInvalid},
		{Config{ArchiveBackend: "sqlite"}, ErrMissing},
		{Config{ArchiveBackend: "sqlite", ArchiveDSN: "a.db", Delimiter: "::"}, ErrInvalid},
		{Config{ArchiveBackend: "postgres", ArchiveDSN: "postgres://localhost/quarry"}, nil},
	}
	for _, tc := range cases {
		err := tc.cfg.ValidateArchive()
		if tc.want == nil && err != nil || tc.want != nil && !errors.Is(err, tc.want) {
			t.Errorf("ValidateArchive(%+v) = %v, want %v", tc.cfg, err, tc.want)
		}
	}
	if (&Config{}).Comma() != ',' {
		t.Errorf("expected comma fallback")
	}
}
