// Package config loads run options from a config file and QUARRY_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/quarry/internal/fingerprint"
	"github.com/FranksOps/quarry/internal/report"
	"github.com/FranksOps/quarry/internal/serp"
	"github.com/FranksOps/quarry/internal/tabular"
	"github.com/spf13/viper"
)

var (
	// ErrMissing reports a required option that is not set.
	ErrMissing = errors.New("required option missing")
	// ErrInvalid reports an option with an unusable value.
	ErrInvalid = errors.New("invalid option")
)

// EnvPrefix prefixes environment overrides, e.g. QUARRY_MAXRESULTS=10.
const EnvPrefix = "QUARRY"

// Config holds every run option. Durations are configured in milliseconds.
type Config struct {
	InputFile               string
	OutputDirectory         string
	Delimiter               string
	ExactMatches            bool
	RemoveSpecialCharacters bool
	MaxResults              int
	MinWait                 time.Duration
	MaxWait                 time.Duration
	WaitOnError             time.Duration
	DetectLanguages         bool

	RetryLimit     int
	ProgressEvery  int
	RequireSnippet bool
	Transliterate  bool
	Endpoint       string
	Timeout        time.Duration
	Concurrency    int
	TLSProfile     string
	UserAgents     []string
	ProxyFile      string
	RespectRobots  bool
	MetricsPort    int
	ArchiveBackend string
	ArchiveDSN     string
	ReportFormat   string
	LogLevel       string
	LogFile        string
}

var durationKeys = []string{"MinWait", "MaxWait", "WaitOnError", "Timeout"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ExactMatches", true)
	v.SetDefault("RemoveSpecialCharacters", true)
	v.SetDefault("MaxResults", 25)
	v.SetDefault("MinWait", 500)
	v.SetDefault("MaxWait", 2000)
	v.SetDefault("WaitOnError", 30000)
	v.SetDefault("DetectLanguages", true)

	v.SetDefault("RetryLimit", 3)
	v.SetDefault("ProgressEvery", 10)
	v.SetDefault("RequireSnippet", false)
	v.SetDefault("Transliterate", false)
	v.SetDefault("Endpoint", serp.DefaultEndpoint)
	v.SetDefault("Timeout", 30000)
	v.SetDefault("Concurrency", 1)
	v.SetDefault("TLSProfile", string(fingerprint.ProfileGo))
	v.SetDefault("UserAgents", []string{})
	v.SetDefault("ProxyFile", "")
	v.SetDefault("RespectRobots", false)
	v.SetDefault("MetricsPort", 0)
	v.SetDefault("ArchiveBackend", "")
	v.SetDefault("ArchiveDSN", "")
	v.SetDefault("ReportFormat", string(report.FormatText))
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFile", "")

	// Required keys have no default but must be known to viper for
	// AutomaticEnv to resolve them.
	for _, k := range []string{"InputFile", "OutputDirectory", "Delimiter"} {
		v.SetDefault(k, "")
	}
}

// Load reads path (YAML, TOML or JSON, chosen by extension) and applies
// environment overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, k := range durationKeys {
		if v.GetInt(k) < 0 {
			return nil, fmt.Errorf("%w: %s must not be negative", ErrInvalid, k)
		}
	}

	cfg := &Config{
		InputFile:               strings.TrimSpace(v.GetString("InputFile")),
		OutputDirectory:         strings.TrimSpace(v.GetString("OutputDirectory")),
		Delimiter:               v.GetString("Delimiter"),
		ExactMatches:            v.GetBool("ExactMatches"),
		RemoveSpecialCharacters: v.GetBool("RemoveSpecialCharacters"),
		MaxResults:              v.GetInt("MaxResults"),
		MinWait:                 millis(v, "MinWait"),
		MaxWait:                 millis(v, "MaxWait"),
		WaitOnError:             millis(v, "WaitOnError"),
		DetectLanguages:         v.GetBool("DetectLanguages"),

		RetryLimit:     v.GetInt("RetryLimit"),
		ProgressEvery:  v.GetInt("ProgressEvery"),
		RequireSnippet: v.GetBool("RequireSnippet"),
		Transliterate:  v.GetBool("Transliterate"),
		Endpoint:       v.GetString("Endpoint"),
		Timeout:        millis(v, "Timeout"),
		Concurrency:    v.GetInt("Concurrency"),
		TLSProfile:     v.GetString("TLSProfile"),
		UserAgents:     v.GetStringSlice("UserAgents"),
		ProxyFile:      v.GetString("ProxyFile"),
		RespectRobots:  v.GetBool("RespectRobots"),
		MetricsPort:    v.GetInt("MetricsPort"),
		ArchiveBackend: strings.ToLower(v.GetString("ArchiveBackend")),
		ArchiveDSN:     v.GetString("ArchiveDSN"),
		ReportFormat:   strings.ToLower(v.GetString("ReportFormat")),
		LogLevel:       v.GetString("LogLevel"),
		LogFile:        v.GetString("LogFile"),
	}
	return cfg, nil
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}

// Validate checks the options needed for a run. Every problem is reported.
func (c *Config) Validate() error {
	var errs []error
	missing := func(name, value string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, name))
		}
	}
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	missing("InputFile", c.InputFile)
	missing("OutputDirectory", c.OutputDirectory)
	missing("Delimiter", c.Delimiter)

	if c.Delimiter != "" {
		if _, err := tabular.ParseDelimiter(c.Delimiter); err != nil {
			invalid("Delimiter: %v", err)
		}
	}
	if c.MaxResults < 1 {
		invalid("MaxResults must be at least 1, got %d", c.MaxResults)
	}
	if c.MinWait > c.MaxWait {
		invalid("MinWait (%v) exceeds MaxWait (%v)", c.MinWait, c.MaxWait)
	}
	if c.RetryLimit < 0 {
		invalid("RetryLimit must not be negative, got %d", c.RetryLimit)
	}
	if c.Concurrency < 1 {
		invalid("Concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		invalid("MetricsPort out of range: %d", c.MetricsPort)
	}
	if _, err := fingerprint.ParseProfile(c.TLSProfile); err != nil {
		invalid("TLSProfile: %v", err)
	}
	if _, err := report.ParseFormat(c.ReportFormat); err != nil {
		invalid("ReportFormat: %v", err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		invalid("LogLevel: %v", err)
	}
	switch c.ArchiveBackend {
	case "":
	case "sqlite", "postgres", "json":
		missing("ArchiveDSN", c.ArchiveDSN)
	default:
		invalid("ArchiveBackend %q (want sqlite, postgres or json)", c.ArchiveBackend)
	}

	return errors.Join(errs...)
}

// ValidateArchive checks the options needed to read the archive.
func (c *Config) ValidateArchive() error {
	switch c.ArchiveBackend {
	case "":
		return fmt.Errorf("%w: ArchiveBackend", ErrMissing)
	case "sqlite", "postgres", "json":
	default:
		return fmt.Errorf("%w: ArchiveBackend %q (want sqlite, postgres or json)", ErrInvalid, c.ArchiveBackend)
	}
	if c.ArchiveDSN == "" {
		return fmt.Errorf("%w: ArchiveDSN", ErrMissing)
	}
	if c.Delimiter != "" {
		if _, err := tabular.ParseDelimiter(c.Delimiter); err != nil {
			return fmt.Errorf("%w: Delimiter: %v", ErrInvalid, err)
		}
	}
	return nil
}

// Comma returns the parsed delimiter, or ',' when none is configured.
// Call Validate first.
func (c *Config) Comma() rune {
	if c.Delimiter == "" {
		return ','
	}
	r, _ := tabular.ParseDelimiter(c.Delimiter)
	return r
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return l, nil
}
