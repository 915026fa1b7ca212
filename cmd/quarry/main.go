// Command quarry retrieves DuckDuckGo search results for a list of queries.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranksOps/quarry/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Exit codes.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
	exitInput   = 3
	exitNetwork = 4
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "quarry:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return exitConfig
	}
	return exitOK
}

type options struct {
	configFile string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "quarry",
		Short: "Scrape search results from the DuckDuckGo website",
		Long: `quarry reads a table of search queries, retrieves DuckDuckGo results for
each distinct query and writes them, optionally with the language of every
snippet, to a table of the same name in the output directory.

The config file is YAML, TOML or JSON. INI files are not read; move the
keys of an INI [DEFAULT] section to the top level instead, for example:

  InputFile: input/queries.csv
  OutputDirectory: output
  Delimiter: ","
  ExactMatches: true
  RemoveSpecialCharacters: true
  MaxResults: 25
  MinWait: 500        # milliseconds
  MaxWait: 2000
  WaitOnError: 30000
  DetectLanguages: true

Every key can be overridden by a QUARRY_<KEY> environment variable.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRetrieve(cmd.Context(), opts)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&opts.configFile, "config-file", "c", "", "path to config file (yaml, toml or json)")
	_ = root.MarkPersistentFlagRequired("config-file")

	root.AddCommand(newDetectCmd(opts), newArchiveCmd(opts))
	return root
}

// loadConfig reads the config file; validate selects the checks to run.
func loadConfig(path string, validate func(*config.Config) error) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fail(exitConfig, err)
	}
	if err := validate(cfg); err != nil {
		return nil, fail(exitConfig, err)
	}
	return cfg, nil
}

// newLogger builds the process logger: text to stderr, teed into a rotated
// file when LogFile is set.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, func() error, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	out := stderr
	closer := func() error { return nil }
	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		out = io.MultiWriter(stderr, rotating)
		closer = rotating.Close
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// setup loads config and installs the logger as the default.
func setup(opts *options, validate func(*config.Config) error) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := loadConfig(opts.configFile, validate)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, closeLog, err := newLogger(cfg, opts.stderr)
	if err != nil {
		return nil, nil, nil, fail(exitConfig, err)
	}
	slog.SetDefault(logger)
	return cfg, logger, func() { _ = closeLog() }, nil
}
