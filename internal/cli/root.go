// Package cli implements the sandtrap command-line interface using cobra.
package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/sandtrap-sec/sandtrap/internal/config"
)

// Build metadata, set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
	GoVersion = "unknown"
)

// ExitError carries a specific process exit code through the cobra error
// path. Code 1 means the suite found a critical regression; code 2 means
// the configuration or environment was unusable.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCodeError wraps err with an exit code. A nil err stays nil.
func ExitCodeError(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Err: err, Code: code}
}

// ExitCodeOf maps an error from Execute onto the process exit status:
// 0 for nil, the wrapped code for an ExitError, 1 otherwise.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// Execute runs the root command.
func Execute() error {
	return rootCmd().Execute()
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandtrap",
		Short: "Security regression testing for sandboxed command runners",
		Long: `Sandtrap drives a catalog of known attack payloads against a sandboxed,
terminal-multiplexer-backed command runner and compares the outcomes
against recorded baselines to catch security and performance regressions.

Three modes:
  full   - Whole catalog including concurrency probes (default)
  quick  - Base payloads only, probes skipped (CI smoke runs)
  audit  - Execute nothing; re-analyze stored history

Quick start:
  sandtrap run --config sandtrap.yaml
  sandtrap run --mode quick --json
  sandtrap check --config sandtrap.yaml

Exit codes: 0 clean, 1 critical regression found, 2 config error.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		runCmd(),
		catalogCmd(),
		baselineCmd(),
		checkCmd(),
		runsCmd(),
		versionCmd(),
	)

	return cmd
}

// loadConfig resolves the shared --config flag: an explicit path is loaded
// and validated, no path means built-in defaults. Load failures carry exit
// code 2.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, ExitCodeError(2, err)
	}
	return cfg, nil
}
