package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandtrap-sec/sandtrap/internal/alert"
	"github.com/sandtrap-sec/sandtrap/internal/audit"
	"github.com/sandtrap-sec/sandtrap/internal/classify"
	"github.com/sandtrap-sec/sandtrap/internal/config"
	"github.com/sandtrap-sec/sandtrap/internal/metrics"
	"github.com/sandtrap-sec/sandtrap/internal/report"
	"github.com/sandtrap-sec/sandtrap/internal/runlog"
	"github.com/sandtrap-sec/sandtrap/internal/runner"
	"github.com/sandtrap-sec/sandtrap/internal/sandbox"
)

// webhookTokenEnv names the environment variable holding the bearer token
// for the alert webhook. Tokens never live in the config file.
const webhookTokenEnv = "SANDTRAP_WEBHOOK_TOKEN"

// ErrCriticalRegression is returned by sandtrap run when the suite verdict
// is FAIL.
var ErrCriticalRegression = errors.New("critical regression detected")

func runCmd() *cobra.Command {
	var (
		configFile string
		mode       string
		categories []string
		jsonOut    bool
		reportFile string
		failFast   bool
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the attack suite against the sandbox",
		Long: `Run the attack catalog against the configured sandbox and compare the
outcomes against recorded baselines.

Examples:
  sandtrap run --config sandtrap.yaml
  sandtrap run --mode quick --category command_injection --json
  sandtrap run --config sandtrap.yaml --report report.json
  sandtrap run --config sandtrap.yaml --watch

Exits 1 when a critical regression is found, 2 on config errors.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("mode") {
				cfg.Mode = mode
				cfg.ApplyDefaults()
			}
			if len(categories) > 0 {
				cfg.Categories = categories
			}
			if err := cfg.Validate(); err != nil {
				return ExitCodeError(2, fmt.Errorf("invalid config: %w", err))
			}
			if watch && configFile == "" {
				return ExitCodeError(2, errors.New("--watch requires --config"))
			}

			logger, err := audit.New(
				cfg.Logging.Format,
				cfg.Logging.Output,
				cfg.Logging.File,
				cfg.Logging.IncludePass,
				cfg.Logging.IncludeProbe,
			)
			if err != nil {
				return ExitCodeError(2, fmt.Errorf("creating audit logger: %w", err))
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(
				context.Background(),
				syscall.SIGINT,
				syscall.SIGTERM,
			)
			defer stop()

			deps := runner.Deps{Audit: logger}

			if cfg.Metrics.Enabled {
				m := metrics.New()
				deps.Metrics = m
				shutdown := serveMetrics(cfg.Metrics.Listen, m)
				defer shutdown()
				fmt.Fprintf(cmd.ErrOrStderr(), "metrics on http://%s/metrics\n", cfg.Metrics.Listen)
			}

			notifier := buildNotifier(cfg)
			if notifier != nil {
				defer func() { _ = notifier.Close() }()
				deps.Notifier = notifier
			}

			if cfg.RunLog.Enabled {
				archive, err := runlog.Open(cfg.RunLog.File)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "run archive unavailable: %v\n", err)
				} else {
					defer func() { _ = archive.Close() }()
					deps.Archive = archive
				}
			}

			sb, closeSandbox, err := dialSandbox(ctx, cfg)
			if err != nil {
				return ExitCodeError(2, err)
			}
			defer closeSandbox()
			deps.Sandbox = sb

			logger.LogStartup(cfg.Sandbox.URL, cfg.Mode)

			opts := suiteOptions{json: jsonOut, reportFile: reportFile, failFast: failFast}
			runErr := executeSuite(ctx, cmd, cfg, deps, opts)
			if !watch {
				return runErr
			}
			return watchAndRerun(ctx, cmd, configFile, cfg, notifier, deps, opts)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&mode, "mode", "m", config.ModeFull, "operating mode: full, quick, audit")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "restrict the run to these categories (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the report as JSON on stdout")
	cmd.Flags().StringVar(&reportFile, "report", "", "also write the JSON report to this file")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop the suite at the first critical failure")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running; rerun the suite when the config file changes or on SIGHUP")

	return cmd
}

type suiteOptions struct {
	json       bool
	reportFile string
	failFast   bool
}

// executeSuite performs one complete suite run and writes the report.
func executeSuite(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps runner.Deps, opts suiteOptions) error {
	r, err := runner.New(cfg, Version, deps)
	if err != nil {
		return ExitCodeError(2, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan runner.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if !opts.json {
				printProgress(cmd, ev)
			}
			if opts.failFast && criticalFailure(ev) {
				cancel()
			}
		}
	}()

	rep, runErr := r.Run(runCtx, events)
	<-done

	if runErr != nil && !rep.Partial {
		return runErr
	}

	if opts.reportFile != "" {
		if err := writeReportFile(opts.reportFile, rep); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "writing report file: %v\n", err)
		}
	}
	if opts.json {
		if err := rep.WriteJSON(cmd.OutOrStdout()); err != nil {
			return err
		}
	} else {
		if err := rep.WriteText(cmd.OutOrStdout()); err != nil {
			return err
		}
	}

	if rep.ExitCode() != 0 {
		return ExitCodeError(1, ErrCriticalRegression)
	}
	return nil
}

// watchAndRerun blocks on the config reloader and reruns the suite on every
// validated change. Reload warnings surface on stderr; rerun failures do not
// stop the watch. Returns the outcome of the last completed run.
func watchAndRerun(ctx context.Context, cmd *cobra.Command, path string, cfg *config.Config, notifier *alert.Notifier, deps runner.Deps, opts suiteOptions) error {
	reloader := config.NewReloader(path, config.WithErrorHandler(func(err error) {
		deps.Audit.LogConfigReload("rejected", err.Error())
		fmt.Fprintf(cmd.ErrOrStderr(), "config reload failed: %v\n", err)
	}))
	go func() {
		if err := reloader.Start(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "config watch stopped: %v\n", err)
		}
	}()
	defer reloader.Close()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return lastErr
		case next, ok := <-reloader.Changes():
			if !ok {
				return lastErr
			}
			warnings := config.ValidateReload(cfg, next)
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "reload warning [%s]: %s\n", w.Field, w.Message)
			}
			cfg = next
			if notifier != nil {
				notifier.SetMinConfidence(cfg.Alerts.MinConfidence)
			}
			deps.Audit.LogConfigReload("applied", fmt.Sprintf("%d warnings", len(warnings)))
			fmt.Fprintln(cmd.ErrOrStderr(), "config reloaded, rerunning suite")
			lastErr = executeSuite(ctx, cmd, cfg, deps, opts)
			if lastErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "run: %v\n", lastErr)
			}
		}
	}
}

// dialSandbox connects to the sandbox under test. Audit mode never touches
// the sandbox, so it gets an inert stub instead of a connection.
func dialSandbox(ctx context.Context, cfg *config.Config) (sandbox.Runner, func(), error) {
	if cfg.Mode == config.ModeAudit {
		return sandbox.NewStub("", 0), func() {}, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Sandbox.DialSeconds)*time.Second)
	defer cancel()
	client, err := sandbox.Dial(dialCtx, cfg.Sandbox.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to sandbox %s: %w", cfg.Sandbox.URL, err)
	}
	return client, func() { _ = client.Close() }, nil
}

// buildNotifier assembles the alert sink set from config. Returns nil when
// no sink is configured.
func buildNotifier(cfg *config.Config) *alert.Notifier {
	var sinks []alert.Sink
	if cfg.Alerts.WebhookURL != "" {
		var opts []alert.WebhookOption
		if token := os.Getenv(webhookTokenEnv); token != "" {
			opts = append(opts, alert.WithBearerToken(token))
		}
		sinks = append(sinks, alert.NewWebhookSink(cfg.Alerts.WebhookURL, opts...))
	}
	if cfg.Alerts.SentryDSN != "" {
		s, err := alert.NewSentrySink(cfg.Alerts.SentryDSN, Version, classify.SeverityHigh)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sentry sink disabled: %v\n", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if len(sinks) == 0 {
		return nil
	}
	return alert.NewNotifier(alert.DefaultInstanceID(), cfg.Alerts.MinConfidence, sinks...)
}

// serveMetrics starts the metrics endpoint and returns its shutdown func.
func serveMetrics(listen string, m *metrics.Metrics) func() {
	srv := &http.Server{
		Addr:              listen,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	return func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}
}

func printProgress(cmd *cobra.Command, ev runner.Event) {
	errOut := cmd.ErrOrStderr()
	switch ev.Type {
	case runner.EventSuiteStarted:
		fmt.Fprintf(errOut, "suite %s: %d tests planned\n", ev.RunID, ev.Total)
	case runner.EventTestCompleted:
		status := "PASS"
		if !ev.Outcome.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(errOut, "[%d/%d] %-18s %s (%s)\n",
			ev.Done, ev.Total, ev.TestID, status, ev.Outcome.ExecutionTime.Round(time.Millisecond))
	case runner.EventProbeWave:
		fmt.Fprintf(errOut, "  probe %s: %s\n", ev.TestID, ev.Probe)
	case runner.EventRegression:
		fmt.Fprintf(errOut, "  regression %s: %s (confidence %.2f)\n",
			ev.TestID, ev.Finding.Type, ev.Finding.Confidence)
	case runner.EventSuiteFinished:
		fmt.Fprintf(errOut, "suite %s finished\n", ev.RunID)
	}
}

// criticalFailure reports whether an event is a failed test at critical
// severity, the fail-fast stop condition.
func criticalFailure(ev runner.Event) bool {
	return ev.Type == runner.EventTestCompleted &&
		ev.Outcome != nil &&
		!ev.Outcome.Passed &&
		ev.Outcome.Severity == classify.SeverityCritical
}

func writeReportFile(path string, rep *report.Report) error {
	f, err := os.Create(path) //nolint:gosec // G304: path from caller
	if err != nil {
		return err
	}
	if err := rep.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
