// Package audit provides structured JSON audit logging for all sandtrap
// events.
package audit

import (
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
)

// sanitizeString strips control characters and ANSI escape sequences from a
// string before logging. Attack payloads and captured sandbox output are
// hostile by construction; without this a payload like \x1b[2J would clear
// the screen of anyone tailing the audit log.
func sanitizeString(s string) string {
	// Fast path: most strings have no control characters.
	clean := true
	for _, r := range s {
		if r != '\t' && r != '\n' && (unicode.IsControl(r) || r == '\x1b') {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	inEscape := false
	for _, r := range s {
		if inEscape {
			// ANSI escape sequences end with a letter (A-Z, a-z).
			if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
				inEscape = false
			}
			continue
		}
		if r == '\x1b' {
			inEscape = true
			continue
		}
		// Allow tabs and newlines but strip other control chars.
		if r != '\t' && r != '\n' && unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EventType describes the kind of audit event.
type EventType string

// Event type constants for structured audit log entries.
const (
	EventSuiteStarted     EventType = "suite_started"
	EventSuiteFinished    EventType = "suite_finished"
	EventTestCompleted    EventType = "test_completed"
	EventProbeCompleted   EventType = "probe_completed"
	EventRegression       EventType = "regression"
	EventTrend            EventType = "trend"
	EventBaselineUpdated  EventType = "baseline_updated"
	EventPersistenceError EventType = "persistence_error"
	EventSetupFailure     EventType = "setup_failure"
	EventCleanupError     EventType = "cleanup_error"
	EventConfigReload     EventType = "config_reload"
	EventAlert            EventType = "alert"
)

// Logger handles structured audit logging using zerolog.
type Logger struct {
	zl           zerolog.Logger
	includePass  bool
	includeProbe bool
	fileHandle   *os.File // non-nil if logging to file
}

// New creates a new audit logger. The caller should call Close when done.
func New(format, output, filePath string, includePass, includeProbe bool) (*Logger, error) {
	var writers []io.Writer

	if output == "stdout" || output == "both" {
		if format == "text" {
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		} else {
			writers = append(writers, os.Stdout)
		}
	}

	var fileHandle *os.File
	if output == "file" || output == "both" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // G304: path validated by config layer
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
		fileHandle = f
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	var w io.Writer
	if len(writers) == 1 {
		w = writers[0]
	} else {
		w = zerolog.MultiLevelWriter(writers...)
	}

	zl := zerolog.New(w).With().
		Timestamp().
		Str("component", "sandtrap").
		Logger()

	return &Logger{
		zl:           zl,
		includePass:  includePass,
		includeProbe: includeProbe,
		fileHandle:   fileHandle,
	}, nil
}

// NewNop returns a no-op logger that discards all events.
func NewNop() *Logger {
	return &Logger{
		zl: zerolog.Nop(),
	}
}

// LogSuiteStarted logs the start of a suite run.
func (l *Logger) LogSuiteStarted(runID, version string, totalTests int, categories []string) {
	l.zl.Info().
		Str("event", string(EventSuiteStarted)).
		Str("run_id", runID).
		Str("version", version).
		Int("total_tests", totalTests).
		Strs("categories", categories).
		Msg("suite started")
}

// LogSuiteFinished logs the end of a suite run with its verdict.
func (l *Logger) LogSuiteFinished(runID, verdict string, total, failed, regressions, critical int, duration time.Duration, partial bool) {
	l.zl.Info().
		Str("event", string(EventSuiteFinished)).
		Str("run_id", runID).
		Str("verdict", verdict).
		Int("total_tests", total).
		Int("failed", failed).
		Int("regressions", regressions).
		Int("critical", critical).
		Bool("partial", partial).
		Dur("duration_ms", duration).
		Msg("suite finished")
}

// LogTestCompleted logs one classified outcome. Passing outcomes are only
// emitted when include_pass is set; failures always log at warn.
func (l *Logger) LogTestCompleted(runID, testID, category, severity, details string, passed, blocked bool, elapsed time.Duration) {
	if passed && !l.includePass {
		return
	}
	ev := l.zl.Warn()
	if passed {
		ev = l.zl.Info()
	}
	ev.
		Str("event", string(EventTestCompleted)).
		Str("run_id", runID).
		Str("test_id", testID).
		Str("category", category).
		Str("severity", severity).
		Str("details", sanitizeString(details)).
		Bool("passed", passed).
		Bool("blocked", blocked).
		Dur("duration_ms", elapsed).
		Msg("test completed")
}

// LogProbeCompleted logs one concurrency probe wave.
func (l *Logger) LogProbeCompleted(runID, testID string, level, succeeded, rejected, timedOut int, elapsed time.Duration) {
	if !l.includeProbe {
		return
	}
	l.zl.Info().
		Str("event", string(EventProbeCompleted)).
		Str("run_id", runID).
		Str("test_id", testID).
		Int("level", level).
		Int("succeeded", succeeded).
		Int("rejected", rejected).
		Int("timed_out", timedOut).
		Dur("duration_ms", elapsed).
		Msg("probe wave completed")
}

// LogRegression logs a detected regression with its confidence.
func (l *Logger) LogRegression(runID, testID, regressionType, detail string, confidence float64, critical bool) {
	ev := l.zl.Warn()
	if critical {
		ev = l.zl.Error()
	}
	ev.
		Str("event", string(EventRegression)).
		Str("run_id", runID).
		Str("test_id", testID).
		Str("type", regressionType).
		Str("detail", sanitizeString(detail)).
		Float64("confidence", confidence).
		Bool("critical", critical).
		Msg("regression detected")
}

// LogTrend logs a negative history trend.
func (l *Logger) LogTrend(runID, testID, description string, confidence float64) {
	l.zl.Warn().
		Str("event", string(EventTrend)).
		Str("run_id", runID).
		Str("test_id", testID).
		Str("description", sanitizeString(description)).
		Float64("confidence", confidence).
		Msg("negative trend")
}

// LogBaselineUpdated logs a baseline auto-update.
func (l *Logger) LogBaselineUpdated(runID, testID string, maxExecutionMs float64) {
	l.zl.Info().
		Str("event", string(EventBaselineUpdated)).
		Str("run_id", runID).
		Str("test_id", testID).
		Float64("max_execution_ms", maxExecutionMs).
		Msg("baseline updated")
}

// LogPersistenceError logs a baseline or history file failure. The run
// continues with in-memory state, so this is warn, not error.
func (l *Logger) LogPersistenceError(runID, op, path string, err error) {
	l.zl.Warn().
		Str("event", string(EventPersistenceError)).
		Str("run_id", runID).
		Str("op", op).
		Str("path", sanitizeString(path)).
		Err(err).
		Msg("persistence failure, continuing in memory")
}

// LogSetupFailure logs a sandbox or session manager initialization failure.
func (l *Logger) LogSetupFailure(runID, detail string, err error) {
	l.zl.Error().
		Str("event", string(EventSetupFailure)).
		Str("run_id", runID).
		Str("detail", sanitizeString(detail)).
		Err(err).
		Msg("setup failed")
}

// LogCleanupError logs a per-resource cleanup failure. Never escalated;
// remaining resources are still released.
func (l *Logger) LogCleanupError(runID, resource string, err error) {
	l.zl.Warn().
		Str("event", string(EventCleanupError)).
		Str("run_id", runID).
		Str("resource", sanitizeString(resource)).
		Err(err).
		Msg("cleanup failed for resource")
}

// LogConfigReload logs a configuration reload event.
func (l *Logger) LogConfigReload(status, detail string) {
	l.zl.Info().
		Str("event", string(EventConfigReload)).
		Str("status", status).
		Str("detail", detail).
		Msg("configuration reloaded")
}

// LogAlert logs an outbound regression alert dispatch.
func (l *Logger) LogAlert(runID, sink, testID string, err error) {
	ev := l.zl.Info()
	if err != nil {
		ev = l.zl.Warn()
	}
	ev.
		Str("event", string(EventAlert)).
		Str("run_id", runID).
		Str("sink", sink).
		Str("test_id", testID).
		Err(err).
		Msg("alert dispatched")
}

// LogStartup logs that the engine has started.
func (l *Logger) LogStartup(sandboxAddr, mode string) {
	l.zl.Info().
		Str("event", "startup").
		Str("sandbox", sanitizeString(sandboxAddr)).
		Str("mode", mode).
		Msg("sandtrap started")
}

// LogShutdown logs that the engine is shutting down.
func (l *Logger) LogShutdown(reason string) {
	l.zl.Info().
		Str("event", "shutdown").
		Str("reason", reason).
		Msg("sandtrap stopping")
}

// With returns a sub-logger that includes the given key-value pair in every
// log entry. The sub-logger shares the parent's file handle and config but
// does NOT own the file; only the root logger should be Close()'d.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{
		zl:           l.zl.With().Str(key, value).Logger(),
		includePass:  l.includePass,
		includeProbe: l.includeProbe,
	}
}

// Close cleans up the logger, flushing and closing any open file handles.
// Close is idempotent and safe to call multiple times.
func (l *Logger) Close() {
	if l.fileHandle != nil {
		_ = l.fileHandle.Sync()
		_ = l.fileHandle.Close()
		l.fileHandle = nil
	}
}
