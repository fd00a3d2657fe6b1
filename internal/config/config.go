// Package config handles loading, validating, and defaulting sandtrap
// configuration.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode constants for sandtrap operating modes. Full runs the whole catalog
// including concurrency probes; quick skips probes; audit executes nothing
// and only re-analyzes stored history.
const (
	ModeFull  = "full"
	ModeQuick = "quick"
	ModeAudit = "audit"
)

// Verdict constants for classifier rule outcomes.
const (
	VerdictBlocked   = "blocked"
	VerdictMalicious = "malicious"
	VerdictCrash     = "crash"
)

// Output/format constants for configuration defaults.
const (
	DefaultSandboxURL = "ws://127.0.0.1:7070/rpc"
	DefaultLogFormat  = "json"
	DefaultLogOutput  = "stdout"
	OutputFile        = "file"
	OutputBoth        = "both"
)

// Config is the top-level sandtrap configuration.
type Config struct {
	Version    int        `yaml:"version"`
	Mode       string     `yaml:"mode"` // full, quick, audit
	Categories []string   `yaml:"categories"`
	Sandbox    Sandbox    `yaml:"sandbox"`
	Executor   Executor   `yaml:"executor"`
	Classifier Classifier `yaml:"classifier"`
	Baseline   Baseline   `yaml:"baseline"`
	History    History    `yaml:"history"`
	Regression Regression `yaml:"regression"`
	Trend      Trend      `yaml:"trend"`
	Alerts     Alerts     `yaml:"alerts"`
	Logging    Logging    `yaml:"logging"`
	Metrics    Metrics    `yaml:"metrics"`
	RunLog     RunLog     `yaml:"run_log"`
}

// Sandbox configures the connection to the sandboxed command runner under
// test.
type Sandbox struct {
	URL            string `yaml:"url"`
	DialSeconds    int    `yaml:"dial_seconds"`
	SessionPrefix  string `yaml:"session_prefix"`
	MaxOutputBytes int    `yaml:"max_output_bytes"`
}

// Executor configures payload dispatch timing.
type Executor struct {
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	PayloadsPerSecond float64 `yaml:"payloads_per_second"` // 0 = unpaced
	ProbeLevels       []int   `yaml:"probe_levels"`
	ProbeWallSeconds  int     `yaml:"probe_wall_seconds"`
}

// Classifier configures outcome classification.
type Classifier struct {
	FastThresholdMs int              `yaml:"fast_threshold_ms"`
	Rules           []ClassifierRule `yaml:"rules"` // empty = built-in rule set
}

// ClassifierRule is a named regex rule mapping sandbox output to a verdict.
type ClassifierRule struct {
	Name    string `yaml:"name"`
	Regex   string `yaml:"regex"`
	Verdict string `yaml:"verdict"` // blocked, malicious, crash
}

// Baseline configures the known-good comparison store.
type Baseline struct {
	File       string  `yaml:"file"`
	AutoUpdate bool    `yaml:"auto_update"`
	Slack      float64 `yaml:"slack"` // timing bound multiplier
}

// History configures the per-test outcome series store.
type History struct {
	File       string `yaml:"file"`
	MaxEntries int    `yaml:"max_entries"`
}

// Regression configures the detector.
type Regression struct {
	ConfidenceCutoff  float64            `yaml:"confidence_cutoff"`  // report findings at or above this
	DefaultThreshold  float64            `yaml:"default_threshold"`  // performance multiplier
	ConfidenceDivisor float64            `yaml:"confidence_divisor"` // corroborating runs needed to saturate
	CategoryThreshold map[string]float64 `yaml:"category_threshold"`
	CategoryMaxMs     map[string]float64 `yaml:"category_max_ms"`
}

// Trend configures history drift analysis.
type Trend struct {
	Enabled            *bool   `yaml:"enabled"` // nil = true
	WindowSize         int     `yaml:"window_size"`
	FailureRateCutoff  float64 `yaml:"failure_rate_cutoff"`  // fraction of failed runs that flags drift
	LatencyDriftCutoff float64 `yaml:"latency_drift_cutoff"` // recent-vs-window latency multiplier
}

// Alerts configures outbound regression notification.
type Alerts struct {
	OnRegression  *bool   `yaml:"on_regression"` // nil = true
	WebhookURL    string  `yaml:"webhook_url"`
	SentryDSN     string  `yaml:"sentry_dsn"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// Logging configures audit logging.
type Logging struct {
	Format       string `yaml:"format"` // json, text
	Output       string `yaml:"output"` // stdout, file, both
	File         string `yaml:"file"`
	IncludePass  bool   `yaml:"include_pass"`
	IncludeProbe bool   `yaml:"include_probe"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// RunLog configures the SQLite run archive.
type RunLog struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

// TrendEnabled returns whether trend analysis runs.
// Defaults to true when Trend.Enabled is nil (not set in config).
func (c *Config) TrendEnabled() bool {
	return c.Trend.Enabled == nil || *c.Trend.Enabled
}

// AlertOnRegression returns whether regression alerts are dispatched.
// Defaults to true when Alerts.OnRegression is nil.
func (c *Config) AlertOnRegression() bool {
	return c.Alerts.OnRegression == nil || *c.Alerts.OnRegression
}

// Load reads, parses, defaults, and validates a sandtrap config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from caller
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.ApplyDefaults()

	// Resolve relative store paths relative to the config file directory.
	dir := filepath.Dir(path)
	if !filepath.IsAbs(cfg.Baseline.File) {
		cfg.Baseline.File = filepath.Join(dir, cfg.Baseline.File)
	}
	if !filepath.IsAbs(cfg.History.File) {
		cfg.History.File = filepath.Join(dir, cfg.History.File)
	}
	if cfg.RunLog.File != "" && !filepath.IsAbs(cfg.RunLog.File) {
		cfg.RunLog.File = filepath.Join(dir, cfg.RunLog.File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Mode == "" {
		c.Mode = ModeFull
	}
	if c.Sandbox.URL == "" {
		c.Sandbox.URL = DefaultSandboxURL
	}
	if c.Sandbox.DialSeconds <= 0 {
		c.Sandbox.DialSeconds = 10
	}
	if c.Sandbox.SessionPrefix == "" {
		c.Sandbox.SessionPrefix = "sandtrap"
	}
	if c.Sandbox.MaxOutputBytes <= 0 {
		c.Sandbox.MaxOutputBytes = 1 << 20 // 1MB
	}
	if c.Executor.TimeoutSeconds <= 0 {
		c.Executor.TimeoutSeconds = 10
	}
	if len(c.Executor.ProbeLevels) == 0 {
		c.Executor.ProbeLevels = []int{1, 5, 10, 20, 100}
	}
	if c.Executor.ProbeWallSeconds <= 0 {
		c.Executor.ProbeWallSeconds = 30
	}
	if c.Classifier.FastThresholdMs <= 0 {
		c.Classifier.FastThresholdMs = 10
	}
	if c.Baseline.File == "" {
		c.Baseline.File = "baselines.json"
	}
	if c.Baseline.Slack <= 0 {
		c.Baseline.Slack = 1.2
	}
	if c.History.File == "" {
		c.History.File = "history.json"
	}
	if c.History.MaxEntries <= 0 {
		c.History.MaxEntries = 1000
	}
	if c.Regression.ConfidenceCutoff <= 0 {
		c.Regression.ConfidenceCutoff = 0.8
	}
	if c.Regression.DefaultThreshold <= 1 {
		c.Regression.DefaultThreshold = 1.5
	}
	if c.Regression.ConfidenceDivisor <= 0 {
		c.Regression.ConfidenceDivisor = 3
	}
	if c.Trend.WindowSize <= 0 {
		c.Trend.WindowSize = 10
	}
	if c.Trend.FailureRateCutoff <= 0 {
		c.Trend.FailureRateCutoff = 0.30
	}
	if c.Trend.LatencyDriftCutoff <= 1 {
		c.Trend.LatencyDriftCutoff = 1.5
	}
	if c.Alerts.MinConfidence <= 0 {
		c.Alerts.MinConfidence = c.Regression.ConfidenceCutoff
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = DefaultLogOutput
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9477"
	}
	if c.RunLog.Enabled && c.RunLog.File == "" {
		c.RunLog.File = "runs.db"
	}
}

// knownCategories mirrors the attack catalog's category set. Kept as plain
// strings so the config package does not import the catalog.
var knownCategories = map[string]bool{
	"command_injection":    true,
	"privilege_escalation": true,
	"path_traversal":       true,
	"buffer_overflow":      true,
	"input_validation":     true,
	"race_condition":       true,
	"resource_exhaustion":  true,
	"session_security":     true,
	"process_isolation":    true,
	"data_leakage":         true,
	"configuration":        true,
	"api":                  true,
}

// Validate checks the config for errors. Must be called after ApplyDefaults.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeFull, ModeQuick, ModeAudit:
		// valid
	default:
		return fmt.Errorf("invalid mode %q: must be full, quick, or audit", c.Mode)
	}

	for _, cat := range c.Categories {
		if !knownCategories[cat] {
			return fmt.Errorf("unknown category %q", cat)
		}
	}

	u, err := url.Parse(c.Sandbox.URL)
	if err != nil {
		return fmt.Errorf("invalid sandbox url %q: %w", c.Sandbox.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid sandbox url scheme %q: must be ws or wss", u.Scheme)
	}

	for i, lvl := range c.Executor.ProbeLevels {
		if lvl < 1 {
			return fmt.Errorf("executor.probe_levels[%d] = %d: must be >= 1", i, lvl)
		}
		if i > 0 && lvl <= c.Executor.ProbeLevels[i-1] {
			return fmt.Errorf("executor.probe_levels must be strictly increasing")
		}
	}

	// Validate classifier rules compile as valid regexes
	for _, r := range c.Classifier.Rules {
		if r.Name == "" {
			return fmt.Errorf("classifier rule missing name")
		}
		if r.Regex == "" {
			return fmt.Errorf("classifier rule %q missing regex", r.Name)
		}
		if _, err := regexp.Compile(r.Regex); err != nil {
			return fmt.Errorf("classifier rule %q has invalid regex: %w", r.Name, err)
		}
		switch r.Verdict {
		case VerdictBlocked, VerdictMalicious, VerdictCrash:
			// valid
		default:
			return fmt.Errorf("classifier rule %q has invalid verdict %q: must be blocked, malicious, or crash", r.Name, r.Verdict)
		}
	}

	if c.Baseline.Slack < 1 {
		return fmt.Errorf("baseline.slack %.2f must be >= 1", c.Baseline.Slack)
	}
	if c.Regression.ConfidenceCutoff <= 0 || c.Regression.ConfidenceCutoff > 1 {
		return fmt.Errorf("regression.confidence_cutoff %.2f must be in (0,1]", c.Regression.ConfidenceCutoff)
	}
	if c.Regression.DefaultThreshold <= 1 {
		return fmt.Errorf("regression.default_threshold %.2f must be > 1", c.Regression.DefaultThreshold)
	}
	if c.Regression.ConfidenceDivisor < 1 {
		return fmt.Errorf("regression.confidence_divisor %.2f must be >= 1", c.Regression.ConfidenceDivisor)
	}
	if c.Trend.FailureRateCutoff <= 0 || c.Trend.FailureRateCutoff >= 1 {
		return fmt.Errorf("trend.failure_rate_cutoff %.2f must be in (0,1)", c.Trend.FailureRateCutoff)
	}
	if c.Trend.LatencyDriftCutoff <= 1 {
		return fmt.Errorf("trend.latency_drift_cutoff %.2f must be > 1", c.Trend.LatencyDriftCutoff)
	}
	for cat, f := range c.Regression.CategoryThreshold {
		if !knownCategories[cat] {
			return fmt.Errorf("regression.category_threshold: unknown category %q", cat)
		}
		if f <= 1 {
			return fmt.Errorf("regression.category_threshold[%s] = %.2f: must be > 1", cat, f)
		}
	}
	for cat, ms := range c.Regression.CategoryMaxMs {
		if !knownCategories[cat] {
			return fmt.Errorf("regression.category_max_ms: unknown category %q", cat)
		}
		if ms <= 0 {
			return fmt.Errorf("regression.category_max_ms[%s] = %.1f: must be positive", cat, ms)
		}
	}

	if c.Alerts.MinConfidence < 0 || c.Alerts.MinConfidence > 1 {
		return fmt.Errorf("alerts.min_confidence %.2f must be in [0,1]", c.Alerts.MinConfidence)
	}
	if c.Alerts.WebhookURL != "" {
		wu, err := url.Parse(c.Alerts.WebhookURL)
		if err != nil || (wu.Scheme != "http" && wu.Scheme != "https") {
			return fmt.Errorf("invalid alerts.webhook_url %q: must be an http(s) URL", c.Alerts.WebhookURL)
		}
	}

	switch c.Logging.Format {
	case DefaultLogFormat, "text":
		// valid
	default:
		return fmt.Errorf("invalid logging format %q: must be json or text", c.Logging.Format)
	}

	switch c.Logging.Output {
	case DefaultLogOutput, OutputFile, OutputBoth:
		// valid
	default:
		return fmt.Errorf("invalid logging output %q: must be stdout, file, or both", c.Logging.Output)
	}

	if (c.Logging.Output == OutputFile || c.Logging.Output == OutputBoth) && c.Logging.File == "" {
		return fmt.Errorf("logging.file is required when output is %q", c.Logging.Output)
	}

	if c.Metrics.Enabled {
		host, _, err := net.SplitHostPort(c.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("invalid metrics.listen %q: %w", c.Metrics.Listen, err)
		}
		// Warn if metrics address is not loopback (exposed to network).
		ip := net.ParseIP(host)
		if host == "" || host == "0.0.0.0" || host == "::" || (ip != nil && !ip.IsLoopback()) {
			fmt.Fprintf(os.Stderr, "WARNING: metrics listen address %s is not loopback - the /metrics endpoint will be exposed to the network\n", c.Metrics.Listen)
		}
	}

	if c.RunLog.Enabled && !strings.HasSuffix(c.RunLog.File, ".db") {
		fmt.Fprintf(os.Stderr, "WARNING: run_log.file %q does not end in .db\n", c.RunLog.File)
	}

	return nil
}

// ReloadWarning describes a potential coverage downgrade from a config reload.
type ReloadWarning struct {
	Field   string
	Message string
}

// ValidateReload compares old and new configs and returns warnings for
// changes that weaken detection. Warnings don't block the reload.
func ValidateReload(old, updated *Config) []ReloadWarning {
	var warnings []ReloadWarning

	// Mode downgrade: full → quick → audit
	modeRank := map[string]int{ModeFull: 3, ModeQuick: 2, ModeAudit: 1}
	if modeRank[updated.Mode] < modeRank[old.Mode] {
		warnings = append(warnings, ReloadWarning{
			Field:   "mode",
			Message: fmt.Sprintf("mode downgraded from %s to %s", old.Mode, updated.Mode),
		})
	}

	// Category coverage narrowed. An empty list means all categories.
	if len(old.Categories) == 0 && len(updated.Categories) > 0 {
		warnings = append(warnings, ReloadWarning{
			Field:   "categories",
			Message: fmt.Sprintf("coverage narrowed from all categories to %d", len(updated.Categories)),
		})
	} else if len(old.Categories) > 0 && len(updated.Categories) > 0 && len(updated.Categories) < len(old.Categories) {
		warnings = append(warnings, ReloadWarning{
			Field:   "categories",
			Message: fmt.Sprintf("categories reduced from %d to %d", len(old.Categories), len(updated.Categories)),
		})
	}

	// Classifier rules removed
	if len(old.Classifier.Rules) > 0 && len(updated.Classifier.Rules) < len(old.Classifier.Rules) {
		warnings = append(warnings, ReloadWarning{
			Field:   "classifier.rules",
			Message: fmt.Sprintf("classifier rules reduced from %d to %d", len(old.Classifier.Rules), len(updated.Classifier.Rules)),
		})
	}

	// Baseline auto-update enabled: new baselines overwrite the comparison
	// point, which can mask slow drift.
	if !old.Baseline.AutoUpdate && updated.Baseline.AutoUpdate {
		warnings = append(warnings, ReloadWarning{
			Field:   "baseline.auto_update",
			Message: "baseline auto-update enabled; passing runs will rewrite timing bounds",
		})
	}

	// Confidence cutoff raised: fewer findings reported
	if updated.Regression.ConfidenceCutoff > old.Regression.ConfidenceCutoff {
		warnings = append(warnings, ReloadWarning{
			Field: "regression.confidence_cutoff",
			Message: fmt.Sprintf("confidence cutoff raised from %.2f to %.2f",
				old.Regression.ConfidenceCutoff, updated.Regression.ConfidenceCutoff),
		})
	}

	// Trend analysis disabled
	if old.TrendEnabled() && !updated.TrendEnabled() {
		warnings = append(warnings, ReloadWarning{
			Field:   "trend.enabled",
			Message: "trend analysis disabled",
		})
	}

	// Regression alerts disabled
	if old.AlertOnRegression() && !updated.AlertOnRegression() {
		warnings = append(warnings, ReloadWarning{
			Field:   "alerts.on_regression",
			Message: "regression alerting disabled",
		})
	}

	// Fast threshold raised: more executions auto-pass without scrutiny
	if updated.Classifier.FastThresholdMs > old.Classifier.FastThresholdMs {
		warnings = append(warnings, ReloadWarning{
			Field: "classifier.fast_threshold_ms",
			Message: fmt.Sprintf("fast threshold raised from %dms to %dms",
				old.Classifier.FastThresholdMs, updated.Classifier.FastThresholdMs),
		})
	}

	return warnings
}

// Defaults returns a Config with sensible defaults for a full run.
func Defaults() *Config {
	cfg := &Config{
		Version: 1,
		Mode:    ModeFull,
		Sandbox: Sandbox{
			URL:            DefaultSandboxURL,
			DialSeconds:    10,
			SessionPrefix:  "sandtrap",
			MaxOutputBytes: 1 << 20,
		},
		Executor: Executor{
			TimeoutSeconds:   10,
			ProbeLevels:      []int{1, 5, 10, 20, 100},
			ProbeWallSeconds: 30,
		},
		Classifier: Classifier{
			FastThresholdMs: 10,
		},
		Baseline: Baseline{
			File:  "baselines.json",
			Slack: 1.2,
		},
		History: History{
			File:       "history.json",
			MaxEntries: 1000,
		},
		Regression: Regression{
			ConfidenceCutoff:  0.8,
			DefaultThreshold:  1.5,
			ConfidenceDivisor: 3,
			CategoryThreshold: map[string]float64{
				// Probe categories have noisy latency; give them headroom.
				"race_condition":      2.0,
				"resource_exhaustion": 2.0,
			},
		},
		Trend: Trend{
			WindowSize:         10,
			FailureRateCutoff:  0.30,
			LatencyDriftCutoff: 1.5,
		},
		Alerts: Alerts{
			MinConfidence: 0.8,
		},
		Logging: Logging{
			Format:       DefaultLogFormat,
			Output:       DefaultLogOutput,
			IncludePass:  true,
			IncludeProbe: true,
		},
	}
	return cfg
}
