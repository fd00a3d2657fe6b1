// Package runner orchestrates a full suite run: catalog order execution,
// classification, baseline comparison, regression and trend detection, and
// report assembly. Everything is sequential except the concurrency probes;
// cancellation mid-suite still produces a best-effort report from the
// outcomes already classified.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/sandtrap-sec/sandtrap/internal/alert"
	"github.com/sandtrap-sec/sandtrap/internal/audit"
	"github.com/sandtrap-sec/sandtrap/internal/catalog"
	"github.com/sandtrap-sec/sandtrap/internal/classify"
	"github.com/sandtrap-sec/sandtrap/internal/config"
	"github.com/sandtrap-sec/sandtrap/internal/executor"
	"github.com/sandtrap-sec/sandtrap/internal/metrics"
	"github.com/sandtrap-sec/sandtrap/internal/regress"
	"github.com/sandtrap-sec/sandtrap/internal/report"
	"github.com/sandtrap-sec/sandtrap/internal/runlog"
	"github.com/sandtrap-sec/sandtrap/internal/sandbox"
	"github.com/sandtrap-sec/sandtrap/internal/store"
)

// cleanupTimeout bounds each individual teardown call after a run.
const cleanupTimeout = 5 * time.Second

// Deps are the collaborators a Runner needs. Sandbox is required; the rest
// default to no-ops when nil so tests can wire only what they assert on.
type Deps struct {
	Sandbox  sandbox.Runner
	Audit    *audit.Logger
	Metrics  *metrics.Metrics
	Notifier *alert.Notifier
	Archive  *runlog.Store
}

// Runner executes the attack catalog against one sandbox.
type Runner struct {
	cfg        *config.Config
	cat        *catalog.Catalog
	sandbox    sandbox.Runner
	exec       *executor.Executor
	classifier *classify.Classifier
	baselines  *store.BaselineStore
	history    *store.HistoryStore
	detector   *regress.Detector
	audit      *audit.Logger
	metrics    *metrics.Metrics
	notifier   *alert.Notifier
	archive    *runlog.Store
	version    string
}

// New wires a Runner from validated configuration. The config must have
// passed ApplyDefaults and Validate; rule regexes are assumed compilable.
func New(cfg *config.Config, version string, deps Deps) (*Runner, error) {
	if deps.Sandbox == nil {
		return nil, fmt.Errorf("runner: sandbox is required")
	}
	log := deps.Audit
	if log == nil {
		log = audit.NewNop()
	}

	var rules []classify.Rule
	for _, r := range cfg.Classifier.Rules {
		rules = append(rules, classify.Rule{Name: r.Name, Regex: r.Regex, Verdict: classify.Verdict(r.Verdict)})
	}
	classifier := classify.New(classify.Options{
		Rules:         rules,
		FastThreshold: time.Duration(cfg.Classifier.FastThresholdMs) * time.Millisecond,
	})

	factors := make(map[catalog.Category]float64, len(cfg.Regression.CategoryThreshold))
	for cat, f := range cfg.Regression.CategoryThreshold {
		factors[catalog.Category(cat)] = f
	}

	return &Runner{
		cfg:        cfg,
		cat:        catalog.Builtin(),
		sandbox:    deps.Sandbox,
		exec: executor.New(deps.Sandbox,
			time.Duration(cfg.Executor.TimeoutSeconds)*time.Second,
			cfg.Executor.PayloadsPerSecond),
		classifier: classifier,
		baselines:  store.NewBaselineStore(cfg.Baseline.File, version, cfg.Baseline.Slack),
		history:    store.NewHistoryStore(cfg.History.File, cfg.History.MaxEntries),
		detector: regress.NewDetector(cfg.Regression.DefaultThreshold, factors,
			regress.WithConfidenceDivisor(cfg.Regression.ConfidenceDivisor),
			regress.WithTrendCutoffs(cfg.Trend.FailureRateCutoff, cfg.Trend.LatencyDriftCutoff)),
		audit:      log,
		metrics:    deps.Metrics,
		notifier:   deps.Notifier,
		archive:    deps.Archive,
		version:    version,
	}, nil
}

// Run executes the suite and returns the report. A non-nil events channel
// receives progress notifications; the caller must drain it. Run closes the
// channel when finished. Context cancellation ends the run early but still
// returns a partial report.
func (r *Runner) Run(ctx context.Context, events chan<- Event) (*report.Report, error) {
	if events != nil {
		defer close(events)
	}

	runID := runlog.NewRunID()
	started := time.Now()

	r.loadStores(runID)

	patterns := r.plannedPatterns()
	categories := make([]string, 0, len(patterns))
	seen := map[catalog.Category]bool{}
	for _, p := range patterns {
		if !seen[p.Category] {
			seen[p.Category] = true
			categories = append(categories, string(p.Category))
		}
	}

	r.audit.LogSuiteStarted(runID, r.version, len(patterns), categories)
	r.send(events, Event{Type: EventSuiteStarted, RunID: runID, Total: len(patterns)})

	var (
		results []report.Result
		partial bool
	)

	if r.cfg.Mode == config.ModeAudit {
		results = r.auditResults(ctx, events, runID, patterns)
	} else if session, setupErr := r.setup(ctx, runID); setupErr != nil {
		r.audit.LogSetupFailure(runID, "sandbox session init", setupErr)
		results = append(results, r.setupFailureResult(setupErr))
	} else {
		defer r.cleanup(runID, session)

		for i, p := range patterns {
			if ctx.Err() != nil {
				partial = true
				break
			}

			outcome, cancelled := r.runPattern(ctx, events, runID, p, session)
			if cancelled {
				partial = true
				break
			}

			res := r.assess(runID, p, outcome)
			results = append(results, res)
			r.send(events, Event{
				Type: EventTestCompleted, RunID: runID, TestID: p.ID,
				Outcome: &res.Outcome, Done: i + 1, Total: len(patterns),
			})
			r.notifyRegressions(ctx, events, runID, p, res)
		}
	}

	trends := r.analyzeTrends(runID, results)

	// Audit mode only re-reads state; nothing changed, nothing to save.
	if r.cfg.Mode != config.ModeAudit {
		r.saveStores(runID)
	}

	rep := report.Generate(results, trends, r.version, partial)

	duration := time.Since(started)
	r.audit.LogSuiteFinished(runID, string(rep.Verdict), rep.TotalTests, rep.FailedTests,
		rep.Regressions, rep.CriticalRegressions, duration, partial)
	if r.metrics != nil {
		r.metrics.RecordRun(duration, rep.CriticalRegressions)
	}
	r.archiveRun(runID, started, rep, results)
	r.send(events, Event{Type: EventSuiteFinished, RunID: runID, Done: rep.TotalTests, Total: len(patterns)})

	return rep, ctx.Err()
}

// plannedPatterns returns the catalog slice this run covers, in catalog
// category order, honoring the configured category filter. Quick mode drops
// the probe patterns; everything else in quick runs base payloads only.
func (r *Runner) plannedPatterns() []catalog.Pattern {
	allowed := map[catalog.Category]bool{}
	for _, c := range r.cfg.Categories {
		allowed[catalog.Category(c)] = true
	}

	var out []catalog.Pattern
	for _, cat := range r.cat.Categories() {
		if len(allowed) > 0 && !allowed[cat] {
			continue
		}
		for _, p := range r.cat.List(cat) {
			if r.cfg.Mode == config.ModeQuick && p.IsProbe() {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

// auditResults re-analyzes stored history without touching the sandbox:
// each pattern's latest recorded outcome is replayed through regression
// detection. Patterns with no history are skipped. Nothing is persisted.
func (r *Runner) auditResults(_ context.Context, events chan<- Event, runID string, patterns []catalog.Pattern) []report.Result {
	var results []report.Result
	for _, p := range patterns {
		entries := r.history.Recent(p.ID, 1)
		if len(entries) == 0 {
			continue
		}
		latest := entries[len(entries)-1]

		outcome := classify.Outcome{
			TestID:        p.ID,
			Category:      p.Category,
			RiskScore:     p.RiskLevel,
			Passed:        latest.TestResult,
			Vulnerability: latest.Vulnerability,
			Severity:      classify.ForRisk(p.RiskLevel, latest.TestResult),
			Details:       fmt.Sprintf("audit: replayed outcome recorded %s", latest.Timestamp.Format(time.RFC3339)),
			ExecutionTime: time.Duration(latest.ExecutionTime * float64(time.Millisecond)),
		}
		if !latest.TestResult {
			outcome.MitigationHint = classify.MitigationHint(p.Category)
		}

		baseline := r.effectiveBaseline(p)
		recent := r.history.Recent(p.ID, 5)
		res := report.Result{
			Outcome:     outcome,
			Security:    r.detector.DetectSecurity(p, outcome.Passed, outcome.Vulnerability, baseline, recent),
			Performance: r.detector.DetectPerformance(p, latest.ExecutionTime, baseline, recent),
		}
		results = append(results, res)
		r.send(events, Event{
			Type: EventTestCompleted, RunID: runID, TestID: p.ID,
			Outcome: &res.Outcome, Done: len(results), Total: len(patterns),
		})
		r.notifyRegressions(context.Background(), events, runID, p, res)
	}
	return results
}

func (r *Runner) loadStores(runID string) {
	if err := r.baselines.Load(); err != nil {
		r.audit.LogPersistenceError(runID, "load", r.cfg.Baseline.File, err)
	}
	if err := r.history.Load(); err != nil {
		r.audit.LogPersistenceError(runID, "load", r.cfg.History.File, err)
	}
}

func (r *Runner) saveStores(runID string) {
	if err := r.baselines.Save(); err != nil {
		r.audit.LogPersistenceError(runID, "save", r.cfg.Baseline.File, err)
	}
	if err := r.history.Save(); err != nil {
		r.audit.LogPersistenceError(runID, "save", r.cfg.History.File, err)
	}
}

// setup creates the session all single-payload tests execute in.
func (r *Runner) setup(ctx context.Context, runID string) (sandbox.Session, error) {
	name := r.cfg.Sandbox.SessionPrefix + runID[:8]
	return r.sandbox.CreateSession(ctx, name)
}

// setupFailureResult is the single critical outcome recorded when the
// sandbox could not be initialized at all. It carries a full-confidence
// regression finding so the report verdict fails instead of reading as a
// clean empty run.
func (r *Runner) setupFailureResult(err error) report.Result {
	outcome := classify.Outcome{
		TestID:    "suite_setup",
		Category:  catalog.API,
		RiskScore: 10,
		Passed:    false,
		Severity:  classify.SeverityCritical,
		Details:   fmt.Sprintf("sandbox session init failed: %v", err),
	}
	return report.Result{
		Outcome: outcome,
		Security: regress.Finding{
			TestID:       "suite_setup",
			Type:         regress.TypeAPIChange,
			IsRegression: true,
			Confidence:   1.0,
			Detail:       outcome.Details,
		},
	}
}

// cleanup tears down run resources. Each failure is logged against its
// resource and never stops the remaining cleanups.
func (r *Runner) cleanup(runID string, session sandbox.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := r.sandbox.DestroySession(ctx, session.ID); err != nil {
		r.audit.LogCleanupError(runID, "session "+session.ID, err)
	}
}

// runPattern executes one pattern and classifies it: a concurrency probe
// for race/exhaustion categories, sequential payload + variations otherwise.
// cancelled is true when the suite context ended mid-pattern.
func (r *Runner) runPattern(ctx context.Context, events chan<- Event, runID string, p catalog.Pattern, session sandbox.Session) (classify.Outcome, bool) {
	if p.IsProbe() {
		return r.runProbe(ctx, events, runID, p)
	}

	payloads := p.Payloads()
	if r.cfg.Mode == config.ModeQuick {
		payloads = payloads[:1]
	}

	var (
		worst      *classify.Outcome
		maxElapsed time.Duration
	)
	for _, payload := range payloads {
		exec, err := r.exec.Execute(ctx, payload, session.ID)
		if err != nil {
			return classify.Outcome{}, true
		}

		var out classify.Outcome
		if exec.Blocked {
			out = r.classifier.Blocked(p, payload, exec.Elapsed, fmt.Errorf("%s", exec.BlockReason))
		} else {
			out = r.classifier.Classify(p, payload, exec.Output, exec.Elapsed)
		}
		if out.ExecutionTime > maxElapsed {
			maxElapsed = out.ExecutionTime
		}
		if worst == nil || (!out.Passed && worst.Passed) {
			o := out
			worst = &o
		}
	}

	final := *worst
	final.ExecutionTime = maxElapsed
	r.logOutcome(runID, final)
	return final, false
}

// runProbe validates the sandbox's own concurrency controls: session
// create/destroy waves for race patterns, parallel payload waves for
// exhaustion patterns. The sandbox passes when every wave finishes inside
// the wall clock and the top wave shows the excess was actually refused.
func (r *Runner) runProbe(ctx context.Context, events chan<- Event, runID string, p catalog.Pattern) (classify.Outcome, bool) {
	levels := r.cfg.Executor.ProbeLevels
	if r.cfg.Mode == config.ModeQuick && len(levels) > 3 {
		levels = levels[:3]
	}
	wall := time.Duration(r.cfg.Executor.ProbeWallSeconds) * time.Second

	var (
		waves      []executor.ProbeResult
		maxElapsed time.Duration
		timedOut   bool
	)
	for _, level := range levels {
		if ctx.Err() != nil {
			return classify.Outcome{}, true
		}
		var wave executor.ProbeResult
		if p.Category == catalog.RaceCondition {
			wave = r.exec.ProbeSessions(ctx, level, wall)
		} else {
			wave = r.exec.ProbePayload(ctx, p.BasePayload, level, wall)
		}
		waves = append(waves, wave)
		if wave.Elapsed > maxElapsed {
			maxElapsed = wave.Elapsed
		}
		if wave.TimedOut > 0 {
			timedOut = true
		}
		r.audit.LogProbeCompleted(runID, p.ID, wave.Level, wave.Succeeded, wave.Rejected, wave.TimedOut, wave.Elapsed)
		if r.metrics != nil {
			r.metrics.RecordProbe(wave.TimedOut > 0, wave.Rejected)
		}
		w := wave
		r.send(events, Event{Type: EventProbeWave, RunID: runID, TestID: p.ID, Probe: &w})
	}
	if ctx.Err() != nil && len(waves) < len(levels) {
		return classify.Outcome{}, true
	}

	top := waves[len(waves)-1]
	passed := !timedOut
	details := "probe: all waves completed inside the wall clock"
	if timedOut {
		details = "probe: sandbox stopped responding under concurrent load"
	} else if top.Level > 1 && top.Rejected == 0 && top.Succeeded == top.Attempted {
		// Unlimited acceptance at the top wave means the sandbox enforces
		// no concurrency limit of its own.
		passed = false
		details = fmt.Sprintf("probe: sandbox accepted all %d concurrent operations without refusing any", top.Attempted)
	}

	outcome := classify.Outcome{
		TestID:        p.ID,
		Category:      p.Category,
		RiskScore:     p.RiskLevel,
		Passed:        passed,
		Details:       details + "; " + waveSummary(waves),
		ExecutionTime: maxElapsed,
		AttackVector:  p.BasePayload,
	}
	if !passed {
		outcome.Vulnerability = fmt.Sprintf("%s: %s not mitigated", p.Category, p.Name)
		outcome.MitigationHint = classify.MitigationHint(p.Category)
	}
	outcome.Severity = classify.ForRisk(p.RiskLevel, passed)
	r.logOutcome(runID, outcome)
	return outcome, false
}

func waveSummary(waves []executor.ProbeResult) string {
	s := ""
	for i, w := range waves {
		if i > 0 {
			s += ", "
		}
		s += w.String()
	}
	return s
}

func (r *Runner) logOutcome(runID string, out classify.Outcome) {
	r.audit.LogTestCompleted(runID, out.TestID, string(out.Category), string(out.Severity),
		out.Details, out.Passed, out.Blocked, out.ExecutionTime)
	if r.metrics == nil {
		return
	}
	switch {
	case out.Blocked:
		r.metrics.RecordBlocked(out.ExecutionTime)
	case out.Passed:
		r.metrics.RecordPassed(out.ExecutionTime)
	default:
		r.metrics.RecordFailed(out.TestID, string(out.Category), out.ExecutionTime)
	}
}

// assess runs regression detection against the baseline and history, then
// folds this run's outcome back into history and (when eligible) baseline.
func (r *Runner) assess(runID string, p catalog.Pattern, out classify.Outcome) report.Result {
	baseline := r.effectiveBaseline(p)
	recent := r.history.Recent(p.ID, 5)
	elapsedMs := float64(out.ExecutionTime) / float64(time.Millisecond)

	security := r.detector.DetectSecurity(p, out.Passed, out.Vulnerability, baseline, recent)
	performance := r.detector.DetectPerformance(p, elapsedMs, baseline, recent)

	r.history.Append(p.ID, store.HistoryEntry{
		Timestamp:     time.Now(),
		Version:       r.version,
		TestResult:    out.Passed,
		ExecutionTime: elapsedMs,
		Vulnerability: out.Vulnerability,
	})

	autoUpdate := r.cfg.Baseline.AutoUpdate && r.cfg.Mode != config.ModeAudit
	if r.baselines.RecordIfEligible(p.ID, p.Name, out.Passed, out.ExecutionTime, autoUpdate) {
		if b, ok := r.baselines.Get(p.ID); ok {
			r.audit.LogBaselineUpdated(runID, p.ID, b.MaxExecutionTime)
		}
	}

	return report.Result{Outcome: out, Security: security, Performance: performance}
}

// effectiveBaseline returns the stored baseline with any configured
// per-category execution-time ceiling applied. The category ceiling acts as
// a floor-level guard for tests that have no measured baseline bound yet.
func (r *Runner) effectiveBaseline(p catalog.Pattern) *store.Baseline {
	categoryMax := r.cfg.Regression.CategoryMaxMs[string(p.Category)]

	b, ok := r.baselines.Get(p.ID)
	if !ok {
		if categoryMax <= 0 {
			return nil
		}
		return &store.Baseline{
			TestID:           p.ID,
			TestName:         p.Name,
			ExpectedResult:   true,
			MaxExecutionTime: categoryMax,
			Version:          r.version,
		}
	}
	if categoryMax > 0 && (b.MaxExecutionTime <= 0 || categoryMax < b.MaxExecutionTime) {
		b.MaxExecutionTime = categoryMax
	}
	return &b
}

// notifyRegressions logs, counts, and alerts the findings of one result.
// Alerts honor the confidence cutoff and are suppressed entirely in audit
// mode and when alerting is disabled.
func (r *Runner) notifyRegressions(ctx context.Context, events chan<- Event, runID string, p catalog.Pattern, res report.Result) {
	for _, f := range []regress.Finding{res.Security, res.Performance} {
		if !f.IsRegression {
			continue
		}
		critical := res.Outcome.Severity == classify.SeverityCritical
		r.audit.LogRegression(runID, f.TestID, string(f.Type), f.Detail, f.Confidence, critical)
		if r.metrics != nil {
			r.metrics.RecordRegression(f.TestID, string(f.Type))
		}
		ev := f
		r.send(events, Event{Type: EventRegression, RunID: runID, TestID: f.TestID, Finding: &ev})

		if r.notifier == nil || r.cfg.Mode == config.ModeAudit || !r.cfg.AlertOnRegression() {
			continue
		}
		if f.Confidence < r.cfg.Regression.ConfidenceCutoff {
			continue
		}
		r.notifier.Notify(ctx, alert.Event{
			Severity:   res.Outcome.Severity,
			TestID:     f.TestID,
			Category:   p.Category,
			Type:       string(f.Type),
			Technique:  audit.TechniqueForCategory(string(p.Category)),
			Confidence: f.Confidence,
			Detail:     f.Detail,
		})
	}
}

// analyzeTrends runs the trend analyzer over the history window of every
// test this run touched.
func (r *Runner) analyzeTrends(runID string, results []report.Result) []regress.Trend {
	if !r.cfg.TrendEnabled() {
		return nil
	}
	var trends []regress.Trend
	for _, res := range results {
		id := res.Outcome.TestID
		entries := r.history.Recent(id, r.cfg.Trend.WindowSize)
		trend := r.detector.AnalyzeTrend(id, entries)
		if trend.IsNegative {
			r.audit.LogTrend(runID, id, trend.Description, trend.Confidence)
		}
		trends = append(trends, trend)
	}
	return trends
}

// archiveRun writes the run summary to the SQLite archive. Failures are
// persistence errors: logged, never fatal.
func (r *Runner) archiveRun(runID string, started time.Time, rep *report.Report, results []report.Result) {
	if r.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	var regs []runlog.RegressionRow
	for _, res := range results {
		for _, f := range []regress.Finding{res.Security, res.Performance} {
			if !f.IsRegression {
				continue
			}
			regs = append(regs, runlog.RegressionRow{
				TestID:     f.TestID,
				Type:       string(f.Type),
				Severity:   string(res.Outcome.Severity),
				Confidence: f.Confidence,
				Detail:     f.Detail,
			})
		}
	}

	err := r.archive.Archive(ctx, runlog.RunSummary{
		ID:          runID,
		StartedAt:   started,
		FinishedAt:  time.Now(),
		Mode:        r.cfg.Mode,
		Verdict:     string(rep.Verdict),
		Total:       rep.TotalTests,
		Passed:      rep.TotalTests - rep.FailedTests,
		Failed:      rep.FailedTests,
		Regressions: rep.Regressions,
		Critical:    rep.CriticalRegressions,
		Partial:     rep.Partial,
		Version:     r.version,
	}, regs)
	if err != nil {
		r.audit.LogPersistenceError(runID, "save", r.cfg.RunLog.File, err)
	}
}

func (r *Runner) send(events chan<- Event, ev Event) {
	if events != nil {
		events <- ev
	}
}
