// Package report turns a run's classified outcomes, regression findings and
// trend verdicts into the suite report: a human-readable text document for
// operators and machine-readable counters for CI gating.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sandtrap-sec/sandtrap/internal/classify"
	"github.com/sandtrap-sec/sandtrap/internal/regress"
)

// Verdict is the executive summary line CI keys off.
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictWarning Verdict = "WARNING"
	VerdictFail    Verdict = "FAIL"
)

// Result bundles everything known about one executed test.
type Result struct {
	Outcome     classify.Outcome `json:"outcome"`
	Security    regress.Finding  `json:"security"`
	Performance regress.Finding  `json:"performance"`
}

// regression reports whether either finding flagged this result.
func (r Result) regression() bool {
	return r.Security.IsRegression || r.Performance.IsRegression
}

// critical reports whether this result is a critical-severity regression.
// These alone flip the executive verdict to FAIL.
func (r Result) critical() bool {
	return r.regression() && r.Outcome.Severity == classify.SeverityCritical
}

// Report is the aggregated view of one suite run.
type Report struct {
	GeneratedAt         time.Time            `json:"generated_at"`
	Version             string               `json:"version"`
	Partial             bool                 `json:"partial,omitempty"`
	Verdict             Verdict              `json:"verdict"`
	TotalTests          int                  `json:"total_tests"`
	FailedTests         int                  `json:"failed_tests"`
	Regressions         int                  `json:"regressions"`
	CriticalRegressions int                  `json:"critical_regressions"`
	ByType              map[regress.Type]int `json:"regressions_by_type"`
	Critical            []Result             `json:"critical_detail,omitempty"`
	Trends              []regress.Trend      `json:"negative_trends,omitempty"`
	Recommendations     []string             `json:"recommendations"`

	results []Result
}

// Generate aggregates a run. partial marks a report built from an
// interrupted suite; already classified outcomes are still counted.
func Generate(results []Result, trends []regress.Trend, version string, partial bool) *Report {
	r := &Report{
		GeneratedAt: time.Now().UTC(),
		Version:     version,
		Partial:     partial,
		TotalTests:  len(results),
		ByType:      make(map[regress.Type]int),
		results:     results,
	}
	for _, res := range results {
		if !res.Outcome.Passed {
			r.FailedTests++
		}
		if res.Security.IsRegression {
			r.ByType[res.Security.Type]++
		}
		if res.Performance.IsRegression {
			r.ByType[res.Performance.Type]++
		}
		if res.regression() {
			r.Regressions++
		}
		if res.critical() {
			r.CriticalRegressions++
			r.Critical = append(r.Critical, res)
		}
	}
	for _, t := range trends {
		if t.IsNegative {
			r.Trends = append(r.Trends, t)
		}
	}

	switch {
	case r.CriticalRegressions > 0:
		r.Verdict = VerdictFail
	case r.Regressions > 0 || len(r.Trends) > 0:
		r.Verdict = VerdictWarning
	default:
		r.Verdict = VerdictPass
	}
	r.Recommendations = recommendationsFor(r)
	return r
}

// ExitCode maps the verdict onto the process exit status CI expects.
func (r *Report) ExitCode() int {
	if r.Verdict == VerdictFail {
		return 1
	}
	return 0
}

func recommendationsFor(r *Report) []string {
	var recs []string
	if r.CriticalRegressions > 0 {
		recs = append(recs,
			"stop deployment until critical regressions are resolved",
			"review recent sandbox and filter rule changes for the affected tests")
	}
	if r.Regressions > r.CriticalRegressions {
		recs = append(recs, "triage non-critical regressions before the next release")
	}
	if len(r.Trends) > 0 {
		recs = append(recs, "investigate negative trends before they become regressions")
	}
	if len(recs) == 0 {
		recs = append(recs, "no action required, all attack patterns handled as expected")
	}
	return recs
}

// WriteText renders the operator-facing report.
func (r *Report) WriteText(w io.Writer) error {
	var err error
	p := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	p("SECURITY REGRESSION REPORT\n")
	p("Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	if r.Version != "" {
		p("Version:   %s\n", r.Version)
	}
	if r.Partial {
		p("NOTE: run was interrupted, results are partial\n")
	}

	p("\n== Executive Summary ==\n")
	p("Verdict: %s\n", r.Verdict)
	p("Tests: %d total, %d failed, %d regressions (%d critical)\n",
		r.TotalTests, r.FailedTests, r.Regressions, r.CriticalRegressions)

	p("\n== Critical Regressions ==\n")
	if len(r.Critical) == 0 {
		p("none\n")
	}
	for _, c := range r.Critical {
		p("- [%s] %s\n", c.Outcome.TestID, c.Outcome.Details)
		f := c.Security
		if !f.IsRegression {
			f = c.Performance
		}
		p("  type=%s confidence=%.2f\n", f.Type, f.Confidence)
		p("  %s\n", f.Detail)
		if c.Outcome.MitigationHint != "" {
			p("  mitigation: %s\n", c.Outcome.MitigationHint)
		}
	}

	p("\n== Regression Analysis by Type ==\n")
	if len(r.ByType) == 0 {
		p("none\n")
	}
	types := make([]regress.Type, 0, len(r.ByType))
	for t := range r.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		p("%-26s %d\n", t, r.ByType[t])
	}

	p("\n== Historical Trends ==\n")
	if len(r.Trends) == 0 {
		p("no negative trends\n")
	}
	for _, t := range r.Trends {
		p("- [%s] confidence=%.2f: %s\n", t.TestID, t.Confidence, t.Description)
	}

	p("\n== Recommendations ==\n")
	for _, rec := range r.Recommendations {
		p("- %s\n", rec)
	}
	return err
}

// WriteJSON renders the machine-readable report.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
