// Package regress compares current outcomes against the stored baseline and
// recent history, scoring each divergence with a [0,1] confidence. A single
// bad run is weak evidence; confidence saturates as recent history
// corroborates the failure.
package regress

import (
	"fmt"

	"github.com/sandtrap-sec/sandtrap/internal/catalog"
	"github.com/sandtrap-sec/sandtrap/internal/store"
)

// Type labels what kind of drift a finding represents.
type Type string

const (
	TypeSecurityWeakness       Type = "security_weakness"
	TypePerformanceDegradation Type = "performance_degradation"
	TypeNewVulnerability       Type = "new_vulnerability"
	TypeBlockedFixReverted     Type = "blocked_fix_reverted"
	TypeConfigurationChange    Type = "configuration_change"
	TypeAPIChange              Type = "api_change"
)

// Default tuning. Every constant here is a config default, overridable per
// run; none is a hardcoded truth.
const (
	// DefaultPerformanceThreshold is the multiplier over the recent average
	// latency past which a run counts as a performance regression.
	DefaultPerformanceThreshold = 1.5

	// DefaultConfidenceDivisor is how many corroborating failed runs
	// saturate a security finding's confidence at 1.0.
	DefaultConfidenceDivisor = 3.0

	// DefaultFailureRateCutoff is the failure fraction over a history
	// window past which the trend turns negative.
	DefaultFailureRateCutoff = 0.30

	// DefaultLatencyDriftCutoff is the recent-vs-window latency multiplier
	// past which the trend turns negative.
	DefaultLatencyDriftCutoff = 1.5
)

// corroborationWindow is how many prior history entries are consulted when
// scoring a security regression.
const corroborationWindow = 5

// Finding is the detector's verdict for one test in one run.
type Finding struct {
	TestID        string               `json:"test_id"`
	Type          Type                 `json:"type"`
	IsRegression  bool                 `json:"is_regression"`
	Confidence    float64              `json:"confidence"`
	Detail        string               `json:"detail"`
	Baseline      *store.Baseline      `json:"baseline,omitempty"`
	RecentHistory []store.HistoryEntry `json:"recent_history,omitempty"`
}

// Detector holds the detection tuning. Zero value is not usable; construct
// with NewDetector.
type Detector struct {
	defaultThreshold   float64
	confidenceDivisor  float64
	failureRateCutoff  float64
	latencyDriftCutoff float64
	categoryFactor     map[catalog.Category]float64
}

// Option adjusts detector tuning beyond the constructor arguments.
type Option func(*Detector)

// WithConfidenceDivisor sets how many corroborating failed runs saturate a
// security finding's confidence. Values below 1 keep the default.
func WithConfidenceDivisor(divisor float64) Option {
	return func(d *Detector) {
		if divisor >= 1 {
			d.confidenceDivisor = divisor
		}
	}
}

// WithTrendCutoffs sets the failure-rate and latency-drift trend
// thresholds. Out-of-range values keep the defaults.
func WithTrendCutoffs(failureRate, latencyDrift float64) Option {
	return func(d *Detector) {
		if failureRate > 0 && failureRate < 1 {
			d.failureRateCutoff = failureRate
		}
		if latencyDrift > 1 {
			d.latencyDriftCutoff = latencyDrift
		}
	}
}

// NewDetector creates a detector. defaultThreshold <= 1 falls back to
// DefaultPerformanceThreshold; categoryFactor entries override it per
// category and may be nil.
func NewDetector(defaultThreshold float64, categoryFactor map[catalog.Category]float64, opts ...Option) *Detector {
	if defaultThreshold <= 1 {
		defaultThreshold = DefaultPerformanceThreshold
	}
	d := &Detector{
		defaultThreshold:   defaultThreshold,
		confidenceDivisor:  DefaultConfidenceDivisor,
		failureRateCutoff:  DefaultFailureRateCutoff,
		latencyDriftCutoff: DefaultLatencyDriftCutoff,
		categoryFactor:     categoryFactor,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) thresholdFor(c catalog.Category) float64 {
	if f, ok := d.categoryFactor[c]; ok && f > 1 {
		return f
	}
	return d.defaultThreshold
}

// DetectSecurity compares the current verdict against the baseline's
// expected result. Without a baseline there is nothing to regress from, so
// the finding is negative with confidence 0. Confidence grows with the
// number of corroborating failures in the last corroborationWindow history
// entries. With the default divisor one surprise run alone scores ~0.33 and
// three in a row saturate at 1.0.
func (d *Detector) DetectSecurity(p catalog.Pattern, passed bool, vulnerability string, baseline *store.Baseline, history []store.HistoryEntry) Finding {
	f := Finding{
		TestID:        p.ID,
		Type:          regressionTypeFor(p, vulnerability),
		Baseline:      baseline,
		RecentHistory: lastN(history, corroborationWindow),
	}
	if baseline == nil {
		f.Detail = "no baseline recorded, skipping comparison"
		return f
	}
	if passed == baseline.ExpectedResult {
		f.Detail = "outcome matches baseline"
		return f
	}
	if vulnerability != "" && baseline.AllowsVulnerability(vulnerability) {
		f.Detail = fmt.Sprintf("vulnerability %q is baseline-accepted", vulnerability)
		return f
	}

	corroborating := 0
	for _, e := range f.RecentHistory {
		if e.TestResult != baseline.ExpectedResult {
			corroborating++
		}
	}
	f.IsRegression = true
	f.Confidence = capConfidence(float64(corroborating+1) / d.confidenceDivisor)
	f.Detail = fmt.Sprintf("outcome flipped from baseline (expected pass=%v, got pass=%v, %d of last %d runs corroborate)",
		baseline.ExpectedResult, passed, corroborating, corroborationWindow)
	return f
}

// DetectPerformance flags latency drift. Exceeding the baseline's hard bound
// is an immediate regression at full confidence. Below the bound, the
// current time is compared against the average of the last five runs when at
// least three history points exist; confidence scales with how far past the
// category threshold the ratio landed.
func (d *Detector) DetectPerformance(p catalog.Pattern, currentMs float64, baseline *store.Baseline, history []store.HistoryEntry) Finding {
	f := Finding{
		TestID:        p.ID,
		Type:          TypePerformanceDegradation,
		Baseline:      baseline,
		RecentHistory: lastN(history, corroborationWindow),
	}
	if baseline == nil {
		f.Detail = "no baseline recorded, skipping comparison"
		return f
	}
	if baseline.MaxExecutionTime > 0 && currentMs > baseline.MaxExecutionTime {
		f.IsRegression = true
		f.Confidence = 1.0
		f.Detail = fmt.Sprintf("execution took %.1fms, over the baseline bound of %.1fms", currentMs, baseline.MaxExecutionTime)
		return f
	}
	if len(history) < 3 {
		f.Detail = "within baseline bound, not enough history for drift analysis"
		return f
	}

	recent := lastN(history, corroborationWindow)
	var sum float64
	for _, e := range recent {
		sum += e.ExecutionTime
	}
	avg := sum / float64(len(recent))
	if avg <= 0 {
		f.Detail = "within baseline bound, no usable latency history"
		return f
	}

	threshold := d.thresholdFor(p.Category)
	if currentMs > avg*threshold {
		f.IsRegression = true
		f.Confidence = capConfidence((currentMs/avg - 1) / (threshold - 1))
		f.Detail = fmt.Sprintf("execution took %.1fms against a recent average of %.1fms (%.1fx threshold for %s)",
			currentMs, avg, threshold, p.Category)
		return f
	}
	f.Detail = fmt.Sprintf("execution %.1fms within %.1fx of recent average %.1fms", currentMs, threshold, avg)
	return f
}

// regressionTypeFor classifies what a security flip means for this pattern.
// Configuration and API categories get their dedicated labels; a named
// vulnerability that was not there before reads as new; a broken block rule
// reads as a reverted fix; everything else is a generic weakening.
func regressionTypeFor(p catalog.Pattern, vulnerability string) Type {
	switch p.Category {
	case catalog.Configuration:
		return TypeConfigurationChange
	case catalog.API:
		return TypeAPIChange
	}
	if vulnerability != "" {
		return TypeNewVulnerability
	}
	if p.Expected == catalog.MitigationBlock {
		return TypeBlockedFixReverted
	}
	return TypeSecurityWeakness
}

func lastN(entries []store.HistoryEntry, n int) []store.HistoryEntry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

func capConfidence(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
