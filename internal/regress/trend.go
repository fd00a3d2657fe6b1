package regress

import (
	"fmt"

	"github.com/sandtrap-sec/sandtrap/internal/store"
)

// A window needs minTrendEntries before any drift call is made; below that
// the signal is noise. The last recentLatencySpan entries form the "recent"
// slice compared against the whole window.
const (
	minTrendEntries   = 3
	recentLatencySpan = 3
)

// Trend is the drift verdict over one test's recent history window.
type Trend struct {
	TestID      string  `json:"test_id"`
	IsNegative  bool    `json:"is_negative"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// AnalyzeTrend scans a history window with the default cutoffs. Runs with
// configured cutoffs go through Detector.AnalyzeTrend.
func AnalyzeTrend(testID string, entries []store.HistoryEntry) Trend {
	return NewDetector(0, nil).AnalyzeTrend(testID, entries)
}

// AnalyzeTrend scans a history window for negative drift. Two independent
// signals: a failure rate above the failure-rate cutoff, and the average
// latency of the last recentLatencySpan entries exceeding the whole-window
// average by more than the latency-drift cutoff. When both fire, the
// description carries both and confidence takes the larger score.
func (d *Detector) AnalyzeTrend(testID string, entries []store.HistoryEntry) Trend {
	t := Trend{TestID: testID}
	if len(entries) < minTrendEntries {
		t.Description = fmt.Sprintf("only %d entries, need %d for trend analysis", len(entries), minTrendEntries)
		return t
	}

	failures := 0
	var totalMs float64
	for _, e := range entries {
		if !e.TestResult {
			failures++
		}
		totalMs += e.ExecutionTime
	}
	failureRate := float64(failures) / float64(len(entries))
	windowAvg := totalMs / float64(len(entries))

	var recentMs float64
	recent := entries[len(entries)-recentLatencySpan:]
	for _, e := range recent {
		recentMs += e.ExecutionTime
	}
	recentAvg := recentMs / float64(len(recent))

	if failureRate > d.failureRateCutoff {
		t.IsNegative = true
		t.Confidence = failureRate
		t.Description = fmt.Sprintf("failure rate %.0f%% over last %d runs", failureRate*100, len(entries))
	}
	if windowAvg > 0 && recentAvg > windowAvg*d.latencyDriftCutoff {
		excess := capConfidence(recentAvg/windowAvg - 1)
		desc := fmt.Sprintf("recent latency %.1fms is %.1fx the window average %.1fms", recentAvg, recentAvg/windowAvg, windowAvg)
		if t.IsNegative {
			t.Description += "; " + desc
			if excess > t.Confidence {
				t.Confidence = excess
			}
		} else {
			t.IsNegative = true
			t.Confidence = excess
			t.Description = desc
		}
	}
	if !t.IsNegative {
		t.Description = fmt.Sprintf("stable over last %d runs (failure rate %.0f%%)", len(entries), failureRate*100)
	}
	return t
}
