package regress

import (
	"strings"
	"testing"
	"time"

	"github.com/sandtrap-sec/sandtrap/internal/store"
)

func trendEntry(sec int, passed bool, ms float64) store.HistoryEntry {
	return store.HistoryEntry{
		Timestamp:     time.Date(2026, 8, 1, 12, 0, sec, 0, time.UTC),
		TestResult:    passed,
		ExecutionTime: ms,
	}
}

func TestAnalyzeTrend_TooFewEntries(t *testing.T) {
	entries := []store.HistoryEntry{
		trendEntry(0, false, 9999),
		trendEntry(1, false, 9999),
	}
	tr := AnalyzeTrend("T1", entries)
	if tr.IsNegative {
		t.Errorf("trend flagged with only 2 entries: %+v", tr)
	}
}

func TestAnalyzeTrend_RisingFailureRate(t *testing.T) {
	// 2 failures out of 5 runs is 40%, over the 30% cutoff.
	entries := []store.HistoryEntry{
		trendEntry(0, true, 100),
		trendEntry(1, true, 100),
		trendEntry(2, false, 100),
		trendEntry(3, true, 100),
		trendEntry(4, false, 100),
	}
	tr := AnalyzeTrend("T1", entries)
	if !tr.IsNegative {
		t.Fatal("40% failure rate not flagged")
	}
	if tr.Confidence != 0.4 {
		t.Errorf("confidence = %v, want 0.4", tr.Confidence)
	}
	if !strings.Contains(tr.Description, "failure rate") {
		t.Errorf("description missing failure rate: %q", tr.Description)
	}
}

func TestAnalyzeTrend_StableSeries(t *testing.T) {
	entries := []store.HistoryEntry{
		trendEntry(0, true, 100),
		trendEntry(1, true, 105),
		trendEntry(2, true, 95),
		trendEntry(3, true, 100),
	}
	tr := AnalyzeTrend("T1", entries)
	if tr.IsNegative {
		t.Errorf("stable series flagged: %+v", tr)
	}
}

func TestAnalyzeTrend_LatencyDrift(t *testing.T) {
	// Window average is 250ms; the last three average 400ms, 1.6x over.
	entries := []store.HistoryEntry{
		trendEntry(0, true, 100),
		trendEntry(1, true, 100),
		trendEntry(2, true, 100),
		trendEntry(3, true, 400),
		trendEntry(4, true, 400),
		trendEntry(5, true, 400),
	}
	tr := AnalyzeTrend("T1", entries)
	if !tr.IsNegative {
		t.Fatal("latency drift not flagged")
	}
	if !strings.Contains(tr.Description, "latency") {
		t.Errorf("description missing latency detail: %q", tr.Description)
	}
	if tr.Confidence <= 0 || tr.Confidence > 1 {
		t.Errorf("confidence %v outside (0,1]", tr.Confidence)
	}
}

func TestAnalyzeTrend_ConfiguredCutoffs(t *testing.T) {
	// 33% failures and a 1.6x latency jump trip the defaults but clear a
	// detector tuned to 50% and 2.0x.
	entries := []store.HistoryEntry{
		trendEntry(0, true, 100),
		trendEntry(1, true, 100),
		trendEntry(2, false, 100),
		trendEntry(3, true, 400),
		trendEntry(4, false, 400),
		trendEntry(5, true, 400),
	}
	if tr := AnalyzeTrend("T1", entries); !tr.IsNegative {
		t.Fatalf("default cutoffs did not flag the series: %+v", tr)
	}
	d := NewDetector(0, nil, WithTrendCutoffs(0.5, 2.0))
	if tr := d.AnalyzeTrend("T1", entries); tr.IsNegative {
		t.Errorf("relaxed cutoffs still flagged the series: %+v", tr)
	}
}

func TestAnalyzeTrend_BothSignalsFire(t *testing.T) {
	entries := []store.HistoryEntry{
		trendEntry(0, true, 100),
		trendEntry(1, false, 100),
		trendEntry(2, false, 100),
		trendEntry(3, false, 600),
		trendEntry(4, false, 600),
		trendEntry(5, false, 600),
	}
	tr := AnalyzeTrend("T1", entries)
	if !tr.IsNegative {
		t.Fatal("neither signal fired")
	}
	if !strings.Contains(tr.Description, "failure rate") || !strings.Contains(tr.Description, "latency") {
		t.Errorf("description should carry both signals: %q", tr.Description)
	}
}
