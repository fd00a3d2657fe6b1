// Package metrics provides Prometheus instrumentation and a JSON stats
// endpoint for the regression suite.
package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxTopEntries = 100

// Metrics collects Prometheus counters and histograms for suite runs.
type Metrics struct {
	registry *prometheus.Registry

	testsTotal       *prometheus.CounterVec
	categoryFailures *prometheus.CounterVec
	testLatency      prometheus.Histogram

	regressionsTotal    *prometheus.CounterVec
	criticalRegressions prometheus.Gauge

	probesTotal     *prometheus.CounterVec
	probeRejections prometheus.Counter

	suiteDuration prometheus.Histogram
	lastRunTime   prometheus.Gauge

	mu             sync.Mutex
	startTime      time.Time
	topFailedTests map[string]int64
	topRegressions map[string]int64
	passedCount    int64
	failedCount    int64
	blockedCount   int64
	runCount       int64
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	testsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sandtrap",
		Name:      "tests_total",
		Help:      "Total number of attack tests by result.",
	}, []string{"result"})

	categoryFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sandtrap",
		Name:      "category_failures_total",
		Help:      "Total failed tests by attack category.",
	}, []string{"category"})

	testLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sandtrap",
		Name:      "test_duration_seconds",
		Help:      "Attack test execution latency in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	regressionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sandtrap",
		Name:      "regressions_total",
		Help:      "Total detected regressions by type.",
	}, []string{"type"})

	criticalRegressions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sandtrap",
		Name:      "critical_regressions",
		Help:      "Critical regressions found in the most recent run.",
	})

	probesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sandtrap",
		Name:      "probes_total",
		Help:      "Total concurrency probe waves by result.",
	}, []string{"result"})

	probeRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sandtrap",
		Name:      "probe_rejections_total",
		Help:      "Total probe attempts refused by the sandbox.",
	})

	suiteDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sandtrap",
		Name:      "suite_duration_seconds",
		Help:      "Full suite run duration in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	lastRunTime := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sandtrap",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the most recent completed run.",
	})

	reg.MustRegister(testsTotal, categoryFailures, testLatency,
		regressionsTotal, criticalRegressions, probesTotal, probeRejections,
		suiteDuration, lastRunTime)

	return &Metrics{
		registry:            reg,
		testsTotal:          testsTotal,
		categoryFailures:    categoryFailures,
		testLatency:         testLatency,
		regressionsTotal:    regressionsTotal,
		criticalRegressions: criticalRegressions,
		probesTotal:         probesTotal,
		probeRejections:     probeRejections,
		suiteDuration:       suiteDuration,
		lastRunTime:         lastRunTime,
		startTime:           time.Now(),
		topFailedTests:      make(map[string]int64),
		topRegressions:      make(map[string]int64),
	}
}

// RecordPassed records a test where the sandbox held.
func (m *Metrics) RecordPassed(duration time.Duration) {
	m.testsTotal.WithLabelValues("passed").Inc()
	m.testLatency.Observe(duration.Seconds())

	m.mu.Lock()
	m.passedCount++
	m.mu.Unlock()
}

// RecordFailed records a test where a payload got through.
func (m *Metrics) RecordFailed(testID, category string, duration time.Duration) {
	m.testsTotal.WithLabelValues("failed").Inc()
	m.categoryFailures.WithLabelValues(category).Inc()
	m.testLatency.Observe(duration.Seconds())

	m.mu.Lock()
	m.failedCount++
	if len(m.topFailedTests) < maxTopEntries {
		m.topFailedTests[testID]++
	} else if _, exists := m.topFailedTests[testID]; exists {
		m.topFailedTests[testID]++
	}
	m.mu.Unlock()
}

// RecordBlocked records a test the sandbox refused outright.
func (m *Metrics) RecordBlocked(duration time.Duration) {
	m.testsTotal.WithLabelValues("blocked").Inc()
	m.testLatency.Observe(duration.Seconds())

	m.mu.Lock()
	m.blockedCount++
	m.mu.Unlock()
}

// RecordRegression records a detected regression by type.
func (m *Metrics) RecordRegression(testID, regressionType string) {
	m.regressionsTotal.WithLabelValues(regressionType).Inc()

	m.mu.Lock()
	if len(m.topRegressions) < maxTopEntries {
		m.topRegressions[testID]++
	} else if _, exists := m.topRegressions[testID]; exists {
		m.topRegressions[testID]++
	}
	m.mu.Unlock()
}

// RecordProbe records one concurrency probe wave and its rejection count.
func (m *Metrics) RecordProbe(timedOut bool, rejected int) {
	result := "completed"
	if timedOut {
		result = "timed_out"
	}
	m.probesTotal.WithLabelValues(result).Inc()
	m.probeRejections.Add(float64(rejected))
}

// RecordRun records a completed suite run and its critical regression count.
func (m *Metrics) RecordRun(duration time.Duration, critical int) {
	m.suiteDuration.Observe(duration.Seconds())
	m.lastRunTime.SetToCurrentTime()
	m.criticalRegressions.Set(float64(critical))

	m.mu.Lock()
	m.runCount++
	m.mu.Unlock()
}

// PrometheusHandler returns an HTTP handler that serves /metrics in Prometheus text format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StatsHandler returns an HTTP handler that serves a JSON stats summary.
func (m *Metrics) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		m.mu.Lock()
		total := m.passedCount + m.failedCount + m.blockedCount
		stats := statsResponse{
			UptimeSeconds: time.Since(m.startTime).Seconds(),
			Tests: testStats{
				Total:   total,
				Passed:  m.passedCount,
				Failed:  m.failedCount,
				Blocked: m.blockedCount,
			},
			Runs:           m.runCount,
			TopFailedTests: topN(m.topFailedTests),
			TopRegressions: topN(m.topRegressions),
		}
		if total > 0 {
			stats.Tests.FailRate = float64(m.failedCount) / float64(total)
		}
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	}
}

// Handler returns a mux serving /metrics and /stats.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.PrometheusHandler())
	mux.Handle("/stats", m.StatsHandler())
	return mux
}

type statsResponse struct {
	UptimeSeconds  float64       `json:"uptime_seconds"`
	Tests          testStats     `json:"tests"`
	Runs           int64         `json:"runs"`
	TopFailedTests []rankedEntry `json:"top_failed_tests"`
	TopRegressions []rankedEntry `json:"top_regressions"`
}

type testStats struct {
	Total    int64   `json:"total"`
	Passed   int64   `json:"passed"`
	Failed   int64   `json:"failed"`
	Blocked  int64   `json:"blocked"`
	FailRate float64 `json:"fail_rate"`
}

type rankedEntry struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func topN(m map[string]int64) []rankedEntry {
	entries := make([]rankedEntry, 0, len(m))
	for name, count := range m {
		entries = append(entries, rankedEntry{Name: name, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries
}
