package runner

import (
	"github.com/sandtrap-sec/sandtrap/internal/classify"
	"github.com/sandtrap-sec/sandtrap/internal/executor"
	"github.com/sandtrap-sec/sandtrap/internal/regress"
)

// EventType identifies a progress event.
type EventType string

// Progress event types, in the order a run produces them.
const (
	EventSuiteStarted  EventType = "suite_started"
	EventTestCompleted EventType = "test_completed"
	EventProbeWave     EventType = "probe_wave"
	EventRegression    EventType = "regression"
	EventSuiteFinished EventType = "suite_finished"
)

// Event is one progress notification. The caller owns the channel and must
// drain it; the runner sends synchronously so ordering is explicit.
type Event struct {
	Type    EventType
	RunID   string
	TestID  string
	Outcome *classify.Outcome     // test_completed
	Probe   *executor.ProbeResult // probe_wave
	Finding *regress.Finding      // regression
	Done    int                   // tests completed so far
	Total   int                   // tests planned
}
