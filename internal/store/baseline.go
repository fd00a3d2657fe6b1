package store

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"
)

// DefaultBaselineSlack is the multiplier applied to a passing run's
// execution time when recording its baseline timing bound. The slack absorbs
// normal scheduler jitter; anything past it is flagged as a performance
// regression. Empirical tuning value, overridable in config.
const DefaultBaselineSlack = 1.2

// Baseline is the last known-good expected outcome for one test. At most one
// baseline exists per test ID.
type Baseline struct {
	TestID                 string    `json:"test_id"`
	TestName               string    `json:"test_name"`
	ExpectedResult         bool      `json:"expected_result"`
	MaxExecutionTime       float64   `json:"max_execution_time_ms"`
	AllowedVulnerabilities []string  `json:"allowed_vulnerabilities,omitempty"`
	LastUpdated            time.Time `json:"last_updated"`
	Version                string    `json:"version"`
}

// AllowsVulnerability reports whether the named vulnerability is in the
// baseline's accepted set.
func (b Baseline) AllowsVulnerability(name string) bool {
	for _, v := range b.AllowedVulnerabilities {
		if v == name {
			return true
		}
	}
	return false
}

// baselineDoc is the persisted document: a schema header plus records.
type baselineDoc struct {
	SchemaVersion int        `json:"schema_version"`
	SavedAt       time.Time  `json:"saved_at"`
	Baselines     []Baseline `json:"baselines"`
}

// BaselineStore holds the baseline map for one file path. Safe for
// concurrent use.
type BaselineStore struct {
	mu        sync.RWMutex
	path      string
	version   string // engine version stamped into new baselines
	slack     float64
	baselines map[string]Baseline
}

// NewBaselineStore creates a store bound to path. version is stamped into
// baselines recorded by this process. slack <= 0 falls back to
// DefaultBaselineSlack.
func NewBaselineStore(path, version string, slack float64) *BaselineStore {
	if slack <= 0 {
		slack = DefaultBaselineSlack
	}
	return &BaselineStore{
		path:      path,
		version:   version,
		slack:     slack,
		baselines: make(map[string]Baseline),
	}
}

// Load reads the baseline file. A missing file leaves the store empty and
// returns nil; any other failure is a *PersistenceError.
func (s *BaselineStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &PersistenceError{Op: "load", Path: s.path, Err: err}
	}

	var doc baselineDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return &PersistenceError{Op: "load", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines = make(map[string]Baseline, len(doc.Baselines))
	for _, b := range doc.Baselines {
		s.baselines[b.TestID] = b
	}
	return nil
}

// Save writes the baseline document atomically.
func (s *BaselineStore) Save() error {
	s.mu.RLock()
	doc := baselineDoc{
		SchemaVersion: SchemaVersion,
		SavedAt:       time.Now().UTC(),
		Baselines:     make([]Baseline, 0, len(s.baselines)),
	}
	for _, b := range s.baselines {
		doc.Baselines = append(doc.Baselines, b)
	}
	s.mu.RUnlock()

	// Stable record order keeps the file diffable across runs.
	sort.Slice(doc.Baselines, func(i, j int) bool {
		return doc.Baselines[i].TestID < doc.Baselines[j].TestID
	})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// Get returns the baseline for a test ID, if one exists.
func (s *BaselineStore) Get(testID string) (Baseline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[testID]
	return b, ok
}

// Put inserts or replaces a baseline.
func (s *BaselineStore) Put(b Baseline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[b.TestID] = b
}

// Delete removes the baseline for a test ID, reporting whether one existed.
func (s *BaselineStore) Delete(testID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.baselines[testID]
	delete(s.baselines, testID)
	return ok
}

// Len returns the number of stored baselines.
func (s *BaselineStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.baselines)
}

// All returns every baseline, sorted by test ID.
func (s *BaselineStore) All() []Baseline {
	s.mu.RLock()
	out := make([]Baseline, 0, len(s.baselines))
	for _, b := range s.baselines {
		out = append(out, b)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TestID < out[j].TestID })
	return out
}

// RecordIfEligible writes a new baseline only when auto-update is enabled
// AND the current run passed. Recording only good states keeps a compromised
// run from rewriting the comparison point and masking later regressions.
// The timing bound gets the configured slack on top of the measured time.
// Returns true when a baseline was recorded.
func (s *BaselineStore) RecordIfEligible(testID, testName string, passed bool, elapsed time.Duration, autoUpdate bool) bool {
	if !autoUpdate || !passed {
		return false
	}
	s.Put(Baseline{
		TestID:           testID,
		TestName:         testName,
		ExpectedResult:   true,
		MaxExecutionTime: float64(elapsed) / float64(time.Millisecond) * s.slack,
		LastUpdated:      time.Now().UTC(),
		Version:          s.version,
	})
	return true
}
