package store

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"
)

// DefaultMaxHistoryEntries caps the per-test history ring.
const DefaultMaxHistoryEntries = 1000

// HistoryEntry is the history-compressed form of one outcome: enough to
// detect drift without keeping full payloads or evidence around.
type HistoryEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
	TestResult    bool      `json:"test_result"`
	ExecutionTime float64   `json:"execution_time_ms"`
	Vulnerability string    `json:"vulnerability,omitempty"`
	BuildNumber   int       `json:"build_number,omitempty"`
}

// historyDoc is the persisted document: schema header plus the per-test
// series.
type historyDoc struct {
	SchemaVersion int                       `json:"schema_version"`
	SavedAt       time.Time                 `json:"saved_at"`
	Entries       map[string][]HistoryEntry `json:"entries"`
}

// HistoryStore holds the bounded per-test outcome series for one file path.
// Appends keep timestamp order and drop the oldest entries past the cap.
// Safe for concurrent use.
type HistoryStore struct {
	mu         sync.RWMutex
	path       string
	maxEntries int
	entries    map[string][]HistoryEntry
}

// NewHistoryStore creates a store bound to path. maxEntries <= 0 falls back
// to DefaultMaxHistoryEntries.
func NewHistoryStore(path string, maxEntries int) *HistoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxHistoryEntries
	}
	return &HistoryStore{
		path:       path,
		maxEntries: maxEntries,
		entries:    make(map[string][]HistoryEntry),
	}
}

// Load reads the history file. A missing file leaves the store empty and
// returns nil; any other failure is a *PersistenceError.
func (s *HistoryStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &PersistenceError{Op: "load", Path: s.path, Err: err}
	}

	var doc historyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return &PersistenceError{Op: "load", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]HistoryEntry, len(doc.Entries))
	for id, series := range doc.Entries {
		// Re-enforce the cap on load: the file may have been written by a
		// process with a larger limit.
		if len(series) > s.maxEntries {
			series = series[len(series)-s.maxEntries:]
		}
		s.entries[id] = series
	}
	return nil
}

// Save writes the history document atomically.
func (s *HistoryStore) Save() error {
	s.mu.RLock()
	doc := historyDoc{
		SchemaVersion: SchemaVersion,
		SavedAt:       time.Now().UTC(),
		Entries:       make(map[string][]HistoryEntry, len(s.entries)),
	}
	for id, series := range s.entries {
		doc.Entries[id] = append([]HistoryEntry(nil), series...)
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// Append adds an entry to a test's series, dropping the oldest entries when
// the cap is exceeded. Entries are expected in timestamp order; an
// out-of-order append is re-sorted so the invariant holds.
func (s *HistoryStore) Append(testID string, entry HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series := append(s.entries[testID], entry)
	if n := len(series); n > 1 && series[n-1].Timestamp.Before(series[n-2].Timestamp) {
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
	}
	if len(series) > s.maxEntries {
		series = series[len(series)-s.maxEntries:]
	}
	s.entries[testID] = series
}

// Recent returns the last n entries for a test, oldest first. Fewer entries
// are returned when the series is shorter than n.
func (s *HistoryStore) Recent(testID string, n int) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.entries[testID]
	if n <= 0 || n > len(series) {
		n = len(series)
	}
	return append([]HistoryEntry(nil), series[len(series)-n:]...)
}

// Len returns the number of entries stored for a test.
func (s *HistoryStore) Len(testID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[testID])
}

// TestIDs returns all test IDs with history, sorted.
func (s *HistoryStore) TestIDs() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}
