package store

import (
	"path/filepath"
	"testing"
	"time"
)

func entryAt(sec int, passed bool) HistoryEntry {
	return HistoryEntry{
		Timestamp:  time.Date(2026, 8, 1, 12, 0, sec, 0, time.UTC),
		TestResult: passed,
	}
}

func TestHistoryStore_AppendCapsAtMax(t *testing.T) {
	s := NewHistoryStore(filepath.Join(t.TempDir(), "h.json"), 3)
	for i := 0; i < 5; i++ {
		s.Append("T1", entryAt(i, true))
	}
	if s.Len("T1") != 3 {
		t.Fatalf("got %d entries, want 3", s.Len("T1"))
	}
	// The three most recent survive, oldest first.
	got := s.Recent("T1", 3)
	for i, want := range []int{2, 3, 4} {
		if got[i].Timestamp.Second() != want {
			t.Errorf("entry %d at second %d, want %d", i, got[i].Timestamp.Second(), want)
		}
	}
}

func TestHistoryStore_RoundTripKeepsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.json")
	s := NewHistoryStore(path, 3)
	for i := 0; i < 5; i++ {
		s.Append("T1", entryAt(i, i%2 == 0))
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reload := NewHistoryStore(path, 3)
	if err := reload.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := reload.Recent("T1", 0)
	if len(got) != 3 {
		t.Fatalf("got %d entries after reload, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Errorf("entries out of order at %d: %v before %v", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
}

func TestHistoryStore_LoadReappliesCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.json")
	big := NewHistoryStore(path, 10)
	for i := 0; i < 6; i++ {
		big.Append("T1", entryAt(i, true))
	}
	if err := big.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	small := NewHistoryStore(path, 2)
	if err := small.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if small.Len("T1") != 2 {
		t.Fatalf("got %d entries with cap 2, want 2", small.Len("T1"))
	}
	if sec := small.Recent("T1", 1)[0].Timestamp.Second(); sec != 5 {
		t.Errorf("newest entry at second %d, want 5", sec)
	}
}

func TestHistoryStore_AppendResortsOutOfOrder(t *testing.T) {
	s := NewHistoryStore(filepath.Join(t.TempDir(), "h.json"), 10)
	s.Append("T1", entryAt(5, true))
	s.Append("T1", entryAt(1, false))
	got := s.Recent("T1", 0)
	if got[0].Timestamp.Second() != 1 || got[1].Timestamp.Second() != 5 {
		t.Errorf("series not re-sorted: seconds %d, %d", got[0].Timestamp.Second(), got[1].Timestamp.Second())
	}
}

func TestHistoryStore_RecentShorterThanRequest(t *testing.T) {
	s := NewHistoryStore(filepath.Join(t.TempDir(), "h.json"), 10)
	s.Append("T1", entryAt(0, true))
	s.Append("T1", entryAt(1, true))
	if got := s.Recent("T1", 5); len(got) != 2 {
		t.Errorf("got %d entries, want 2", len(got))
	}
	if got := s.Recent("missing", 5); len(got) != 0 {
		t.Errorf("got %d entries for unknown test, want 0", len(got))
	}
}

func TestHistoryStore_TestIDsSorted(t *testing.T) {
	s := NewHistoryStore(filepath.Join(t.TempDir(), "h.json"), 10)
	s.Append("B", entryAt(0, true))
	s.Append("A", entryAt(0, true))
	ids := s.TestIDs()
	if len(ids) != 2 || ids[0] != "A" || ids[1] != "B" {
		t.Errorf("TestIDs = %v, want [A B]", ids)
	}
}
