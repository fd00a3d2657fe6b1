package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Script describes how the stub responds to payloads matching Contains.
// The first matching script wins; unmatched payloads get the stub default.
type Script struct {
	Contains string        // substring match against the payload
	Output   string        // returned output
	Delay    time.Duration // simulated execution time
	Err      error         // returned instead of output when non-nil
}

// Stub is an in-memory Runner for tests and demos. It records every call,
// tracks peak concurrency, and can enforce a session cap to simulate the
// runner's own concurrency controls. Safe for concurrent use.
type Stub struct {
	mu         sync.Mutex
	scripts    []Script
	defOutput  string
	defDelay   time.Duration
	sessions   map[string]string // id -> name
	sessionCap int               // 0 = unlimited
	current    string
	output     string
	executed   []string
	inFlight   int
	peak       int
	nextSess   int
}

// NewStub returns a stub whose unscripted executions return defOutput
// after defDelay.
func NewStub(defOutput string, defDelay time.Duration) *Stub {
	return &Stub{
		defOutput: defOutput,
		defDelay:  defDelay,
		sessions:  make(map[string]string),
	}
}

// AddScript appends a scripted response. Scripts are checked in order.
func (s *Stub) AddScript(sc Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, sc)
}

// SetSessionCap limits concurrent sessions; CreateSession past the cap
// returns a runner Error, mirroring a daemon with bounded sessions.
func (s *Stub) SetSessionCap(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionCap = n
}

// Executed returns the payloads executed so far, in order.
func (s *Stub) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

// PeakConcurrency returns the maximum number of simultaneous
// ExecuteCommand calls observed.
func (s *Stub) PeakConcurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// ExecuteCommand runs the payload against the script table.
func (s *Stub) ExecuteCommand(ctx context.Context, payload, _ string) (ExecResult, error) {
	s.mu.Lock()
	s.executed = append(s.executed, payload)
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	var match *Script
	for i := range s.scripts {
		if strings.Contains(payload, s.scripts[i].Contains) {
			match = &s.scripts[i]
			break
		}
	}
	output, delay := s.defOutput, s.defDelay
	var scriptErr error
	if match != nil {
		output, delay, scriptErr = match.Output, match.Delay, match.Err
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ExecResult{}, ctx.Err()
		}
	}
	if scriptErr != nil {
		return ExecResult{}, scriptErr
	}

	s.mu.Lock()
	s.output = output
	s.mu.Unlock()
	return ExecResult{Output: output, Elapsed: delay}, nil
}

// CreateSession registers a new stub session, enforcing the session cap.
func (s *Stub) CreateSession(_ context.Context, name string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionCap > 0 && len(s.sessions) >= s.sessionCap {
		return Session{}, &Error{Op: "create_session", Message: "session limit reached"}
	}
	s.nextSess++
	id := fmt.Sprintf("stub-%d", s.nextSess)
	s.sessions[id] = name
	if s.current == "" {
		s.current = id
	}
	return Session{ID: id, Name: name}, nil
}

// DestroySession removes a stub session.
func (s *Stub) DestroySession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return &Error{Op: "destroy_session", Message: "no such session: " + id}
	}
	delete(s.sessions, id)
	if s.current == id {
		s.current = ""
	}
	return nil
}

// GetOutput returns the most recent stub output, truncated to maxBytes.
func (s *Stub) GetOutput(_ context.Context, maxBytes int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxBytes > 0 && len(s.output) > maxBytes {
		return s.output[:maxBytes], nil
	}
	return s.output, nil
}

// SwitchSession makes the given stub session current.
func (s *Stub) SwitchSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return &Error{Op: "switch_session", Message: "no such session: " + id}
	}
	s.current = id
	return nil
}

// SessionCount returns the number of live stub sessions.
func (s *Stub) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
