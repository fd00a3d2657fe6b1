// Package sandbox defines the interface to the command-execution collaborator
// under test, plus the WebSocket client that speaks to the runner daemon and
// a scripted stub for tests. The engine never interprets payloads itself; it
// only sends them through this interface and observes what comes back.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// ExecResult is the raw outcome of a completed command execution.
type ExecResult struct {
	Output  string
	Elapsed time.Duration
}

// Session identifies a live runner session.
type Session struct {
	ID   string
	Name string
}

// Runner is the command-execution collaborator under test. All calls may
// return *Error; the engine treats a runner error as evidence of an active
// defense (the attack was blocked), never as a harness failure.
type Runner interface {
	// ExecuteCommand sends the literal payload to the runner. sessionID may
	// be empty to use the runner's default session.
	ExecuteCommand(ctx context.Context, payload, sessionID string) (ExecResult, error)

	// CreateSession creates a named session and returns its handle.
	CreateSession(ctx context.Context, name string) (Session, error)

	// DestroySession tears down a session by ID.
	DestroySession(ctx context.Context, id string) error

	// GetOutput returns up to maxBytes of buffered output from the
	// current session.
	GetOutput(ctx context.Context, maxBytes int) (string, error)

	// SwitchSession makes the given session current.
	SwitchSession(ctx context.Context, id string) error
}

// Error is a failure reported by the runner itself (refused command,
// dead session, protocol violation). Distinct from transport errors so the
// executor can tell "the sandbox said no" apart from "the wire broke" —
// both count as blocked, but they are logged differently.
type Error struct {
	Op      string // runner operation, e.g. "execute"
	Code    int    // runner-side error code, 0 if none
	Message string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("sandbox: %s: [%d] %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("sandbox: %s: %s", e.Op, e.Message)
}
