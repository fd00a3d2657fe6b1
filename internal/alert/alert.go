// Package alert delivers regression findings to external systems. A
// Notifier fans events out to configured sinks (webhook, Sentry) and
// applies the confidence cutoff so low-signal findings never page anyone.
package alert

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sandtrap-sec/sandtrap/internal/catalog"
	"github.com/sandtrap-sec/sandtrap/internal/classify"
)

// Event is a single alertable finding: a regression or a negative trend.
type Event struct {
	Severity   classify.Severity
	TestID     string
	Category   catalog.Category
	Type       string // regression type, or "trend" for trend alerts
	Technique  string // MITRE ATT&CK technique for the category, if mapped
	Confidence float64
	Detail     string
	Timestamp  time.Time
	Instance   string
}

// DefaultInstanceID returns the hostname or "sandtrap" as fallback.
func DefaultInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "sandtrap"
}

// Sink is the interface for external alert delivery backends.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Emit sends an event to the external system.
	// Implementations may filter further by their own severity floor.
	Emit(ctx context.Context, event Event) error

	// Close flushes pending events and releases resources.
	Close() error
}

// Notifier fans out alert events to multiple sinks.
// All methods are safe for concurrent use.
type Notifier struct {
	mu            sync.RWMutex
	sinks         []Sink
	instance      string
	minConfidence float64
}

// NewNotifier creates a Notifier that sends events to all provided sinks.
// Events with confidence below minConfidence are dropped before fan-out.
func NewNotifier(instance string, minConfidence float64, sinks ...Sink) *Notifier {
	return &Notifier{
		sinks:         append([]Sink(nil), sinks...),
		instance:      instance,
		minConfidence: minConfidence,
	}
}

// Notify sends an event to all sinks. The instance and timestamp are
// stamped here if the caller left them zero. Errors from individual
// sinks are logged to stderr and otherwise ignored (fire-and-forget).
func (n *Notifier) Notify(ctx context.Context, event Event) {
	if n == nil {
		return
	}
	n.mu.RLock()
	sinks := n.sinks
	cutoff := n.minConfidence
	n.mu.RUnlock()

	if event.Confidence < cutoff {
		return
	}
	if event.Instance == "" {
		event.Instance = n.instance
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, s := range sinks {
		if err := s.Emit(ctx, event); err != nil {
			fmt.Fprintf(os.Stderr, "alert: sink error (test=%s): %v\n", event.TestID, err)
		}
	}
}

// ReloadSinks atomically replaces the sink set and returns the old sinks.
// The caller is responsible for closing the returned sinks.
// This enables hot-reload of alert configuration without restarting.
func (n *Notifier) ReloadSinks(newSinks []Sink) []Sink {
	n.mu.Lock()
	defer n.mu.Unlock()
	old := n.sinks
	n.sinks = append([]Sink(nil), newSinks...)
	return old
}

// SetMinConfidence updates the confidence cutoff, for hot-reload.
func (n *Notifier) SetMinConfidence(c float64) {
	n.mu.Lock()
	n.minConfidence = c
	n.mu.Unlock()
}

// Close closes all sinks and returns the first error encountered.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}

	n.mu.Lock()
	sinks := n.sinks
	n.sinks = nil
	n.mu.Unlock()

	var firstErr error
	for _, s := range sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
