package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/sandtrap-sec/sandtrap/internal/classify"
)

const sentryFlushTimeout = 2 * time.Second

// SentrySink reports alert events to Sentry. Each event becomes a Sentry
// event tagged with the test ID, category, and technique so issues group
// by attack pattern rather than by message text.
type SentrySink struct {
	hub    *sentry.Hub
	minSev classify.Severity
}

// NewSentrySink creates a SentrySink with its own client and scope, so it
// does not interfere with any global Sentry state in the host process.
// Events below minSev are dropped.
func NewSentrySink(dsn, release string, minSev classify.Severity) (*SentrySink, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:        dsn,
		Release:    release,
		ServerName: DefaultInstanceID(),
	})
	if err != nil {
		return nil, fmt.Errorf("alert: sentry client: %w", err)
	}
	return &SentrySink{
		hub:    sentry.NewHub(client, sentry.NewScope()),
		minSev: minSev,
	}, nil
}

// Emit reports a single event. Delivery is asynchronous inside the
// Sentry client; Close flushes the outbound queue.
func (s *SentrySink) Emit(_ context.Context, event Event) error {
	if event.Severity.Rank() < s.minSev.Rank() {
		return nil
	}

	se := sentry.NewEvent()
	se.Level = sentryLevel(event.Severity)
	se.Message = fmt.Sprintf("%s regression on %s: %s", event.Severity, event.TestID, event.Detail)
	se.Timestamp = event.Timestamp
	se.ServerName = event.Instance
	se.Tags = map[string]string{
		"test_id":         event.TestID,
		"category":        string(event.Category),
		"regression_type": event.Type,
	}
	if event.Technique != "" {
		se.Tags["technique"] = event.Technique
	}
	se.Extra = map[string]any{
		"confidence": event.Confidence,
	}

	s.hub.CaptureEvent(se)
	return nil
}

// Close flushes pending events. Undelivered events past the flush
// timeout are dropped; alerting must not stall suite shutdown.
func (s *SentrySink) Close() error {
	if client := s.hub.Client(); client != nil {
		client.Flush(sentryFlushTimeout)
	}
	return nil
}

func sentryLevel(sev classify.Severity) sentry.Level {
	switch sev {
	case classify.SeverityCritical:
		return sentry.LevelFatal
	case classify.SeverityHigh:
		return sentry.LevelError
	case classify.SeverityMedium:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}
