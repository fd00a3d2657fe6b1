package alert

import (
	"context"
	"testing"

	"github.com/getsentry/sentry-go"

	"github.com/sandtrap-sec/sandtrap/internal/classify"
)

func TestSentryLevelMapping(t *testing.T) {
	tests := []struct {
		sev  classify.Severity
		want sentry.Level
	}{
		{classify.SeverityCritical, sentry.LevelFatal},
		{classify.SeverityHigh, sentry.LevelError},
		{classify.SeverityMedium, sentry.LevelWarning},
		{classify.SeverityLow, sentry.LevelInfo},
		{classify.SeverityInfo, sentry.LevelInfo},
	}
	for _, tt := range tests {
		if got := sentryLevel(tt.sev); got != tt.want {
			t.Errorf("sentryLevel(%s) = %s, want %s", tt.sev, got, tt.want)
		}
	}
}

func TestSentrySink_InvalidDSN(t *testing.T) {
	if _, err := NewSentrySink("not-a-dsn", "v1.0.0", classify.SeverityHigh); err == nil {
		t.Error("expected error for malformed DSN")
	}
}

func TestSentrySink_DisabledWithEmptyDSN(t *testing.T) {
	// An empty DSN yields a disabled client; Emit and Close must still
	// be safe so operators can leave the field unset.
	sink, err := NewSentrySink("", "v1.0.0", classify.SeverityHigh)
	if err != nil {
		t.Fatalf("NewSentrySink with empty DSN: %v", err)
	}

	if err := sink.Emit(context.Background(), webhookEvent(classify.SeverityCritical)); err != nil {
		t.Errorf("Emit on disabled sink returned %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close on disabled sink returned %v", err)
	}
}

func TestSentrySink_BelowSeverityFloorDropped(t *testing.T) {
	sink, err := NewSentrySink("", "v1.0.0", classify.SeverityCritical)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = sink.Close() }()

	if err := sink.Emit(context.Background(), webhookEvent(classify.SeverityHigh)); err != nil {
		t.Errorf("dropped event returned error %v", err)
	}
}
