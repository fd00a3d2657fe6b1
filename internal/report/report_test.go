package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sandtrap-sec/sandtrap/internal/classify"
	"github.com/sandtrap-sec/sandtrap/internal/regress"
)

func passing(id string) Result {
	return Result{Outcome: classify.Outcome{TestID: id, Passed: true, Severity: classify.SeverityInfo}}
}

func criticalRegression(id string) Result {
	return Result{
		Outcome: classify.Outcome{TestID: id, Passed: false, Severity: classify.SeverityCritical, Details: "leaked /etc/passwd contents"},
		Security: regress.Finding{
			TestID:       id,
			Type:         regress.TypeBlockedFixReverted,
			IsRegression: true,
			Confidence:   1.0,
			Detail:       "outcome flipped from baseline",
		},
	}
}

func mediumRegression(id string) Result {
	return Result{
		Outcome: classify.Outcome{TestID: id, Passed: false, Severity: classify.SeverityMedium},
		Security: regress.Finding{
			TestID:       id,
			Type:         regress.TypeSecurityWeakness,
			IsRegression: true,
			Confidence:   0.5,
		},
	}
}

func TestGenerate_VerdictFailOnlyOnCritical(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		want    Verdict
	}{
		{"all passing", []Result{passing("A"), passing("B")}, VerdictPass},
		{"non-critical regression", []Result{passing("A"), mediumRegression("B")}, VerdictWarning},
		{"critical regression", []Result{passing("A"), criticalRegression("B")}, VerdictFail},
		{"critical outcome without regression is not FAIL", []Result{
			{Outcome: classify.Outcome{TestID: "C", Passed: false, Severity: classify.SeverityCritical}},
		}, VerdictPass},
		{"empty run", nil, VerdictPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Generate(tt.results, nil, "v1", false)
			if r.Verdict != tt.want {
				t.Errorf("verdict = %s, want %s", r.Verdict, tt.want)
			}
		})
	}
}

func TestGenerate_Counters(t *testing.T) {
	r := Generate([]Result{passing("A"), mediumRegression("B"), criticalRegression("C")}, nil, "v1", false)
	if r.TotalTests != 3 || r.FailedTests != 2 || r.Regressions != 2 || r.CriticalRegressions != 1 {
		t.Errorf("counters total=%d failed=%d regressions=%d critical=%d",
			r.TotalTests, r.FailedTests, r.Regressions, r.CriticalRegressions)
	}
	if r.ByType[regress.TypeSecurityWeakness] != 1 || r.ByType[regress.TypeBlockedFixReverted] != 1 {
		t.Errorf("by-type histogram wrong: %v", r.ByType)
	}
}

func TestGenerate_TrendWarning(t *testing.T) {
	trends := []regress.Trend{
		{TestID: "A", IsNegative: true, Confidence: 0.4, Description: "failure rate 40%"},
		{TestID: "B", IsNegative: false},
	}
	r := Generate([]Result{passing("A")}, trends, "v1", false)
	if r.Verdict != VerdictWarning {
		t.Errorf("negative trend should warn, got %s", r.Verdict)
	}
	if len(r.Trends) != 1 {
		t.Errorf("got %d trends in report, want 1 (negative only)", len(r.Trends))
	}
}

func TestReport_ExitCode(t *testing.T) {
	if code := Generate(nil, nil, "v1", false).ExitCode(); code != 0 {
		t.Errorf("PASS exit code = %d, want 0", code)
	}
	if code := Generate([]Result{criticalRegression("A")}, nil, "v1", false).ExitCode(); code != 1 {
		t.Errorf("FAIL exit code = %d, want 1", code)
	}
}

func TestWriteText_Sections(t *testing.T) {
	r := Generate([]Result{criticalRegression("CMD_CHAIN_001")}, nil, "v2", true)
	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	for _, section := range []string{
		"Executive Summary",
		"Critical Regressions",
		"Regression Analysis by Type",
		"Historical Trends",
		"Recommendations",
	} {
		if !strings.Contains(out, section) {
			t.Errorf("report missing section %q", section)
		}
	}
	if !strings.Contains(out, "stop deployment") {
		t.Error("critical regression should escalate to stop deployment")
	}
	if !strings.Contains(out, "CMD_CHAIN_001") {
		t.Error("critical detail should name the test")
	}
	if !strings.Contains(out, "partial") {
		t.Error("interrupted run should be marked partial")
	}
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	r := Generate([]Result{mediumRegression("B")}, nil, "v1", false)
	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report JSON does not parse: %v", err)
	}
	if decoded["verdict"] != "WARNING" {
		t.Errorf("verdict in JSON = %v, want WARNING", decoded["verdict"])
	}
	if decoded["total_tests"].(float64) != 1 {
		t.Errorf("total_tests = %v, want 1", decoded["total_tests"])
	}
}
