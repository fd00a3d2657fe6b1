package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sandtrap-sec/sandtrap/internal/runlog"
)

const runsConfig = `
run_log:
  enabled: true
  file: runs.db
`

func seedArchive(t *testing.T, cfgPath string, runs []runlog.RunSummary, regs map[string][]runlog.RegressionRow) {
	t.Helper()
	archive, err := runlog.Open(filepath.Join(filepath.Dir(cfgPath), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = archive.Close() }()
	for _, r := range runs {
		if err := archive.Archive(context.Background(), r, regs[r.ID]); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunsCmd_ArchiveDisabled(t *testing.T) {
	cfgPath := writeConfigFile(t, "version: 1\n")

	cmd := rootCmd()
	cmd.SetArgs([]string{"runs", "--config", cfgPath})
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error when run archive is disabled")
	}
	if got := ExitCodeOf(err); got != 2 {
		t.Errorf("exit code = %d, want 2", got)
	}
}

func TestRunsCmd_EmptyArchive(t *testing.T) {
	cfgPath := writeConfigFile(t, runsConfig)

	cmd := rootCmd()
	cmd.SetArgs([]string{"runs", "--config", cfgPath})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "no archived runs") {
		t.Errorf("expected empty archive notice, got: %q", buf.String())
	}
}

func TestRunsCmd_ListsNewestFirst(t *testing.T) {
	cfgPath := writeConfigFile(t, runsConfig)
	base := time.Now().Add(-time.Hour)
	seedArchive(t, cfgPath, []runlog.RunSummary{
		{ID: runlog.NewRunID(), StartedAt: base, FinishedAt: base.Add(time.Minute),
			Mode: "full", Verdict: "PASS", Total: 27, Passed: 27, Version: "v1"},
		{ID: runlog.NewRunID(), StartedAt: base.Add(30 * time.Minute), FinishedAt: base.Add(31 * time.Minute),
			Mode: "quick", Verdict: "FAIL", Total: 23, Passed: 20, Failed: 3, Regressions: 2, Critical: 1, Version: "v2"},
	}, nil)

	cmd := rootCmd()
	cmd.SetArgs([]string{"runs", "--config", cfgPath})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "PASS") {
		t.Errorf("expected both verdicts listed, got: %q", out)
	}
	// Newest first means the FAIL run appears before the PASS run.
	if strings.Index(out, "FAIL") > strings.Index(out, "PASS") {
		t.Error("expected newest run first")
	}
}

func TestRunsCmd_ShowRegressions(t *testing.T) {
	cfgPath := writeConfigFile(t, runsConfig)
	id := runlog.NewRunID()
	now := time.Now()
	seedArchive(t, cfgPath,
		[]runlog.RunSummary{{ID: id, StartedAt: now, FinishedAt: now,
			Mode: "full", Verdict: "FAIL", Total: 27, Failed: 1, Regressions: 1, Critical: 1, Version: "v1"}},
		map[string][]runlog.RegressionRow{id: {{
			TestID: "CMD_CHAIN_001", Type: "blocked_fix_reverted",
			Severity: "critical", Confidence: 1.0, Detail: "outcome flipped from baseline",
		}}},
	)

	cmd := rootCmd()
	cmd.SetArgs([]string{"runs", "--config", cfgPath, "--run", id})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "CMD_CHAIN_001") || !strings.Contains(out, "blocked_fix_reverted") {
		t.Errorf("expected regression row, got: %q", out)
	}
}

func TestRunsCmd_FailStreakBanner(t *testing.T) {
	cfgPath := writeConfigFile(t, runsConfig)
	base := time.Now().Add(-time.Hour)
	var runs []runlog.RunSummary
	for i, verdict := range []string{"PASS", "FAIL", "FAIL"} {
		runs = append(runs, runlog.RunSummary{
			ID:        runlog.NewRunID(),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Mode:      "full", Verdict: verdict, Total: 27, Version: "v1",
		})
	}
	seedArchive(t, cfgPath, runs, nil)

	cmd := rootCmd()
	cmd.SetArgs([]string{"runs", "--config", cfgPath})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "2 consecutive FAIL verdicts") {
		t.Errorf("expected fail streak banner, got: %q", buf.String())
	}
}
