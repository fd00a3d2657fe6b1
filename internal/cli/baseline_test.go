package cli

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sandtrap-sec/sandtrap/internal/store"
)

// seedBaselines writes a baseline file next to a config file that points
// at it and returns the config path.
func seedBaselines(t *testing.T, baselines ...store.Baseline) string {
	t.Helper()
	cfgPath := writeConfigFile(t, "baseline:\n  file: baselines.json\n")
	bs := store.NewBaselineStore(filepath.Join(filepath.Dir(cfgPath), "baselines.json"), "v-test", 1.2)
	for _, b := range baselines {
		bs.Put(b)
	}
	if err := bs.Save(); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestBaselineShow_Empty(t *testing.T) {
	cfgPath := writeConfigFile(t, "version: 1\n")

	cmd := rootCmd()
	cmd.SetArgs([]string{"baseline", "show", "--config", cfgPath})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "no baselines recorded") {
		t.Errorf("expected empty store notice, got: %q", buf.String())
	}
}

func TestBaselineShow_ListsEntries(t *testing.T) {
	cfgPath := seedBaselines(t, store.Baseline{
		TestID:           "CMD_CHAIN_001",
		TestName:         "Command Chaining",
		ExpectedResult:   true,
		MaxExecutionTime: 120.5,
		Version:          "v0.9.0",
		LastUpdated:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	})

	cmd := rootCmd()
	cmd.SetArgs([]string{"baseline", "show", "--config", cfgPath})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "CMD_CHAIN_001") {
		t.Error("expected baseline test ID in listing")
	}
	if !strings.Contains(out, "pass") {
		t.Error("expected expected-result column")
	}
	if !strings.Contains(out, "2026-08-01") {
		t.Error("expected last-updated date")
	}
}

func TestBaselinePrune_RemovesStaleEntries(t *testing.T) {
	cfgPath := seedBaselines(t,
		store.Baseline{TestID: "CMD_CHAIN_001", ExpectedResult: true},
		store.Baseline{TestID: "GONE_TEST_999", ExpectedResult: true},
	)

	cmd := rootCmd()
	cmd.SetArgs([]string{"baseline", "prune", "--config", cfgPath})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "pruned GONE_TEST_999") {
		t.Errorf("expected stale entry pruned, got: %q", buf.String())
	}

	bs := store.NewBaselineStore(filepath.Join(filepath.Dir(cfgPath), "baselines.json"), "v-test", 1.2)
	if err := bs.Load(); err != nil {
		t.Fatal(err)
	}
	if _, ok := bs.Get("GONE_TEST_999"); ok {
		t.Error("stale baseline survived prune")
	}
	if _, ok := bs.Get("CMD_CHAIN_001"); !ok {
		t.Error("catalog baseline should survive prune")
	}
}

func TestBaselinePrune_DryRunWritesNothing(t *testing.T) {
	cfgPath := seedBaselines(t, store.Baseline{TestID: "GONE_TEST_999"})

	cmd := rootCmd()
	cmd.SetArgs([]string{"baseline", "prune", "--config", cfgPath, "--dry-run"})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "would prune GONE_TEST_999") {
		t.Errorf("expected dry-run notice, got: %q", buf.String())
	}

	bs := store.NewBaselineStore(filepath.Join(filepath.Dir(cfgPath), "baselines.json"), "v-test", 1.2)
	if err := bs.Load(); err != nil {
		t.Fatal(err)
	}
	if _, ok := bs.Get("GONE_TEST_999"); !ok {
		t.Error("dry run must not modify the baseline file")
	}
}

func TestBaselinePrune_NothingStale(t *testing.T) {
	cfgPath := seedBaselines(t, store.Baseline{TestID: "CMD_CHAIN_001"})

	cmd := rootCmd()
	cmd.SetArgs([]string{"baseline", "prune", "--config", cfgPath})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "nothing to prune") {
		t.Errorf("expected no-op notice, got: %q", buf.String())
	}
}
