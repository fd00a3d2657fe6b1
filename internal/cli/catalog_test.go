package cli

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCatalogCmd_ListsAllPatterns(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"catalog"})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, id := range []string{"CMD_CHAIN_001", "RACE_SESSION_001", "API_OVERSIZE_002"} {
		if !strings.Contains(out, id) {
			t.Errorf("expected catalog listing to contain %s", id)
		}
	}
	if !strings.Contains(out, "27 patterns") {
		t.Errorf("expected pattern count footer, got: %q", out)
	}
}

func TestCatalogCmd_CategoryFilter(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"catalog", "--category", "command_injection"})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "CMD_CHAIN_001") {
		t.Error("expected command injection pattern in filtered listing")
	}
	if strings.Contains(out, "PRIV_SUDO_001") {
		t.Error("filtered listing should not contain other categories")
	}
	if !strings.Contains(out, "3 patterns") {
		t.Errorf("expected 3 command injection patterns, got: %q", out)
	}
}

func TestCatalogCmd_UnknownCategory(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"catalog", "--category", "nope"})
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for unknown category")
	}
	if got := ExitCodeOf(err); got != 2 {
		t.Errorf("exit code = %d, want 2", got)
	}
}

func TestCatalogCmd_JSON(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"catalog", "--json"})

	buf := &strings.Builder{}
	cmd.SetOut(buf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entries []catalogEntry
	if err := json.Unmarshal([]byte(buf.String()), &entries); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(entries) != 27 {
		t.Errorf("got %d entries, want 27", len(entries))
	}
	probes := 0
	for _, e := range entries {
		if e.ProbeDriven {
			probes++
		}
	}
	// Race and exhaustion categories, two patterns each.
	if probes != 4 {
		t.Errorf("got %d probe-driven entries, want 4", probes)
	}
}
