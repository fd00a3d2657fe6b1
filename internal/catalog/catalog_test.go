package catalog

import (
	"errors"
	"testing"
)

func TestBuiltin_CoversAllCategories(t *testing.T) {
	c := Builtin()
	if c.Len() == 0 {
		t.Fatal("builtin catalog is empty")
	}

	got := make(map[Category]bool)
	for _, p := range c.List("") {
		got[p.Category] = true
	}
	if len(got) < 10 {
		t.Errorf("builtin catalog covers %d categories, want at least 10", len(got))
	}
	for _, cat := range AllCategories {
		if !got[cat] {
			t.Errorf("no builtin pattern for category %s", cat)
		}
	}
}

func TestBuiltin_EveryCategoryHasVariation(t *testing.T) {
	c := Builtin()
	for _, cat := range c.Categories() {
		found := false
		for _, p := range c.List(cat) {
			if len(p.Variations) > 0 {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("category %s has no pattern with variations", cat)
		}
	}
}

func TestBuiltin_UniqueIDsAndRiskRange(t *testing.T) {
	c := Builtin()
	seen := make(map[string]bool)
	for _, p := range c.List("") {
		if seen[p.ID] {
			t.Errorf("duplicate pattern ID %s", p.ID)
		}
		seen[p.ID] = true
		if p.RiskLevel < 0 || p.RiskLevel > 10 {
			t.Errorf("pattern %s risk level %.1f out of range", p.ID, p.RiskLevel)
		}
	}
}

func TestGet(t *testing.T) {
	c := Builtin()
	p, err := c.Get("CMD_CHAIN_001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Category != CommandInjection {
		t.Errorf("got category %s, want command_injection", p.Category)
	}

	_, err = c.Get("NO_SUCH_PATTERN")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestList_FiltersByCategory(t *testing.T) {
	c := Builtin()
	for _, p := range c.List(DataLeakage) {
		if p.Category != DataLeakage {
			t.Errorf("List(data_leakage) returned pattern %s with category %s", p.ID, p.Category)
		}
	}
	if len(c.List(DataLeakage)) == 0 {
		t.Error("List(data_leakage) returned no patterns")
	}
}

func TestPayloads_OrderPreserved(t *testing.T) {
	p := Pattern{BasePayload: "a", Variations: []string{"b", "c"}}
	got := p.Payloads()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %d payloads, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("payload %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsProbe(t *testing.T) {
	probe := Pattern{Category: RaceCondition}
	if !probe.IsProbe() {
		t.Error("race_condition pattern should be a probe")
	}
	probe.Category = ResourceExhaustion
	if !probe.IsProbe() {
		t.Error("resource_exhaustion pattern should be a probe")
	}
	single := Pattern{Category: CommandInjection}
	if single.IsProbe() {
		t.Error("command_injection pattern should not be a probe")
	}
}

func TestNew_PanicsOnDuplicateID(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate ID")
		}
	}()
	New([]Pattern{
		{ID: "X", Category: API},
		{ID: "X", Category: API},
	})
}
