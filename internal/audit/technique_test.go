package audit

import (
	"regexp"
	"testing"

	"github.com/sandtrap-sec/sandtrap/internal/catalog"
)

// techniqueIDPattern matches MITRE ATT&CK technique IDs: T#### or T####.###.
var techniqueIDPattern = regexp.MustCompile(`^T\d{4}(\.\d{3})?$`)

func TestTechniqueForCategory_AllMappedEntries(t *testing.T) {
	tests := []struct {
		category  string
		technique string
	}{
		{"command_injection", "T1059"},
		{"privilege_escalation", "T1548"},
		{"path_traversal", "T1083"},
		{"buffer_overflow", "T1203"},
		{"input_validation", "T1027"},
		{"race_condition", "T1499.004"},
		{"resource_exhaustion", "T1499"},
		{"session_security", "T1563"},
		{"process_isolation", "T1055"},
		{"data_leakage", "T1552"},
		{"configuration", "T1574.007"},
		{"api", "T1190"},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got := TechniqueForCategory(tt.category)
			if got != tt.technique {
				t.Errorf("TechniqueForCategory(%q) = %q, want %q", tt.category, got, tt.technique)
			}
		})
	}
}

func TestTechniqueForCategory_UnknownReturnsEmpty(t *testing.T) {
	unknowns := []string{
		"",
		"nonexistent",
		"config_reload",
		"startup",
	}

	for _, category := range unknowns {
		t.Run(category, func(t *testing.T) {
			got := TechniqueForCategory(category)
			if got != "" {
				t.Errorf("TechniqueForCategory(%q) = %q, want empty string", category, got)
			}
		})
	}
}

func TestTechniqueMap_AllValuesAreValidFormat(t *testing.T) {
	for category, technique := range techniqueMap {
		t.Run(category, func(t *testing.T) {
			if !techniqueIDPattern.MatchString(technique) {
				t.Errorf("techniqueMap[%q] = %q, not a valid MITRE ATT&CK technique ID (expected T####[.###])", category, technique)
			}
		})
	}
}

func TestTechniqueMap_CoversEveryCatalogCategory(t *testing.T) {
	for _, c := range catalog.AllCategories {
		if TechniqueForCategory(string(c)) == "" {
			t.Errorf("catalog category %q has no technique mapping", c)
		}
	}
}
