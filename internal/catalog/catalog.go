// Package catalog holds the versioned registry of attack patterns that the
// regression engine replays against the sandbox. The catalog is built once at
// process start and is read-only for the lifetime of a run.
package catalog

import (
	"errors"
	"fmt"
)

// Category classifies an attack pattern by the sandbox surface it targets.
type Category string

// Attack categories. Each maps to a distinct class of sandbox defense.
const (
	CommandInjection    Category = "command_injection"
	PrivilegeEscalation Category = "privilege_escalation"
	PathTraversal       Category = "path_traversal"
	BufferOverflow      Category = "buffer_overflow"
	InputValidation     Category = "input_validation"
	RaceCondition       Category = "race_condition"
	ResourceExhaustion  Category = "resource_exhaustion"
	SessionSecurity     Category = "session_security"
	ProcessIsolation    Category = "process_isolation"
	DataLeakage         Category = "data_leakage"
	Configuration       Category = "configuration"
	API                 Category = "api"
)

// AllCategories lists every known category in catalog order.
var AllCategories = []Category{
	CommandInjection,
	PrivilegeEscalation,
	PathTraversal,
	BufferOverflow,
	InputValidation,
	RaceCondition,
	ResourceExhaustion,
	SessionSecurity,
	ProcessIsolation,
	DataLeakage,
	Configuration,
	API,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Mitigation is how the sandbox is expected to neutralize a payload.
type Mitigation string

// Mitigation modes.
const (
	// MitigationBlock: the sandbox refuses to execute the payload at all.
	MitigationBlock Mitigation = "block"
	// MitigationSanitize: the payload runs, but dangerous fragments are
	// neutralized before reaching a shell.
	MitigationSanitize Mitigation = "sanitize"
	// MitigationIsolate: the payload may run, but side effects must stay
	// contained inside the session.
	MitigationIsolate Mitigation = "isolate"
	// MitigationMonitor: the payload is allowed to run and is only flagged
	// when evidence of actual harm appears in the output.
	MitigationMonitor Mitigation = "monitor"
)

// Pattern is a single cataloged attack: a base payload plus variations,
// with the mitigation the sandbox is expected to apply. Patterns are
// immutable after the catalog is built.
type Pattern struct {
	ID          string
	Name        string
	Category    Category
	BasePayload string
	Variations  []string
	RiskLevel   float64 // 0.0-10.0
	Expected    Mitigation
}

// Payloads returns the base payload followed by all variations, in
// catalog order.
func (p Pattern) Payloads() []string {
	out := make([]string, 0, 1+len(p.Variations))
	out = append(out, p.BasePayload)
	out = append(out, p.Variations...)
	return out
}

// IsProbe reports whether this pattern must run as a bounded-concurrency
// probe rather than a single payload execution. Race and exhaustion
// patterns validate the sandbox's own concurrency controls, which a
// single sequential execution cannot exercise.
func (p Pattern) IsProbe() bool {
	return p.Category == RaceCondition || p.Category == ResourceExhaustion
}

// ErrNotFound is returned by Get for unknown pattern IDs.
var ErrNotFound = errors.New("catalog: pattern not found")

// Catalog is a read-only registry of attack patterns grouped by category.
type Catalog struct {
	patterns []Pattern
	byID     map[string]int
}

// New builds a catalog from the given patterns. It panics on duplicate IDs
// or out-of-range risk levels — the builtin corpus is validated in tests,
// so a failure here is a programming error, not user input.
func New(patterns []Pattern) *Catalog {
	c := &Catalog{
		patterns: patterns,
		byID:     make(map[string]int, len(patterns)),
	}
	for i, p := range patterns {
		if p.ID == "" {
			panic(fmt.Sprintf("BUG: catalog pattern %d has empty ID", i))
		}
		if _, dup := c.byID[p.ID]; dup {
			panic(fmt.Sprintf("BUG: duplicate catalog pattern ID %q", p.ID))
		}
		if p.RiskLevel < 0 || p.RiskLevel > 10 {
			panic(fmt.Sprintf("BUG: pattern %q risk level %.1f out of range [0,10]", p.ID, p.RiskLevel))
		}
		if !p.Category.Valid() {
			panic(fmt.Sprintf("BUG: pattern %q has unknown category %q", p.ID, p.Category))
		}
		c.byID[p.ID] = i
	}
	return c
}

// Builtin returns the catalog built from the builtin corpus.
func Builtin() *Catalog {
	return New(builtinPatterns)
}

// List returns the patterns for one category, or every pattern when
// category is empty. The returned slice is a copy in catalog order.
func (c *Catalog) List(category Category) []Pattern {
	var out []Pattern
	for _, p := range c.patterns {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the pattern with the given ID or ErrNotFound.
func (c *Catalog) Get(id string) (Pattern, error) {
	i, ok := c.byID[id]
	if !ok {
		return Pattern{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return c.patterns[i], nil
}

// Len returns the number of patterns in the catalog.
func (c *Catalog) Len() int { return len(c.patterns) }

// Categories returns the categories present in the catalog, in catalog order.
func (c *Catalog) Categories() []Category {
	seen := make(map[Category]bool)
	var out []Category
	for _, p := range c.patterns {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out
}
