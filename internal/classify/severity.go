package classify

import "github.com/sandtrap-sec/sandtrap/internal/catalog"

// Severity ranks a failed test by the risk level of the pattern that got
// through. Passed tests are always info.
type Severity string

// Severity levels, highest first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank returns a sortable weight, critical highest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ForRisk maps a pattern's risk level to a severity. A pass is info
// regardless of risk; failures scale with the cataloged risk level.
func ForRisk(riskLevel float64, passed bool) Severity {
	if passed {
		return SeverityInfo
	}
	switch {
	case riskLevel >= 9.0:
		return SeverityCritical
	case riskLevel >= 7.5:
		return SeverityHigh
	case riskLevel >= 5.0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// mitigationHints carries the fixed per-category remediation text attached
// to failed outcomes.
var mitigationHints = map[catalog.Category]string{
	catalog.CommandInjection:    "reject shell metacharacters and command separators before the payload reaches a shell",
	catalog.PrivilegeEscalation: "enforce least privilege: drop sudo access and strip setuid discovery from the sandbox user",
	catalog.PathTraversal:       "canonicalize and validate paths against the session root before any filesystem access",
	catalog.BufferOverflow:      "cap argument and buffer sizes at the runner boundary and reject format directives",
	catalog.InputValidation:     "normalize unicode and strip control characters before interpreting input",
	catalog.RaceCondition:       "serialize session mutations behind a lock and validate state after acquisition",
	catalog.ResourceExhaustion:  "enforce process, memory, and file-descriptor limits per session",
	catalog.SessionSecurity:     "bind sessions to their creator and validate session names against a strict charset",
	catalog.ProcessIsolation:    "confine sessions to their own process group and deny cross-group signals and ptrace",
	catalog.DataLeakage:         "scrub credentials from the session environment and deny reads outside the workspace",
	catalog.Configuration:       "reject environment overrides (LD_PRELOAD, PATH, IFS) and protect shell rc files",
	catalog.API:                 "validate runner API arguments against an allowlist and cap output requests",
}

// MitigationHint returns the fixed remediation text for a category.
func MitigationHint(category catalog.Category) string {
	if hint, ok := mitigationHints[category]; ok {
		return hint
	}
	return "review sandbox handling for this attack category"
}
