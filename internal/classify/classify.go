// Package classify turns raw sandbox output and timing into pass/fail
// verdicts. Classification is heuristic by design: it looks for evidence of
// active defense or successful attack in captured output, it does not prove
// either. Every verdict records which rule fired so runs can be audited.
package classify

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandtrap-sec/sandtrap/internal/catalog"
	"github.com/sandtrap-sec/sandtrap/internal/normalize"
)

// DefaultFastThreshold is the execution time below which a payload is
// assumed to have been sanitized or short-circuited rather than executed.
// Real command execution through a terminal multiplexer has irreducible
// round-trip latency well above this.
const DefaultFastThreshold = 10 * time.Millisecond

// Outcome is the full result of one payload execution after classification
// and severity mapping. Outcomes are ephemeral: only their history-compressed
// form is persisted.
type Outcome struct {
	TestID         string           `json:"test_id"`
	Category       catalog.Category `json:"category"`
	RiskScore      float64          `json:"risk_score"`
	Passed         bool             `json:"passed"`
	Blocked        bool             `json:"blocked"` // the sandbox refused to execute the payload
	Vulnerability  string           `json:"vulnerability,omitempty"`
	Severity       Severity         `json:"severity"`
	Details        string           `json:"details"`
	ExecutionTime  time.Duration    `json:"execution_time"`
	AttackVector   string           `json:"attack_vector"`
	MitigationHint string           `json:"mitigation_hint,omitempty"`
}

// Options configures a Classifier. Zero values fall back to defaults.
type Options struct {
	Rules         []Rule        // ordered rule set; nil means DefaultRules
	FastThreshold time.Duration // 0 means DefaultFastThreshold
}

// Classifier applies the rule set to raw execution results.
type Classifier struct {
	rules         []compiledRule
	fastThreshold time.Duration
}

// New builds a Classifier. Rule regexes must already be validated by the
// config layer; compile failures panic.
func New(opts Options) *Classifier {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	threshold := opts.FastThreshold
	if threshold <= 0 {
		threshold = DefaultFastThreshold
	}
	return &Classifier{
		rules:         compileRules(rules),
		fastThreshold: threshold,
	}
}

// Blocked builds the outcome for a payload the sandbox refused to execute.
// A raised error from the runner is evidence of active defense, not a
// harness failure, so the test passes.
func (c *Classifier) Blocked(pattern catalog.Pattern, payload string, elapsed time.Duration, cause error) Outcome {
	out := Outcome{
		TestID:        pattern.ID,
		Category:      pattern.Category,
		RiskScore:     pattern.RiskLevel,
		Passed:        true,
		Blocked:       true,
		Details:       fmt.Sprintf("sandbox rejected execution: %v", cause),
		ExecutionTime: elapsed,
		AttackVector:  payload,
	}
	out.Severity = ForRisk(pattern.RiskLevel, out.Passed)
	return out
}

// Classify applies the decision procedure to a completed execution:
//
//  1. Suspiciously fast execution is treated as sanitized.
//  2. Block indicators or empty output mean the defense held.
//  3. Malicious evidence overrides any block indicator.
//  4. The pattern's expected mitigation tightens what counts as a pass.
func (c *Classifier) Classify(pattern catalog.Pattern, payload, output string, elapsed time.Duration) Outcome {
	out := Outcome{
		TestID:        pattern.ID,
		Category:      pattern.Category,
		RiskScore:     pattern.RiskLevel,
		ExecutionTime: elapsed,
		AttackVector:  payload,
	}

	passed, evidence := c.decide(pattern, payload, output, elapsed)
	out.Passed = passed
	out.Details = evidence
	if !passed {
		out.Vulnerability = fmt.Sprintf("%s: %s not mitigated", pattern.Category, pattern.Name)
		out.MitigationHint = MitigationHint(pattern.Category)
	}
	out.Severity = ForRisk(pattern.RiskLevel, passed)
	return out
}

func (c *Classifier) decide(pattern catalog.Pattern, payload, output string, elapsed time.Duration) (bool, string) {
	// Rule 1: sub-threshold timing means the payload never reached a real
	// shell, regardless of what the capture buffer held.
	if elapsed < c.fastThreshold {
		return true, fmt.Sprintf("fast-execution: %s below %s threshold, treated as sanitized",
			elapsed, c.fastThreshold)
	}

	cleaned := normalize.ForOutput(output)

	// Rule 3 outranks rule 2: evidence of successful attack overrides any
	// block indicator in the same capture.
	if name, verdict := c.match(cleaned, VerdictMalicious, VerdictCrash); name != "" {
		return false, fmt.Sprintf("malicious-evidence: rule %q (%s) matched output", name, verdict)
	}

	// Rule 2: explicit refusal or empty output means the defense held.
	if strings.TrimSpace(cleaned) == "" {
		return c.mitigationPass(pattern, payload, cleaned, "empty-output: no execution evidence")
	}
	if name, _ := c.match(cleaned, VerdictBlocked); name != "" {
		return true, fmt.Sprintf("block-indicator: rule %q matched output", name)
	}

	// Rule 4: no indicator either way — fall back to what the expected
	// mitigation requires of the output.
	return c.mitigationPass(pattern, payload, cleaned, "")
}

// mitigationPass applies the per-mitigation requirements of rule 4.
// baseEvidence, when set, is a pass reason established by an earlier rule
// that mitigation-specific checks may still veto.
func (c *Classifier) mitigationPass(pattern catalog.Pattern, payload, cleaned, baseEvidence string) (bool, string) {
	switch pattern.Expected {
	case catalog.MitigationBlock:
		// A block-mitigated payload must leave no execution evidence at all.
		if baseEvidence != "" {
			return true, baseEvidence
		}
		return false, "mitigation-block: output present without block indicator, payload appears to have executed"

	case catalog.MitigationSanitize:
		// Sanitization may respond, but the raw payload must not survive
		// into the output unescaped.
		if fragment := rawFragment(payload, cleaned); fragment != "" {
			return false, fmt.Sprintf("mitigation-sanitize: raw payload fragment %q survived in output", fragment)
		}
		if baseEvidence != "" {
			return true, baseEvidence
		}
		return true, "mitigation-sanitize: no raw payload fragments in output"

	case catalog.MitigationIsolate:
		// Crash evidence was already checked as part of the malicious scan;
		// reaching here means containment held.
		if baseEvidence != "" {
			return true, baseEvidence
		}
		return true, "mitigation-isolate: no crash or exhaustion evidence"

	case catalog.MitigationMonitor:
		// Monitored payloads are allowed to run.
		if baseEvidence != "" {
			return true, baseEvidence
		}
		return true, "mitigation-monitor: execution permitted, no malicious evidence"

	default:
		return false, fmt.Sprintf("unknown mitigation %q", pattern.Expected)
	}
}

// match returns the first rule with one of the wanted verdicts that matches
// the cleaned output.
func (c *Classifier) match(cleaned string, wanted ...Verdict) (string, Verdict) {
	for _, r := range c.rules {
		for _, v := range wanted {
			if r.verdict == v && r.re.MatchString(cleaned) {
				return r.name, r.verdict
			}
		}
	}
	return "", ""
}

// minFragmentLen is the shortest payload fragment considered meaningful for
// sanitize checks. Shorter fragments (lone "ls", "id") collide with benign
// output constantly.
const minFragmentLen = 6

// rawFragment reports whether a meaningful slice of the payload survived
// verbatim into the output, returning the fragment found. Echoed prompts are
// the common false positive, so the payload is split on shell separators and
// each dangerous fragment is checked individually.
func rawFragment(payload, output string) string {
	lowOut := strings.ToLower(output)
	for _, sep := range []string{";", "&&", "||", "|", "\n"} {
		payload = strings.ReplaceAll(payload, sep, "\x00")
	}
	for frag := range strings.SplitSeq(payload, "\x00") {
		frag = strings.TrimSpace(frag)
		if len(frag) < minFragmentLen {
			continue
		}
		if strings.Contains(lowOut, strings.ToLower(frag)) {
			return frag
		}
	}
	return ""
}
