package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// Verdict is what a matching rule says about the sandbox's handling of a
// payload.
type Verdict string

// Rule verdicts.
const (
	// VerdictBlocked: the output shows the sandbox actively refused or
	// neutralized the payload.
	VerdictBlocked Verdict = "blocked"
	// VerdictMalicious: the output carries evidence the payload did real
	// work — leaked credentials, elevated uid, harvested files.
	VerdictMalicious Verdict = "malicious"
	// VerdictCrash: the output shows a crash or resource blowup. Counts as
	// malicious evidence everywhere, and is the specific failure class for
	// isolate-mitigation patterns.
	VerdictCrash Verdict = "crash"
)

// Rule is one entry in the ordered classification rule set. The rule list is
// configuration, not ground truth: keyword classification is an acknowledged
// approximation, so deployments tune it per sandbox.
type Rule struct {
	Name    string
	Regex   string
	Verdict Verdict
}

// DefaultRules returns the builtin classification rule set, in match order.
func DefaultRules() []Rule {
	return []Rule{
		// Block indicators: the sandbox said no.
		{Name: "permission_denied", Regex: `permission denied`, Verdict: VerdictBlocked},
		{Name: "command_not_found", Regex: `command not found`, Verdict: VerdictBlocked},
		{Name: "access_denied", Regex: `access denied`, Verdict: VerdictBlocked},
		{Name: "forbidden", Regex: `forbidden`, Verdict: VerdictBlocked},
		{Name: "unauthorized", Regex: `unauthorized`, Verdict: VerdictBlocked},
		{Name: "blocked", Regex: `\bblocked\b`, Verdict: VerdictBlocked},
		{Name: "filtered", Regex: `\bfiltered\b`, Verdict: VerdictBlocked},
		{Name: "sanitized", Regex: `\bsanitized\b`, Verdict: VerdictBlocked},
		{Name: "not_permitted", Regex: `operation not permitted`, Verdict: VerdictBlocked},
		{Name: "invalid_command", Regex: `invalid (command|argument|session)`, Verdict: VerdictBlocked},

		// Malicious evidence: the payload did real work.
		{Name: "passwd_leak", Regex: `root:.*:0:0:`, Verdict: VerdictMalicious},
		{Name: "shadow_leak", Regex: `root:\$[0-9a-z]+\$`, Verdict: VerdictMalicious},
		{Name: "elevated_uid", Regex: `uid=0\(root\)`, Verdict: VerdictMalicious},
		{Name: "private_key_leak", Regex: `-----BEGIN\s+(RSA\s+|EC\s+|DSA\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`, Verdict: VerdictMalicious},
		{Name: "api_key_leak", Regex: `(sk-ant-|sk-proj-|AKIA[0-9A-Z]{16}|gh[ps]_[A-Za-z0-9_]{36})`, Verdict: VerdictMalicious},
		{Name: "aws_credentials", Regex: `aws_secret_access_key`, Verdict: VerdictMalicious},
		{Name: "env_secret_dump", Regex: `(api_key|secret|token|password)=\S{8,}`, Verdict: VerdictMalicious},

		// Crash / exhaustion evidence.
		{Name: "segfault", Regex: `segmentation fault`, Verdict: VerdictCrash},
		{Name: "core_dump", Regex: `core dumped`, Verdict: VerdictCrash},
		{Name: "oom", Regex: `(out of memory|cannot allocate memory)`, Verdict: VerdictCrash},
		{Name: "oom_killed", Regex: `\bkilled\b`, Verdict: VerdictCrash},
		{Name: "fork_failure", Regex: `(fork: retry|resource temporarily unavailable)`, Verdict: VerdictCrash},
		{Name: "fd_exhaustion", Regex: `too many open files`, Verdict: VerdictCrash},
		{Name: "stack_smash", Regex: `stack smashing detected`, Verdict: VerdictCrash},
	}
}

// compiledRule pairs a rule with its case-insensitive compiled form.
type compiledRule struct {
	name    string
	re      *regexp.Regexp
	verdict Verdict
}

// compileRules compiles the rule set. Rules must be validated by the config
// layer first — a compile failure here is a programming error.
func compileRules(rules []Rule) []compiledRule {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		pattern := r.Regex
		// Force case-insensitive matching: shells and sanitizers vary the
		// casing of diagnostics, and evidence can be trivially re-cased.
		if !strings.HasPrefix(pattern, "(?i)") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic(fmt.Sprintf("BUG: classification rule %q failed to compile after validation: %v", r.Name, err))
		}
		out = append(out, compiledRule{name: r.Name, re: re, verdict: r.Verdict})
	}
	return out
}
