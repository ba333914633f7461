package safety

import (
	"regexp"
	"strings"
)

// Monitor verdicts.
const (
	VerdictClean   = "CLEAN"
	VerdictFlagged = "FLAGGED"
	VerdictBlock   = "BLOCK"
)

type monitorRule struct {
	Flag    string
	Block   bool
	Pattern *regexp.Regexp
}

var monitorRules = []monitorRule{
	{
		Flag:    "prompt_injection",
		Block:   true,
		Pattern: regexp.MustCompile(`(?i)\b(ignore (all |any )?(previous|prior|above) (instructions|rules|prompts)|disregard (your|the) (instructions|system prompt)|you are now\b)`),
	},
	{
		Flag:    "path_traversal",
		Block:   true,
		Pattern: regexp.MustCompile(`\.\./|\.\.\\|/etc/passwd|/etc/shadow`),
	},
	{
		Flag:    "shell_injection",
		Block:   true,
		Pattern: regexp.MustCompile(`(?i)(;\s*rm\s+-rf|\$\(.*\)|` + "`" + `[^` + "`" + `]+` + "`" + `|\|\s*sh\b)`),
	},
	{
		Flag:    "data_exfiltration",
		Block:   false,
		Pattern: regexp.MustCompile(`(?i)\b(send|post|upload|exfiltrate) (this|the|all)? ?(data|findings|results) to\b`),
	},
	{
		Flag:    "embedded_url_credential",
		Block:   false,
		Pattern: regexp.MustCompile(`(?i)https?://[^\s/]+:[^\s@/]+@`),
	},
}

// Monitor scans text for injection and traversal patterns.
type Monitor struct{}

// NewMonitor creates the default security monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Check returns the flags raised on text and the overall verdict.
// Blocking rules escalate the verdict to BLOCK; non-blocking rules
// leave it at FLAGGED.
func (m *Monitor) Check(text string) ([]string, string) {
	if strings.TrimSpace(text) == "" {
		return nil, VerdictClean
	}
	var flags []string
	verdict := VerdictClean
	for _, rule := range monitorRules {
		if rule.Pattern.MatchString(text) {
			flags = append(flags, rule.Flag)
			if rule.Block {
				verdict = VerdictBlock
			} else if verdict == VerdictClean {
				verdict = VerdictFlagged
			}
		}
	}
	return flags, verdict
}
