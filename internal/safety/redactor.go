package safety

import (
	"regexp"
	"sort"
)

// PII detector set. Replacement tokens are stable per type so two
// identical inputs scrubbed independently produce identical output.
var (
	emailRE = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// North-American formats, then international numbers with a
	// leading +, separators allowed between digit groups.
	phoneRE = regexp.MustCompile(`(?:\+?\d{1,3}[\s.\-]?)?(?:\(\d{3}\)|\d{3})[\s.\-]\d{3}[\s.\-]\d{4}\b|\+\d{1,3}(?:[\s.\-]?\d){6,12}\b`)

	// US-style national identifier (SSN).
	ssnRE = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	ibanRE = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`)

	// Postal addresses only when explicitly tagged by a collaborator.
	taggedAddressRE = regexp.MustCompile(`(?i)\baddress\s*:\s*[^\n,;]{5,120}`)

	// Values a collaborator marked as PII inline.
	taggedPIIRE = regexp.MustCompile(`(?i)\[pii\][^\n\[]{1,200}\[/pii\]`)
)

type piiPattern struct {
	Type    string
	Token   string
	Pattern *regexp.Regexp
}

// Detection order matters: SSNs would otherwise be half-eaten by the
// phone pattern, so more specific types run first.
var piiPatterns = []piiPattern{
	{Type: "email", Token: "[EMAIL]", Pattern: emailRE},
	{Type: "ssn", Token: "[SSN]", Pattern: ssnRE},
	{Type: "iban", Token: "[IBAN]", Pattern: ibanRE},
	{Type: "phone", Token: "[PHONE]", Pattern: phoneRE},
	{Type: "address", Token: "[ADDRESS]", Pattern: taggedAddressRE},
	{Type: "tagged", Token: "[PII]", Pattern: taggedPIIRE},
}

// Redactor detects and replaces personally identifiable information.
type Redactor struct{}

// NewRedactor creates the default PII redactor.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// Detect returns the number of PII detections in text and the sorted
// set of detected types. The text is not modified.
func (r *Redactor) Detect(text string) (int, []string) {
	if text == "" {
		return 0, nil
	}
	count := 0
	typeSet := make(map[string]bool)
	remaining := text
	for _, p := range piiPatterns {
		matches := p.Pattern.FindAllString(remaining, -1)
		if len(matches) > 0 {
			count += len(matches)
			typeSet[p.Type] = true
			// Mask what this pattern claimed so later, broader patterns
			// do not double-count the same span.
			remaining = p.Pattern.ReplaceAllString(remaining, p.Token)
		}
	}
	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	sort.Strings(types)
	return count, types
}

// Scrub replaces every detection with its type token. Returns the
// scrubbed text, the detection count, and the detected types.
func (r *Redactor) Scrub(text string) (string, int, []string) {
	if text == "" {
		return text, 0, nil
	}
	count := 0
	typeSet := make(map[string]bool)
	out := text
	for _, p := range piiPatterns {
		matches := p.Pattern.FindAllString(out, -1)
		if len(matches) > 0 {
			count += len(matches)
			typeSet[p.Type] = true
			out = p.Pattern.ReplaceAllString(out, p.Token)
		}
	}
	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	sort.Strings(types)
	return out, count, types
}
