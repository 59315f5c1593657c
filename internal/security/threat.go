package security

import "regexp"

// ThreatReport is the outcome of scanning one raw input field.
type ThreatReport struct {
	Suspicious bool
	Threats    []string
}

type threatSignature struct {
	name string
	re   *regexp.Regexp
}

// Signatures run against RAW input, before sanitization, so a payload that
// sanitization would silently strip is still surfaced to the audit trail.
var threatSignatures = []threatSignature{
	{"sql injection pattern", regexp.MustCompile(`(?i)('|--|;\s*drop\b|\bunion\b|\bselect\b.*\bfrom\b|\bor\b\s+\d+\s*=\s*\d+)`)},
	{"cross-site scripting pattern", regexp.MustCompile(`(?i)(<script|\bon[a-z]+\s*=|javascript\s*:)`)},
	{"command injection pattern", regexp.MustCompile("[|&`]|\\$\\(")},
}

// DetectSuspiciousInput scans text for injection signatures. Any match flags
// the report suspicious with a human-readable threat list.
func DetectSuspiciousInput(text string) ThreatReport {
	var report ThreatReport
	for _, sig := range threatSignatures {
		if sig.re.MatchString(text) {
			report.Suspicious = true
			report.Threats = append(report.Threats, sig.name)
		}
	}
	return report
}
