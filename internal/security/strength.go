package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Strength bands for the advisory password scorer.
type Strength string

const (
	StrengthVeryWeak   Strength = "very_weak"
	StrengthWeak       Strength = "weak"
	StrengthMedium     Strength = "medium"
	StrengthStrong     Strength = "strong"
	StrengthVeryStrong Strength = "very_strong"
)

// StrengthReport annotates a login response with advisory warnings. The
// scorer never rejects a login.
type StrengthReport struct {
	Score       int      `json:"score"`
	Strength    Strength `json:"strength"`
	Feedback    []string `json:"feedback,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

var sequentialDigitsRe = regexp.MustCompile(`(?:012|123|234|345|456|567|678|789)`)

// hasRepeatedChar reports whether s contains the same rune three or more
// times in a row. Go's RE2 engine has no backreferences, so the `(.)\1\1`
// pattern cannot be expressed as a regexp.
func hasRepeatedChar(s string) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if run > 0 && r == prev {
			run++
			if run >= 3 {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

var dictionaryWords = []string{
	"password", "admin", "letmein", "welcome", "qwerty", "login", "secret",
}

// EvaluateStrength scores a password 0-5: one point for meeting the minimum
// length, one per satisfied character class (capped at three classes), and a
// bonus point at 12+ characters. Pattern penalties add feedback but never
// reduce the score below the character-derived value.
func EvaluateStrength(password string, minLen int) StrengthReport {
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}

	report := StrengthReport{}

	if len(password) >= minLen {
		report.Score++
	} else {
		report.Suggestions = append(report.Suggestions,
			fmt.Sprintf("use at least %d characters", minLen))
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	classes := 0
	if hasLower {
		classes++
	} else {
		report.Suggestions = append(report.Suggestions, "add lowercase letters")
	}
	if hasUpper {
		classes++
	} else {
		report.Suggestions = append(report.Suggestions, "add uppercase letters")
	}
	if hasDigit {
		classes++
	} else {
		report.Suggestions = append(report.Suggestions, "add digits")
	}
	if hasSymbol {
		classes++
	} else {
		report.Suggestions = append(report.Suggestions, "add symbols")
	}
	if classes > 3 {
		classes = 3
	}
	report.Score += classes

	if len(password) >= 12 {
		report.Score++
	}
	if report.Score > 5 {
		report.Score = 5
	}

	// Pattern penalties: feedback only, score untouched.
	if sequentialDigitsRe.MatchString(password) {
		report.Feedback = append(report.Feedback, "avoid sequential digits")
	}
	if hasRepeatedChar(password) {
		report.Feedback = append(report.Feedback, "avoid repeated characters")
	}
	lower := strings.ToLower(password)
	for _, word := range dictionaryWords {
		if strings.Contains(lower, word) {
			report.Feedback = append(report.Feedback, "avoid dictionary words")
			break
		}
	}

	switch {
	case report.Score <= 1:
		report.Strength = StrengthVeryWeak
	case report.Score == 2:
		report.Strength = StrengthWeak
	case report.Score == 3:
		report.Strength = StrengthMedium
	case report.Score == 4:
		report.Strength = StrengthStrong
	default:
		report.Strength = StrengthVeryStrong
	}

	return report
}
