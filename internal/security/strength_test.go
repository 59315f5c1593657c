package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestEvaluateStrength_Bands(t *testing.T) {
	tests := []struct {
		name     string
		password string
		strength Strength
	}{
		{"empty", "", StrengthVeryWeak},
		{"short lowercase", "abc", StrengthVeryWeak},
		{"long lowercase only", "abcdefgh", StrengthWeak},
		{"lower and digits", "abcdef12", StrengthMedium},
		{"three classes", "Abcdef12", StrengthStrong},
		{"three classes long", "Abcdefgh1234", StrengthVeryStrong},
		{"four classes long", "Abcdefgh123!", StrengthVeryStrong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := EvaluateStrength(tt.password, 8)
			assert.Equal(t, tt.strength, report.Strength)
		})
	}
}

func TestEvaluateStrength_ScoreCap(t *testing.T) {
	report := EvaluateStrength("Abcdefgh123!@#xyz", 8)
	assert.Equal(t, 5, report.Score)
	assert.Equal(t, StrengthVeryStrong, report.Strength)
}

func TestEvaluateStrength_SuggestionsForMissingClasses(t *testing.T) {
	report := EvaluateStrength("abcdefgh", 8)

	assert.Contains(t, report.Suggestions, "add uppercase letters")
	assert.Contains(t, report.Suggestions, "add digits")
	assert.Contains(t, report.Suggestions, "add symbols")
	assert.NotContains(t, report.Suggestions, "add lowercase letters")
}

func TestEvaluateStrength_PatternFeedback(t *testing.T) {
	tests := []struct {
		name     string
		password string
		feedback string
	}{
		{"sequential digits", "Abcx1234!", "avoid sequential digits"},
		{"repeated characters", "Abcaaa12!", "avoid repeated characters"},
		{"dictionary word", "MyPassword12!", "avoid dictionary words"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := EvaluateStrength(tt.password, 8)
			assert.Contains(t, report.Feedback, tt.feedback)
		})
	}
}

func TestEvaluateStrength_PenaltiesNeverReduceScore(t *testing.T) {
	// Same character makeup, one with a penalized pattern.
	clean := EvaluateStrength("Abcd9571!", 8)
	patterned := EvaluateStrength("Abcd1234!", 8)

	assert.Equal(t, clean.Score, patterned.Score)
	assert.NotEmpty(t, patterned.Feedback)
}

func TestEvaluateStrength_ScoreBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		password := rapid.String().Draw(t, "password")
		report := EvaluateStrength(password, 8)

		if report.Score < 0 || report.Score > 5 {
			t.Fatalf("score %d out of range for %q", report.Score, password)
		}
	})
}

func TestEvaluateStrength_MonotonicInClasses(t *testing.T) {
	// Adding a character class never lowers the score.
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.StringMatching(`[a-z]{8,20}`).Draw(t, "base")

		lower := EvaluateStrength(base, 8)
		withDigit := EvaluateStrength(base+"7", 8)

		if withDigit.Score < lower.Score {
			t.Fatalf("adding a digit lowered score: %d -> %d for %q",
				lower.Score, withDigit.Score, base)
		}
	})
}
