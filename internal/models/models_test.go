package models

import "testing"

func TestValidRating(t *testing.T) {
	tests := []struct {
		rating string
		want   bool
	}{
		{RatingPositive, true},
		{RatingNegative, true},
		{"neutral", false},
		{"", false},
		{"NEGATIVE", false},
	}

	for _, tt := range tests {
		if got := ValidRating(tt.rating); got != tt.want {
			t.Errorf("ValidRating(%q) = %v, expected %v", tt.rating, got, tt.want)
		}
	}
}

func TestValidPriority(t *testing.T) {
	for _, p := range []string{PriorityHigh, PriorityMedium, PriorityLow} {
		if !ValidPriority(p) {
			t.Errorf("ValidPriority(%q) = false, expected true", p)
		}
	}
	for _, p := range []string{"", "urgent", "HIGH"} {
		if ValidPriority(p) {
			t.Errorf("ValidPriority(%q) = true, expected false", p)
		}
	}
}

func TestValidCategory(t *testing.T) {
	valid := []string{
		CategoryAccuracy, CategoryClarity, CategoryCompleteness,
		CategoryPerformance, CategorySchemaMapping, CategoryDomainKnowledge,
		CategoryCustom,
	}
	for _, c := range valid {
		if !ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = false, expected true", c)
		}
	}
	for _, c := range []string{"", "speed", "Accuracy"} {
		if ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = true, expected false", c)
		}
	}
}

func TestFeedback_EligibleForAnalysis(t *testing.T) {
	tests := []struct {
		name     string
		feedback Feedback
		want     bool
	}{
		{
			name:     "negative with comment",
			feedback: Feedback{Rating: RatingNegative, Comment: "wrong count"},
			want:     true,
		},
		{
			name:     "negative without comment",
			feedback: Feedback{Rating: RatingNegative},
			want:     false,
		},
		{
			name:     "positive with comment",
			feedback: Feedback{Rating: RatingPositive, Comment: "great"},
			want:     false,
		},
		{
			name:     "positive without comment",
			feedback: Feedback{Rating: RatingPositive},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.feedback.EligibleForAnalysis(); got != tt.want {
				t.Errorf("EligibleForAnalysis() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestLLMConfig_MaskAPIKey(t *testing.T) {
	cfg := LLMConfig{APIKey: "sk-1234567890abcdef"}
	masked := cfg.MaskAPIKey()
	if masked != "sk-1****cdef" {
		t.Errorf("MaskAPIKey() = %q", masked)
	}

	short := LLMConfig{APIKey: "short"}
	if short.MaskAPIKey() != "****" {
		t.Errorf("short key mask = %q, expected ****", short.MaskAPIKey())
	}
}
