package services

import (
	"strings"
	"testing"
	"time"

	"github.com/assetlens/backend/internal/models"
)

func TestMergePolicies_PriorityOrdering(t *testing.T) {
	// Created in order low, high, medium; ranking must reorder them.
	custom := []models.CustomPolicy{
		{ID: 1, Category: "clarity", Rule: "low rule", Priority: models.PriorityLow},
		{ID: 2, Category: "accuracy", Rule: "high rule", Priority: models.PriorityHigh},
		{ID: 3, Category: "completeness", Rule: "medium rule", Priority: models.PriorityMedium},
	}

	merged := MergePolicies(custom, nil)
	if len(merged) != 3 {
		t.Fatalf("len(merged) = %d, expected 3", len(merged))
	}
	if merged[0].Rule != "high rule" {
		t.Errorf("merged[0].Rule = %q, expected high rule", merged[0].Rule)
	}
	if merged[1].Rule != "medium rule" {
		t.Errorf("merged[1].Rule = %q, expected medium rule", merged[1].Rule)
	}
	if merged[2].Rule != "low rule" {
		t.Errorf("merged[2].Rule = %q, expected low rule", merged[2].Rule)
	}
}

func TestMergePolicies_CombinesOrigins(t *testing.T) {
	now := time.Now()
	custom := []models.CustomPolicy{
		{ID: 1, Category: "accuracy", Rule: "custom high", Priority: models.PriorityHigh},
	}
	generated := []GeneratedPolicy{
		{
			FeedbackID: 9,
			AnalyzedAt: now,
			Verdict: PolicyVerdict{
				Category:  "schema-mapping",
				Rule:      "generated high",
				Priority:  models.PriorityHigh,
				Rationale: "r",
			},
		},
	}

	merged := MergePolicies(custom, generated)
	if len(merged) != 2 {
		t.Fatalf("len(merged) = %d, expected 2", len(merged))
	}
	// Custom policies lead within a shared tier.
	if merged[0].Origin != OriginCustom {
		t.Errorf("merged[0].Origin = %q, expected custom", merged[0].Origin)
	}
	if merged[1].Origin != OriginGenerated {
		t.Errorf("merged[1].Origin = %q, expected generated", merged[1].Origin)
	}
	if merged[1].SourceID != 9 {
		t.Errorf("merged[1].SourceID = %d, expected 9", merged[1].SourceID)
	}
}

func TestMergePolicies_GeneratedNewestFirstWithinTier(t *testing.T) {
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()
	generated := []GeneratedPolicy{
		{FeedbackID: 1, AnalyzedAt: old, Verdict: PolicyVerdict{Category: "accuracy", Rule: "old", Priority: models.PriorityMedium, Rationale: "r"}},
		{FeedbackID: 2, AnalyzedAt: recent, Verdict: PolicyVerdict{Category: "accuracy", Rule: "recent", Priority: models.PriorityMedium, Rationale: "r"}},
	}

	merged := MergePolicies(nil, generated)
	if merged[0].Rule != "recent" {
		t.Errorf("merged[0].Rule = %q, expected recent analysis first", merged[0].Rule)
	}
}

func TestMergePolicies_CustomInsertionOrderWithinTier(t *testing.T) {
	custom := []models.CustomPolicy{
		{ID: 5, Rule: "second", Priority: models.PriorityLow},
		{ID: 2, Rule: "first", Priority: models.PriorityLow},
	}

	merged := MergePolicies(custom, nil)
	if merged[0].Rule != "first" || merged[1].Rule != "second" {
		t.Errorf("custom tier order = [%q, %q], expected insertion order", merged[0].Rule, merged[1].Rule)
	}
}

func TestRenderPromptBlock_Empty(t *testing.T) {
	if got := RenderPromptBlock(nil); got != "" {
		t.Errorf("RenderPromptBlock(nil) = %q, expected empty string", got)
	}
	if got := RenderPromptBlock([]MergedPolicy{}); got != "" {
		t.Errorf("RenderPromptBlock(empty) = %q, expected empty string", got)
	}
}

func TestRenderPromptBlock_Format(t *testing.T) {
	policies := []MergedPolicy{
		{
			Priority:  models.PriorityHigh,
			Category:  "accuracy",
			Rule:      "Verify counts before answering",
			Rationale: "Wrong counts erode trust",
			Examples:  []string{"Q2 laptop count"},
		},
		{
			Priority: models.PriorityLow,
			Category: "clarity",
			Rule:     "Prefer plain language",
		},
	}

	block := RenderPromptBlock(policies)

	if !strings.HasPrefix(block, "## Answer Improvement Guidelines") {
		t.Error("block should start with the guidelines header")
	}
	if !strings.Contains(block, "1. [high/accuracy] Verify counts before answering") {
		t.Errorf("missing numbered first policy line in:\n%s", block)
	}
	if !strings.Contains(block, "2. [low/clarity] Prefer plain language") {
		t.Errorf("missing numbered second policy line in:\n%s", block)
	}
	if !strings.Contains(block, "Rationale: Wrong counts erode trust") {
		t.Error("missing rationale line")
	}
	if !strings.Contains(block, "Example: Q2 laptop count") {
		t.Error("missing example line")
	}
	if !strings.Contains(block, "(2 guidelines)") {
		t.Error("missing trailing count")
	}
}

func TestDecodeExamples(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "empty", raw: "", want: 0},
		{name: "json array", raw: `["a", "b"]`, want: 2},
		{name: "bare string degrades to single example", raw: "not json", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeExamples(tt.raw)
			if len(got) != tt.want {
				t.Errorf("decodeExamples(%q) len = %d, expected %d", tt.raw, len(got), tt.want)
			}
		})
	}
}
