package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/assetlens/backend/internal/models"
)

// MergedPolicy is the unified view over curated custom policies and
// AI-generated ones, ready for ranking and prompt rendering.
type MergedPolicy struct {
	Origin    string    `json:"origin"` // "custom" or "generated"
	SourceID  uint      `json:"source_id"`
	Category  string    `json:"category"`
	Rule      string    `json:"rule"`
	Priority  string    `json:"priority"`
	Rationale string    `json:"rationale,omitempty"`
	Examples  []string  `json:"examples,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	OriginCustom    = "custom"
	OriginGenerated = "generated"
)

func priorityRank(p string) int {
	switch p {
	case models.PriorityHigh:
		return 0
	case models.PriorityMedium:
		return 1
	case models.PriorityLow:
		return 2
	default:
		return 3
	}
}

// MergePolicies combines active custom policies with non-skip generated
// verdicts and ranks them high > medium > low. Within a tier, custom
// policies come first in insertion order, then generated ones newest first.
func MergePolicies(custom []models.CustomPolicy, generated []GeneratedPolicy) []MergedPolicy {
	merged := make([]MergedPolicy, 0, len(custom)+len(generated))

	for _, p := range custom {
		merged = append(merged, MergedPolicy{
			Origin:    OriginCustom,
			SourceID:  p.ID,
			Category:  p.Category,
			Rule:      p.Rule,
			Priority:  p.Priority,
			Rationale: p.Rationale,
			Examples:  decodeExamples(p.Examples),
			CreatedAt: p.CreatedAt,
		})
	}
	for _, g := range generated {
		merged = append(merged, MergedPolicy{
			Origin:    OriginGenerated,
			SourceID:  g.FeedbackID,
			Category:  g.Verdict.Category,
			Rule:      g.Verdict.Rule,
			Priority:  g.Verdict.Priority,
			Rationale: g.Verdict.Rationale,
			Examples:  g.Verdict.Examples,
			CreatedAt: g.AnalyzedAt,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ri, rj := priorityRank(merged[i].Priority), priorityRank(merged[j].Priority)
		if ri != rj {
			return ri < rj
		}
		a, b := merged[i], merged[j]
		if a.Origin != b.Origin {
			return a.Origin == OriginCustom
		}
		if a.Origin == OriginCustom {
			return a.SourceID < b.SourceID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return merged
}

// RenderPromptBlock formats a merged policy set as a markdown section for
// injection into answer-generation prompts. An empty set renders as an empty
// string so prompts carry no stray headers.
func RenderPromptBlock(policies []MergedPolicy) string {
	if len(policies) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Answer Improvement Guidelines\n\n")
	b.WriteString("Apply the following guidelines when composing answers. Higher entries take precedence.\n\n")
	for i, p := range policies {
		fmt.Fprintf(&b, "%d. [%s/%s] %s\n", i+1, p.Priority, p.Category, p.Rule)
		if p.Rationale != "" {
			fmt.Fprintf(&b, "   Rationale: %s\n", p.Rationale)
		}
		for _, ex := range p.Examples {
			fmt.Fprintf(&b, "   Example: %s\n", ex)
		}
	}
	fmt.Fprintf(&b, "\n(%d guidelines)\n", len(policies))
	return b.String()
}

// decodeExamples parses the JSON-array examples column; a bare string or
// invalid JSON degrades to a single example rather than dropping data.
func decodeExamples(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{raw}
	}
	return out
}

// PolicyMerger assembles the active policy set from storage. It satisfies
// the pipeline's need for the current set at generation time.
type PolicyMerger struct {
	policies *PolicyService
}

func NewPolicyMerger(policies *PolicyService) *PolicyMerger {
	return &PolicyMerger{policies: policies}
}

// ActiveMerged returns the full ranked policy set currently in force.
func (m *PolicyMerger) ActiveMerged() ([]MergedPolicy, error) {
	custom, err := m.policies.ListActiveCustom()
	if err != nil {
		return nil, fmt.Errorf("failed to load custom policies: %w", err)
	}
	generated, err := m.policies.ListGeneratedNonSkipped()
	if err != nil {
		return nil, fmt.Errorf("failed to load generated policies: %w", err)
	}
	return MergePolicies(custom, generated), nil
}

// PromptBlock renders the active policy set for prompt injection.
func (m *PolicyMerger) PromptBlock() (string, error) {
	merged, err := m.ActiveMerged()
	if err != nil {
		return "", err
	}
	return RenderPromptBlock(merged), nil
}
