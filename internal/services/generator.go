package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/assetlens/backend/internal/models"
)

// ReasoningClient is the single seam between the pipeline and the reasoning
// service. AIService implements it in production; tests supply fakes.
type ReasoningClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// PolicyVerdict is the structured outcome of analyzing one feedback record.
// Either Skip is true with a Reason, or the policy fields are populated.
type PolicyVerdict struct {
	Skip             bool     `json:"skip"`
	Reason           string   `json:"reason,omitempty"`
	Category         string   `json:"category,omitempty"`
	Rule             string   `json:"rule,omitempty"`
	Priority         string   `json:"priority,omitempty"`
	Rationale        string   `json:"rationale,omitempty"`
	Examples         []string `json:"examples,omitempty"`
	MissingKnowledge string   `json:"missing_knowledge,omitempty"`
	CorrectMapping   string   `json:"correct_mapping,omitempty"`
}

// PolicyGenerator turns an analysis context plus the current policy set into
// a verdict via one reasoning call.
type PolicyGenerator struct {
	client ReasoningClient
}

func NewPolicyGenerator(client ReasoningClient) *PolicyGenerator {
	return &PolicyGenerator{client: client}
}

// Generate asks the reasoning service for a verdict. The existing policy set
// is serialized into the prompt so the model can detect duplicates and skip.
// Transport failures and unparseable output both surface as
// GenerationFailedError so the caller retries uniformly.
func (g *PolicyGenerator) Generate(ctx context.Context, ac *AnalysisContext, existing []MergedPolicy) (*PolicyVerdict, error) {
	prompt := buildGenerationPrompt(ac, existing)

	raw, err := g.client.Complete(ctx, prompt)
	if err != nil {
		return nil, &GenerationFailedError{Err: err}
	}

	verdict, err := ParseVerdict(raw)
	if err != nil {
		return nil, &GenerationFailedError{Err: err}
	}
	return verdict, nil
}

// buildGenerationPrompt assembles the analysis prompt. The existing policy
// set appears before the task instructions so duplicate detection reads the
// full current state first.
func buildGenerationPrompt(ac *AnalysisContext, existing []MergedPolicy) string {
	var b strings.Builder

	b.WriteString("You analyze negative user feedback on an AI assistant that answers questions about an IT-asset survey database, and you distill each complaint into at most one reusable answer-improvement policy.\n\n")

	b.WriteString("# Existing Policies\n\n")
	if len(existing) == 0 {
		b.WriteString("(none yet)\n")
	} else {
		for i, p := range existing {
			fmt.Fprintf(&b, "%d. [%s/%s] %s\n", i+1, p.Priority, p.Category, p.Rule)
		}
	}
	b.WriteString("\n")

	b.WriteString("# Feedback Under Analysis\n\n")
	fmt.Fprintf(&b, "User question: %s\n", ac.Question)
	if ac.Mode != "" {
		fmt.Fprintf(&b, "Answer mode: %s\n", ac.Mode)
	}
	fmt.Fprintf(&b, "Assistant answer: %s\n", ac.Answer)
	if len(ac.Steps) > 0 {
		b.WriteString("Reasoning steps:\n")
		for _, s := range ac.Steps {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	if len(ac.SQLQueries) > 0 {
		b.WriteString("Executed SQL:\n")
		for _, q := range ac.SQLQueries {
			fmt.Fprintf(&b, "  %s\n", q)
		}
	}
	if ac.QueryResults != "" {
		fmt.Fprintf(&b, "Query results: %s\n", ac.QueryResults)
	}
	if ac.RowCount > 0 {
		fmt.Fprintf(&b, "Rows returned: %d\n", ac.RowCount)
	}
	fmt.Fprintf(&b, "User explanation of what went wrong: %s\n\n", ac.Explanation)

	b.WriteString("# Task\n\n")
	b.WriteString("Decide whether this feedback warrants a NEW policy. If an existing policy already covers the complaint, or the complaint is too vague or one-off to generalize, skip.\n\n")
	b.WriteString("Respond with ONLY a JSON object, no prose:\n")
	b.WriteString("- To skip: {\"skip\": true, \"reason\": \"<why no new policy is needed>\"}\n")
	b.WriteString("- To propose: {\"skip\": false, \"category\": \"<one of: accuracy, clarity, completeness, performance, schema-mapping, domain-knowledge>\", \"rule\": \"<imperative, reusable instruction>\", \"priority\": \"<high|medium|low>\", \"rationale\": \"<why this helps>\", \"examples\": [\"<optional concrete example>\"]}\n")
	b.WriteString("For schema-mapping issues also set \"correct_mapping\"; for domain-knowledge gaps also set \"missing_knowledge\".\n")

	return b.String()
}

// ParseVerdict validates raw model output into a verdict. Markdown code
// fences around the JSON are tolerated; everything else about the shape is
// strict.
func ParseVerdict(raw string) (*PolicyVerdict, error) {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty verdict output")
	}

	var v PolicyVerdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("verdict is not valid JSON: %w", err)
	}

	if v.Skip {
		if strings.TrimSpace(v.Reason) == "" {
			return nil, fmt.Errorf("skip verdict missing reason")
		}
		return &v, nil
	}

	if strings.TrimSpace(v.Rule) == "" {
		return nil, fmt.Errorf("policy verdict missing rule")
	}
	if !models.ValidCategory(v.Category) {
		return nil, fmt.Errorf("invalid policy category %q", v.Category)
	}
	if !models.ValidPriority(v.Priority) {
		return nil, fmt.Errorf("invalid policy priority %q", v.Priority)
	}
	if strings.TrimSpace(v.Rationale) == "" {
		return nil, fmt.Errorf("policy verdict missing rationale")
	}
	return &v, nil
}

// stripCodeFences removes a surrounding ```json ... ``` block if present and
// trims to the outermost JSON object.
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}
