package services

import (
	"testing"

	"github.com/assetlens/backend/internal/models"
)

func TestBuildAnalysisContext(t *testing.T) {
	feedback := &models.Feedback{
		ID:       7,
		Question: "How many laptops were surveyed in Q2?",
		Mode:     "sql",
		Comment:  "The count includes decommissioned devices",
		ResponsePayload: `{
			"answer": "1200 laptops",
			"steps": ["identified asset table", "filtered by quarter"],
			"sql_queries": ["SELECT COUNT(*) FROM assets WHERE type='laptop'"],
			"query_results": [{"count": 1200}],
			"row_count": 1
		}`,
	}

	ac, err := BuildAnalysisContext(feedback)
	if err != nil {
		t.Fatalf("BuildAnalysisContext() error = %v", err)
	}

	if ac.Question != "How many laptops were surveyed in Q2?" {
		t.Errorf("Question = %q", ac.Question)
	}
	if ac.Explanation != "The count includes decommissioned devices" {
		t.Errorf("Explanation = %q", ac.Explanation)
	}
	if ac.Mode != "sql" {
		t.Errorf("Mode = %q, expected %q", ac.Mode, "sql")
	}
	if ac.Answer != "1200 laptops" {
		t.Errorf("Answer = %q", ac.Answer)
	}
	if len(ac.Steps) != 2 {
		t.Errorf("len(Steps) = %d, expected 2", len(ac.Steps))
	}
	if len(ac.SQLQueries) != 1 {
		t.Errorf("len(SQLQueries) = %d, expected 1", len(ac.SQLQueries))
	}
	if ac.QueryResults != `[{"count":1200}]` {
		t.Errorf("QueryResults = %q", ac.QueryResults)
	}
	if ac.RowCount != 1 {
		t.Errorf("RowCount = %d, expected 1", ac.RowCount)
	}
}

func TestBuildAnalysisContext_Deterministic(t *testing.T) {
	feedback := &models.Feedback{
		ID:              3,
		Question:        "q",
		Comment:         "c",
		ResponsePayload: `{"answer":"a","steps":["s1"]}`,
	}

	first, err := BuildAnalysisContext(feedback)
	if err != nil {
		t.Fatalf("first build error = %v", err)
	}
	second, err := BuildAnalysisContext(feedback)
	if err != nil {
		t.Fatalf("second build error = %v", err)
	}

	if first.Answer != second.Answer || first.Question != second.Question {
		t.Error("same record should yield the same context")
	}
}

func TestBuildAnalysisContext_MissingFields(t *testing.T) {
	feedback := &models.Feedback{
		ID:              5,
		Question:        "question",
		Comment:         "explanation",
		ResponsePayload: `{"answer": "just an answer"}`,
	}

	ac, err := BuildAnalysisContext(feedback)
	if err != nil {
		t.Fatalf("BuildAnalysisContext() error = %v", err)
	}

	if ac.Steps == nil || len(ac.Steps) != 0 {
		t.Errorf("Steps should be empty non-nil slice, got %v", ac.Steps)
	}
	if ac.SQLQueries == nil || len(ac.SQLQueries) != 0 {
		t.Errorf("SQLQueries should be empty non-nil slice, got %v", ac.SQLQueries)
	}
	if ac.QueryResults != "" {
		t.Errorf("QueryResults = %q, expected empty", ac.QueryResults)
	}
	if ac.RowCount != 0 {
		t.Errorf("RowCount = %d, expected 0", ac.RowCount)
	}
}

func TestBuildAnalysisContext_MalformedPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty payload", payload: ""},
		{name: "whitespace only", payload: "   \n"},
		{name: "invalid json", payload: "{answer: oops"},
		{name: "truncated json", payload: `{"answer": "cut off`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feedback := &models.Feedback{ID: 42, Question: "q", ResponsePayload: tt.payload}
			_, err := BuildAnalysisContext(feedback)
			if err == nil {
				t.Fatal("expected error for malformed payload")
			}
			if !IsMalformedPayload(err) {
				t.Errorf("expected MalformedPayloadError, got %T", err)
			}
		})
	}
}
