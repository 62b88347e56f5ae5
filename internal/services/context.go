package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/assetlens/backend/internal/models"
)

// AnalysisContext is the deterministic, serializable snapshot handed to the
// policy generator. Building it has no side effects; the same feedback record
// always yields the same context.
type AnalysisContext struct {
	Question     string   `json:"question"`
	Explanation  string   `json:"explanation"`
	Mode         string   `json:"mode"`
	Answer       string   `json:"answer"`
	Steps        []string `json:"steps"`
	SQLQueries   []string `json:"sql_queries"`
	QueryResults string   `json:"query_results"`
	RowCount     int      `json:"row_count"`
}

// responsePayload mirrors the assistant answer envelope captured at feedback
// time. Unknown fields are ignored; absent fields fall back to zero values.
type responsePayload struct {
	Answer       string          `json:"answer"`
	Steps        []string        `json:"steps"`
	SQLQueries   []string        `json:"sql_queries"`
	QueryResults json.RawMessage `json:"query_results"`
	RowCount     int             `json:"row_count"`
}

// BuildAnalysisContext extracts the analysis context from a feedback record.
// Returns MalformedPayloadError when the stored response payload is empty or
// not valid JSON.
func BuildAnalysisContext(f *models.Feedback) (*AnalysisContext, error) {
	raw := strings.TrimSpace(f.ResponsePayload)
	if raw == "" {
		return nil, &MalformedPayloadError{FeedbackID: f.ID, Err: fmt.Errorf("response payload is empty")}
	}

	var payload responsePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &MalformedPayloadError{FeedbackID: f.ID, Err: err}
	}

	ac := &AnalysisContext{
		Question:    f.Question,
		Explanation: f.Comment,
		Mode:        f.Mode,
		Answer:      payload.Answer,
		Steps:       payload.Steps,
		SQLQueries:  payload.SQLQueries,
		RowCount:    payload.RowCount,
	}
	if ac.Steps == nil {
		ac.Steps = []string{}
	}
	if ac.SQLQueries == nil {
		ac.SQLQueries = []string{}
	}
	if len(payload.QueryResults) > 0 && string(payload.QueryResults) != "null" {
		var compact bytes.Buffer
		if err := json.Compact(&compact, payload.QueryResults); err == nil {
			ac.QueryResults = compact.String()
		} else {
			ac.QueryResults = string(payload.QueryResults)
		}
	}
	return ac, nil
}
