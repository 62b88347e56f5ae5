package models

import "time"

// AnalysisDigest is a persisted daily summary of pipeline activity, sent to
// IM channels on business days.
type AnalysisDigest struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DigestDate time.Time `gorm:"index" json:"digest_date"`

	SubmittedCount  int `json:"submitted_count"`
	NegativeCount   int `json:"negative_count"`
	AnalyzedCount   int `json:"analyzed_count"`
	PoliciesCreated int `json:"policies_created"`
	SkippedCount    int `json:"skipped_count"`
	PendingCount    int `json:"pending_count"`
	ActivePolicies  int `json:"active_policies"`

	Summary     string     `gorm:"type:text" json:"summary"` // AI or fallback markdown summary
	AIModelUsed string     `gorm:"size:100" json:"ai_model_used"`
	NotifiedAt  *time.Time `json:"notified_at"`
	NotifyError string     `gorm:"type:text" json:"notify_error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AnalysisDigest) TableName() string { return "analysis_digests" }
