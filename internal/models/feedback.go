package models

import "time"

// Rating values for assistant answers
const (
	RatingPositive = "positive"
	RatingNegative = "negative"
)

// ValidRating reports whether r is one of the two allowed rating values.
func ValidRating(r string) bool {
	return r == RatingPositive || r == RatingNegative
}

// Feedback is one user rating event on an assistant answer. The record is
// immutable after creation except for the analysis fields, which the
// generation pipeline flips exactly once.
type Feedback struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	PublicID string `gorm:"uniqueIndex;size:36;not null" json:"public_id"`
	UserID   uint   `gorm:"index" json:"user_id"`
	User     *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Question        string `gorm:"type:text;not null" json:"question"`
	Mode            string `gorm:"size:50" json:"mode"`                     // assistant mode used, e.g. sql, knowledge
	ResponsePayload string `gorm:"type:text;not null" json:"response_payload"` // opaque JSON: answer, steps, queries, metadata
	ContextPayload  string `gorm:"type:text" json:"context_payload"`        // optional prior-turn context JSON
	Rating          string `gorm:"size:20;not null;index" json:"rating"`    // positive, negative
	Comment         string `gorm:"type:text" json:"comment"`                // free-text explanation

	Analyzed        bool       `gorm:"default:false;index" json:"analyzed"`
	AnalyzedAt      *time.Time `json:"analyzed_at"`
	GeneratedPolicy string     `gorm:"type:text" json:"generated_policy"` // verdict JSON once analyzed

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Feedback) TableName() string { return "feedbacks" }

// EligibleForAnalysis reports whether this record can feed policy
// generation: only negative ratings with a non-empty explanation qualify.
func (f *Feedback) EligibleForAnalysis() bool {
	return f.Rating == RatingNegative && f.Comment != ""
}
