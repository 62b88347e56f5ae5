package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assetlens/backend/internal/models"
)

// FeedbackService persists answer ratings and drives the analyzed-flag
// lifecycle that the generation pipeline depends on.
type FeedbackService struct {
	db *gorm.DB
}

func NewFeedbackService(db *gorm.DB) *FeedbackService {
	return &FeedbackService{db: db}
}

// SubmitFeedbackInput carries one rating from the assistant UI.
type SubmitFeedbackInput struct {
	UserID          uint
	Question        string
	Mode            string
	ResponsePayload string
	ContextPayload  string
	Rating          string
	Comment         string
}

// Submit validates and stores a feedback record. Ratings are accepted even
// without a comment; only negative ratings with an explanation ever become
// analysis candidates.
func (s *FeedbackService) Submit(in *SubmitFeedbackInput) (*models.Feedback, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, NewValidationError("question is required")
	}
	if strings.TrimSpace(in.ResponsePayload) == "" {
		return nil, NewValidationError("response payload is required")
	}
	if !models.ValidRating(in.Rating) {
		return nil, NewValidationError("invalid rating %q: must be %q or %q", in.Rating, models.RatingPositive, models.RatingNegative)
	}

	feedback := &models.Feedback{
		PublicID:        uuid.NewString(),
		UserID:          in.UserID,
		Question:        in.Question,
		Mode:            in.Mode,
		ResponsePayload: in.ResponsePayload,
		ContextPayload:  in.ContextPayload,
		Rating:          in.Rating,
		Comment:         strings.TrimSpace(in.Comment),
	}
	if err := s.db.Create(feedback).Error; err != nil {
		return nil, fmt.Errorf("failed to store feedback: %w", err)
	}
	return feedback, nil
}

// GetByID loads a feedback record by primary key.
func (s *FeedbackService) GetByID(id uint) (*models.Feedback, error) {
	var feedback models.Feedback
	if err := s.db.First(&feedback, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, err
	}
	return &feedback, nil
}

// GetByPublicID loads a feedback record by its external UUID.
func (s *FeedbackService) GetByPublicID(publicID string) (*models.Feedback, error) {
	var feedback models.Feedback
	if err := s.db.Where("public_id = ?", publicID).First(&feedback).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, err
	}
	return &feedback, nil
}

// MarkAnalyzed records a verdict and flips the analyzed flag. Calling it
// again with an equivalent verdict is a no-op; a different verdict returns
// ErrVerdictConflict and leaves the stored one untouched.
func (s *FeedbackService) MarkAnalyzed(id uint, verdict *PolicyVerdict) error {
	encoded, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var feedback models.Feedback
		if err := tx.First(&feedback, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrFeedbackNotFound
			}
			return err
		}

		if feedback.Analyzed {
			if verdictsEqual(feedback.GeneratedPolicy, string(encoded)) {
				return nil
			}
			return ErrVerdictConflict
		}

		now := time.Now()
		return tx.Model(&feedback).Updates(map[string]interface{}{
			"analyzed":         true,
			"analyzed_at":      now,
			"generated_policy": string(encoded),
		}).Error
	})
}

// ForceMarkAnalyzed overwrites any prior verdict. Only the regenerate-all
// batch path uses this; normal processing goes through MarkAnalyzed.
func (s *FeedbackService) ForceMarkAnalyzed(id uint, verdict *PolicyVerdict) error {
	encoded, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}
	now := time.Now()
	result := s.db.Model(&models.Feedback{}).Where("id = ?", id).Updates(map[string]interface{}{
		"analyzed":         true,
		"analyzed_at":      now,
		"generated_policy": string(encoded),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFeedbackNotFound
	}
	return nil
}

// verdictsEqual compares two stored verdicts semantically, tolerating key
// ordering differences between encodings.
func verdictsEqual(a, b string) bool {
	if a == b {
		return true
	}
	var va, vb PolicyVerdict
	if err := json.Unmarshal([]byte(a), &va); err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(b), &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

// ListEligible streams analysis candidates (negative rating with a comment)
// oldest first in keyset-paginated batches, so callers never hold the whole
// backlog in memory and a restart resumes cleanly from persisted flags.
// With includeAnalyzed true it covers already-analyzed records too, which is
// what the regenerate-all batch needs.
func (s *FeedbackService) ListEligible(includeAnalyzed bool, batchSize int, fn func(*models.Feedback) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	var lastID uint
	for {
		var batch []models.Feedback
		q := s.db.Where("rating = ? AND comment <> '' AND id > ?", models.RatingNegative, lastID)
		if !includeAnalyzed {
			q = q.Where("analyzed = ?", false)
		}
		if err := q.Order("id ASC").Limit(batchSize).Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for i := range batch {
			if err := fn(&batch[i]); err != nil {
				return err
			}
			lastID = batch[i].ID
		}
	}
}

// FeedbackListParams filters the admin feedback listing.
type FeedbackListParams struct {
	Page     int
	PageSize int
	Rating   string
	Analyzed *bool
	UserID   uint
}

// List returns a page of feedback records, newest first, with the submitting
// user preloaded for display.
func (s *FeedbackService) List(params *FeedbackListParams) ([]models.Feedback, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	query := s.db.Model(&models.Feedback{})
	if params.Rating != "" {
		query = query.Where("rating = ?", params.Rating)
	}
	if params.Analyzed != nil {
		query = query.Where("analyzed = ?", *params.Analyzed)
	}
	if params.UserID > 0 {
		query = query.Where("user_id = ?", params.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.Feedback
	offset := (params.Page - 1) * params.PageSize
	err := query.Preload("User").Order("created_at DESC").Offset(offset).Limit(params.PageSize).Find(&records).Error
	return records, total, err
}

// FeedbackStats aggregates counts for one reporting window.
type FeedbackStats struct {
	Submitted int64
	Negative  int64
	Analyzed  int64
	Skipped   int64
	Pending   int64
}

// StatsBetween computes digest counters over [start, end).
func (s *FeedbackService) StatsBetween(start, end time.Time) (*FeedbackStats, error) {
	stats := &FeedbackStats{}
	base := s.db.Model(&models.Feedback{}).Where("created_at >= ? AND created_at < ?", start, end)

	if err := base.Session(&gorm.Session{}).Count(&stats.Submitted).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("rating = ?", models.RatingNegative).Count(&stats.Negative).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("analyzed = ?", true).Count(&stats.Analyzed).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("analyzed = ? AND generated_policy LIKE ?", true, `%"skip":true%`).Count(&stats.Skipped).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Feedback{}).
		Where("rating = ? AND comment <> '' AND analyzed = ?", models.RatingNegative, false).
		Count(&stats.Pending).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
