package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/assetlens/backend/internal/models"
	"github.com/assetlens/backend/pkg/logger"
)

// PolicyService manages curated custom policies and exposes the generated
// ones stored inline on analyzed feedback records.
type PolicyService struct {
	db *gorm.DB
}

func NewPolicyService(db *gorm.DB) *PolicyService {
	return &PolicyService{db: db}
}

// ErrPolicyNotFound is returned when a referenced custom policy does not exist.
var ErrPolicyNotFound = errors.New("custom policy not found")

// CreateCustomInput carries an admin-authored policy.
type CreateCustomInput struct {
	Category  string
	Rule      string
	Priority  string
	Rationale string
	Examples  []string
	CreatedBy uint
}

// CreateCustom validates and stores a custom policy. New policies are active
// immediately.
func (s *PolicyService) CreateCustom(in *CreateCustomInput) (*models.CustomPolicy, error) {
	if strings.TrimSpace(in.Rule) == "" {
		return nil, NewValidationError("rule is required")
	}
	if !models.ValidCategory(in.Category) {
		return nil, NewValidationError("invalid category %q", in.Category)
	}
	if !models.ValidPriority(in.Priority) {
		return nil, NewValidationError("invalid priority %q", in.Priority)
	}

	examples := "[]"
	if len(in.Examples) > 0 {
		encoded, err := json.Marshal(in.Examples)
		if err != nil {
			return nil, fmt.Errorf("failed to encode examples: %w", err)
		}
		examples = string(encoded)
	}

	policy := &models.CustomPolicy{
		Category:  in.Category,
		Rule:      strings.TrimSpace(in.Rule),
		Priority:  in.Priority,
		Rationale: strings.TrimSpace(in.Rationale),
		Examples:  examples,
		IsActive:  true,
		CreatedBy: in.CreatedBy,
	}
	if err := s.db.Create(policy).Error; err != nil {
		return nil, fmt.Errorf("failed to create custom policy: %w", err)
	}
	return policy, nil
}

// UpdateCustomInput holds optional field updates; nil means keep.
type UpdateCustomInput struct {
	Category  *string
	Rule      *string
	Priority  *string
	Rationale *string
	Examples  []string
}

// UpdateCustom applies a partial update to a custom policy.
func (s *PolicyService) UpdateCustom(id uint, in *UpdateCustomInput) (*models.CustomPolicy, error) {
	policy, err := s.GetCustomByID(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Category != nil {
		if !models.ValidCategory(*in.Category) {
			return nil, NewValidationError("invalid category %q", *in.Category)
		}
		updates["category"] = *in.Category
	}
	if in.Rule != nil {
		if strings.TrimSpace(*in.Rule) == "" {
			return nil, NewValidationError("rule cannot be empty")
		}
		updates["rule"] = strings.TrimSpace(*in.Rule)
	}
	if in.Priority != nil {
		if !models.ValidPriority(*in.Priority) {
			return nil, NewValidationError("invalid priority %q", *in.Priority)
		}
		updates["priority"] = *in.Priority
	}
	if in.Rationale != nil {
		updates["rationale"] = strings.TrimSpace(*in.Rationale)
	}
	if in.Examples != nil {
		encoded, err := json.Marshal(in.Examples)
		if err != nil {
			return nil, fmt.Errorf("failed to encode examples: %w", err)
		}
		updates["examples"] = string(encoded)
	}
	if len(updates) == 0 {
		return policy, nil
	}

	if err := s.db.Model(policy).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetCustomByID(id)
}

// SetActive flips a custom policy in or out of the merged set.
func (s *PolicyService) SetActive(id uint, active bool) error {
	result := s.db.Model(&models.CustomPolicy{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

// DeleteCustom soft-deletes a custom policy.
func (s *PolicyService) DeleteCustom(id uint) error {
	result := s.db.Delete(&models.CustomPolicy{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

// GetCustomByID loads one custom policy.
func (s *PolicyService) GetCustomByID(id uint) (*models.CustomPolicy, error) {
	var policy models.CustomPolicy
	if err := s.db.First(&policy, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return &policy, nil
}

// CustomPolicyListParams filters the admin policy listing.
type CustomPolicyListParams struct {
	Page     int
	PageSize int
	Category string
	Active   *bool
}

// ListCustom returns a page of custom policies for administration.
func (s *PolicyService) ListCustom(params *CustomPolicyListParams) ([]models.CustomPolicy, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	query := s.db.Model(&models.CustomPolicy{})
	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}
	if params.Active != nil {
		query = query.Where("is_active = ?", *params.Active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var policies []models.CustomPolicy
	offset := (params.Page - 1) * params.PageSize
	err := query.Preload("Creator").Order("id ASC").Offset(offset).Limit(params.PageSize).Find(&policies).Error
	return policies, total, err
}

// ListActiveCustom returns active custom policies in insertion order.
func (s *PolicyService) ListActiveCustom() ([]models.CustomPolicy, error) {
	var policies []models.CustomPolicy
	err := s.db.Where("is_active = ?", true).Order("id ASC").Find(&policies).Error
	return policies, err
}

// GeneratedPolicy is a non-skip verdict lifted off an analyzed feedback
// record.
type GeneratedPolicy struct {
	FeedbackID uint          `json:"feedback_id"`
	PublicID   string        `json:"public_id"`
	AnalyzedAt time.Time     `json:"analyzed_at"`
	Verdict    PolicyVerdict `json:"verdict"`
}

// ListGeneratedNonSkipped scans analyzed feedback records and returns the
// verdicts that produced policies, newest analysis first. Records with
// undecodable stored verdicts are logged and skipped rather than failing the
// whole merge.
func (s *PolicyService) ListGeneratedNonSkipped() ([]GeneratedPolicy, error) {
	var out []GeneratedPolicy
	const batchSize = 200
	var lastID uint
	for {
		var batch []models.Feedback
		err := s.db.
			Select("id", "public_id", "analyzed_at", "generated_policy").
			Where("analyzed = ? AND generated_policy <> '' AND id > ?", true, lastID).
			Order("id ASC").Limit(batchSize).Find(&batch).Error
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		for i := range batch {
			rec := &batch[i]
			lastID = rec.ID

			var verdict PolicyVerdict
			if err := json.Unmarshal([]byte(rec.GeneratedPolicy), &verdict); err != nil {
				logger.Warnf("Skipping feedback %d with undecodable stored verdict: %v", rec.ID, err)
				continue
			}
			if verdict.Skip {
				continue
			}
			analyzedAt := time.Time{}
			if rec.AnalyzedAt != nil {
				analyzedAt = *rec.AnalyzedAt
			}
			out = append(out, GeneratedPolicy{
				FeedbackID: rec.ID,
				PublicID:   rec.PublicID,
				AnalyzedAt: analyzedAt,
				Verdict:    verdict,
			})
		}
	}

	// Newest analysis first, so the merged set favors recent learnings
	// within a priority tier.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AnalyzedAt.After(out[j].AnalyzedAt)
	})
	return out, nil
}
