package models

import (
	"time"

	"gorm.io/gorm"
)

// Policy priority tiers, highest first
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Policy categories
const (
	CategoryAccuracy        = "accuracy"
	CategoryClarity         = "clarity"
	CategoryCompleteness    = "completeness"
	CategoryPerformance     = "performance"
	CategorySchemaMapping   = "schema-mapping"
	CategoryDomainKnowledge = "domain-knowledge"
	CategoryCustom          = "custom"
)

func ValidPriority(p string) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

func ValidCategory(c string) bool {
	switch c {
	case CategoryAccuracy, CategoryClarity, CategoryCompleteness,
		CategoryPerformance, CategorySchemaMapping, CategoryDomainKnowledge,
		CategoryCustom:
		return true
	}
	return false
}

// CustomPolicy is an administrator-curated improvement policy. Auto-generated
// policies are not stored here; they live inside the generating Feedback
// record's verdict and are merged in at read time.
type CustomPolicy struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Category  string         `gorm:"size:50;not null" json:"category"`
	Rule      string         `gorm:"type:text;not null" json:"rule"`
	Priority  string         `gorm:"size:20;not null" json:"priority"`
	Rationale string         `gorm:"type:text" json:"rationale"`
	Examples  string         `gorm:"type:text" json:"examples"` // JSON array of example questions
	IsActive  bool           `gorm:"default:true;index" json:"is_active"`
	CreatedBy uint           `gorm:"not null" json:"created_by"`
	Creator   *User          `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (CustomPolicy) TableName() string { return "custom_policies" }
