package models

import (
	"time"

	"gorm.io/gorm"
)

type Answer struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	RoundID         uint           `json:"round_id" gorm:"not null;uniqueIndex:idx_answer_respondant"`
	RespondantType  string         `json:"respondant_type" gorm:"not null;uniqueIndex:idx_answer_respondant"` // session_user, group
	RespondantID    uint           `json:"respondant_id" gorm:"not null;uniqueIndex:idx_answer_respondant"`
	AgreementLevel  int            `json:"agreement_level" gorm:"not null"`  // 1..10
	ConfidenceLevel int            `json:"confidence_level" gorm:"not null"` // 1..10
	Comment         string         `json:"comment"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Round Round `json:"round,omitempty"`
}
