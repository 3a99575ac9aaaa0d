package models

import (
	"time"

	"gorm.io/gorm"
)

// Session status values. Transitions only move forward.
const (
	SessionUnpublished = "unpublished"
	SessionPublished   = "published"
	SessionStarted     = "started"
	SessionEnded       = "ended"
)

type Session struct {
	ID                   uint           `json:"id" gorm:"primaryKey"`
	Name                 string         `json:"name" gorm:"not null"`
	Code                 string         `json:"code" gorm:"uniqueIndex;not null"`
	Status               string         `json:"status" gorm:"not null;default:'unpublished'"` // unpublished, published, started, ended
	AllowJoins           bool           `json:"allow_joins" gorm:"not null;default:false"`
	TestMode             bool           `json:"test_mode" gorm:"not null;default:false"`
	TestParticipantCount int            `json:"test_participant_count" gorm:"not null;default:0"`
	ActiveRoundID        *uint          `json:"active_round_id"`
	CreatedBy            uint           `json:"created_by" gorm:"not null"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Statements   []Statement   `json:"statements,omitempty" gorm:"foreignKey:SessionID"`
	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:SessionID"`
}
