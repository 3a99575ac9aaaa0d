package models

import (
	"time"

	"gorm.io/gorm"
)

type Participant struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	SessionID         uint           `json:"session_id" gorm:"not null;uniqueIndex:idx_participant_name"`
	Name              string         `json:"name" gorm:"not null;uniqueIndex:idx_participant_name"`
	IsTestParticipant bool           `json:"is_test_participant" gorm:"not null;default:false"`
	JoinedAt          time.Time      `json:"joined_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Session Session `json:"session,omitempty"`
}
