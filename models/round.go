package models

import (
	"time"

	"gorm.io/gorm"
)

// Round status values. At most one started round exists per statement.
const (
	RoundStarted   = "started"
	RoundCompleted = "completed"
)

// Respondant types for rounds and answers. Participant and group ids are
// disjoint namespaces disambiguated by this tag.
const (
	RespondantSessionUser = "session_user"
	RespondantGroup       = "group"
)

type Round struct {
	ID          uint `json:"id" gorm:"primaryKey"`
	StatementID uint `json:"statement_id" gorm:"not null;uniqueIndex:idx_round_number;index:idx_round_single_started,unique,where:status = 'started' AND deleted_at IS NULL"`
	RoundNumber int  `json:"round_number" gorm:"not null;uniqueIndex:idx_round_number"`
	// started, completed. The partial unique index on statement_id keeps
	// at most one started round per statement at the storage level.
	Status         string         `json:"status" gorm:"not null;default:'started'"`
	RespondantType string         `json:"respondant_type" gorm:"not null;default:'session_user'"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        *time.Time     `json:"ended_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Statement Statement `json:"statement,omitempty"`
	Answers   []Answer  `json:"answers,omitempty" gorm:"foreignKey:RoundID"`
	Groups    []Group   `json:"groups,omitempty" gorm:"foreignKey:RoundID"`
}
