package models

import (
	"time"

	"gorm.io/gorm"
)

// Statement status mirrors round progress on the statement.
const (
	StatementIdle           = "idle"
	StatementRoundActive    = "round_active"
	StatementRoundCompleted = "round_completed"
)

// Timer status values. The timer is advisory display state only; expiry
// never drives a round transition.
const (
	TimerRunning = "running"
	TimerStopped = "stopped"
)

type Statement struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	SessionID       uint           `json:"session_id" gorm:"not null;index"`
	Text            string         `json:"text" gorm:"not null"`
	Background      string         `json:"background"`
	Status          string         `json:"status" gorm:"not null;default:'idle'"` // idle, round_active, round_completed
	DurationSeconds int            `json:"duration_seconds"`
	TimerStartedAt  *time.Time     `json:"timer_started_at"`
	TimerStatus     string         `json:"timer_status" gorm:"not null;default:'stopped'"` // running, stopped
	ShowResults     bool           `json:"show_results" gorm:"not null;default:false"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Session Session `json:"session,omitempty"`
	Rounds  []Round `json:"rounds,omitempty" gorm:"foreignKey:StatementID"`
}

// TimerRemaining reports the advisory seconds left on a running timer,
// clamped at zero.
func (s *Statement) TimerRemaining(now time.Time) int {
	if s.TimerStatus != TimerRunning || s.TimerStartedAt == nil {
		return 0
	}
	remaining := s.DurationSeconds - int(now.Sub(*s.TimerStartedAt).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}
