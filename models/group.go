package models

import (
	"time"

	"gorm.io/gorm"
)

// Group status values.
const (
	GroupActive    = "active"
	GroupMerged    = "merged"
	GroupCompleted = "completed"
)

type Group struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	RoundID           uint           `json:"round_id" gorm:"not null;index"`
	LeaderID          uint           `json:"leader_id" gorm:"not null"`
	Status            string         `json:"status" gorm:"not null;default:'active'"` // active, merged, completed
	MergedIntoGroupID *uint          `json:"merged_into_group_id"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Round   Round         `json:"round,omitempty"`
	Leader  Participant   `json:"leader,omitempty" gorm:"foreignKey:LeaderID"`
	Members []Participant `json:"members,omitempty" gorm:"many2many:group_members"`
}
