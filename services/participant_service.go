package services

import (
	"errors"
	"strings"
	"time"

	"grousion/models"

	"gorm.io/gorm"
)

type ParticipantService struct {
	db       *gorm.DB
	sessions *SessionService
}

func NewParticipantService(db *gorm.DB, sessions *SessionService) *ParticipantService {
	return &ParticipantService{db: db, sessions: sessions}
}

type JoinSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

// JoinSession self-registers a participant by display name. Participants
// are never mutated after creation; they only disappear with the session.
func (s *ParticipantService) JoinSession(code string, req *JoinSessionRequest, hub *Hub) (*models.Participant, error) {
	var session models.Session
	var participant models.Participant

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidState
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", strings.ToLower(code)).First(&session).Error; err != nil {
			return ErrNotFound
		}

		if session.Status == models.SessionEnded {
			return ErrSessionTerminal
		}
		if !session.AllowJoins {
			return ErrJoinsClosed
		}

		var existing models.Participant
		if err := tx.Where("session_id = ? AND name = ?", session.ID, name).First(&existing).Error; err == nil {
			return ErrConflict
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		participant = models.Participant{
			SessionID: session.ID,
			Name:      name,
			JoinedAt:  time.Now(),
		}
		if err := tx.Create(&participant).Error; err != nil {
			// The unique index on (session_id, name) is the authoritative
			// guard; a concurrent join can still slip past the pre-check.
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		hub.BroadcastToSession(session.Code, "participant_joined", map[string]interface{}{
			"id":   participant.ID,
			"name": participant.Name,
		})
	}
	s.sessions.RefreshSessionState(session.Code)

	return &participant, nil
}

func (s *ParticipantService) ListParticipants(sessionID uint) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.db.Where("session_id = ?", sessionID).
		Order("joined_at").
		Find(&participants).Error
	return participants, err
}

// GetParticipantByID retrieves a participant, used by the websocket
// endpoint to validate viewer access.
func (s *ParticipantService) GetParticipantByID(participantID uint) (*models.Participant, error) {
	var participant models.Participant
	err := s.db.First(&participant, participantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &participant, err
}
