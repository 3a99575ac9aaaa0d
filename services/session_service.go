package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"grousion/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SessionService is the lifecycle controller for sessions: it decides
// whether a requested transition is legal, applies it, and emits the
// change event collaborators fan out to connected viewers.
type SessionService struct {
	db    *gorm.DB
	redis *redis.Client

	// StateTTL bounds the cached snapshot's lifetime. Zero falls back to
	// two hours.
	StateTTL time.Duration
}

func NewSessionService(db *gorm.DB, redis *redis.Client) *SessionService {
	return &SessionService{
		db:    db,
		redis: redis,
	}
}

type CreateSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

type TestModeRequest struct {
	Enabled          bool `json:"enabled"`
	ParticipantCount int  `json:"participant_count"`
}

// SessionState is the live snapshot served to presenter and participant
// views, cached in Redis keyed by session code.
type SessionState struct {
	SessionID        uint              `json:"session_id"`
	Code             string            `json:"code"`
	Name             string            `json:"name"`
	Status           string            `json:"status"`
	AllowJoins       bool              `json:"allow_joins"`
	TestMode         bool              `json:"test_mode"`
	ActiveRound      *ActiveRoundState `json:"active_round,omitempty"`
	Statements       []StatementState  `json:"statements"`
	Participants     []SessionViewer   `json:"participants"`
	ParticipantCount int               `json:"participant_count"`
}

type ActiveRoundState struct {
	ID          uint      `json:"id"`
	StatementID uint      `json:"statement_id"`
	RoundNumber int       `json:"round_number"`
	StartedAt   time.Time `json:"started_at"`
}

type StatementState struct {
	ID             uint   `json:"id"`
	Text           string `json:"text"`
	Status         string `json:"status"`
	ShowResults    bool   `json:"show_results"`
	TimerStatus    string `json:"timer_status"`
	TimerRemaining int    `json:"timer_remaining"` // advisory only
}

type SessionViewer struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	IsTest bool   `json:"is_test,omitempty"`
}

func (s *SessionService) CreateSession(userID uint, req *CreateSessionRequest) (*models.Session, error) {
	code, err := s.uniqueCode()
	if err != nil {
		return nil, err
	}

	session := models.Session{
		Name:      req.Name,
		Code:      code,
		Status:    models.SessionUnpublished,
		CreatedBy: userID,
	}

	if err := s.db.Create(&session).Error; err != nil {
		// Lost a race on the code's unique index after the free check.
		return nil, ErrConflict
	}

	return &session, nil
}

func (s *SessionService) GetUserSessions(userID uint) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.Where("created_by = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (s *SessionService) GetSessionByCode(code string) (*models.Session, error) {
	var session models.Session
	err := s.db.Where("code = ?", strings.ToLower(code)).
		Preload("Statements", func(db *gorm.DB) *gorm.DB {
			return db.Order("statements.created_at")
		}).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("participants.joined_at")
		}).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &session, err
}

// CheckSessionOwnership verifies that userID created the session.
func (s *SessionService) CheckSessionOwnership(code string, userID uint) error {
	var session models.Session
	if err := s.db.Where("code = ?", strings.ToLower(code)).First(&session).Error; err != nil {
		return ErrNotFound
	}
	if session.CreatedBy != userID {
		return ErrForbidden
	}
	return nil
}

// PublishSession moves a session from unpublished to published. A session
// with no statements cannot be published.
func (s *SessionService) PublishSession(code string, userID uint, hub *Hub) (*models.Session, error) {
	var session models.Session

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ownedSession(tx, code, userID, &session); err != nil {
			return err
		}

		switch session.Status {
		case models.SessionUnpublished:
		case models.SessionEnded:
			return ErrSessionTerminal
		default:
			return ErrInvalidState
		}

		var statementCount int64
		if err := tx.Model(&models.Statement{}).Where("session_id = ?", session.ID).Count(&statementCount).Error; err != nil {
			return err
		}
		if statementCount == 0 {
			return ErrCannotPublishEmptySession
		}

		session.Status = models.SessionPublished
		return tx.Model(&session).Update("status", session.Status).Error
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		hub.BroadcastChange(session.Code, "session", session.ID, session.Status, nil)
	}
	s.RefreshSessionState(session.Code)

	return &session, nil
}

// StartSession moves a published session to started. Requires at least
// two participants and one statement.
func (s *SessionService) StartSession(code string, userID uint, hub *Hub) (*models.Session, error) {
	var session models.Session

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ownedSession(tx, code, userID, &session); err != nil {
			return err
		}

		switch session.Status {
		case models.SessionPublished:
		case models.SessionEnded:
			return ErrSessionTerminal
		default:
			return ErrInvalidState
		}

		var statementCount, participantCount int64
		if err := tx.Model(&models.Statement{}).Where("session_id = ?", session.ID).Count(&statementCount).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Participant{}).Where("session_id = ?", session.ID).Count(&participantCount).Error; err != nil {
			return err
		}
		if statementCount == 0 || participantCount < 2 {
			return ErrCannotStartSession
		}

		session.Status = models.SessionStarted
		return tx.Model(&session).Update("status", session.Status).Error
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		hub.BroadcastChange(session.Code, "session", session.ID, session.Status, nil)
	}
	s.RefreshSessionState(session.Code)

	return &session, nil
}

// EndSession moves a started session to its terminal state. No mutating
// command is accepted afterwards.
func (s *SessionService) EndSession(code string, userID uint, hub *Hub) (*models.Session, error) {
	var session models.Session

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ownedSession(tx, code, userID, &session); err != nil {
			return err
		}

		switch session.Status {
		case models.SessionStarted:
		case models.SessionEnded:
			return ErrSessionTerminal
		default:
			return ErrInvalidState
		}

		session.Status = models.SessionEnded
		session.ActiveRoundID = nil
		return tx.Model(&session).Updates(map[string]interface{}{
			"status":          session.Status,
			"active_round_id": nil,
			"allow_joins":     false,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		hub.BroadcastChange(session.Code, "session", session.ID, session.Status, nil)
	}
	s.RefreshSessionState(session.Code)

	return &session, nil
}

// SetAllowJoins toggles whether participants may self-register.
func (s *SessionService) SetAllowJoins(code string, userID uint, allow bool, hub *Hub) (*models.Session, error) {
	var session models.Session

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ownedSession(tx, code, userID, &session); err != nil {
			return err
		}
		if session.Status == models.SessionEnded {
			return ErrSessionTerminal
		}

		session.AllowJoins = allow
		return tx.Model(&session).Update("allow_joins", allow).Error
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		hub.BroadcastChange(session.Code, "session", session.ID, session.Status, map[string]bool{"allow_joins": allow})
	}
	s.RefreshSessionState(session.Code)

	return &session, nil
}

// SetTestMode toggles test mode. Enabling it seeds synthetic participants
// up to the requested count so a session can be rehearsed without real
// attendees.
func (s *SessionService) SetTestMode(code string, userID uint, req *TestModeRequest, hub *Hub) (*models.Session, error) {
	var session models.Session

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ownedSession(tx, code, userID, &session); err != nil {
			return err
		}
		if session.Status == models.SessionEnded {
			return ErrSessionTerminal
		}

		session.TestMode = req.Enabled
		session.TestParticipantCount = req.ParticipantCount
		if err := tx.Model(&session).Updates(map[string]interface{}{
			"test_mode":              req.Enabled,
			"test_participant_count": req.ParticipantCount,
		}).Error; err != nil {
			return err
		}

		if !req.Enabled {
			return nil
		}

		var existing int64
		if err := tx.Model(&models.Participant{}).
			Where("session_id = ? AND is_test_participant = ?", session.ID, true).
			Count(&existing).Error; err != nil {
			return err
		}
		for i := int(existing); i < req.ParticipantCount; i++ {
			participant := models.Participant{
				SessionID:         session.ID,
				Name:              fmt.Sprintf("Test participant %d", i+1),
				IsTestParticipant: true,
				JoinedAt:          time.Now(),
			}
			if err := tx.Create(&participant).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		hub.BroadcastChange(session.Code, "session", session.ID, session.Status, map[string]bool{"test_mode": session.TestMode})
	}
	s.RefreshSessionState(session.Code)

	return &session, nil
}

// DeleteSession removes an unpublished session and everything it owns,
// including any cached snapshot.
func (s *SessionService) DeleteSession(code string, userID uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := s.ownedSession(tx, code, userID, &session); err != nil {
			return err
		}
		if session.Status == models.SessionEnded {
			return ErrSessionTerminal
		}
		if session.Status != models.SessionUnpublished {
			return ErrInvalidState
		}

		var statementIDs []uint
		if err := tx.Model(&models.Statement{}).Where("session_id = ?", session.ID).Pluck("id", &statementIDs).Error; err != nil {
			return err
		}
		if len(statementIDs) > 0 {
			var roundIDs []uint
			if err := tx.Model(&models.Round{}).Where("statement_id IN ?", statementIDs).Pluck("id", &roundIDs).Error; err != nil {
				return err
			}
			if len(roundIDs) > 0 {
				if err := tx.Where("round_id IN ?", roundIDs).Delete(&models.Answer{}).Error; err != nil {
					return err
				}
				if err := tx.Where("round_id IN ?", roundIDs).Delete(&models.Group{}).Error; err != nil {
					return err
				}
				if err := tx.Where("statement_id IN ?", statementIDs).Delete(&models.Round{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("session_id = ?", session.ID).Delete(&models.Statement{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("session_id = ?", session.ID).Delete(&models.Participant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&session).Error
	})
	if err != nil {
		return err
	}

	s.dropCachedState(code)
	return nil
}

// GetSessionState returns the live snapshot for a session, preferring the
// Redis copy and rebuilding from the database on a miss.
func (s *SessionService) GetSessionState(code string) (*SessionState, error) {
	normalized := strings.ToLower(code)

	if state := s.getCachedState(normalized); state != nil {
		return state, nil
	}

	return s.RefreshSessionState(normalized)
}

// RefreshSessionState rebuilds the snapshot from the database and writes
// it through to Redis. Cache failures log and fall through.
func (s *SessionService) RefreshSessionState(code string) (*SessionState, error) {
	session, err := s.GetSessionByCode(code)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	state := &SessionState{
		SessionID:        session.ID,
		Code:             session.Code,
		Name:             session.Name,
		Status:           session.Status,
		AllowJoins:       session.AllowJoins,
		TestMode:         session.TestMode,
		Statements:       []StatementState{},
		Participants:     []SessionViewer{},
		ParticipantCount: len(session.Participants),
	}

	for _, statement := range session.Statements {
		state.Statements = append(state.Statements, StatementState{
			ID:             statement.ID,
			Text:           statement.Text,
			Status:         statement.Status,
			ShowResults:    statement.ShowResults,
			TimerStatus:    statement.TimerStatus,
			TimerRemaining: statement.TimerRemaining(now),
		})
	}

	for _, participant := range session.Participants {
		state.Participants = append(state.Participants, SessionViewer{
			ID:     participant.ID,
			Name:   participant.Name,
			IsTest: participant.IsTestParticipant,
		})
	}

	if session.ActiveRoundID != nil {
		var round models.Round
		if err := s.db.First(&round, *session.ActiveRoundID).Error; err == nil {
			state.ActiveRound = &ActiveRoundState{
				ID:          round.ID,
				StatementID: round.StatementID,
				RoundNumber: round.RoundNumber,
				StartedAt:   round.StartedAt,
			}
		}
	}

	s.storeCachedState(session.Code, state)
	return state, nil
}

func (s *SessionService) ownedSession(tx *gorm.DB, code string, userID uint, session *models.Session) error {
	if err := tx.Where("code = ?", strings.ToLower(code)).First(session).Error; err != nil {
		return ErrNotFound
	}
	if session.CreatedBy != userID {
		return ErrForbidden
	}
	return nil
}

// uniqueCode draws short hex join codes until one is free.
func (s *SessionService) uniqueCode() (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		bytes := make([]byte, 3)
		if _, err := rand.Read(bytes); err != nil {
			return "", err
		}
		code := hex.EncodeToString(bytes)[:6]

		var taken int64
		if err := s.db.Model(&models.Session{}).Where("code = ?", code).Count(&taken).Error; err != nil {
			return "", err
		}
		if taken == 0 {
			return code, nil
		}
	}
	return "", ErrConflict
}

func (s *SessionService) storeCachedState(code string, state *SessionState) {
	if s.redis == nil {
		return
	}

	data, err := json.Marshal(state)
	if err != nil {
		log.Printf("Failed to marshal session state for %s: %v", code, err)
		return
	}

	ttl := s.StateTTL
	if ttl == 0 {
		ttl = 2 * time.Hour
	}
	if err := s.redis.Set(context.Background(), "session:"+strings.ToLower(code), data, ttl).Err(); err != nil {
		log.Printf("Failed to store session state in Redis for %s: %v", code, err)
	}
}

func (s *SessionService) dropCachedState(code string) {
	if s.redis == nil {
		return
	}

	if err := s.redis.Del(context.Background(), "session:"+strings.ToLower(code)).Err(); err != nil {
		log.Printf("Failed to drop session state in Redis for %s: %v", code, err)
	}
}

func (s *SessionService) getCachedState(code string) *SessionState {
	if s.redis == nil {
		return nil
	}

	data, err := s.redis.Get(context.Background(), "session:"+strings.ToLower(code)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Redis error getting session state for %s: %v", code, err)
		}
		return nil
	}

	var state SessionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		log.Printf("Failed to unmarshal session state for %s: %v", code, err)
		return nil
	}
	return &state
}
