package services

import (
	"errors"
	"time"

	"grousion/models"

	"gorm.io/gorm"
)

type StatementService struct {
	db       *gorm.DB
	sessions *SessionService
}

func NewStatementService(db *gorm.DB, sessions *SessionService) *StatementService {
	return &StatementService{db: db, sessions: sessions}
}

type CreateStatementRequest struct {
	Text            string `json:"text" binding:"required"`
	Background      string `json:"background"`
	DurationSeconds int    `json:"duration_seconds"`
}

type UpdateStatementRequest struct {
	Text            string `json:"text"`
	Background      string `json:"background"`
	DurationSeconds *int   `json:"duration_seconds"`
	ShowResults     *bool  `json:"show_results"`
}

// CreateStatement adds a statement to a session. Statements can only be
// created before the session has started.
func (s *StatementService) CreateStatement(code string, userID uint, req *CreateStatementRequest, hub *Hub) (*models.Statement, error) {
	var session models.Session
	var statement models.Statement

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.sessions.ownedSession(tx, code, userID, &session); err != nil {
			return err
		}

		switch session.Status {
		case models.SessionUnpublished, models.SessionPublished:
		case models.SessionEnded:
			return ErrSessionTerminal
		default:
			return ErrStatementLocked
		}

		statement = models.Statement{
			SessionID:       session.ID,
			Text:            req.Text,
			Background:      req.Background,
			Status:          models.StatementIdle,
			DurationSeconds: req.DurationSeconds,
			TimerStatus:     models.TimerStopped,
		}
		return tx.Create(&statement).Error
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		hub.BroadcastChange(session.Code, "statement", statement.ID, statement.Status, statement)
	}
	s.sessions.RefreshSessionState(session.Code)

	return &statement, nil
}

func (s *StatementService) GetStatement(statementID uint, userID uint) (*models.Statement, error) {
	var session models.Session
	var owned models.Statement
	if err := s.ownedStatement(s.db, statementID, userID, &owned, &session); err != nil {
		return nil, err
	}

	var statement models.Statement
	err := s.db.Preload("Rounds", func(db *gorm.DB) *gorm.DB {
		return db.Order("rounds.round_number")
	}).First(&statement, statementID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &statement, err
}

// UpdateStatement edits statement content. Editing is rejected while a
// round is active or once the session has ended.
func (s *StatementService) UpdateStatement(statementID uint, userID uint, req *UpdateStatementRequest, hub *Hub) (*models.Statement, error) {
	var session models.Session
	var statement models.Statement

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ownedStatement(tx, statementID, userID, &statement, &session); err != nil {
			return err
		}

		if session.Status == models.SessionEnded {
			return ErrSessionTerminal
		}
		if statement.Status == models.StatementRoundActive {
			return ErrStatementLocked
		}

		if req.Text != "" {
			statement.Text = req.Text
		}
		if req.Background != "" {
			statement.Background = req.Background
		}
		if req.DurationSeconds != nil {
			statement.DurationSeconds = *req.DurationSeconds
		}
		if req.ShowResults != nil {
			statement.ShowResults = *req.ShowResults
		}
		return tx.Save(&statement).Error
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		hub.BroadcastChange(session.Code, "statement", statement.ID, statement.Status, statement)
	}
	s.sessions.RefreshSessionState(session.Code)

	return &statement, nil
}

// DeleteStatement removes a statement. Only allowed while the session is
// still unpublished.
func (s *StatementService) DeleteStatement(statementID uint, userID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var session models.Session
		var statement models.Statement
		if err := s.ownedStatement(tx, statementID, userID, &statement, &session); err != nil {
			return err
		}

		if session.Status == models.SessionEnded {
			return ErrSessionTerminal
		}
		if session.Status != models.SessionUnpublished || statement.Status == models.StatementRoundActive {
			return ErrStatementLocked
		}

		return tx.Delete(&statement).Error
	})
}

// StartTimer starts the advisory countdown on a statement. Expiry is
// display state for viewers; it never ends the round.
func (s *StatementService) StartTimer(statementID uint, userID uint, durationSeconds int, hub *Hub) (*models.Statement, error) {
	var session models.Session
	var statement models.Statement

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ownedStatement(tx, statementID, userID, &statement, &session); err != nil {
			return err
		}

		if session.Status == models.SessionEnded {
			return ErrSessionTerminal
		}
		if statement.Status != models.StatementRoundActive {
			return ErrInvalidState
		}

		now := time.Now()
		if durationSeconds > 0 {
			statement.DurationSeconds = durationSeconds
		}
		statement.TimerStartedAt = &now
		statement.TimerStatus = models.TimerRunning
		return tx.Save(&statement).Error
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		hub.BroadcastToSession(session.Code, "timer_start", map[string]interface{}{
			"statement_id":     statement.ID,
			"duration_seconds": statement.DurationSeconds,
			"started_at":       statement.TimerStartedAt,
		})
	}
	s.sessions.RefreshSessionState(session.Code)

	return &statement, nil
}

// StopTimer stops the advisory countdown.
func (s *StatementService) StopTimer(statementID uint, userID uint, hub *Hub) (*models.Statement, error) {
	var session models.Session
	var statement models.Statement

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ownedStatement(tx, statementID, userID, &statement, &session); err != nil {
			return err
		}

		if session.Status == models.SessionEnded {
			return ErrSessionTerminal
		}

		statement.TimerStartedAt = nil
		statement.TimerStatus = models.TimerStopped
		return tx.Model(&statement).Updates(map[string]interface{}{
			"timer_started_at": nil,
			"timer_status":     models.TimerStopped,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		hub.BroadcastToSession(session.Code, "timer_stop", map[string]interface{}{
			"statement_id": statement.ID,
		})
	}
	s.sessions.RefreshSessionState(session.Code)

	return &statement, nil
}

func (s *StatementService) ownedStatement(tx *gorm.DB, statementID uint, userID uint, statement *models.Statement, session *models.Session) error {
	if err := tx.First(statement, statementID).Error; err != nil {
		return ErrNotFound
	}
	if err := tx.First(session, statement.SessionID).Error; err != nil {
		return ErrNotFound
	}
	if session.CreatedBy != userID {
		return ErrForbidden
	}
	return nil
}
