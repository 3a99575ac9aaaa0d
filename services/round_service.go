package services

import (
	"errors"
	"time"

	"grousion/models"

	"gorm.io/gorm"
)

type RoundService struct {
	db       *gorm.DB
	sessions *SessionService
}

func NewRoundService(db *gorm.DB, sessions *SessionService) *RoundService {
	return &RoundService{db: db, sessions: sessions}
}

type StartRoundRequest struct {
	// RoundNumber pins the expected round. Zero means "next".
	RoundNumber    int    `json:"round_number"`
	RespondantType string `json:"respondant_type"`
}

// RoundResults aggregates a round's answers for the presenter view.
type RoundResults struct {
	RoundID          uint        `json:"round_id"`
	RoundNumber      int         `json:"round_number"`
	AnswerCount      int         `json:"answer_count"`
	MeanAgreement    float64     `json:"mean_agreement"`
	MeanConfidence   float64     `json:"mean_confidence"`
	AgreementCounts  map[int]int `json:"agreement_counts"`
	ConfidenceCounts map[int]int `json:"confidence_counts"`
}

// StartRound opens the next round on a statement. Starting the first
// round of a published session promotes the session to started in the
// same transaction, so a crash between the two writes cannot leave a
// started session with no active round.
//
// The in-transaction "no active round" check gives callers the typed
// rejection; two concurrent admins racing past it are settled by the
// unique indexes on rounds, with the loser surfacing ErrConflict.
func (s *RoundService) StartRound(statementID uint, userID uint, req *StartRoundRequest, hub *Hub) (*models.Round, error) {
	var session models.Session
	var statement models.Statement
	var round models.Round
	sessionPromoted := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&statement, statementID).Error; err != nil {
			return ErrNotFound
		}
		if err := tx.First(&session, statement.SessionID).Error; err != nil {
			return ErrNotFound
		}
		if session.CreatedBy != userID {
			return ErrForbidden
		}

		switch session.Status {
		case models.SessionStarted, models.SessionPublished:
		case models.SessionEnded:
			return ErrSessionTerminal
		default:
			return ErrInvalidState
		}

		var active int64
		if err := tx.Model(&models.Round{}).
			Where("statement_id = ? AND status = ?", statement.ID, models.RoundStarted).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrRoundAlreadyActive
		}

		var lastRound models.Round
		nextNumber := 1
		err := tx.Where("statement_id = ?", statement.ID).
			Order("round_number DESC").
			First(&lastRound).Error
		if err == nil {
			if lastRound.Status != models.RoundCompleted {
				return ErrRoundAlreadyActive
			}
			nextNumber = lastRound.RoundNumber + 1
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if req.RoundNumber != 0 && req.RoundNumber != nextNumber {
			return ErrInvalidRoundSequence
		}

		respondantType := req.RespondantType
		if respondantType == "" {
			respondantType = models.RespondantSessionUser
		}
		if respondantType != models.RespondantSessionUser && respondantType != models.RespondantGroup {
			return ErrInvalidState
		}

		round = models.Round{
			StatementID:    statement.ID,
			RoundNumber:    nextNumber,
			Status:         models.RoundStarted,
			RespondantType: respondantType,
			StartedAt:      time.Now(),
		}
		if err := tx.Create(&round).Error; err != nil {
			// A concurrent admin can race past the count above; the
			// unique indexes on rounds are the authoritative guard.
			return ErrConflict
		}

		if err := tx.Model(&statement).Update("status", models.StatementRoundActive).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{"active_round_id": round.ID}
		if session.Status == models.SessionPublished {
			session.Status = models.SessionStarted
			updates["status"] = models.SessionStarted
			sessionPromoted = true
		}
		return tx.Model(&session).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		if sessionPromoted {
			hub.BroadcastChange(session.Code, "session", session.ID, models.SessionStarted, nil)
		}
		hub.BroadcastChange(session.Code, "round", round.ID, round.Status, map[string]interface{}{
			"statement_id": round.StatementID,
			"round_number": round.RoundNumber,
		})
	}
	s.sessions.RefreshSessionState(session.Code)

	return &round, nil
}

// EndRound locks a started round. Ending an already completed round
// fails without touching the first completion's effect.
func (s *RoundService) EndRound(roundID uint, userID uint, hub *Hub) (*models.Round, error) {
	var session models.Session
	var round models.Round

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var statement models.Statement
		if err := s.ownedRound(tx, roundID, userID, &round, &statement, &session); err != nil {
			return err
		}

		if session.Status == models.SessionEnded {
			return ErrSessionTerminal
		}
		if round.Status != models.RoundStarted {
			return ErrInvalidState
		}

		now := time.Now()
		round.Status = models.RoundCompleted
		round.EndedAt = &now
		if err := tx.Model(&round).Updates(map[string]interface{}{
			"status":   models.RoundCompleted,
			"ended_at": now,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&statement).Updates(map[string]interface{}{
			"status":           models.StatementRoundCompleted,
			"timer_status":     models.TimerStopped,
			"timer_started_at": nil,
		}).Error; err != nil {
			return err
		}

		if session.ActiveRoundID != nil && *session.ActiveRoundID == round.ID {
			return tx.Model(&session).Update("active_round_id", nil).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		hub.BroadcastChange(session.Code, "round", round.ID, round.Status, map[string]interface{}{
			"statement_id": round.StatementID,
			"round_number": round.RoundNumber,
		})
	}
	s.sessions.RefreshSessionState(session.Code)

	return &round, nil
}

// GetRoundResults aggregates the answers of a round. Served only once
// the statement has show_results enabled; until then the values stay
// hidden from viewers.
func (s *RoundService) GetRoundResults(roundID uint) (*RoundResults, error) {
	var round models.Round
	if err := s.db.First(&round, roundID).Error; err != nil {
		return nil, ErrNotFound
	}

	var statement models.Statement
	if err := s.db.First(&statement, round.StatementID).Error; err != nil {
		return nil, ErrNotFound
	}
	if !statement.ShowResults {
		return nil, ErrForbidden
	}

	var answers []models.Answer
	if err := s.db.Where("round_id = ?", round.ID).Find(&answers).Error; err != nil {
		return nil, err
	}

	results := &RoundResults{
		RoundID:          round.ID,
		RoundNumber:      round.RoundNumber,
		AnswerCount:      len(answers),
		AgreementCounts:  make(map[int]int),
		ConfidenceCounts: make(map[int]int),
	}

	if len(answers) == 0 {
		return results, nil
	}

	agreementSum, confidenceSum := 0, 0
	for _, answer := range answers {
		agreementSum += answer.AgreementLevel
		confidenceSum += answer.ConfidenceLevel
		results.AgreementCounts[answer.AgreementLevel]++
		results.ConfidenceCounts[answer.ConfidenceLevel]++
	}
	results.MeanAgreement = float64(agreementSum) / float64(len(answers))
	results.MeanConfidence = float64(confidenceSum) / float64(len(answers))

	return results, nil
}

// GetRound loads a round with its statement for the owning admin.
func (s *RoundService) GetRound(roundID uint, userID uint) (*models.Round, error) {
	var round models.Round
	var statement models.Statement
	var session models.Session
	if err := s.ownedRound(s.db, roundID, userID, &round, &statement, &session); err != nil {
		return nil, err
	}
	round.Statement = statement
	return &round, nil
}

func (s *RoundService) ownedRound(tx *gorm.DB, roundID uint, userID uint, round *models.Round, statement *models.Statement, session *models.Session) error {
	if err := tx.First(round, roundID).Error; err != nil {
		return ErrNotFound
	}
	if err := tx.First(statement, round.StatementID).Error; err != nil {
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
