package services

import (
	"errors"

	"grousion/models"

	"gorm.io/gorm"
)

type AnswerService struct {
	db *gorm.DB
}

func NewAnswerService(db *gorm.DB) *AnswerService {
	return &AnswerService{db: db}
}

type SubmitAnswerRequest struct {
	RespondantType  string `json:"respondant_type"`
	RespondantID    uint   `json:"respondant_id" binding:"required"`
	AgreementLevel  int    `json:"agreement_level" binding:"required"`
	ConfidenceLevel int    `json:"confidence_level" binding:"required"`
	Comment         string `json:"comment"`
}

// SubmitAnswer records a respondant's agreement/confidence rating for a
// round. Resubmitting while the round is open updates the existing
// answer; the unique index keeps one answer per respondant per round.
func (s *AnswerService) SubmitAnswer(roundID uint, req *SubmitAnswerRequest, hub *Hub) (*models.Answer, error) {
	if req.AgreementLevel < 1 || req.AgreementLevel > 10 ||
		req.ConfidenceLevel < 1 || req.ConfidenceLevel > 10 {
		return nil, ErrLevelOutOfRange
	}

	respondantType := req.RespondantType
	if respondantType == "" {
		respondantType = models.RespondantSessionUser
	}
	if respondantType != models.RespondantSessionUser && respondantType != models.RespondantGroup {
		return nil, ErrInvalidState
	}

	var session models.Session
	var answer models.Answer
	answerCount := int64(0)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var round models.Round
		if err := tx.First(&round, roundID).Error; err != nil {
			return ErrNotFound
		}
		if round.Status != models.RoundStarted {
			return ErrInvalidState
		}

		var statement models.Statement
		if err := tx.First(&statement, round.StatementID).Error; err != nil {
			return ErrNotFound
		}
		if err := tx.First(&session, statement.SessionID).Error; err != nil {
			return ErrNotFound
		}
		if session.Status == models.SessionEnded {
			return ErrSessionTerminal
		}

		if err := s.checkRespondant(tx, &session, round.ID, respondantType, req.RespondantID); err != nil {
			return err
		}

		var existing models.Answer
		err := tx.Where("round_id = ? AND respondant_type = ? AND respondant_id = ?",
			round.ID, respondantType, req.RespondantID).First(&existing).Error
		switch {
		case err == nil:
			existing.AgreementLevel = req.AgreementLevel
			existing.ConfidenceLevel = req.ConfidenceLevel
			existing.Comment = req.Comment
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			answer = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			answer = models.Answer{
				RoundID:         round.ID,
				RespondantType:  respondantType,
				RespondantID:    req.RespondantID,
				AgreementLevel:  req.AgreementLevel,
				ConfidenceLevel: req.ConfidenceLevel,
				Comment:         req.Comment,
			}
			if err := tx.Create(&answer).Error; err != nil {
				// Lost a race against a concurrent submit for the same
				// respondant; the unique index is authoritative.
				return ErrConflict
			}
		default:
			return err
		}

		return tx.Model(&models.Answer{}).Where("round_id = ?", round.ID).Count(&answerCount).Error
	})
	if err != nil {
		return nil, err
	}

	// Submission counts go out live; answer values stay hidden until the
	// round is locked and results are shown.
	if hub != nil {
		hub.BroadcastToSession(session.Code, "answer_submitted", map[string]interface{}{
			"round_id":     roundID,
			"answer_count": answerCount,
		})
	}

	return &answer, nil
}

// ListAnswers returns every raw answer of a round to the admin who owns
// the session.
func (s *AnswerService) ListAnswers(roundID uint, userID uint) ([]models.Answer, error) {
	var round models.Round
	if err := s.db.First(&round, roundID).Error; err != nil {
		return nil, ErrNotFound
	}
	var statement models.Statement
	if err := s.db.First(&statement, round.StatementID).Error; err != nil {
		return nil, ErrNotFound
	}
	var session models.Session
	if err := s.db.First(&session, statement.SessionID).Error; err != nil {
		return nil, ErrNotFound
	}
	if session.CreatedBy != userID {
		return nil, ErrForbidden
	}

	var answers []models.Answer
	err := s.db.Where("round_id = ?", roundID).Find(&answers).Error
	return answers, err
}

func (s *AnswerService) checkRespondant(tx *gorm.DB, session *models.Session, roundID uint, respondantType string, respondantID uint) error {
	switch respondantType {
	case models.RespondantSessionUser:
		var count int64
		if err := tx.Model(&models.Participant{}).
			Where("id = ? AND session_id = ?", respondantID, session.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
	case models.RespondantGroup:
		var group models.Group
		if err := tx.First(&group, respondantID).Error; err != nil {
			return ErrNotFound
		}
	}
	return nil
}
