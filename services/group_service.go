package services

import (
	"math/rand"

	"grousion/models"

	"gorm.io/gorm"
)

// GroupService turns the formation engine's plans into persisted groups
// for a locked round and announces the assignments.
type GroupService struct {
	db       *gorm.DB
	sessions *SessionService
	rng      *rand.Rand
}

// NewGroupService builds the service. rng may be nil, in which case each
// formation run seeds its own source; tests inject a seeded one.
func NewGroupService(db *gorm.DB, sessions *SessionService, rng *rand.Rand) *GroupService {
	return &GroupService{db: db, sessions: sessions, rng: rng}
}

type PrepareGroupsRequest struct {
	// Reform discards the round's existing groups and forms new ones.
	Reform bool `json:"reform"`
}

// PrepareGroups forms and persists discussion groups for a completed
// round. A round that already has groups is rejected unless reform is
// requested.
func (s *GroupService) PrepareGroups(roundID uint, userID uint, req *PrepareGroupsRequest, hub *Hub) ([]models.Group, error) {
	var session models.Session
	var groups []models.Group

	err := s.db.Transaction(func(tx *gorm.DB) error {
		round, err := s.lockedRound(tx, roundID, userID, &session)
		if err != nil {
			return err
		}

		var existing []models.Group
		if err := tx.Where("round_id = ?", round.ID).Find(&existing).Error; err != nil {
			return err
		}
		if len(existing) > 0 {
			if !req.Reform {
				return ErrGroupsAlreadyFormed
			}
			for i := range existing {
				if err := tx.Model(&existing[i]).Association("Members").Clear(); err != nil {
					return err
				}
			}
			if err := tx.Where("round_id = ?", round.ID).Delete(&models.Group{}).Error; err != nil {
				return err
			}
		}

		participants, answers, err := s.roster(tx, round)
		if err != nil {
			return err
		}

		plans, err := FormGroups(participants, answers, s.rng)
		if err != nil {
			return err
		}

		for _, plan := range plans {
			group := models.Group{
				RoundID:  round.ID,
				LeaderID: plan.LeaderID,
				Status:   models.GroupActive,
			}
			for _, memberID := range plan.MemberIDs {
				group.Members = append(group.Members, models.Participant{ID: memberID})
			}
			if err := tx.Create(&group).Error; err != nil {
				return err
			}
			groups = append(groups, group)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if hub != nil {
		assignments := make([]map[string]interface{}, 0, len(groups))
		for _, group := range groups {
			memberIDs := make([]uint, 0, len(group.Members))
			for _, member := range group.Members {
				memberIDs = append(memberIDs, member.ID)
			}
			assignments = append(assignments, map[string]interface{}{
				"group_id":   group.ID,
				"leader_id":  group.LeaderID,
				"member_ids": memberIDs,
			})
		}
		hub.BroadcastToSession(session.Code, "groups_formed", map[string]interface{}{
			"round_id": roundID,
			"groups":   assignments,
		})
	}
	s.sessions.RefreshSessionState(session.Code)

	return groups, nil
}

// PreviewGroups runs the formation engine without persisting anything, so
// the presenter can inspect the proposed partition first.
func (s *GroupService) PreviewGroups(roundID uint, userID uint) ([]GroupPlan, error) {
	var session models.Session
	var plans []GroupPlan

	err := s.db.Transaction(func(tx *gorm.DB) error {
		round, err := s.lockedRound(tx, roundID, userID, &session)
		if err != nil {
			return err
		}

		participants, answers, err := s.roster(tx, round)
		if err != nil {
			return err
		}

		plans, err = FormGroups(participants, answers, s.rng)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plans, nil
}

// ListGroups returns a round's groups with members loaded.
func (s *GroupService) ListGroups(roundID uint) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.Where("round_id = ?", roundID).
		Preload("Members").
		Find(&groups).Error
	return groups, err
}

// lockedRound loads a round that has been completed, verifying ownership
// through its statement's session. Groups are only formed once a round is
// locked.
func (s *GroupService) lockedRound(tx *gorm.DB, roundID uint, userID uint, session *models.Session) (*models.Round, error) {
	var round models.Round
	if err := tx.First(&round, roundID).Error; err != nil {
		return nil, ErrNotFound
	}

	var statement models.Statement
	if err := tx.First(&statement, round.StatementID).Error; err != nil {
		return nil, ErrNotFound
	}
	if err := tx.First(session, statement.SessionID).Error; err != nil {
		return nil, ErrNotFound
	}
	if session.CreatedBy != userID {
		return nil, ErrForbidden
	}
	if session.Status == models.SessionEnded {
		return nil, ErrSessionTerminal
	}
	if round.Status != models.RoundCompleted {
		return nil, ErrInvalidState
	}
	return &round, nil
}

func (s *GroupService) roster(tx *gorm.DB, round *models.Round) ([]models.Participant, []models.Answer, error) {
	var statement models.Statement
	if err := tx.First(&statement, round.StatementID).Error; err != nil {
		return nil, nil, ErrNotFound
	}

	var participants []models.Participant
	if err := tx.Where("session_id = ?", statement.SessionID).
		Order("joined_at").
		Find(&participants).Error; err != nil {
		return nil, nil, err
	}

	var answers []models.Answer
	if err := tx.Where("round_id = ? AND respondant_type = ?", round.ID, models.RespondantSessionUser).
		Find(&answers).Error; err != nil {
		return nil, nil, err
	}

	return participants, answers, nil
}
