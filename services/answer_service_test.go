package services

import (
	"errors"
	"testing"

	"grousion/models"
)

func answerFixture(t *testing.T) (*AnswerService, *models.Round, []models.Participant) {
	t.Helper()

	db := newTestDB(t)
	sessions := NewSessionService(db, nil)
	rounds := NewRoundService(db, sessions)
	svc := NewAnswerService(db)
	owner := createTestUser(t, db)
	session := createTestSession(t, db, owner.ID, models.SessionStarted)
	statement := createTestStatement(t, db, session.ID)
	participants := createTestParticipants(t, db, session.ID, 3)

	round, err := rounds.StartRound(statement.ID, owner.ID, &StartRoundRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRound error: %v", err)
	}
	return svc, round, participants
}

func TestSubmitAnswer(t *testing.T) {
	svc, round, participants := answerFixture(t)

	answer, err := svc.SubmitAnswer(round.ID, &SubmitAnswerRequest{
		RespondantID:    participants[0].ID,
		AgreementLevel:  7,
		ConfidenceLevel: 9,
		Comment:         "strongly felt",
	}, nil)
	if err != nil {
		t.Fatalf("SubmitAnswer error: %v", err)
	}
	if answer.RespondantType != models.RespondantSessionUser {
		t.Fatalf("default respondant type = %q", answer.RespondantType)
	}
}

func TestSubmitAnswerLevelsValidated(t *testing.T) {
	svc, round, participants := answerFixture(t)

	for _, req := range []*SubmitAnswerRequest{
		{RespondantID: participants[0].ID, AgreementLevel: 0, ConfidenceLevel: 5},
		{RespondantID: participants[0].ID, AgreementLevel: 11, ConfidenceLevel: 5},
		{RespondantID: participants[0].ID, AgreementLevel: 5, ConfidenceLevel: 0},
		{RespondantID: participants[0].ID, AgreementLevel: 5, ConfidenceLevel: 11},
	} {
		if _, err := svc.SubmitAnswer(round.ID, req, nil); !errors.Is(err, ErrLevelOutOfRange) {
			t.Fatalf("expected ErrLevelOutOfRange for %+v, got %v", req, err)
		}
	}
}

func TestSubmitAnswerUpsertsWhileRoundOpen(t *testing.T) {
	svc, round, participants := answerFixture(t)

	if _, err := svc.SubmitAnswer(round.ID, &SubmitAnswerRequest{
		RespondantID:    participants[0].ID,
		AgreementLevel:  3,
		ConfidenceLevel: 4,
	}, nil); err != nil {
		t.Fatalf("first SubmitAnswer error: %v", err)
	}

	updated, err := svc.SubmitAnswer(round.ID, &SubmitAnswerRequest{
		RespondantID:    participants[0].ID,
		AgreementLevel:  8,
		ConfidenceLevel: 9,
	}, nil)
	if err != nil {
		t.Fatalf("second SubmitAnswer error: %v", err)
	}
	if updated.AgreementLevel != 8 {
		t.Fatalf("answer not updated, agreement = %d", updated.AgreementLevel)
	}

	var count int64
	svc.db.Model(&models.Answer{}).Where("round_id = ?", round.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected one answer per respondant, got %d", count)
	}
}

func TestSubmitAnswerRequiresOpenRound(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessionService(db, nil)
	rounds := NewRoundService(db, sessions)
	svc := NewAnswerService(db)
	owner := createTestUser(t, db)
	session := createTestSession(t, db, owner.ID, models.SessionStarted)
	statement := createTestStatement(t, db, session.ID)
	participants := createTestParticipants(t, db, session.ID, 2)

	round, err := rounds.StartRound(statement.ID, owner.ID, &StartRoundRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRound error: %v", err)
	}
	if _, err := rounds.EndRound(round.ID, owner.ID, nil); err != nil {
		t.Fatalf("EndRound error: %v", err)
	}

	_, err = svc.SubmitAnswer(round.ID, &SubmitAnswerRequest{
		RespondantID:    participants[0].ID,
		AgreementLevel:  5,
		ConfidenceLevel: 5,
	}, nil)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for completed round, got %v", err)
	}
}

func TestListAnswersRequiresOwnership(t *testing.T) {
	svc, round, participants := answerFixture(t)
	other := createTestUser(t, svc.db)

	var session models.Session
	var statement models.Statement
	if err := svc.db.First(&statement, round.StatementID).Error; err != nil {
		t.Fatalf("load statement: %v", err)
	}
	if err := svc.db.First(&session, statement.SessionID).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}

	if _, err := svc.SubmitAnswer(round.ID, &SubmitAnswerRequest{
		RespondantID:    participants[0].ID,
		AgreementLevel:  5,
		ConfidenceLevel: 5,
	}, nil); err != nil {
		t.Fatalf("SubmitAnswer error: %v", err)
	}

	if _, err := svc.ListAnswers(round.ID, other.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}

	answers, err := svc.ListAnswers(round.ID, session.CreatedBy)
	if err != nil {
		t.Fatalf("ListAnswers error: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(answers))
	}
}

func TestSubmitAnswerUnknownRespondant(t *testing.T) {
	svc, round, _ := answerFixture(t)

	_, err := svc.SubmitAnswer(round.ID, &SubmitAnswerRequest{
		RespondantID:    9999,
		AgreementLevel:  5,
		ConfidenceLevel: 5,
	}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown respondant, got %v", err)
	}
}
