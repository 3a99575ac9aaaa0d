package services

import (
	"errors"
	"testing"

	"grousion/models"
)

func roundFixture(t *testing.T) (*RoundService, *models.Session, *models.Statement, uint) {
	t.Helper()

	db := newTestDB(t)
	sessions := NewSessionService(db, nil)
	svc := NewRoundService(db, sessions)
	owner := createTestUser(t, db)
	session := createTestSession(t, db, owner.ID, models.SessionStarted)
	statement := createTestStatement(t, db, session.ID)
	createTestParticipants(t, db, session.ID, 2)
	return svc, session, statement, owner.ID
}

func TestStartRoundCreatesFirstRound(t *testing.T) {
	svc, session, statement, owner := roundFixture(t)

	round, err := svc.StartRound(statement.ID, owner, &StartRoundRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRound error: %v", err)
	}
	if round.RoundNumber != 1 {
		t.Fatalf("expected round 1, got %d", round.RoundNumber)
	}
	if round.Status != models.RoundStarted {
		t.Fatalf("expected started round, got %q", round.Status)
	}

	var reloadedStatement models.Statement
	svc.db.First(&reloadedStatement, statement.ID)
	if reloadedStatement.Status != models.StatementRoundActive {
		t.Fatalf("statement status = %q, want round_active", reloadedStatement.Status)
	}

	var reloadedSession models.Session
	svc.db.First(&reloadedSession, session.ID)
	if reloadedSession.ActiveRoundID == nil || *reloadedSession.ActiveRoundID != round.ID {
		t.Fatalf("session active round not set")
	}
}

func TestStartRoundRejectsSecondActiveRound(t *testing.T) {
	svc, _, statement, owner := roundFixture(t)

	if _, err := svc.StartRound(statement.ID, owner, &StartRoundRequest{}, nil); err != nil {
		t.Fatalf("StartRound error: %v", err)
	}
	if _, err := svc.StartRound(statement.ID, owner, &StartRoundRequest{}, nil); !errors.Is(err, ErrRoundAlreadyActive) {
		t.Fatalf("expected ErrRoundAlreadyActive, got %v", err)
	}
}

func TestRoundNumbersIncrement(t *testing.T) {
	svc, _, statement, owner := roundFixture(t)

	first, err := svc.StartRound(statement.ID, owner, &StartRoundRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRound error: %v", err)
	}
	if _, err := svc.EndRound(first.ID, owner, nil); err != nil {
		t.Fatalf("EndRound error: %v", err)
	}

	second, err := svc.StartRound(statement.ID, owner, &StartRoundRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRound error: %v", err)
	}
	if second.RoundNumber != first.RoundNumber+1 {
		t.Fatalf("expected round %d, got %d", first.RoundNumber+1, second.RoundNumber)
	}
}

func TestStartRoundInvalidSequence(t *testing.T) {
	svc, _, statement, owner := roundFixture(t)

	first, err := svc.StartRound(statement.ID, owner, &StartRoundRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRound error: %v", err)
	}
	if _, err := svc.EndRound(first.ID, owner, nil); err != nil {
		t.Fatalf("EndRound error: %v", err)
	}

	// Round 2 is next; pinning round 3 skips the sequence.
	if _, err := svc.StartRound(statement.ID, owner, &StartRoundRequest{RoundNumber: 3}, nil); !errors.Is(err, ErrInvalidRoundSequence) {
		t.Fatalf("expected ErrInvalidRoundSequence, got %v", err)
	}
}

func TestEndRoundIsIdempotentlyRejected(t *testing.T) {
	svc, _, statement, owner := roundFixture(t)

	round, err := svc.StartRound(statement.ID, owner, &StartRoundRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRound error: %v", err)
	}

	ended, err := svc.EndRound(round.ID, owner, nil)
	if err != nil {
		t.Fatalf("EndRound error: %v", err)
	}
	if ended.Status != models.RoundCompleted || ended.EndedAt == nil {
		t.Fatalf("round not completed: status=%q endedAt=%v", ended.Status, ended.EndedAt)
	}
	firstEndedAt := *ended.EndedAt

	if _, err := svc.EndRound(round.ID, owner, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second end, got %v", err)
	}

	var reloaded models.Round
	svc.db.First(&reloaded, round.ID)
	if reloaded.Status != models.RoundCompleted || reloaded.EndedAt == nil || !reloaded.EndedAt.Equal(firstEndedAt) {
		t.Fatalf("second end mutated the completed round")
	}
}

func TestStartRoundPromotesPublishedSession(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessionService(db, nil)
	svc := NewRoundService(db, sessions)
	owner := createTestUser(t, db)
	session := createTestSession(t, db, owner.ID, models.SessionPublished)
	statement := createTestStatement(t, db, session.ID)
	createTestParticipants(t, db, session.ID, 2)

	round, err := svc.StartRound(statement.ID, owner.ID, &StartRoundRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRound error: %v", err)
	}

	var reloaded models.Session
	db.First(&reloaded, session.ID)
	if reloaded.Status != models.SessionStarted {
		t.Fatalf("session not promoted to started, got %q", reloaded.Status)
	}
	if reloaded.ActiveRoundID == nil || *reloaded.ActiveRoundID != round.ID {
		t.Fatalf("active round not set with the promotion")
	}
}

func TestStartRoundRequiresRunningSession(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessionService(db, nil)
	svc := NewRoundService(db, sessions)
	owner := createTestUser(t, db)

	unpublished := createTestSession(t, db, owner.ID, models.SessionUnpublished)
	statement := createTestStatement(t, db, unpublished.ID)
	if _, err := svc.StartRound(statement.ID, owner.ID, &StartRoundRequest{}, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on unpublished session, got %v", err)
	}

	ended := createTestSession(t, db, owner.ID, models.SessionEnded)
	endedStatement := createTestStatement(t, db, ended.ID)
	if _, err := svc.StartRound(endedStatement.ID, owner.ID, &StartRoundRequest{}, nil); !errors.Is(err, ErrSessionTerminal) {
		t.Fatalf("expected ErrSessionTerminal on ended session, got %v", err)
	}
}

func TestEndRoundAfterSessionEnded(t *testing.T) {
	svc, session, statement, owner := roundFixture(t)
	sessions := NewSessionService(svc.db, nil)

	round, err := svc.StartRound(statement.ID, owner, &StartRoundRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRound error: %v", err)
	}
	if _, err := sessions.EndSession(session.Code, owner, nil); err != nil {
		t.Fatalf("EndSession error: %v", err)
	}

	if _, err := svc.EndRound(round.ID, owner, nil); !errors.Is(err, ErrSessionTerminal) {
		t.Fatalf("expected ErrSessionTerminal ending a round after session end, got %v", err)
	}

	var reloaded models.Round
	svc.db.First(&reloaded, round.ID)
	if reloaded.Status != models.RoundStarted || reloaded.EndedAt != nil {
		t.Fatalf("rejected end mutated the round: status=%q endedAt=%v", reloaded.Status, reloaded.EndedAt)
	}
}

func TestGetRoundRequiresOwnership(t *testing.T) {
	svc, _, statement, owner := roundFixture(t)
	other := createTestUser(t, svc.db)

	round, err := svc.StartRound(statement.ID, owner, &StartRoundRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRound error: %v", err)
	}

	if _, err := svc.GetRound(round.ID, other.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}
	loaded, err := svc.GetRound(round.ID, owner)
	if err != nil {
		t.Fatalf("GetRound error: %v", err)
	}
	if loaded.Statement.ID != statement.ID {
		t.Fatalf("round loaded without its statement")
	}
}

func TestRoundUniqueIndexes(t *testing.T) {
	svc, _, statement, _ := roundFixture(t)

	first := models.Round{StatementID: statement.ID, RoundNumber: 1, Status: models.RoundStarted}
	if err := svc.db.Create(&first).Error; err != nil {
		t.Fatalf("create first round: %v", err)
	}

	// Second started round for the same statement hits the partial
	// unique index even when it skips the controller.
	second := models.Round{StatementID: statement.ID, RoundNumber: 2, Status: models.RoundStarted}
	if err := svc.db.Create(&second).Error; err == nil {
		t.Fatalf("expected unique violation for second started round")
	}

	// Reusing a round number on the same statement is also rejected.
	duplicate := models.Round{StatementID: statement.ID, RoundNumber: 1, Status: models.RoundCompleted}
	if err := svc.db.Create(&duplicate).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate round number")
	}
}

func TestGetRoundResults(t *testing.T) {
	svc, session, statement, owner := roundFixture(t)
	participants := createTestParticipants(t, svc.db, session.ID, 2)

	round, err := svc.StartRound(statement.ID, owner, &StartRoundRequest{}, nil)
	if err != nil {
		t.Fatalf("StartRound error: %v", err)
	}

	answers := NewAnswerService(svc.db)
	for i, p := range participants {
		req := &SubmitAnswerRequest{
			RespondantID:    p.ID,
			AgreementLevel:  4 + i*4, // 4 and 8
			ConfidenceLevel: 6,
		}
		if _, err := answers.SubmitAnswer(round.ID, req, nil); err != nil {
			t.Fatalf("SubmitAnswer error: %v", err)
		}
	}

	// Results stay hidden until the statement opts in.
	if _, err := svc.GetRoundResults(round.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden before show_results, got %v", err)
	}
	if err := svc.db.Model(&models.Statement{}).Where("id = ?", statement.ID).Update("show_results", true).Error; err != nil {
		t.Fatalf("enable show_results: %v", err)
	}

	results, err := svc.GetRoundResults(round.ID)
	if err != nil {
		t.Fatalf("GetRoundResults error: %v", err)
	}
	if results.AnswerCount != 2 {
		t.Fatalf("expected 2 answers, got %d", results.AnswerCount)
	}
	if results.MeanAgreement != 6 {
		t.Fatalf("mean agreement = %v, want 6", results.MeanAgreement)
	}
	if results.AgreementCounts[4] != 1 || results.AgreementCounts[8] != 1 {
		t.Fatalf("unexpected agreement counts: %v", results.AgreementCounts)
	}
}
