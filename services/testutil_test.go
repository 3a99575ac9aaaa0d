package services

import (
	"fmt"
	"testing"
	"time"

	"grousion/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testCodeSeq int

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	// A pooled second connection would see an empty in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	err = db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Statement{},
		&models.Participant{},
		&models.Round{},
		&models.Answer{},
		&models.Group{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}

func createTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	user := &models.User{
		Email:        fmt.Sprintf("admin%d@example.com", nextTestCode()),
		Name:         "Admin",
		PasswordHash: "x",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func createTestSession(t *testing.T, db *gorm.DB, owner uint, status string) *models.Session {
	t.Helper()

	session := &models.Session{
		Name:       "Team retro",
		Code:       fmt.Sprintf("code%d", nextTestCode()),
		Status:     status,
		AllowJoins: true,
		CreatedBy:  owner,
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("create test session: %v", err)
	}
	return session
}

func createTestStatement(t *testing.T, db *gorm.DB, sessionID uint) *models.Statement {
	t.Helper()

	statement := &models.Statement{
		SessionID:   sessionID,
		Text:        "Remote work makes us more productive",
		Status:      models.StatementIdle,
		TimerStatus: models.TimerStopped,
	}
	if err := db.Create(statement).Error; err != nil {
		t.Fatalf("create test statement: %v", err)
	}
	return statement
}

func createTestParticipants(t *testing.T, db *gorm.DB, sessionID uint, count int) []models.Participant {
	t.Helper()

	participants := make([]models.Participant, 0, count)
	for i := 0; i < count; i++ {
		participant := models.Participant{
			SessionID: sessionID,
			Name:      fmt.Sprintf("participant-%d", nextTestCode()),
			JoinedAt:  time.Now(),
		}
		if err := db.Create(&participant).Error; err != nil {
			t.Fatalf("create test participant: %v", err)
		}
		participants = append(participants, participant)
	}
	return participants
}

func nextTestCode() int {
	testCodeSeq++
	return testCodeSeq
}
