package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"grousion/handlers"
	"grousion/middleware"
	"grousion/models"
	"grousion/routes"
	"grousion/services"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testJWTSecret = "handler-test-secret"

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	authService := services.NewAuthService(db, testJWTSecret)
	sessionService := services.NewSessionService(db, nil)
	statementService := services.NewStatementService(db, sessionService)
	participantService := services.NewParticipantService(db, sessionService)
	roundService := services.NewRoundService(db, sessionService)
	answerService := services.NewAnswerService(db)
	groupService := services.NewGroupService(db, sessionService, nil)

	hub := services.NewHub(sessionService)
	go hub.Run()

	router := gin.New()
	router.Use(middleware.CORS())
	routes.SetupRoutes(router,
		handlers.NewAuthHandler(authService),
		handlers.NewSessionHandler(sessionService, participantService, hub),
		handlers.NewStatementHandler(statementService, hub),
		handlers.NewRoundHandler(roundService, answerService, groupService, hub),
		hub, sessionService, participantService, testJWTSecret)

	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerAdmin(t *testing.T, router *gin.Engine) string {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "admin@example.com",
		"name":     "Admin",
		"password": "correct-horse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp.Token
}

func TestSessionEndpointsRequireAuth(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/sessions", "", map[string]string{"name": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestSessionPublishFlow(t *testing.T) {
	router := setupRouter(t)
	token := registerAdmin(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/sessions", token, map[string]string{"name": "All hands"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d: %s", rec.Code, rec.Body.String())
	}
	var session struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	// Publishing an empty session is a validation rejection.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/publish", session.Code), token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty publish status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/statements", session.Code), token, map[string]string{
		"text": "Standups should be async",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create statement status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/publish", session.Code), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestJoinSessionEndpoint(t *testing.T) {
	router := setupRouter(t)
	token := registerAdmin(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/sessions", token, map[string]string{"name": "Offsite"})
	var session struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/joins", session.Code), token, map[string]bool{"allow": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("allow joins status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/join", session.Code), "", map[string]string{"name": "Dana"})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d: %s", rec.Code, rec.Body.String())
	}

	// Duplicate names map to 409.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/sessions/%s/join", session.Code), "", map[string]string{"name": "Dana"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate join status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/sessions/%s/state", session.Code), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("state status = %d: %s", rec.Code, rec.Body.String())
	}
	var state struct {
		ParticipantCount int `json:"participant_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.ParticipantCount != 1 {
		t.Fatalf("expected 1 participant in state, got %d", state.ParticipantCount)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/sessions/doesnotexist/state", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing session state status = %d", rec.Code)
	}
}
