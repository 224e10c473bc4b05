package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/services"
)

type stubSessionService struct {
	startResult    *services.SessionOffer
	startErr       error
	searchResult   *services.SearchOffer
	searchErr      error
	acceptResult   *models.Session
	acceptErr      error
	rejectResult   *models.SearchTicket
	rejectErr      error
	leaveResult    *models.Session
	leaveErr       error
	rejoinResult   *models.Session
	rejoinErr      error
	endResult      *services.EndResult
	endErr         error
	lastStudentID  string
	lastStartInput services.StartSessionInput
	lastSearchID   string
	lastTutorID    string
	lastSessionID  string
	lastRole       string
	lastActorID    string
	lastReason     *string
}

func (s *stubSessionService) StartDirect(_ context.Context, studentID string, input services.StartSessionInput) (*services.SessionOffer, error) {
	s.lastStudentID = studentID
	s.lastStartInput = input
	return s.startResult, s.startErr
}

func (s *stubSessionService) RandomSearch(_ context.Context, studentID string, input services.RandomSearchInput) (*services.SearchOffer, error) {
	s.lastStudentID = studentID
	s.lastSearchID = input.SearchID
	return s.searchResult, s.searchErr
}

func (s *stubSessionService) Accept(_ context.Context, searchID, tutorID string) (*models.Session, error) {
	s.lastSearchID = searchID
	s.lastTutorID = tutorID
	return s.acceptResult, s.acceptErr
}

func (s *stubSessionService) Reject(_ context.Context, searchID, tutorID string) (*models.SearchTicket, error) {
	s.lastSearchID = searchID
	s.lastTutorID = tutorID
	return s.rejectResult, s.rejectErr
}

func (s *stubSessionService) Leave(_ context.Context, sessionID, role string, reason *string) (*models.Session, error) {
	s.lastSessionID = sessionID
	s.lastRole = role
	s.lastReason = reason
	return s.leaveResult, s.leaveErr
}

func (s *stubSessionService) Rejoin(_ context.Context, sessionID, role string) (*models.Session, error) {
	s.lastSessionID = sessionID
	s.lastRole = role
	return s.rejoinResult, s.rejoinErr
}

func (s *stubSessionService) End(_ context.Context, sessionID, actorID string) (*services.EndResult, error) {
	s.lastSessionID = sessionID
	s.lastActorID = actorID
	return s.endResult, s.endErr
}

func sessionTestApp(service *stubSessionService, userID, role string) *fiber.App {
	handler := NewSessionHandler(service)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("role", role)
		return c.Next()
	})
	app.Post("/api/v1/sessions/start", handler.StartSession)
	app.Post("/api/v1/sessions/start/tutor-random", handler.StartRandomSearch)
	app.Post("/api/v1/sessions/start/yes", handler.AcceptSearch)
	app.Post("/api/v1/sessions/start/no", handler.RejectSearch)
	app.Post("/api/v1/sessions/leave", handler.LeaveSession)
	app.Post("/api/v1/sessions/rejoin", handler.RejoinSession)
	app.Post("/api/v1/sessions/end", handler.EndSession)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func TestStartSessionReturnsOffer(t *testing.T) {
	service := &stubSessionService{
		startResult: &services.SessionOffer{
			Session: &models.Session{ID: "session-1", Status: models.StatusPending},
		},
	}
	app := sessionTestApp(service, "student-1", models.RoleStudent)

	resp := postJSON(t, app, "/api/v1/sessions/start", `{
		"tutorID": "tutor-1",
		"question": "breach of contract",
		"languages": ["en"],
		"subjects": ["contracts"],
		"topics": ["breach"]
	}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastStudentID != "student-1" {
		t.Fatalf("expected student-1, got %q", service.lastStudentID)
	}
	if service.lastStartInput.TutorID != "tutor-1" {
		t.Fatalf("expected tutor-1, got %q", service.lastStartInput.TutorID)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "success" {
		t.Fatalf("expected success envelope, got %q", body.Status)
	}
}

func TestStartSessionRejectsTutorCaller(t *testing.T) {
	service := &stubSessionService{}
	app := sessionTestApp(service, "tutor-1", models.RoleTutor)

	resp := postJSON(t, app, "/api/v1/sessions/start", `{"tutorID": "tutor-2"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestStartSessionBusyTutorConflict(t *testing.T) {
	service := &stubSessionService{startErr: services.ErrTutorBusy}
	app := sessionTestApp(service, "student-1", models.RoleStudent)

	resp := postJSON(t, app, "/api/v1/sessions/start", `{"tutorID": "tutor-1"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestRandomSearchNoMatchNotFound(t *testing.T) {
	service := &stubSessionService{searchErr: services.ErrNoMatch}
	app := sessionTestApp(service, "student-1", models.RoleStudent)

	resp := postJSON(t, app, "/api/v1/sessions/start/tutor-random", `{
		"languages": ["en"], "subjects": ["contracts"], "topics": ["breach"]
	}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAcceptSearchUsesCallerAsTutor(t *testing.T) {
	service := &stubSessionService{
		acceptResult: &models.Session{ID: "session-1", Status: models.StatusInProgress},
	}
	app := sessionTestApp(service, "tutor-1", models.RoleTutor)

	resp := postJSON(t, app, "/api/v1/sessions/start/yes", `{"searchID": "ticket-1"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastSearchID != "ticket-1" || service.lastTutorID != "tutor-1" {
		t.Fatalf("unexpected accept args: %q %q", service.lastSearchID, service.lastTutorID)
	}
}

func TestAcceptSearchRejectsStudentCaller(t *testing.T) {
	service := &stubSessionService{}
	app := sessionTestApp(service, "student-1", models.RoleStudent)

	resp := postJSON(t, app, "/api/v1/sessions/start/yes", `{"searchID": "ticket-1"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestRejectSearchReturnsRejectionSet(t *testing.T) {
	service := &stubSessionService{
		rejectResult: &models.SearchTicket{ID: "ticket-1", RejectedTutors: []string{"tutor-1"}},
	}
	app := sessionTestApp(service, "tutor-1", models.RoleTutor)

	resp := postJSON(t, app, "/api/v1/sessions/start/no", `{"searchID": "ticket-1"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			RejectedTutors []string `json:"rejectedTutors"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Data.RejectedTutors) != 1 || body.Data.RejectedTutors[0] != "tutor-1" {
		t.Fatalf("unexpected rejection set: %v", body.Data.RejectedTutors)
	}
}

func TestLeaveSessionPassesRoleAndReason(t *testing.T) {
	service := &stubSessionService{
		leaveResult: &models.Session{ID: "session-1", Status: models.StatusPaused},
	}
	app := sessionTestApp(service, "tutor-1", models.RoleTutor)

	resp := postJSON(t, app, "/api/v1/sessions/leave", `{"sessionID": "session-1", "reason": "network"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastRole != models.RoleTutor {
		t.Fatalf("expected tutor role, got %q", service.lastRole)
	}
	if service.lastReason == nil || *service.lastReason != "network" {
		t.Fatalf("expected reason to be forwarded")
	}
}

func TestEndSessionAlreadyCompleted(t *testing.T) {
	service := &stubSessionService{endErr: services.ErrAlreadyCompleted}
	app := sessionTestApp(service, "student-1", models.RoleStudent)

	resp := postJSON(t, app, "/api/v1/sessions/end", `{"sessionID": "session-1"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestEndSessionReturnsBillingResult(t *testing.T) {
	service := &stubSessionService{
		endResult: &services.EndResult{
			SessionTime:  "00:07:20",
			Cost:         1.6,
			TutorEarning: 1.5,
			PlatformFee:  0.1,
		},
	}
	app := sessionTestApp(service, "tutor-1", models.RoleTutor)

	resp := postJSON(t, app, "/api/v1/sessions/end", `{"sessionID": "session-1"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastActorID != "tutor-1" {
		t.Fatalf("expected caller to be the actor, got %q", service.lastActorID)
	}

	var body struct {
		Data services.EndResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Cost != 1.6 || body.Data.SessionTime != "00:07:20" {
		t.Fatalf("unexpected billing payload: %+v", body.Data)
	}
}

func TestEndSessionMissingID(t *testing.T) {
	service := &stubSessionService{}
	app := sessionTestApp(service, "student-1", models.RoleStudent)

	resp := postJSON(t, app, "/api/v1/sessions/end", `{}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
