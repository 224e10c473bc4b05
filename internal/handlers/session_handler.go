package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/services"
)

type sessionApplicationService interface {
	StartDirect(ctx context.Context, studentID string, input services.StartSessionInput) (*services.SessionOffer, error)
	RandomSearch(ctx context.Context, studentID string, input services.RandomSearchInput) (*services.SearchOffer, error)
	Accept(ctx context.Context, searchID, tutorID string) (*models.Session, error)
	Reject(ctx context.Context, searchID, tutorID string) (*models.SearchTicket, error)
	Leave(ctx context.Context, sessionID, role string, reason *string) (*models.Session, error)
	Rejoin(ctx context.Context, sessionID, role string) (*models.Session, error)
	End(ctx context.Context, sessionID, actorID string) (*services.EndResult, error)
}

type SessionHandler struct {
	service sessionApplicationService
}

func NewSessionHandler(service sessionApplicationService) *SessionHandler {
	return &SessionHandler{service: service}
}

type startSessionRequest struct {
	TutorID        string   `json:"tutorID"`
	Question       *string  `json:"question"`
	StudentCountry *string  `json:"studentCountry"`
	Languages      []string `json:"languages"`
	Subjects       []string `json:"subjects"`
	Topics         []string `json:"topics"`
	Age            int      `json:"age"`
}

type randomSearchRequest struct {
	SearchID       string   `json:"searchID"`
	Question       *string  `json:"question"`
	StudentCountry *string  `json:"studentCountry"`
	Languages      []string `json:"languages"`
	Subjects       []string `json:"subjects"`
	Topics         []string `json:"topics"`
	Age            int      `json:"age"`
}

type searchDecisionRequest struct {
	SearchID string `json:"searchID"`
}

type leaveSessionRequest struct {
	SessionID string  `json:"sessionID"`
	Reason    *string `json:"reason"`
}

type sessionIDRequest struct {
	SessionID string `json:"sessionID"`
}

// StartSession opens a Pending session against a chosen tutor.
func (h *SessionHandler) StartSession(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok || role != models.RoleStudent {
		return fail(c, fiber.StatusForbidden, "Only students can start sessions")
	}

	var req startSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.TutorID) == "" {
		return fail(c, fiber.StatusBadRequest, "tutorID is required")
	}

	offer, err := h.service.StartDirect(c.Context(), userID, services.StartSessionInput{
		TutorID:        req.TutorID,
		Question:       req.Question,
		StudentCountry: req.StudentCountry,
		Languages:      req.Languages,
		Subjects:       req.Subjects,
		Topics:         req.Topics,
		Age:            req.Age,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return success(c, fiber.StatusCreated, "Session requested", offer)
}

// StartRandomSearch creates or re-offers a search ticket against the
// best matching online tutor.
func (h *SessionHandler) StartRandomSearch(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok || role != models.RoleStudent {
		return fail(c, fiber.StatusForbidden, "Only students can start sessions")
	}

	var req randomSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	offer, err := h.service.RandomSearch(c.Context(), userID, services.RandomSearchInput{
		SearchID:       req.SearchID,
		Question:       req.Question,
		StudentCountry: req.StudentCountry,
		Languages:      req.Languages,
		Subjects:       req.Subjects,
		Topics:         req.Topics,
		Age:            req.Age,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return success(c, fiber.StatusCreated, "Tutor found", offer)
}

// AcceptSearch is the tutor's yes: the ticket becomes a live session.
func (h *SessionHandler) AcceptSearch(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok || role != models.RoleTutor {
		return fail(c, fiber.StatusForbidden, "Only tutors can accept sessions")
	}

	var req searchDecisionRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SearchID) == "" {
		return fail(c, fiber.StatusBadRequest, "searchID is required")
	}

	session, err := h.service.Accept(c.Context(), req.SearchID, userID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return success(c, fiber.StatusOK, "Session started", fiber.Map{"session": session})
}

// RejectSearch is the tutor's no: the tutor joins the ticket's
// rejection set and the search stays open.
func (h *SessionHandler) RejectSearch(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok || role != models.RoleTutor {
		return fail(c, fiber.StatusForbidden, "Only tutors can reject sessions")
	}

	var req searchDecisionRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SearchID) == "" {
		return fail(c, fiber.StatusBadRequest, "searchID is required")
	}

	ticket, err := h.service.Reject(c.Context(), req.SearchID, userID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return success(c, fiber.StatusOK, "Session rejected", fiber.Map{
		"searchID":       ticket.ID,
		"rejectedTutors": ticket.RejectedTutors,
	})
}

// LeaveSession pauses the clock while one side is away.
func (h *SessionHandler) LeaveSession(c *fiber.Ctx) error {
	_, role, ok := currentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Invalid token")
	}

	var req leaveSessionRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		return fail(c, fiber.StatusBadRequest, "sessionID is required")
	}

	session, err := h.service.Leave(c.Context(), req.SessionID, role, req.Reason)
	if err != nil {
		return mapSessionError(c, err)
	}

	return success(c, fiber.StatusOK, "Session paused", fiber.Map{"session": session})
}

// RejoinSession resumes the clock after a leave.
func (h *SessionHandler) RejoinSession(c *fiber.Ctx) error {
	_, role, ok := currentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Invalid token")
	}

	var req sessionIDRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		return fail(c, fiber.StatusBadRequest, "sessionID is required")
	}

	session, err := h.service.Rejoin(c.Context(), req.SessionID, role)
	if err != nil {
		return mapSessionError(c, err)
	}

	return success(c, fiber.StatusOK, "Session resumed", fiber.Map{"session": session})
}

// EndSession completes the session and settles the charge.
func (h *SessionHandler) EndSession(c *fiber.Ctx) error {
	userID, _, ok := currentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Invalid token")
	}

	var req sessionIDRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		return fail(c, fiber.StatusBadRequest, "sessionID is required")
	}

	result, err := h.service.End(c.Context(), req.SessionID, userID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return success(c, fiber.StatusOK, "Session ended", result)
}

func mapSessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidCriteria), errors.Is(err, services.ErrInvalidRole):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidCursor):
		return fail(c, fiber.StatusBadRequest, "Invalid lastSessionID provided")
	case errors.Is(err, services.ErrTutorNotFound), errors.Is(err, services.ErrNoMatch):
		return fail(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrSearchNotFound):
		return fail(c, fiber.StatusNotFound, "Search not found")
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, pgx.ErrNoRows):
		return fail(c, fiber.StatusNotFound, "Session not found")
	case errors.Is(err, services.ErrTutorBusy):
		return fail(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrAlreadyCompleted),
		errors.Is(err, services.ErrNotStarted),
		errors.Is(err, services.ErrSessionExpired),
		errors.Is(err, services.ErrNotInProgress):
		return fail(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrNotParticipant):
		return fail(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrRTCNotConfigured):
		return fail(c, fiber.StatusInternalServerError, err.Error())
	default:
		return fail(c, fiber.StatusInternalServerError, "Failed to process session request")
	}
}
