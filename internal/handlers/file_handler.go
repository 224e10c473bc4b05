package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/repository"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/services"
)

const maxAttachmentsPerUpload = 5

type FileHandler struct {
	sessionRepo *repository.SessionRepository
	storage     services.StorageService
}

func NewFileHandler(sessionRepo *repository.SessionRepository, storage services.StorageService) *FileHandler {
	return &FileHandler{sessionRepo: sessionRepo, storage: storage}
}

// UploadSessionFiles attaches documents to a session. Only the two
// participants can attach; duplicate URLs are dropped by the store.
func (h *FileHandler) UploadSessionFiles(c *fiber.Ctx) error {
	userID, _, ok := currentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Invalid token")
	}

	if h.storage == nil {
		return fail(c, fiber.StatusServiceUnavailable, "File storage is not configured")
	}

	sessionID := strings.TrimSpace(c.Params("sessionID"))
	if sessionID == "" {
		return fail(c, fiber.StatusBadRequest, "sessionID is required")
	}

	session, err := h.sessionRepo.GetByID(c.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fail(c, fiber.StatusNotFound, "Session not found")
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to load session")
	}
	if userID != session.StudentID && userID != session.TutorID {
		return fail(c, fiber.StatusForbidden, "Only session participants can attach files")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid multipart form")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return fail(c, fiber.StatusBadRequest, "At least one file is required")
	}
	if len(files) > maxAttachmentsPerUpload {
		return fail(c, fiber.StatusBadRequest, "Too many files in one upload")
	}

	urls := make([]string, 0, len(files))
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			return fail(c, fiber.StatusBadRequest, "Failed to read uploaded file")
		}
		url, err := h.storage.UploadSessionFile(c.Context(), sessionID, file, fileHeader.Filename)
		file.Close()
		if err != nil {
			if errors.Is(err, services.ErrUnsupportedFileType) {
				return fail(c, fiber.StatusBadRequest, "Unsupported file type: "+fileHeader.Filename)
			}
			log.Error().Err(err).Str("sessionId", sessionID).Msg("upload session file")
			return fail(c, fiber.StatusInternalServerError, "Failed to upload file")
		}
		urls = append(urls, url)
	}

	updated, err := h.sessionRepo.AppendFileURLs(c.Context(), sessionID, urls)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to record attachments")
	}

	return success(c, fiber.StatusOK, "Files uploaded", fiber.Map{
		"fileURLs": updated.FileURLs,
	})
}

// SignedFileURL trades a stored attachment URL for a short-lived
// signed one.
func (h *FileHandler) SignedFileURL(c *fiber.Ctx) error {
	userID, _, ok := currentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Invalid token")
	}

	if h.storage == nil {
		return fail(c, fiber.StatusServiceUnavailable, "File storage is not configured")
	}

	sessionID := strings.TrimSpace(c.Params("sessionID"))
	fileURL := strings.TrimSpace(c.Query("url"))
	if sessionID == "" || fileURL == "" {
		return fail(c, fiber.StatusBadRequest, "sessionID and url are required")
	}

	session, err := h.sessionRepo.GetByID(c.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fail(c, fiber.StatusNotFound, "Session not found")
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to load session")
	}
	if userID != session.StudentID && userID != session.TutorID {
		return fail(c, fiber.StatusForbidden, "Only session participants can access files")
	}

	attached := false
	for _, url := range session.FileURLs {
		if url == fileURL {
			attached = true
			break
		}
	}
	if !attached {
		return fail(c, fiber.StatusNotFound, "File is not attached to this session")
	}

	signedURL, err := h.storage.GetSignedURL(c.Context(), fileURL)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("sign file url")
		return fail(c, fiber.StatusInternalServerError, "Failed to sign file URL")
	}

	return success(c, fiber.StatusOK, "Signed URL issued", fiber.Map{"signedURL": signedURL})
}

type markSolvedRequest struct {
	Solved bool `json:"solved"`
}

// MarkSolved lets the student flag whether the question was resolved.
func (h *FileHandler) MarkSolved(c *fiber.Ctx) error {
	userID, _, ok := currentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Invalid token")
	}

	sessionID := strings.TrimSpace(c.Params("sessionID"))
	if sessionID == "" {
		return fail(c, fiber.StatusBadRequest, "sessionID is required")
	}

	session, err := h.sessionRepo.GetByID(c.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fail(c, fiber.StatusNotFound, "Session not found")
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to load session")
	}
	if userID != session.StudentID {
		return fail(c, fiber.StatusForbidden, "Only the student can mark a session solved")
	}

	var req markSolvedRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.sessionRepo.SetSolved(c.Context(), sessionID, req.Solved); err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update session")
	}

	return success(c, fiber.StatusOK, "Session updated", fiber.Map{"isSolved": req.Solved})
}
