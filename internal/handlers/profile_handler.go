package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/repository"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/services"
)

type ProfileHandler struct {
	tutorRepo   *repository.TutorProfileRepository
	studentRepo *repository.StudentProfileRepository
	storage     services.StorageService
}

func NewProfileHandler(
	tutorRepo *repository.TutorProfileRepository,
	studentRepo *repository.StudentProfileRepository,
	storage services.StorageService,
) *ProfileHandler {
	return &ProfileHandler{tutorRepo: tutorRepo, studentRepo: studentRepo, storage: storage}
}

type updateTutorProfileRequest struct {
	FirstName *string  `json:"firstName"`
	LastName  *string  `json:"lastName"`
	Bio       *string  `json:"bio"`
	Languages []string `json:"languages"`
	Subjects  []string `json:"subjects"`
	Topics    []string `json:"topics"`
}

type updateStudentProfileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Country   *string `json:"country"`
}

type setOnlineRequest struct {
	Online bool `json:"online"`
}

type setFCMTokenRequest struct {
	Token string `json:"token"`
}

// Me returns the caller's own profile, shaped by role.
func (h *ProfileHandler) Me(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Invalid token")
	}

	if role == models.RoleTutor {
		profile, err := h.tutorRepo.GetByUserID(c.Context(), userID)
		if err != nil {
			return mapProfileError(c, err)
		}
		return success(c, fiber.StatusOK, "Profile fetched", fiber.Map{"profile": profile})
	}

	profile, err := h.studentRepo.GetByUserID(c.Context(), userID)
	if err != nil {
		return mapProfileError(c, err)
	}
	return success(c, fiber.StatusOK, "Profile fetched", fiber.Map{"profile": profile})
}

// UpdateMe applies a partial update to the caller's profile. Absent
// fields keep their stored value.
func (h *ProfileHandler) UpdateMe(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Invalid token")
	}

	if role == models.RoleTutor {
		var req updateTutorProfileRequest
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, "Invalid request body")
		}
		profile, err := h.tutorRepo.Update(c.Context(), userID, repository.UpdateTutorProfileInput{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Bio:       req.Bio,
			Languages: req.Languages,
			Subjects:  req.Subjects,
			Topics:    req.Topics,
		})
		if err != nil {
			return mapProfileError(c, err)
		}
		return success(c, fiber.StatusOK, "Profile updated", fiber.Map{"profile": profile})
	}

	var req updateStudentProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	profile, err := h.studentRepo.Update(c.Context(), userID, repository.UpdateStudentProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Country:   req.Country,
	})
	if err != nil {
		return mapProfileError(c, err)
	}
	return success(c, fiber.StatusOK, "Profile updated", fiber.Map{"profile": profile})
}

// SetOnline flips the tutor's availability for matching.
func (h *ProfileHandler) SetOnline(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok || role != models.RoleTutor {
		return fail(c, fiber.StatusForbidden, "Only tutors can change availability")
	}

	var req setOnlineRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.tutorRepo.SetOnline(c.Context(), userID, req.Online); err != nil {
		return mapProfileError(c, err)
	}

	return success(c, fiber.StatusOK, "Availability updated", fiber.Map{"online": req.Online})
}

// SetFCMToken stores the device token push notifications go to.
func (h *ProfileHandler) SetFCMToken(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Invalid token")
	}

	var req setFCMTokenRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return fail(c, fiber.StatusBadRequest, "token is required")
	}

	var err error
	if role == models.RoleTutor {
		err = h.tutorRepo.SetFCMToken(c.Context(), userID, req.Token)
	} else {
		err = h.studentRepo.SetFCMToken(c.Context(), userID, req.Token)
	}
	if err != nil {
		return mapProfileError(c, err)
	}

	return success(c, fiber.StatusOK, "Notification token updated", nil)
}

// UploadAvatar replaces the caller's profile picture.
func (h *ProfileHandler) UploadAvatar(c *fiber.Ctx) error {
	userID, role, ok := currentUser(c)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "Invalid token")
	}

	if h.storage == nil {
		return fail(c, fiber.StatusServiceUnavailable, "File storage is not configured")
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "avatar file is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Failed to read avatar file")
	}
	defer file.Close()

	avatarURL, err := h.storage.UploadAvatar(c.Context(), role, userID, file, fileHeader.Filename)
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedFileType) {
			return fail(c, fiber.StatusBadRequest, "Unsupported image type")
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to upload avatar")
	}

	if role == models.RoleTutor {
		err = h.tutorRepo.SetAvatarURL(c.Context(), userID, avatarURL)
	} else {
		err = h.studentRepo.SetAvatarURL(c.Context(), userID, avatarURL)
	}
	if err != nil {
		return mapProfileError(c, err)
	}

	return success(c, fiber.StatusOK, "Avatar updated", fiber.Map{"avatarURL": avatarURL})
}

// ListOnlineTutors is the discovery surface students browse before a
// direct start. A language query narrows the listing.
func (h *ProfileHandler) ListOnlineTutors(c *fiber.Ctx) error {
	var (
		tutors []models.TutorProfile
		err    error
	)
	if language := strings.TrimSpace(c.Query("language")); language != "" {
		tutors, err = h.tutorRepo.ListOnlineByLanguages(c.Context(), []string{language})
	} else {
		tutors, err = h.tutorRepo.ListOnline(c.Context())
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to list tutors")
	}
	return success(c, fiber.StatusOK, "Tutors fetched", fiber.Map{"tutors": tutors})
}

// GetTutor returns one tutor's public profile by username.
func (h *ProfileHandler) GetTutor(c *fiber.Ctx) error {
	username := strings.TrimSpace(c.Params("username"))
	if username == "" {
		return fail(c, fiber.StatusBadRequest, "username is required")
	}

	profile, err := h.tutorRepo.GetByUsername(c.Context(), username)
	if err != nil {
		return mapProfileError(c, err)
	}
	return success(c, fiber.StatusOK, "Tutor fetched", fiber.Map{"profile": profile})
}

func mapProfileError(c *fiber.Ctx, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fail(c, fiber.StatusNotFound, "Profile not found")
	}
	return fail(c, fiber.StatusInternalServerError, "Failed to process profile request")
}
