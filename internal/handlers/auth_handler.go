package handlers

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/repository"
	"github.com/Project404-PasalPintar/pasalpintar-backend/pkg/utils"
)

type AuthHandler struct {
	db                 *pgxpool.Pool
	userRepo           *repository.UserRepository
	studentProfileRepo *repository.StudentProfileRepository
	tutorProfileRepo   *repository.TutorProfileRepository
	accessSecret       string
	refreshSecret      string
}

func NewAuthHandler(
	db *pgxpool.Pool,
	userRepo *repository.UserRepository,
	studentProfileRepo *repository.StudentProfileRepository,
	tutorProfileRepo *repository.TutorProfileRepository,
	accessSecret string,
	refreshSecret string,
) *AuthHandler {
	return &AuthHandler{
		db:                 db,
		userRepo:           userRepo,
		studentProfileRepo: studentProfileRepo,
		tutorProfileRepo:   tutorProfileRepo,
		accessSecret:       accessSecret,
		refreshSecret:      refreshSecret,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	parsedEmail, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid email format")
	}
	req.Email = strings.ToLower(parsedEmail.Address)
	if len(req.Password) < 8 {
		return fail(c, fiber.StatusBadRequest, "Password must be at least 8 characters")
	}
	if !models.ValidRole(req.Role) {
		return fail(c, fiber.StatusBadRequest, "Invalid role")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Role == models.RoleTutor && req.Username == "" {
		return fail(c, fiber.StatusBadRequest, "Tutors must choose a username")
	}

	existing, err := h.userRepo.GetByEmail(c.Context(), req.Email)
	if err == nil && existing != nil {
		return fail(c, fiber.StatusConflict, "Email already exists")
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fail(c, fiber.StatusInternalServerError, "Failed to check email")
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: hashed,
		Role:         req.Role,
	}

	tx, err := h.db.Begin(c.Context())
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to start registration transaction")
	}
	defer func() {
		_ = tx.Rollback(c.Context())
	}()

	txUserRepo := repository.NewUserRepository(tx)
	txStudentRepo := repository.NewStudentProfileRepository(tx)
	txTutorRepo := repository.NewTutorProfileRepository(tx)

	if err := txUserRepo.CreateUser(c.Context(), user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fail(c, fiber.StatusConflict, "Email already exists")
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to create user")
	}

	if req.Role == models.RoleStudent {
		if err := txStudentRepo.Create(c.Context(), user.ID); err != nil {
			return fail(c, fiber.StatusInternalServerError, "Failed to create student profile")
		}
	} else {
		if err := txTutorRepo.Create(c.Context(), user.ID, req.Username); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fail(c, fiber.StatusConflict, "Username already exists")
			}
			return fail(c, fiber.StatusInternalServerError, "Failed to create tutor profile")
		}
	}

	if err := tx.Commit(c.Context()); err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to finalize registration")
	}

	return h.respondWithTokens(c, fiber.StatusCreated, "Registered successfully", user)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	parsedEmail, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid email format")
	}

	user, err := h.userRepo.GetByEmail(c.Context(), strings.ToLower(parsedEmail.Address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fail(c, fiber.StatusUnauthorized, "Invalid email or password")
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to lookup user")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return fail(c, fiber.StatusUnauthorized, "Invalid email or password")
	}

	return h.respondWithTokens(c, fiber.StatusOK, "Logged in successfully", user)
}

// Refresh trades a valid refresh token for a new access/refresh pair.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	claims, err := utils.ValidateToken(req.RefreshToken, h.refreshSecret)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Invalid or expired refresh token")
	}

	user, err := h.userRepo.GetByID(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fail(c, fiber.StatusUnauthorized, "User no longer exists")
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to lookup user")
	}

	return h.respondWithTokens(c, fiber.StatusOK, "Token refreshed", user)
}

func (h *AuthHandler) respondWithTokens(c *fiber.Ctx, statusCode int, message string, user *models.User) error {
	accessToken, err := utils.GenerateToken(user.ID, user.Role, h.accessSecret)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to generate token")
	}
	refreshToken, err := utils.GenerateRefreshToken(user.ID, user.Role, h.refreshSecret)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to generate refresh token")
	}

	return success(c, statusCode, message, fiber.Map{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
		"user": fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}
