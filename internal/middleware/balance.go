package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
)

// The gate covers a baseline session plus headroom for overrun.
const (
	baseSessionCost     = 5.0
	sessionCostBuffer   = 10.0
	minimumStartBalance = baseSessionCost + sessionCostBuffer
)

type balanceReader interface {
	GetByUserID(ctx context.Context, userID string) (*models.StudentProfile, error)
}

// BalanceRequired blocks students from starting a session they cannot
// pay for. Must run after AuthRequired.
func BalanceRequired(students balanceReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		profile, err := students.GetByUserID(c.Context(), userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"status":  "fail",
					"message": "User not found",
				})
			}
			log.Error().Err(err).Str("userId", userID).Msg("load student balance")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"status":  "fail",
				"message": "Failed to verify balance",
			})
		}

		if profile.Balance < minimumStartBalance {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"status":  "fail",
				"message": "Insufficient balance to start a session",
			})
		}

		return c.Next()
	}
}
