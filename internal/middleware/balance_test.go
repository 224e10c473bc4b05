package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
)

type stubBalanceReader struct {
	profile *models.StudentProfile
	err     error
}

func (s *stubBalanceReader) GetByUserID(_ context.Context, _ string) (*models.StudentProfile, error) {
	return s.profile, s.err
}

func balanceTestApp(reader *stubBalanceReader) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "student-1")
		return c.Next()
	})
	app.Post("/start", BalanceRequired(reader), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func postStart(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/start", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func TestBalanceRequiredPassesFundedStudent(t *testing.T) {
	app := balanceTestApp(&stubBalanceReader{profile: &models.StudentProfile{Balance: 20}})

	resp := postStart(t, app)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestBalanceRequiredBlocksLowBalance(t *testing.T) {
	app := balanceTestApp(&stubBalanceReader{profile: &models.StudentProfile{Balance: 14.99}})

	resp := postStart(t, app)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.StatusCode)
	}
}

func TestBalanceRequiredMissingProfile(t *testing.T) {
	app := balanceTestApp(&stubBalanceReader{err: pgx.ErrNoRows})

	resp := postStart(t, app)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
