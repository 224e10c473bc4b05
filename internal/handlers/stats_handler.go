package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/billing"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/services"
)

type statsApplicationService interface {
	TutorStatistics(ctx context.Context, tutorID string, now time.Time) (*services.TutorStatistics, error)
	YearSummary(ctx context.Context, tutorID string, year int) ([]billing.MonthSummary, error)
	History(ctx context.Context, tutorID string, from, to time.Time, pageSize int, lastSessionID string) (*services.HistoryPage, error)
}

type StatsHandler struct {
	service statsApplicationService
}

func NewStatsHandler(service statsApplicationService) *StatsHandler {
	return &StatsHandler{service: service}
}

// Statistics returns a tutor's lifetime and today-only totals.
func (h *StatsHandler) Statistics(c *fiber.Ctx) error {
	tutorID := strings.TrimSpace(c.Params("tutorID"))
	if tutorID == "" {
		return fail(c, fiber.StatusBadRequest, "tutorID is required")
	}

	stats, err := h.service.TutorStatistics(c.Context(), tutorID, time.Now())
	if err != nil {
		return mapSessionError(c, err)
	}

	return success(c, fiber.StatusOK, "Statistics fetched", stats)
}

// Summary returns per-month totals for one calendar year. The year
// defaults to the current one.
func (h *StatsHandler) Summary(c *fiber.Ctx) error {
	tutorID := strings.TrimSpace(c.Params("tutorID"))
	if tutorID == "" {
		return fail(c, fiber.StatusBadRequest, "tutorID is required")
	}

	year := time.Now().Year()
	if raw := c.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 2200 {
			return fail(c, fiber.StatusBadRequest, "year must be a valid calendar year")
		}
		year = parsed
	}

	summary, err := h.service.YearSummary(c.Context(), tutorID, year)
	if err != nil {
		return mapSessionError(c, err)
	}

	return success(c, fiber.StatusOK, "Summary fetched", fiber.Map{
		"year":   year,
		"months": summary,
	})
}

// History returns one page of the tutor's sessions for a year, or for
// one month of it. Pass the previous page's last session ID as
// lastSessionID to continue.
func (h *StatsHandler) History(c *fiber.Ctx) error {
	tutorID := strings.TrimSpace(c.Params("tutorID"))
	if tutorID == "" {
		return fail(c, fiber.StatusBadRequest, "tutorID is required")
	}

	yearRaw := c.Query("year")
	if yearRaw == "" {
		return fail(c, fiber.StatusBadRequest, "Year is required")
	}
	year, err := strconv.Atoi(yearRaw)
	if err != nil || year < 2000 || year > 2200 {
		return fail(c, fiber.StatusBadRequest, "year must be a valid calendar year")
	}

	month := 0
	if raw := c.Query("month"); raw != "" {
		month, err = strconv.Atoi(raw)
		if err != nil || month < 1 || month > 12 {
			return fail(c, fiber.StatusBadRequest, "month must be between 1 and 12")
		}
	}

	pageSize := 0
	if raw := c.Query("pageSize"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 1 || pageSize > 100 {
			return fail(c, fiber.StatusBadRequest, "pageSize must be between 1 and 100")
		}
	}

	from, to := historyRange(year, month)
	page, err := h.service.History(c.Context(), tutorID, from, to, pageSize, c.Query("lastSessionID"))
	if err != nil {
		return mapSessionError(c, err)
	}

	return success(c, fiber.StatusOK, "History fetched", page)
}

// historyRange covers the whole month, or the whole year when month is
// zero.
func historyRange(year, month int) (time.Time, time.Time) {
	if month == 0 {
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(1, 0, 0).Add(-time.Nanosecond)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0).Add(-time.Nanosecond)
}
