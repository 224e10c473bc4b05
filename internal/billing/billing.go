package billing

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
)

const (
	// CostPerMinute is charged to the student per started minute.
	CostPerMinute = 0.2
	// PlatformFee is the fixed per-session deduction from the tutor
	// earning.
	PlatformFee = 0.1
	// MinimumBillableSeconds floors every session at two minutes.
	MinimumBillableSeconds = 120
)

// ActiveSeconds returns the billable duration of a session: wall-clock
// time minus the sum of closed pause intervals, floored at the two
// minute minimum. Open intervals do not count.
func ActiveSeconds(start, end time.Time, paused []models.PauseInterval) int64 {
	var pausedMillis int64
	for _, interval := range paused {
		if interval.End != nil {
			pausedMillis += *interval.End - interval.Start
		}
	}

	activeMillis := end.UnixMilli() - start.UnixMilli() - pausedMillis
	seconds := activeMillis / 1000
	if seconds < MinimumBillableSeconds {
		seconds = MinimumBillableSeconds
	}
	return seconds
}

// Charge computes the student cost and tutor earning for an active
// duration. Partial minutes bill as whole minutes; amounts are rounded
// to cents.
func Charge(activeSeconds int64) (cost, earning float64, minutes int) {
	minutes = int(math.Ceil(float64(activeSeconds) / 60))
	cost = round2(float64(minutes) * CostPerMinute)
	earning = round2(cost - PlatformFee)
	return cost, earning, minutes
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// FormatClock renders a second count as HH:MM:SS.
func FormatClock(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// ParseClock is the inverse of FormatClock. An empty string parses as
// zero, matching unbilled sessions.
func ParseClock(clock string) (int64, error) {
	if clock == "" {
		return 0, nil
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock string %q", clock)
	}
	var total int64
	for _, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock string %q", clock)
		}
		total = total*60 + n
	}
	return total, nil
}

type MonthSummary struct {
	Month         int     `json:"month"`
	TotalSessions int     `json:"totalSessions"`
	TotalTime     string  `json:"totalMinutes"`
	TotalEarnings float64 `json:"totalEarnings"`
}

// MonthlySummary groups completed sessions by calendar month of
// creation, summing session count, formatted duration, and earnings.
// Months appear in ascending order; empty months are omitted.
func MonthlySummary(sessions []models.Session) []MonthSummary {
	type bucket struct {
		count    int
		seconds  int64
		earnings float64
	}
	buckets := make(map[int]*bucket)

	for _, session := range sessions {
		if session.Status != models.StatusCompleted {
			continue
		}
		month := int(session.CreatedAt.Month())
		b, ok := buckets[month]
		if !ok {
			b = &bucket{}
			buckets[month] = b
		}
		seconds, err := ParseClock(session.SessionTime)
		if err != nil {
			seconds = 0
		}
		b.count++
		b.seconds += seconds
		b.earnings = round2(b.earnings + session.TutorEarning)
	}

	months := make([]int, 0, len(buckets))
	for month := range buckets {
		months = append(months, month)
	}
	sort.Ints(months)

	summary := make([]MonthSummary, 0, len(months))
	for _, month := range months {
		b := buckets[month]
		summary = append(summary, MonthSummary{
			Month:         month,
			TotalSessions: b.count,
			TotalTime:     FormatClock(b.seconds),
			TotalEarnings: b.earnings,
		})
	}
	return summary
}

type TutorTotals struct {
	TotalSessions      int     `json:"totalSessions"`
	TodaySessions      int     `json:"todaySessions"`
	TotalTime          string  `json:"totalTime"`
	TotalEarnings      float64 `json:"totalEarnings"`
	TotalEarningsToday float64 `json:"totalEarningsToday"`
}

// ComputeTutorTotals aggregates a tutor's lifetime sessions plus the
// subset created today. Day boundaries use now's location.
func ComputeTutorTotals(sessions []models.Session, now time.Time) TutorTotals {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	totals := TutorTotals{TotalSessions: len(sessions)}
	var totalSeconds int64
	for _, session := range sessions {
		seconds, err := ParseClock(session.SessionTime)
		if err != nil {
			seconds = 0
		}
		totalSeconds += seconds
		totals.TotalEarnings = round2(totals.TotalEarnings + session.TutorEarning)

		created := session.CreatedAt.In(now.Location())
		if !created.Before(dayStart) && created.Before(dayEnd) {
			totals.TodaySessions++
			totals.TotalEarningsToday = round2(totals.TotalEarningsToday + session.TutorEarning)
		}
	}
	totals.TotalTime = FormatClock(totalSeconds)
	return totals
}
