package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/billing"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
)

const defaultHistoryPageSize = 10

// ErrInvalidCursor reports a lastSessionID that names no session.
var ErrInvalidCursor = errors.New("invalid lastSessionID")

type sessionLister interface {
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	ListByTutor(ctx context.Context, tutorID string) ([]models.Session, error)
	ListByTutorBetween(ctx context.Context, tutorID string, from, to time.Time) ([]models.Session, error)
	ListHistoryPage(ctx context.Context, tutorID string, from, to time.Time, pageSize int, after *models.Session) ([]models.Session, error)
}

type tutorProfileReader interface {
	GetByUserID(ctx context.Context, userID string) (*models.TutorProfile, error)
}

type studentProfileReader interface {
	GetByUserID(ctx context.Context, userID string) (*models.StudentProfile, error)
}

// StatsService aggregates completed-session data into the tutor-facing
// statistics, monthly summary, and history views.
type StatsService struct {
	sessionRepo sessionLister
	tutorRepo   tutorProfileReader
	studentRepo studentProfileReader
}

func NewStatsService(sessionRepo sessionLister, tutorRepo tutorProfileReader, studentRepo studentProfileReader) *StatsService {
	return &StatsService{sessionRepo: sessionRepo, tutorRepo: tutorRepo, studentRepo: studentRepo}
}

type TutorStatistics struct {
	billing.TutorTotals
	Rating    float64 `json:"rating"`
	Followers int     `json:"followers"`
	Balance   float64 `json:"balance"`
}

func (s *StatsService) TutorStatistics(ctx context.Context, tutorID string, now time.Time) (*TutorStatistics, error) {
	profile, err := s.tutorRepo.GetByUserID(ctx, tutorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTutorNotFound
		}
		return nil, err
	}

	sessions, err := s.sessionRepo.ListByTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	return &TutorStatistics{
		TutorTotals: billing.ComputeTutorTotals(sessions, now),
		Rating:      profile.Rating,
		Followers:   profile.Followers,
		Balance:     profile.Balance,
	}, nil
}

// YearSummary returns per-month completed-session totals for one
// calendar year. Months with no activity are omitted.
func (s *StatsService) YearSummary(ctx context.Context, tutorID string, year int) ([]billing.MonthSummary, error) {
	if _, err := s.tutorRepo.GetByUserID(ctx, tutorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTutorNotFound
		}
		return nil, err
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0).Add(-time.Nanosecond)
	sessions, err := s.sessionRepo.ListByTutorBetween(ctx, tutorID, from, to)
	if err != nil {
		return nil, err
	}
	return billing.MonthlySummary(sessions), nil
}

type HistoryEntry struct {
	Session models.Session `json:"session"`
	Student StudentSummary `json:"student"`
}

type HistoryPage struct {
	Sessions      []HistoryEntry `json:"sessions"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

// History returns one page of a tutor's sessions in a date range,
// newest first. The returned token is the last session's ID; feeding
// it back as lastSessionID continues from there.
func (s *StatsService) History(ctx context.Context, tutorID string, from, to time.Time, pageSize int, lastSessionID string) (*HistoryPage, error) {
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}

	var after *models.Session
	if lastSessionID != "" {
		cursor, err := s.sessionRepo.GetByID(ctx, lastSessionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrInvalidCursor
			}
			return nil, err
		}
		after = cursor
	}

	sessions, err := s.sessionRepo.ListHistoryPage(ctx, tutorID, from, to, pageSize, after)
	if err != nil {
		return nil, err
	}

	// Student display info is fetched once per distinct student on the
	// page.
	students := make(map[string]*models.StudentProfile)
	entries := make([]HistoryEntry, 0, len(sessions))
	for _, session := range sessions {
		profile, ok := students[session.StudentID]
		if !ok {
			profile, err = s.studentRepo.GetByUserID(ctx, session.StudentID)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			students[session.StudentID] = profile
		}
		entry := HistoryEntry{Session: session}
		if profile != nil {
			entry.Student = StudentSummary{
				FirstName: profile.FirstName,
				LastName:  profile.LastName,
				AvatarURL: profile.AvatarURL,
			}
		}
		entries = append(entries, entry)
	}

	page := &HistoryPage{Sessions: entries}
	if len(sessions) == pageSize {
		page.NextPageToken = sessions[len(sessions)-1].ID
	}
	return page, nil
}
