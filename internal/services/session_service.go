package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/billing"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/repository"
)

var (
	ErrTutorNotFound    = errors.New("requested tutor is not available or not online")
	ErrTutorBusy        = errors.New("the requested tutor is currently busy with another session")
	ErrNoMatch          = errors.New("no tutors available matching criteria")
	ErrSearchNotFound   = errors.New("search not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrStudentNotFound  = errors.New("student not found")
	ErrAlreadyCompleted = errors.New("session has already been completed")
	ErrNotStarted       = errors.New("session has not started yet")
	ErrSessionExpired   = errors.New("session has expired and cannot be completed")
	ErrNotInProgress    = errors.New("session is not in progress")
	ErrNotParticipant   = errors.New("only the assigned tutor or student can modify this session")
	ErrInvalidRole      = errors.New("role must be student or tutor")
)

// pendingGracePeriod is how long a Pending session may wait for its
// tutor before the sweep expires it.
const pendingGracePeriod = 60 * time.Second

type sessionStore interface {
	Create(ctx context.Context, input repository.CreateSessionInput) (*models.Session, error)
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	HasInProgressForTutor(ctx context.Context, tutorID string) (bool, error)
	UpdatePause(ctx context.Context, sessionID string, intervals []models.PauseInterval, role string, reason *string) (*models.Session, error)
	UpdateResume(ctx context.Context, sessionID string, intervals []models.PauseInterval) (*models.Session, error)
	Complete(ctx context.Context, sessionID string, endTime time.Time, cost, tutorEarning float64, sessionTime string) (*models.Session, error)
	ExpirePending(ctx context.Context, cutoff time.Time) (int64, error)
	CountBetween(ctx context.Context, studentID, tutorID string) (int, error)
}

type searchTicketStore interface {
	GetByID(ctx context.Context, ticketID string) (*models.SearchTicket, error)
	Upsert(ctx context.Context, input repository.UpsertSearchTicketInput) (*models.SearchTicket, error)
	AddRejectedTutor(ctx context.Context, ticketID, tutorID string) (*models.SearchTicket, error)
	Delete(ctx context.Context, ticketID string) error
}

type tutorProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.TutorProfile, error)
	IncrementBalance(ctx context.Context, userID string, delta float64) error
}

type studentProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.StudentProfile, error)
	IncrementBalance(ctx context.Context, userID string, delta float64) error
}

type candidateFinder interface {
	FindCandidates(ctx context.Context, languages, subjects, topics, excluded []string) ([]models.TutorProfile, error)
}

type credentialIssuer interface {
	IssueSessionCredentials(studentID, tutorID string) (*models.SessionCredentials, error)
}

type sessionNotifier interface {
	SessionRequested(ctx context.Context, tutorID, refID, question, studentID string)
	SessionAccepted(ctx context.Context, studentID, sessionID, tutorID string)
	SessionPaused(ctx context.Context, session *models.Session, leavingRole string, reason *string)
	SessionResumed(ctx context.Context, session *models.Session, rejoiningRole string)
	SessionEnded(ctx context.Context, session *models.Session, endedByTutor bool, sessionTime string, cost, earning, platformFee float64)
}

// SessionService owns the session lifecycle: direct and random-search
// creation, accept/reject of search tickets, pause/resume accounting,
// end-of-session billing, and the Pending expiry sweep.
type SessionService struct {
	sessionRepo sessionStore
	ticketRepo  searchTicketStore
	tutorRepo   tutorProfileStore
	studentRepo studentProfileStore
	matcher     candidateFinder
	rtc         credentialIssuer
	notifier    sessionNotifier
}

func NewSessionService(
	sessionRepo sessionStore,
	ticketRepo searchTicketStore,
	tutorRepo tutorProfileStore,
	studentRepo studentProfileStore,
	matcher candidateFinder,
	rtc credentialIssuer,
	notifier sessionNotifier,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		ticketRepo:  ticketRepo,
		tutorRepo:   tutorRepo,
		studentRepo: studentRepo,
		matcher:     matcher,
		rtc:         rtc,
		notifier:    notifier,
	}
}

type StartSessionInput struct {
	TutorID        string
	Question       *string
	StudentCountry *string
	Languages      []string
	Subjects       []string
	Topics         []string
	Age            int
}

type StudentSummary struct {
	TotalSessions int     `json:"total_sessions"`
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	AvatarURL     *string `json:"avatar_url"`
}

type SessionOffer struct {
	Session *models.Session `json:"session"`
	Student StudentSummary  `json:"student"`
}

// StartDirect creates a Pending session against a named tutor. The
// busy pre-check and the insert are separate statements; the
// one-live-session invariant is best effort.
func (s *SessionService) StartDirect(ctx context.Context, studentID string, input StartSessionInput) (*SessionOffer, error) {
	tutor, err := s.tutorRepo.GetByUserID(ctx, input.TutorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTutorNotFound
		}
		return nil, err
	}
	if !tutor.IsOnline {
		return nil, ErrTutorNotFound
	}

	busy, err := s.sessionRepo.HasInProgressForTutor(ctx, input.TutorID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, ErrTutorBusy
	}

	credentials, err := s.rtc.IssueSessionCredentials(studentID, input.TutorID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.Create(ctx, repository.CreateSessionInput{
		StudentID:      studentID,
		TutorID:        input.TutorID,
		Status:         models.StatusPending,
		Question:       input.Question,
		StudentCountry: input.StudentCountry,
		Languages:      input.Languages,
		Subjects:       input.Subjects,
		Topics:         input.Topics,
		Age:            input.Age,
		Credentials:    credentials,
	})
	if err != nil {
		return nil, err
	}

	student, err := s.studentRepo.GetByUserID(ctx, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	totalSessions, err := s.sessionRepo.CountBetween(ctx, studentID, input.TutorID)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("count sessions between participants")
		totalSessions = 0
	}

	s.notifier.SessionRequested(ctx, input.TutorID, session.ID, stringValue(input.Question), studentID)

	return &SessionOffer{
		Session: session,
		Student: StudentSummary{
			TotalSessions: totalSessions,
			FirstName:     student.FirstName,
			LastName:      student.LastName,
			AvatarURL:     student.AvatarURL,
		},
	}, nil
}

type RandomSearchInput struct {
	SearchID       string
	Question       *string
	StudentCountry *string
	Languages      []string
	Subjects       []string
	Topics         []string
	Age            int
}

type TutorSummary struct {
	Username  string   `json:"username"`
	FirstName *string  `json:"first_name"`
	LastName  *string  `json:"last_name"`
	AvatarURL *string  `json:"avatar_url"`
	Languages []string `json:"languages"`
	Subjects  []string `json:"subjects"`
	Topics    []string `json:"topics"`
}

type SearchOffer struct {
	Ticket  *models.SearchTicket `json:"ticket"`
	Tutor   TutorSummary         `json:"tutor"`
	Student StudentSummary       `json:"student"`
	// Created is false when an existing ticket was re-offered.
	Created bool `json:"created"`
}

// RandomSearch creates or re-offers a search ticket. Each call re-runs
// matching against the ticket's rejection set; the operation is
// re-entrant per ticket.
func (s *SessionService) RandomSearch(ctx context.Context, studentID string, input RandomSearchInput) (*SearchOffer, error) {
	var rejected []string
	if input.SearchID != "" {
		ticket, err := s.ticketRepo.GetByID(ctx, input.SearchID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrSearchNotFound
			}
			return nil, err
		}
		// Another student's ticket is invisible to this caller.
		if ticket.StudentID != studentID {
			return nil, ErrSearchNotFound
		}
		rejected = ticket.RejectedTutors
	}

	candidates, err := s.matcher.FindCandidates(ctx, input.Languages, input.Subjects, input.Topics, rejected)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoMatch
	}
	selected := candidates[0]

	credentials, err := s.rtc.IssueSessionCredentials(studentID, selected.UserID)
	if err != nil {
		return nil, err
	}

	ticket, err := s.ticketRepo.Upsert(ctx, repository.UpsertSearchTicketInput{
		ID:             input.SearchID,
		StudentID:      studentID,
		TutorID:        selected.UserID,
		Question:       input.Question,
		StudentCountry: input.StudentCountry,
		Languages:      input.Languages,
		Subjects:       input.Subjects,
		Topics:         input.Topics,
		Age:            input.Age,
		Credentials:    *credentials,
	})
	if err != nil {
		return nil, err
	}

	student, err := s.studentRepo.GetByUserID(ctx, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	totalSessions, err := s.sessionRepo.CountBetween(ctx, studentID, selected.UserID)
	if err != nil {
		log.Warn().Err(err).Str("searchId", ticket.ID).Msg("count sessions between participants")
		totalSessions = 0
	}

	s.notifier.SessionRequested(ctx, selected.UserID, ticket.ID, stringValue(input.Question), studentID)

	return &SearchOffer{
		Ticket: ticket,
		Tutor: TutorSummary{
			Username:  selected.Username,
			FirstName: selected.FirstName,
			LastName:  selected.LastName,
			AvatarURL: selected.AvatarURL,
			Languages: selected.Languages,
			Subjects:  selected.Subjects,
			Topics:    selected.Topics,
		},
		Student: StudentSummary{
			TotalSessions: totalSessions,
			FirstName:     student.FirstName,
			LastName:      student.LastName,
			AvatarURL:     student.AvatarURL,
		},
		Created: input.SearchID == "",
	}, nil
}

// Accept promotes a search ticket into an In Progress session. The
// ticket is deleted; its creation time carries over so the session's
// age reflects when the student started searching.
func (s *SessionService) Accept(ctx context.Context, searchID, tutorID string) (*models.Session, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, searchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSearchNotFound
		}
		return nil, err
	}

	now := time.Now()
	credentials := &models.SessionCredentials{
		ChannelName:  ticket.ChannelName,
		StudentToken: ticket.StudentRTCToken,
		TutorToken:   ticket.TutorRTCToken,
		StudentUID:   ticket.StudentUID,
		TutorUID:     ticket.TutorUID,
	}

	session, err := s.sessionRepo.Create(ctx, repository.CreateSessionInput{
		StudentID:      ticket.StudentID,
		TutorID:        tutorID,
		Status:         models.StatusInProgress,
		Question:       ticket.Question,
		StudentCountry: ticket.StudentCountry,
		Languages:      ticket.Languages,
		Subjects:       ticket.Subjects,
		Topics:         ticket.Topics,
		Age:            ticket.Age,
		Credentials:    credentials,
		StartTime:      &now,
		CreatedAt:      &ticket.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	if err := s.ticketRepo.Delete(ctx, searchID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Warn().Err(err).Str("searchId", searchID).Msg("delete accepted search ticket")
	}

	s.notifier.SessionAccepted(ctx, ticket.StudentID, session.ID, tutorID)

	return session, nil
}

// Reject records the tutor's refusal on the ticket. The ticket stays
// alive for a follow-up search; no session is touched. Rejecting twice
// with the same tutor leaves one entry in the set.
func (s *SessionService) Reject(ctx context.Context, searchID, tutorID string) (*models.SearchTicket, error) {
	ticket, err := s.ticketRepo.AddRejectedTutor(ctx, searchID, tutorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSearchNotFound
		}
		return nil, err
	}
	return ticket, nil
}

// Leave pauses a session: an open interval is appended and the
// counterpart is notified with the leave reason. Repeated leaves append
// further intervals.
func (s *SessionService) Leave(ctx context.Context, sessionID, role string, reason *string) (*models.Session, error) {
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	intervals := append(session.PausedIntervals, models.PauseInterval{Start: time.Now().UnixMilli()})
	updated, err := s.sessionRepo.UpdatePause(ctx, sessionID, intervals, role, reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotInProgress
		}
		return nil, err
	}

	s.notifier.SessionPaused(ctx, updated, role, reason)
	return updated, nil
}

// Rejoin resumes a session: the most recent open interval is closed if
// one exists. A rejoin with no open interval still flips the status
// back and notifies; the leniency is kept on purpose.
func (s *SessionService) Rejoin(ctx context.Context, sessionID, role string) (*models.Session, error) {
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	intervals := session.PausedIntervals
	if n := len(intervals); n > 0 && intervals[n-1].End == nil {
		end := time.Now().UnixMilli()
		intervals[n-1].End = &end
	}

	updated, err := s.sessionRepo.UpdateResume(ctx, sessionID, intervals)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotInProgress
		}
		return nil, err
	}

	s.notifier.SessionResumed(ctx, updated, role)
	return updated, nil
}

type EndResult struct {
	SessionTime  string  `json:"sessionTime"`
	Cost         float64 `json:"costs"`
	TutorEarning float64 `json:"sessionEarning"`
	PlatformFee  float64 `json:"platformFee"`
}

// End completes an In Progress session, computes the charge, and moves
// money: student balance down by the cost, tutor balance up by the
// earning, both as atomic increments. The completion itself is a
// conditional update, so a racing second End fails with
// ErrAlreadyCompleted and moves no money.
func (s *SessionService) End(ctx context.Context, sessionID, actorID string) (*EndResult, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	switch session.Status {
	case models.StatusCompleted:
		return nil, ErrAlreadyCompleted
	case models.StatusPending:
		return nil, ErrNotStarted
	case models.StatusExpired:
		return nil, ErrSessionExpired
	case models.StatusInProgress:
	default:
		return nil, ErrNotInProgress
	}

	endedByTutor := actorID == session.TutorID
	endedByStudent := actorID == session.StudentID
	if !endedByTutor && !endedByStudent {
		return nil, ErrNotParticipant
	}
	if session.StartTime == nil {
		return nil, ErrNotStarted
	}

	now := time.Now()
	activeSeconds := billing.ActiveSeconds(*session.StartTime, now, session.PausedIntervals)
	cost, earning, _ := billing.Charge(activeSeconds)
	sessionTime := billing.FormatClock(activeSeconds)

	completed, err := s.sessionRepo.Complete(ctx, sessionID, now, cost, earning, sessionTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyCompleted
		}
		return nil, err
	}

	if err := s.studentRepo.IncrementBalance(ctx, session.StudentID, -cost); err != nil {
		return nil, err
	}
	if err := s.tutorRepo.IncrementBalance(ctx, session.TutorID, earning); err != nil {
		return nil, err
	}

	s.notifier.SessionEnded(ctx, completed, endedByTutor, sessionTime, cost, earning, billing.PlatformFee)

	return &EndResult{
		SessionTime:  sessionTime,
		Cost:         cost,
		TutorEarning: earning,
		PlatformFee:  billing.PlatformFee,
	}, nil
}

// ExpirePending sweeps Pending sessions older than the grace window
// into Expired. Idempotent; meant to run on a ticker.
func (s *SessionService) ExpirePending(ctx context.Context) (int64, error) {
	return s.sessionRepo.ExpirePending(ctx, time.Now().Add(-pendingGracePeriod))
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
