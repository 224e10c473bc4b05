package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/repository"
)

type stubSessionStore struct {
	sessions      map[string]*models.Session
	created       []repository.CreateSessionInput
	completeCalls int
	busy          bool
	expired       int64
	expireCutoff  time.Time
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: make(map[string]*models.Session)}
}

func (s *stubSessionStore) Create(_ context.Context, input repository.CreateSessionInput) (*models.Session, error) {
	s.created = append(s.created, input)
	session := &models.Session{
		ID:        "session-1",
		StudentID: input.StudentID,
		TutorID:   input.TutorID,
		Status:    input.Status,
		Question:  input.Question,
		Languages: input.Languages,
		Subjects:  input.Subjects,
		Topics:    input.Topics,
	}
	if input.StartTime != nil {
		session.StartTime = input.StartTime
	}
	if input.CreatedAt != nil {
		session.CreatedAt = *input.CreatedAt
	} else {
		session.CreatedAt = time.Now()
	}
	s.sessions[session.ID] = session
	return session, nil
}

func (s *stubSessionStore) GetByID(_ context.Context, sessionID string) (*models.Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *session
	return &copied, nil
}

func (s *stubSessionStore) HasInProgressForTutor(_ context.Context, _ string) (bool, error) {
	return s.busy, nil
}

func (s *stubSessionStore) UpdatePause(_ context.Context, sessionID string, intervals []models.PauseInterval, role string, reason *string) (*models.Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if session.Status != models.StatusInProgress && session.Status != models.StatusPaused {
		return nil, pgx.ErrNoRows
	}
	session.Status = models.StatusPaused
	session.PausedIntervals = intervals
	if role == models.RoleTutor {
		session.TutorLeaveReason = reason
	} else {
		session.StudentLeaveReason = reason
	}
	copied := *session
	return &copied, nil
}

func (s *stubSessionStore) UpdateResume(_ context.Context, sessionID string, intervals []models.PauseInterval) (*models.Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if session.Status != models.StatusInProgress && session.Status != models.StatusPaused {
		return nil, pgx.ErrNoRows
	}
	session.Status = models.StatusInProgress
	session.PausedIntervals = intervals
	copied := *session
	return &copied, nil
}

func (s *stubSessionStore) Complete(_ context.Context, sessionID string, endTime time.Time, cost, tutorEarning float64, sessionTime string) (*models.Session, error) {
	s.completeCalls++
	session, ok := s.sessions[sessionID]
	if !ok || session.Status != models.StatusInProgress {
		return nil, pgx.ErrNoRows
	}
	session.Status = models.StatusCompleted
	session.EndTime = &endTime
	session.Cost = cost
	session.TutorEarning = tutorEarning
	session.SessionTime = sessionTime
	copied := *session
	return &copied, nil
}

func (s *stubSessionStore) ExpirePending(_ context.Context, cutoff time.Time) (int64, error) {
	s.expireCutoff = cutoff
	return s.expired, nil
}

func (s *stubSessionStore) CountBetween(_ context.Context, _, _ string) (int, error) {
	return 3, nil
}

type stubTicketStore struct {
	tickets map[string]*models.SearchTicket
	deleted []string
}

func newStubTicketStore() *stubTicketStore {
	return &stubTicketStore{tickets: make(map[string]*models.SearchTicket)}
}

func (s *stubTicketStore) GetByID(_ context.Context, ticketID string) (*models.SearchTicket, error) {
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (s *stubTicketStore) Upsert(_ context.Context, input repository.UpsertSearchTicketInput) (*models.SearchTicket, error) {
	id := input.ID
	if id == "" {
		id = "ticket-1"
	}
	ticket, ok := s.tickets[id]
	if !ok {
		ticket = &models.SearchTicket{ID: id, CreatedAt: time.Now()}
		s.tickets[id] = ticket
	}
	ticket.StudentID = input.StudentID
	ticket.TutorID = input.TutorID
	ticket.Question = input.Question
	ticket.Languages = input.Languages
	ticket.Subjects = input.Subjects
	ticket.Topics = input.Topics
	ticket.Age = input.Age
	ticket.ChannelName = input.Credentials.ChannelName
	ticket.StudentRTCToken = input.Credentials.StudentToken
	ticket.TutorRTCToken = input.Credentials.TutorToken
	ticket.StudentUID = input.Credentials.StudentUID
	ticket.TutorUID = input.Credentials.TutorUID
	copied := *ticket
	return &copied, nil
}

func (s *stubTicketStore) AddRejectedTutor(_ context.Context, ticketID, tutorID string) (*models.SearchTicket, error) {
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	found := false
	for _, id := range ticket.RejectedTutors {
		if id == tutorID {
			found = true
			break
		}
	}
	if !found {
		ticket.RejectedTutors = append(ticket.RejectedTutors, tutorID)
	}
	copied := *ticket
	return &copied, nil
}

func (s *stubTicketStore) Delete(_ context.Context, ticketID string) error {
	if _, ok := s.tickets[ticketID]; !ok {
		return pgx.ErrNoRows
	}
	delete(s.tickets, ticketID)
	s.deleted = append(s.deleted, ticketID)
	return nil
}

type stubTutorStore struct {
	profiles map[string]*models.TutorProfile
	deltas   map[string]float64
}

func newStubTutorStore() *stubTutorStore {
	return &stubTutorStore{
		profiles: make(map[string]*models.TutorProfile),
		deltas:   make(map[string]float64),
	}
}

func (s *stubTutorStore) GetByUserID(_ context.Context, userID string) (*models.TutorProfile, error) {
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return profile, nil
}

func (s *stubTutorStore) IncrementBalance(_ context.Context, userID string, delta float64) error {
	s.deltas[userID] += delta
	return nil
}

type stubStudentStore struct {
	profiles map[string]*models.StudentProfile
	deltas   map[string]float64
}

func newStubStudentStore() *stubStudentStore {
	return &stubStudentStore{
		profiles: make(map[string]*models.StudentProfile),
		deltas:   make(map[string]float64),
	}
}

func (s *stubStudentStore) GetByUserID(_ context.Context, userID string) (*models.StudentProfile, error) {
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return profile, nil
}

func (s *stubStudentStore) IncrementBalance(_ context.Context, userID string, delta float64) error {
	s.deltas[userID] += delta
	return nil
}

type stubMatcher struct {
	candidates   []models.TutorProfile
	lastExcluded []string
}

func (s *stubMatcher) FindCandidates(_ context.Context, _, _, _ []string, excluded []string) ([]models.TutorProfile, error) {
	s.lastExcluded = excluded
	return s.candidates, nil
}

type stubIssuer struct{}

func (stubIssuer) IssueSessionCredentials(_, _ string) (*models.SessionCredentials, error) {
	return &models.SessionCredentials{
		ChannelName:  "session_stude_tutor_123456",
		StudentToken: "student-token",
		TutorToken:   "tutor-token",
		StudentUID:   11,
		TutorUID:     22,
	}, nil
}

type notifierCall struct {
	kind   string
	userID string
}

type stubNotifier struct {
	calls []notifierCall
}

func (s *stubNotifier) SessionRequested(_ context.Context, tutorID, _, _, _ string) {
	s.calls = append(s.calls, notifierCall{kind: "requested", userID: tutorID})
}

func (s *stubNotifier) SessionAccepted(_ context.Context, studentID, _, _ string) {
	s.calls = append(s.calls, notifierCall{kind: "accepted", userID: studentID})
}

func (s *stubNotifier) SessionPaused(_ context.Context, session *models.Session, _ string, _ *string) {
	s.calls = append(s.calls, notifierCall{kind: "paused", userID: session.ID})
}

func (s *stubNotifier) SessionResumed(_ context.Context, session *models.Session, _ string) {
	s.calls = append(s.calls, notifierCall{kind: "resumed", userID: session.ID})
}

func (s *stubNotifier) SessionEnded(_ context.Context, session *models.Session, _ bool, _ string, _, _, _ float64) {
	s.calls = append(s.calls, notifierCall{kind: "ended", userID: session.ID})
}

type sessionFixture struct {
	service  *SessionService
	sessions *stubSessionStore
	tickets  *stubTicketStore
	tutors   *stubTutorStore
	students *stubStudentStore
	matcher  *stubMatcher
	notifier *stubNotifier
}

func newSessionFixture() *sessionFixture {
	f := &sessionFixture{
		sessions: newStubSessionStore(),
		tickets:  newStubTicketStore(),
		tutors:   newStubTutorStore(),
		students: newStubStudentStore(),
		matcher:  &stubMatcher{},
		notifier: &stubNotifier{},
	}
	f.service = NewSessionService(f.sessions, f.tickets, f.tutors, f.students, f.matcher, stubIssuer{}, f.notifier)
	return f
}

func (f *sessionFixture) addStudent(id string) {
	first := "Ana"
	f.students.profiles[id] = &models.StudentProfile{UserID: id, FirstName: &first}
}

func (f *sessionFixture) addTutor(id string, online bool) {
	f.tutors.profiles[id] = &models.TutorProfile{UserID: id, Username: id, IsOnline: online}
}

func TestStartDirectCreatesPendingSession(t *testing.T) {
	f := newSessionFixture()
	f.addStudent("student-1")
	f.addTutor("tutor-1", true)

	question := "contract question"
	offer, err := f.service.StartDirect(context.Background(), "student-1", StartSessionInput{
		TutorID:   "tutor-1",
		Question:  &question,
		Languages: []string{"en"},
		Subjects:  []string{"contracts"},
		Topics:    []string{"breach"},
	})
	if err != nil {
		t.Fatalf("StartDirect failed: %v", err)
	}
	if offer.Session.Status != models.StatusPending {
		t.Errorf("expected status %q, got %q", models.StatusPending, offer.Session.Status)
	}
	if offer.Student.TotalSessions != 3 {
		t.Errorf("expected 3 prior sessions, got %d", offer.Student.TotalSessions)
	}
	if len(f.notifier.calls) != 1 || f.notifier.calls[0].kind != "requested" {
		t.Errorf("expected a single requested notification, got %v", f.notifier.calls)
	}
}

func TestStartDirectOfflineTutor(t *testing.T) {
	f := newSessionFixture()
	f.addStudent("student-1")
	f.addTutor("tutor-1", false)

	_, err := f.service.StartDirect(context.Background(), "student-1", StartSessionInput{TutorID: "tutor-1"})
	if !errors.Is(err, ErrTutorNotFound) {
		t.Fatalf("expected ErrTutorNotFound, got %v", err)
	}
}

func TestStartDirectBusyTutor(t *testing.T) {
	f := newSessionFixture()
	f.addStudent("student-1")
	f.addTutor("tutor-1", true)
	f.sessions.busy = true

	_, err := f.service.StartDirect(context.Background(), "student-1", StartSessionInput{TutorID: "tutor-1"})
	if !errors.Is(err, ErrTutorBusy) {
		t.Fatalf("expected ErrTutorBusy, got %v", err)
	}
}

func TestRandomSearchNoCandidates(t *testing.T) {
	f := newSessionFixture()
	f.addStudent("student-1")

	_, err := f.service.RandomSearch(context.Background(), "student-1", RandomSearchInput{
		Languages: []string{"en"},
		Subjects:  []string{"contracts"},
		Topics:    []string{"breach"},
	})
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestRandomSearchRetryExcludesRejectedTutors(t *testing.T) {
	f := newSessionFixture()
	f.addStudent("student-1")
	f.matcher.candidates = []models.TutorProfile{{UserID: "tutor-2", Username: "tutor-2", IsOnline: true}}
	f.tickets.tickets["ticket-1"] = &models.SearchTicket{
		ID:             "ticket-1",
		StudentID:      "student-1",
		RejectedTutors: []string{"tutor-1"},
		CreatedAt:      time.Now(),
	}

	offer, err := f.service.RandomSearch(context.Background(), "student-1", RandomSearchInput{
		SearchID:  "ticket-1",
		Languages: []string{"en"},
		Subjects:  []string{"contracts"},
		Topics:    []string{"breach"},
	})
	if err != nil {
		t.Fatalf("RandomSearch failed: %v", err)
	}
	if len(f.matcher.lastExcluded) != 1 || f.matcher.lastExcluded[0] != "tutor-1" {
		t.Errorf("expected rejection set to reach the matcher, got %v", f.matcher.lastExcluded)
	}
	if offer.Tutor.Username != "tutor-2" {
		t.Errorf("expected tutor-2 to be offered, got %q", offer.Tutor.Username)
	}
	if offer.Created {
		t.Error("re-offer of an existing ticket should not report created")
	}
}

func TestAcceptPromotesTicketAndDeletesIt(t *testing.T) {
	f := newSessionFixture()
	createdAt := time.Now().Add(-30 * time.Second)
	f.tickets.tickets["ticket-1"] = &models.SearchTicket{
		ID:        "ticket-1",
		StudentID: "student-1",
		TutorID:   "tutor-1",
		CreatedAt: createdAt,
	}

	session, err := f.service.Accept(context.Background(), "ticket-1", "tutor-1")
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if session.Status != models.StatusInProgress {
		t.Errorf("expected status %q, got %q", models.StatusInProgress, session.Status)
	}
	if !session.CreatedAt.Equal(createdAt) {
		t.Errorf("expected session to inherit the ticket creation time")
	}
	if len(f.tickets.deleted) != 1 || f.tickets.deleted[0] != "ticket-1" {
		t.Errorf("expected the ticket to be deleted, got %v", f.tickets.deleted)
	}
	if len(f.notifier.calls) != 1 || f.notifier.calls[0] != (notifierCall{kind: "accepted", userID: "student-1"}) {
		t.Errorf("expected the student to be notified, got %v", f.notifier.calls)
	}
}

func TestRejectTwiceRecordsTutorOnce(t *testing.T) {
	f := newSessionFixture()
	f.tickets.tickets["ticket-1"] = &models.SearchTicket{ID: "ticket-1", StudentID: "student-1"}

	if _, err := f.service.Reject(context.Background(), "ticket-1", "tutor-1"); err != nil {
		t.Fatalf("first Reject failed: %v", err)
	}
	ticket, err := f.service.Reject(context.Background(), "ticket-1", "tutor-1")
	if err != nil {
		t.Fatalf("second Reject failed: %v", err)
	}
	if len(ticket.RejectedTutors) != 1 {
		t.Errorf("expected one rejection entry, got %v", ticket.RejectedTutors)
	}
}

func TestRejectUnknownTicket(t *testing.T) {
	f := newSessionFixture()
	_, err := f.service.Reject(context.Background(), "missing", "tutor-1")
	if !errors.Is(err, ErrSearchNotFound) {
		t.Fatalf("expected ErrSearchNotFound, got %v", err)
	}
}

func inProgressSession(f *sessionFixture, start time.Time) *models.Session {
	session := &models.Session{
		ID:        "session-1",
		StudentID: "student-1",
		TutorID:   "tutor-1",
		Status:    models.StatusInProgress,
		StartTime: &start,
		CreatedAt: start,
	}
	f.sessions.sessions[session.ID] = session
	return session
}

func TestLeaveAppendsOpenInterval(t *testing.T) {
	f := newSessionFixture()
	inProgressSession(f, time.Now().Add(-5*time.Minute))

	reason := "network dropped"
	session, err := f.service.Leave(context.Background(), "session-1", models.RoleTutor, &reason)
	if err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if session.Status != models.StatusPaused {
		t.Errorf("expected status %q, got %q", models.StatusPaused, session.Status)
	}
	if len(session.PausedIntervals) != 1 || session.PausedIntervals[0].End != nil {
		t.Errorf("expected a single open interval, got %v", session.PausedIntervals)
	}
	if session.TutorLeaveReason == nil || *session.TutorLeaveReason != reason {
		t.Errorf("expected the tutor leave reason to be stored")
	}
}

func TestRejoinClosesOpenInterval(t *testing.T) {
	f := newSessionFixture()
	session := inProgressSession(f, time.Now().Add(-5*time.Minute))
	session.Status = models.StatusPaused
	session.PausedIntervals = []models.PauseInterval{{Start: time.Now().Add(-time.Minute).UnixMilli()}}

	updated, err := f.service.Rejoin(context.Background(), "session-1", models.RoleTutor)
	if err != nil {
		t.Fatalf("Rejoin failed: %v", err)
	}
	if updated.Status != models.StatusInProgress {
		t.Errorf("expected status %q, got %q", models.StatusInProgress, updated.Status)
	}
	if len(updated.PausedIntervals) != 1 || updated.PausedIntervals[0].End == nil {
		t.Errorf("expected the open interval to be closed, got %v", updated.PausedIntervals)
	}
}

func TestLeaveCompletedSession(t *testing.T) {
	f := newSessionFixture()
	session := inProgressSession(f, time.Now().Add(-5*time.Minute))
	session.Status = models.StatusCompleted

	_, err := f.service.Leave(context.Background(), "session-1", models.RoleStudent, nil)
	if !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress, got %v", err)
	}
}

func TestEndChargesAndMovesBalances(t *testing.T) {
	f := newSessionFixture()
	start := time.Now().Add(-500 * time.Second)
	session := inProgressSession(f, start)
	pauseStart := start.Add(100 * time.Second).UnixMilli()
	pauseEnd := start.Add(160 * time.Second).UnixMilli()
	session.PausedIntervals = []models.PauseInterval{{Start: pauseStart, End: &pauseEnd}}

	result, err := f.service.End(context.Background(), "session-1", "tutor-1")
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	// 440 active seconds bill as 8 minutes.
	if result.Cost != 1.6 {
		t.Errorf("expected cost 1.6, got %v", result.Cost)
	}
	if result.TutorEarning != 1.5 {
		t.Errorf("expected earning 1.5, got %v", result.TutorEarning)
	}
	if got := f.students.deltas["student-1"]; got != -1.6 {
		t.Errorf("expected student balance delta -1.6, got %v", got)
	}
	if got := f.tutors.deltas["tutor-1"]; got != 1.5 {
		t.Errorf("expected tutor balance delta 1.5, got %v", got)
	}
}

func TestEndTwiceFailsAndMovesNoMoney(t *testing.T) {
	f := newSessionFixture()
	inProgressSession(f, time.Now().Add(-200*time.Second))

	if _, err := f.service.End(context.Background(), "session-1", "student-1"); err != nil {
		t.Fatalf("first End failed: %v", err)
	}
	studentDelta := f.students.deltas["student-1"]
	tutorDelta := f.tutors.deltas["tutor-1"]

	_, err := f.service.End(context.Background(), "session-1", "student-1")
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if f.students.deltas["student-1"] != studentDelta || f.tutors.deltas["tutor-1"] != tutorDelta {
		t.Error("second End must not move balances")
	}
}

func TestEndByNonParticipant(t *testing.T) {
	f := newSessionFixture()
	inProgressSession(f, time.Now().Add(-200*time.Second))

	_, err := f.service.End(context.Background(), "session-1", "someone-else")
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestEndPendingSession(t *testing.T) {
	f := newSessionFixture()
	session := inProgressSession(f, time.Now())
	session.Status = models.StatusPending
	session.StartTime = nil

	_, err := f.service.End(context.Background(), "session-1", "student-1")
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestEndExpiredSession(t *testing.T) {
	f := newSessionFixture()
	session := inProgressSession(f, time.Now())
	session.Status = models.StatusExpired

	_, err := f.service.End(context.Background(), "session-1", "student-1")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestRandomSearchRejectsForeignTicket(t *testing.T) {
	f := newSessionFixture()
	f.addStudent("student-2")
	f.matcher.candidates = []models.TutorProfile{{UserID: "tutor-1", Username: "tutor-1", IsOnline: true}}
	f.tickets.tickets["ticket-1"] = &models.SearchTicket{
		ID:        "ticket-1",
		StudentID: "student-1",
		CreatedAt: time.Now(),
	}

	_, err := f.service.RandomSearch(context.Background(), "student-2", RandomSearchInput{
		SearchID:  "ticket-1",
		Languages: []string{"en"},
		Subjects:  []string{"contracts"},
		Topics:    []string{"breach"},
	})
	if !errors.Is(err, ErrSearchNotFound) {
		t.Fatalf("expected ErrSearchNotFound, got %v", err)
	}
}

func TestExpirePendingSweepsGraceWindow(t *testing.T) {
	f := newSessionFixture()
	f.sessions.expired = 2

	before := time.Now()
	count, err := f.service.ExpirePending(context.Background())
	after := time.Now()
	if err != nil {
		t.Fatalf("ExpirePending failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 expired sessions, got %d", count)
	}

	// The cutoff lags now by the grace period: a session created 61s
	// ago falls before it, one created 30s ago does not.
	cutoff := f.sessions.expireCutoff
	if cutoff.Before(before.Add(-pendingGracePeriod)) || cutoff.After(after.Add(-pendingGracePeriod)) {
		t.Fatalf("cutoff %v not one grace period behind now", cutoff)
	}
	if aged := before.Add(-61 * time.Second); !aged.Before(cutoff) {
		t.Errorf("a pending session created 61s ago must fall before the cutoff")
	}
	if recent := after.Add(-30 * time.Second); !recent.After(cutoff) {
		t.Errorf("a pending session created 30s ago must stay past the cutoff")
	}
}
