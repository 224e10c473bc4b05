package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
)

const sessionColumns = `
	id, student_id, tutor_id, status, question, student_country,
	languages, subjects, topics, age, file_urls, start_time, end_time,
	paused_intervals, student_leave_reason, tutor_leave_reason,
	cost, tutor_earning, session_time, is_solved,
	channel_name, student_rtc_token, tutor_rtc_token, student_uid, tutor_uid,
	created_at, updated_at
`

type CreateSessionInput struct {
	StudentID      string
	TutorID        string
	Status         string
	Question       *string
	StudentCountry *string
	Languages      []string
	Subjects       []string
	Topics         []string
	Age            int
	Credentials    *models.SessionCredentials
	// StartTime is set on acceptance; nil keeps the session unstarted.
	StartTime *time.Time
	// CreatedAt overrides the creation timestamp when a session is
	// promoted from a search ticket, preserving the ticket's age.
	CreatedAt *time.Time
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	var pausedJSON []byte
	err := row.Scan(
		&session.ID,
		&session.StudentID,
		&session.TutorID,
		&session.Status,
		&session.Question,
		&session.StudentCountry,
		&session.Languages,
		&session.Subjects,
		&session.Topics,
		&session.Age,
		&session.FileURLs,
		&session.StartTime,
		&session.EndTime,
		&pausedJSON,
		&session.StudentLeaveReason,
		&session.TutorLeaveReason,
		&session.Cost,
		&session.TutorEarning,
		&session.SessionTime,
		&session.IsSolved,
		&session.ChannelName,
		&session.StudentRTCToken,
		&session.TutorRTCToken,
		&session.StudentUID,
		&session.TutorUID,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(pausedJSON) > 0 {
		if err := json.Unmarshal(pausedJSON, &session.PausedIntervals); err != nil {
			return nil, fmt.Errorf("decode paused intervals: %w", err)
		}
	}
	return &session, nil
}

func encodeIntervals(intervals []models.PauseInterval) ([]byte, error) {
	if intervals == nil {
		intervals = []models.PauseInterval{}
	}
	return json.Marshal(intervals)
}

func (r *SessionRepository) Create(ctx context.Context, input CreateSessionInput) (*models.Session, error) {
	var channelName, studentToken, tutorToken *string
	var studentUID, tutorUID *int
	if input.Credentials != nil {
		channelName = &input.Credentials.ChannelName
		studentToken = &input.Credentials.StudentToken
		tutorToken = &input.Credentials.TutorToken
		studentUID = &input.Credentials.StudentUID
		tutorUID = &input.Credentials.TutorUID
	}

	query := `
		INSERT INTO sessions (
			id, student_id, tutor_id, status, question, student_country,
			languages, subjects, topics, age, start_time,
			channel_name, student_rtc_token, tutor_rtc_token, student_uid, tutor_uid,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			COALESCE($17, NOW()))
		RETURNING ` + sessionColumns

	return scanSession(r.db.QueryRow(
		ctx,
		query,
		uuid.NewString(),
		input.StudentID,
		input.TutorID,
		input.Status,
		input.Question,
		input.StudentCountry,
		input.Languages,
		input.Subjects,
		input.Topics,
		input.Age,
		input.StartTime,
		channelName,
		studentToken,
		tutorToken,
		studentUID,
		tutorUID,
		input.CreatedAt,
	))
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = $1
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

// HasInProgressForTutor backs the one-live-session-per-tutor pre-check.
// The check-then-create pair is not atomic; a race window exists, as in
// the upstream behavior this preserves.
func (r *SessionRepository) HasInProgressForTutor(ctx context.Context, tutorID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM sessions
			WHERE tutor_id = $1
			  AND status = $2
		)
	`
	var busy bool
	if err := r.db.QueryRow(ctx, query, tutorID, models.StatusInProgress).Scan(&busy); err != nil {
		return false, err
	}
	return busy, nil
}

// UpdatePause writes the extended interval list and flips the session to
// Paused. The update only applies while the session is In Progress or
// already Paused; repeated pauses append further intervals.
func (r *SessionRepository) UpdatePause(
	ctx context.Context,
	sessionID string,
	intervals []models.PauseInterval,
	role string,
	reason *string,
) (*models.Session, error) {
	encoded, err := encodeIntervals(intervals)
	if err != nil {
		return nil, err
	}

	reasonColumn := "student_leave_reason"
	if role == models.RoleTutor {
		reasonColumn = "tutor_leave_reason"
	}

	query := fmt.Sprintf(`
		UPDATE sessions
		SET paused_intervals = $2,
		    %s = COALESCE($3, %s),
		    status = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ($5, $6)
		RETURNING `+sessionColumns, reasonColumn, reasonColumn)

	return scanSession(r.db.QueryRow(
		ctx,
		query,
		sessionID,
		encoded,
		reason,
		models.StatusPaused,
		models.StatusInProgress,
		models.StatusPaused,
	))
}

// UpdateResume writes the closed interval list and flips the session
// back to In Progress. A resume on a session that never paused is
// accepted, matching the lenient upstream behavior.
func (r *SessionRepository) UpdateResume(
	ctx context.Context,
	sessionID string,
	intervals []models.PauseInterval,
) (*models.Session, error) {
	encoded, err := encodeIntervals(intervals)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE sessions
		SET paused_intervals = $2,
		    status = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
		RETURNING ` + sessionColumns

	return scanSession(r.db.QueryRow(
		ctx,
		query,
		sessionID,
		encoded,
		models.StatusInProgress,
		models.StatusPaused,
		models.StatusInProgress,
	))
}

// Complete finalizes a session. The status predicate makes the
// transition conditional: a second concurrent End loses the race and
// gets pgx.ErrNoRows.
func (r *SessionRepository) Complete(
	ctx context.Context,
	sessionID string,
	endTime time.Time,
	cost float64,
	tutorEarning float64,
	sessionTime string,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = $2,
		    end_time = $3,
		    cost = $4,
		    tutor_earning = $5,
		    session_time = $6,
		    updated_at = NOW()
		WHERE id = $1 AND status = $7
		RETURNING ` + sessionColumns

	return scanSession(r.db.QueryRow(
		ctx,
		query,
		sessionID,
		models.StatusCompleted,
		endTime,
		cost,
		tutorEarning,
		sessionTime,
		models.StatusInProgress,
	))
}

// ExpirePending ages out Pending sessions older than the cutoff in one
// statement. Re-running is a no-op: the predicate only selects Pending
// rows.
func (r *SessionRepository) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE sessions
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND created_at <= $3
	`
	tag, err := r.db.Exec(ctx, query, models.StatusExpired, models.StatusPending, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) CountBetween(ctx context.Context, studentID, tutorID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM sessions
		WHERE student_id = $1 AND tutor_id = $2
	`
	var count int
	if err := r.db.QueryRow(ctx, query, studentID, tutorID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SessionRepository) ListByTutor(ctx context.Context, tutorID string) ([]models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE tutor_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, tutorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (r *SessionRepository) ListByTutorBetween(
	ctx context.Context,
	tutorID string,
	from time.Time,
	to time.Time,
) ([]models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE tutor_id = $1
		  AND created_at >= $2
		  AND created_at <= $3
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, tutorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListHistoryPage returns one page of a tutor's sessions in a date
// range, newest first, keyset-paginated after the given session.
func (r *SessionRepository) ListHistoryPage(
	ctx context.Context,
	tutorID string,
	from time.Time,
	to time.Time,
	pageSize int,
	after *models.Session,
) ([]models.Session, error) {
	args := []any{tutorID, from, to, pageSize}
	cursor := ""
	if after != nil {
		cursor = "AND (created_at, id) < ($5, $6)"
		args = append(args, after.CreatedAt, after.ID)
	}

	query := fmt.Sprintf(`
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE tutor_id = $1
		  AND created_at >= $2
		  AND created_at <= $3
		  %s
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, cursor)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// AppendFileURLs adds attachment URLs, skipping duplicates already on
// the session.
func (r *SessionRepository) AppendFileURLs(ctx context.Context, sessionID string, urls []string) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET file_urls = file_urls || (
			SELECT COALESCE(array_agg(u), '{}')
			FROM unnest($2::text[]) AS u
			WHERE NOT u = ANY(file_urls)
		),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + sessionColumns
	return scanSession(r.db.QueryRow(ctx, query, sessionID, urls))
}

func (r *SessionRepository) SetSolved(ctx context.Context, sessionID string, solved bool) error {
	query := `
		UPDATE sessions
		SET is_solved = $2, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, sessionID, solved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
