package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
)

const searchTicketColumns = `
	id, student_id, tutor_id, question, student_country,
	languages, subjects, topics, age, rejected_tutors,
	channel_name, student_rtc_token, tutor_rtc_token, student_uid, tutor_uid,
	created_at, updated_at
`

type UpsertSearchTicketInput struct {
	// ID empty creates a fresh ticket; set, it re-offers the existing
	// one with a new candidate and fresh credentials.
	ID             string
	StudentID      string
	TutorID        string
	Question       *string
	StudentCountry *string
	Languages      []string
	Subjects       []string
	Topics         []string
	Age            int
	Credentials    models.SessionCredentials
}

type SearchTicketRepository struct {
	db DBTX
}

func NewSearchTicketRepository(db DBTX) *SearchTicketRepository {
	return &SearchTicketRepository{db: db}
}

func scanSearchTicket(row pgx.Row) (*models.SearchTicket, error) {
	var ticket models.SearchTicket
	err := row.Scan(
		&ticket.ID,
		&ticket.StudentID,
		&ticket.TutorID,
		&ticket.Question,
		&ticket.StudentCountry,
		&ticket.Languages,
		&ticket.Subjects,
		&ticket.Topics,
		&ticket.Age,
		&ticket.RejectedTutors,
		&ticket.ChannelName,
		&ticket.StudentRTCToken,
		&ticket.TutorRTCToken,
		&ticket.StudentUID,
		&ticket.TutorUID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *SearchTicketRepository) GetByID(ctx context.Context, ticketID string) (*models.SearchTicket, error) {
	query := `
		SELECT ` + searchTicketColumns + `
		FROM search_tickets
		WHERE id = $1
	`
	return scanSearchTicket(r.db.QueryRow(ctx, query, ticketID))
}

// Upsert creates or re-offers a ticket. The rejection set is never
// touched here; Reject owns it.
func (r *SearchTicketRepository) Upsert(ctx context.Context, input UpsertSearchTicketInput) (*models.SearchTicket, error) {
	ticketID := input.ID
	if ticketID == "" {
		ticketID = uuid.NewString()
	}

	query := `
		INSERT INTO search_tickets (
			id, student_id, tutor_id, question, student_country,
			languages, subjects, topics, age,
			channel_name, student_rtc_token, tutor_rtc_token, student_uid, tutor_uid
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE
		SET tutor_id = EXCLUDED.tutor_id,
		    question = EXCLUDED.question,
		    student_country = EXCLUDED.student_country,
		    languages = EXCLUDED.languages,
		    subjects = EXCLUDED.subjects,
		    topics = EXCLUDED.topics,
		    age = EXCLUDED.age,
		    channel_name = EXCLUDED.channel_name,
		    student_rtc_token = EXCLUDED.student_rtc_token,
		    tutor_rtc_token = EXCLUDED.tutor_rtc_token,
		    student_uid = EXCLUDED.student_uid,
		    tutor_uid = EXCLUDED.tutor_uid,
		    updated_at = NOW()
		RETURNING ` + searchTicketColumns

	return scanSearchTicket(r.db.QueryRow(
		ctx,
		query,
		ticketID,
		input.StudentID,
		input.TutorID,
		input.Question,
		input.StudentCountry,
		input.Languages,
		input.Subjects,
		input.Topics,
		input.Age,
		input.Credentials.ChannelName,
		input.Credentials.StudentToken,
		input.Credentials.TutorToken,
		input.Credentials.StudentUID,
		input.Credentials.TutorUID,
	))
}

// AddRejectedTutor appends the tutor to the ticket's rejection set in a
// single statement; an already-present tutor is not appended twice.
func (r *SearchTicketRepository) AddRejectedTutor(ctx context.Context, ticketID, tutorID string) (*models.SearchTicket, error) {
	query := `
		UPDATE search_tickets
		SET rejected_tutors = CASE
			WHEN $2 = ANY(rejected_tutors) THEN rejected_tutors
			ELSE array_append(rejected_tutors, $2)
		END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + searchTicketColumns
	return scanSearchTicket(r.db.QueryRow(ctx, query, ticketID, tutorID))
}

func (r *SearchTicketRepository) Delete(ctx context.Context, ticketID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM search_tickets WHERE id = $1`, ticketID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
