package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
)

const studentProfileColumns = `
	user_id, first_name, last_name, avatar_url, country, balance,
	fcm_token, created_at, updated_at
`

type StudentProfileRepository struct {
	db DBTX
}

func NewStudentProfileRepository(db DBTX) *StudentProfileRepository {
	return &StudentProfileRepository{db: db}
}

func scanStudentProfile(row pgx.Row) (*models.StudentProfile, error) {
	var profile models.StudentProfile
	err := row.Scan(
		&profile.UserID,
		&profile.FirstName,
		&profile.LastName,
		&profile.AvatarURL,
		&profile.Country,
		&profile.Balance,
		&profile.FCMToken,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *StudentProfileRepository) Create(ctx context.Context, userID string) error {
	query := `
		INSERT INTO student_profiles (user_id)
		VALUES ($1)
	`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

func (r *StudentProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.StudentProfile, error) {
	query := `
		SELECT ` + studentProfileColumns + `
		FROM student_profiles
		WHERE user_id = $1
	`
	return scanStudentProfile(r.db.QueryRow(ctx, query, userID))
}

type UpdateStudentProfileInput struct {
	FirstName *string
	LastName  *string
	Country   *string
}

func (r *StudentProfileRepository) Update(
	ctx context.Context,
	userID string,
	input UpdateStudentProfileInput,
) (*models.StudentProfile, error) {
	query := `
		UPDATE student_profiles
		SET first_name = COALESCE($2, first_name),
		    last_name = COALESCE($3, last_name),
		    country = COALESCE($4, country),
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + studentProfileColumns
	return scanStudentProfile(r.db.QueryRow(ctx, query, userID, input.FirstName, input.LastName, input.Country))
}

func (r *StudentProfileRepository) SetAvatarURL(ctx context.Context, userID, avatarURL string) error {
	query := `
		UPDATE student_profiles
		SET avatar_url = $2, updated_at = NOW()
		WHERE user_id = $1
	`
	_, err := r.db.Exec(ctx, query, userID, avatarURL)
	return err
}

func (r *StudentProfileRepository) SetFCMToken(ctx context.Context, userID, token string) error {
	query := `
		UPDATE student_profiles
		SET fcm_token = $2, updated_at = NOW()
		WHERE user_id = $1
	`
	_, err := r.db.Exec(ctx, query, userID, token)
	return err
}

// IncrementBalance applies a signed delta atomically, mirroring the
// tutor-side increment.
func (r *StudentProfileRepository) IncrementBalance(ctx context.Context, userID string, delta float64) error {
	query := `
		UPDATE student_profiles
		SET balance = ROUND((balance + $2)::numeric, 2), updated_at = NOW()
		WHERE user_id = $1
	`
	tag, err := r.db.Exec(ctx, query, userID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
