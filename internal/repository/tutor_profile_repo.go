package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
)

const tutorProfileColumns = `
	user_id, username, first_name, last_name, avatar_url, bio,
	languages, subjects, topics, is_online, balance, rating, followers,
	fcm_token, created_at, updated_at
`

type TutorProfileRepository struct {
	db DBTX
}

func NewTutorProfileRepository(db DBTX) *TutorProfileRepository {
	return &TutorProfileRepository{db: db}
}

func scanTutorProfile(row pgx.Row) (*models.TutorProfile, error) {
	var profile models.TutorProfile
	err := row.Scan(
		&profile.UserID,
		&profile.Username,
		&profile.FirstName,
		&profile.LastName,
		&profile.AvatarURL,
		&profile.Bio,
		&profile.Languages,
		&profile.Subjects,
		&profile.Topics,
		&profile.IsOnline,
		&profile.Balance,
		&profile.Rating,
		&profile.Followers,
		&profile.FCMToken,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *TutorProfileRepository) Create(ctx context.Context, userID, username string) error {
	query := `
		INSERT INTO tutor_profiles (user_id, username)
		VALUES ($1, $2)
	`
	_, err := r.db.Exec(ctx, query, userID, username)
	return err
}

func (r *TutorProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.TutorProfile, error) {
	query := `
		SELECT ` + tutorProfileColumns + `
		FROM tutor_profiles
		WHERE user_id = $1
	`
	return scanTutorProfile(r.db.QueryRow(ctx, query, userID))
}

func (r *TutorProfileRepository) GetByUsername(ctx context.Context, username string) (*models.TutorProfile, error) {
	query := `
		SELECT ` + tutorProfileColumns + `
		FROM tutor_profiles
		WHERE username = $1
	`
	return scanTutorProfile(r.db.QueryRow(ctx, query, username))
}

type UpdateTutorProfileInput struct {
	FirstName *string
	LastName  *string
	Bio       *string
	Languages []string
	Subjects  []string
	Topics    []string
}

func (r *TutorProfileRepository) Update(
	ctx context.Context,
	userID string,
	input UpdateTutorProfileInput,
) (*models.TutorProfile, error) {
	query := `
		UPDATE tutor_profiles
		SET first_name = COALESCE($2, first_name),
		    last_name = COALESCE($3, last_name),
		    bio = COALESCE($4, bio),
		    languages = COALESCE($5, languages),
		    subjects = COALESCE($6, subjects),
		    topics = COALESCE($7, topics),
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + tutorProfileColumns
	return scanTutorProfile(r.db.QueryRow(
		ctx,
		query,
		userID,
		input.FirstName,
		input.LastName,
		input.Bio,
		input.Languages,
		input.Subjects,
		input.Topics,
	))
}

func (r *TutorProfileRepository) SetOnline(ctx context.Context, userID string, online bool) error {
	query := `
		UPDATE tutor_profiles
		SET is_online = $2, updated_at = NOW()
		WHERE user_id = $1
	`
	tag, err := r.db.Exec(ctx, query, userID, online)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *TutorProfileRepository) SetAvatarURL(ctx context.Context, userID, avatarURL string) error {
	query := `
		UPDATE tutor_profiles
		SET avatar_url = $2, updated_at = NOW()
		WHERE user_id = $1
	`
	_, err := r.db.Exec(ctx, query, userID, avatarURL)
	return err
}

func (r *TutorProfileRepository) SetFCMToken(ctx context.Context, userID, token string) error {
	query := `
		UPDATE tutor_profiles
		SET fcm_token = $2, updated_at = NOW()
		WHERE user_id = $1
	`
	_, err := r.db.Exec(ctx, query, userID, token)
	return err
}

// IncrementBalance applies a signed delta atomically. Balance writes
// never go through read-modify-write so concurrent session completions
// touching one tutor cannot lose updates.
func (r *TutorProfileRepository) IncrementBalance(ctx context.Context, userID string, delta float64) error {
	query := `
		UPDATE tutor_profiles
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

// ListOnlineByLanguages is stage one of candidate matching: online
// tutors whose language set intersects any requested language, in
// stable natural order. Subject and topic filtering happens in memory
// in the matching service.
func (r *TutorProfileRepository) ListOnlineByLanguages(
	ctx context.Context,
	languages []string,
) ([]models.TutorProfile, error) {
	query := `
		SELECT ` + tutorProfileColumns + `
		FROM tutor_profiles
		WHERE is_online = TRUE
		  AND languages && $1
		ORDER BY created_at ASC, user_id ASC
	`
	rows, err := r.db.Query(ctx, query, languages)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]models.TutorProfile, 0)
	for rows.Next() {
		profile, err := scanTutorProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *TutorProfileRepository) ListOnline(ctx context.Context) ([]models.TutorProfile, error) {
	query := `
		SELECT ` + tutorProfileColumns + `
		FROM tutor_profiles
		WHERE is_online = TRUE
		ORDER BY created_at ASC, user_id ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]models.TutorProfile, 0)
	for rows.Next() {
		profile, err := scanTutorProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}
