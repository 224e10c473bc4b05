package models

import "time"

type TutorProfile struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	AvatarURL *string   `json:"avatar_url"`
	Bio       *string   `json:"bio"`
	Languages []string  `json:"languages"`
	Subjects  []string  `json:"subjects"`
	Topics    []string  `json:"topics"`
	IsOnline  bool      `json:"is_online"`
	Balance   float64   `json:"balance"`
	Rating    float64   `json:"rating"`
	Followers int       `json:"followers"`
	FCMToken  *string   `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StudentProfile struct {
	UserID    string    `json:"user_id"`
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	AvatarURL *string   `json:"avatar_url"`
	Country   *string   `json:"country"`
	Balance   float64   `json:"balance"`
	FCMToken  *string   `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
