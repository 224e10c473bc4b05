package models

import "time"

const (
	StatusPending    = "Pending"
	StatusInProgress = "In Progress"
	StatusPaused     = "Paused"
	StatusCompleted  = "Completed"
	StatusExpired    = "Expired"
)

// PauseInterval is one entry of a session's pause history. End is nil
// while the pause is still open; the session status is Paused exactly
// when the last interval is open.
type PauseInterval struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end,omitempty"`
}

// SessionCredentials are the media-session credentials issued for one
// student/tutor pairing. Tokens are time-boxed to one hour.
type SessionCredentials struct {
	ChannelName  string `json:"channel_name"`
	StudentToken string `json:"student_token"`
	TutorToken   string `json:"tutor_token"`
	StudentUID   int    `json:"student_uid"`
	TutorUID     int    `json:"tutor_uid"`
}

type Session struct {
	ID                 string          `json:"id"`
	StudentID          string          `json:"student_id"`
	TutorID            string          `json:"tutor_id"`
	Status             string          `json:"status"`
	Question           *string         `json:"question"`
	StudentCountry     *string         `json:"student_country"`
	Languages          []string        `json:"languages"`
	Subjects           []string        `json:"subjects"`
	Topics             []string        `json:"topics"`
	Age                int             `json:"age"`
	FileURLs           []string        `json:"file_urls"`
	StartTime          *time.Time      `json:"start_time"`
	EndTime            *time.Time      `json:"end_time"`
	PausedIntervals    []PauseInterval `json:"paused_intervals"`
	StudentLeaveReason *string         `json:"student_leave_reason"`
	TutorLeaveReason   *string         `json:"tutor_leave_reason"`
	Cost               float64         `json:"cost"`
	TutorEarning       float64         `json:"tutor_earning"`
	SessionTime        string          `json:"session_time"`
	IsSolved           bool            `json:"is_solved"`
	ChannelName        *string         `json:"channel_name"`
	StudentRTCToken    *string         `json:"student_rtc_token"`
	TutorRTCToken      *string         `json:"tutor_rtc_token"`
	StudentUID         *int            `json:"student_uid"`
	TutorUID           *int            `json:"tutor_uid"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// SearchTicket is the transient record for an in-flight random-match
// request. It never outlives acceptance: accepting converts it into a
// Session and deletes the ticket.
type SearchTicket struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"student_id"`
	TutorID         string    `json:"tutor_id"`
	Question        *string   `json:"question"`
	StudentCountry  *string   `json:"student_country"`
	Languages       []string  `json:"languages"`
	Subjects        []string  `json:"subjects"`
	Topics          []string  `json:"topics"`
	Age             int       `json:"age"`
	RejectedTutors  []string  `json:"rejected_tutors"`
	ChannelName     string    `json:"channel_name"`
	StudentRTCToken string    `json:"student_rtc_token"`
	TutorRTCToken   string    `json:"tutor_rtc_token"`
	StudentUID      int       `json:"student_uid"`
	TutorUID        int       `json:"tutor_uid"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
