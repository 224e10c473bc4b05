package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/realtime"
	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/repository"
)

const (
	fcmEndpoint             = "https://fcm.googleapis.com/fcm/send"
	notificationQuestionMax = 100
)

// ProfileTokenReader resolves push tokens from the profile tables.
type ProfileTokenReader struct {
	tutors   *repository.TutorProfileRepository
	students *repository.StudentProfileRepository
}

func NewProfileTokenReader(
	tutors *repository.TutorProfileRepository,
	students *repository.StudentProfileRepository,
) *ProfileTokenReader {
	return &ProfileTokenReader{tutors: tutors, students: students}
}

func (r *ProfileTokenReader) TutorFCMToken(ctx context.Context, userID string) (*string, error) {
	profile, err := r.tutors.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profile.FCMToken, nil
}

func (r *ProfileTokenReader) StudentFCMToken(ctx context.Context, userID string) (*string, error) {
	profile, err := r.students.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profile.FCMToken, nil
}

type pushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

type fcmTokenReader interface {
	TutorFCMToken(ctx context.Context, userID string) (*string, error)
	StudentFCMToken(ctx context.Context, userID string) (*string, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, userID string, event realtime.SessionEvent) error
}

// NotificationService delivers session lifecycle events to the
// counterpart participant: a push notification when an FCM token is on
// file, plus a realtime event on the user's channel. Delivery is
// best-effort; failures are logged and never roll back the state
// transition that triggered them.
type NotificationService struct {
	tokens     fcmTokenReader
	publisher  eventPublisher
	serverKey  string
	httpClient *http.Client
}

func NewNotificationService(tokens fcmTokenReader, publisher eventPublisher, serverKey string) *NotificationService {
	return &NotificationService{
		tokens:     tokens,
		publisher:  publisher,
		serverKey:  serverKey,
		httpClient: http.DefaultClient,
	}
}

func (s *NotificationService) SessionRequested(ctx context.Context, tutorID, refID, question, studentID string) {
	body := question
	if len(body) > notificationQuestionMax {
		body = body[:notificationQuestionMax] + "..."
	}
	s.toTutor(ctx, tutorID, pushMessage{
		Title: "You have a new session request",
		Body:  body,
		Data: map[string]string{
			"type":      realtime.EventSessionRequested,
			"sessionID": refID,
			"studentID": studentID,
		},
	}, realtime.SessionEvent{
		Type:      realtime.EventSessionRequested,
		SessionID: refID,
		Data:      map[string]string{"studentID": studentID},
	})
}

func (s *NotificationService) SessionAccepted(ctx context.Context, studentID, sessionID, tutorID string) {
	s.toStudent(ctx, studentID, pushMessage{
		Title: "Session Accepted",
		Body:  "Your tutor has accepted the session request.",
		Data: map[string]string{
			"type":      realtime.EventSessionAccepted,
			"sessionID": sessionID,
			"tutorID":   tutorID,
		},
	}, realtime.SessionEvent{
		Type:      realtime.EventSessionAccepted,
		SessionID: sessionID,
		Data:      map[string]string{"tutorID": tutorID},
	})
}

// SessionPaused notifies the counterpart of the leaving role.
func (s *NotificationService) SessionPaused(ctx context.Context, session *models.Session, leavingRole string, reason *string) {
	reasonText := ""
	if reason != nil {
		reasonText = *reason
	}
	data := map[string]string{
		"type":      realtime.EventSessionPaused,
		"sessionID": session.ID,
		"role":      leavingRole,
		"reason":    reasonText,
	}
	event := realtime.SessionEvent{
		Type:      realtime.EventSessionPaused,
		SessionID: session.ID,
		Data:      map[string]string{"role": leavingRole, "reason": reasonText},
	}
	if leavingRole == models.RoleTutor {
		s.toStudent(ctx, session.StudentID, pushMessage{Data: data}, event)
	} else {
		s.toTutor(ctx, session.TutorID, pushMessage{Data: data}, event)
	}
}

// SessionResumed notifies the counterpart of the rejoining role.
func (s *NotificationService) SessionResumed(ctx context.Context, session *models.Session, rejoiningRole string) {
	data := map[string]string{
		"type":      realtime.EventSessionResumed,
		"sessionID": session.ID,
		"role":      rejoiningRole,
	}
	event := realtime.SessionEvent{
		Type:      realtime.EventSessionResumed,
		SessionID: session.ID,
		Data:      map[string]string{"role": rejoiningRole},
	}
	if rejoiningRole == models.RoleTutor {
		s.toStudent(ctx, session.StudentID, pushMessage{
			Title: "Tutor Rejoined Meeting",
			Body:  "Your tutor has rejoined the meeting.",
			Data:  data,
		}, event)
	} else {
		s.toTutor(ctx, session.TutorID, pushMessage{
			Title: "Student Rejoined Meeting",
			Body:  "Your student has rejoined the meeting.",
			Data:  data,
		}, event)
	}
}

// SessionEnded notifies whichever side did not initiate the end with
// the billing breakdown.
func (s *NotificationService) SessionEnded(
	ctx context.Context,
	session *models.Session,
	endedByTutor bool,
	sessionTime string,
	cost float64,
	earning float64,
	platformFee float64,
) {
	data := map[string]string{
		"type":        realtime.EventSessionEnded,
		"sessionID":   session.ID,
		"sessionTime": sessionTime,
		"cost":        fmt.Sprintf("%.2f", cost),
		"earning":     fmt.Sprintf("%.2f", earning),
		"platformFee": fmt.Sprintf("%.2f", platformFee),
	}
	event := realtime.SessionEvent{
		Type:      realtime.EventSessionEnded,
		SessionID: session.ID,
		Data: map[string]string{
			"sessionTime": sessionTime,
			"cost":        data["cost"],
			"earning":     data["earning"],
			"platformFee": data["platformFee"],
		},
	}
	if endedByTutor {
		s.toStudent(ctx, session.StudentID, pushMessage{Data: data}, event)
	} else {
		s.toTutor(ctx, session.TutorID, pushMessage{Data: data}, event)
	}
}

func (s *NotificationService) toTutor(ctx context.Context, tutorID string, msg pushMessage, event realtime.SessionEvent) {
	if err := s.publisher.Publish(ctx, tutorID, event); err != nil {
		log.Warn().Err(err).Str("userId", tutorID).Str("event", event.Type).Msg("publish realtime event")
	}
	token, err := s.tokens.TutorFCMToken(ctx, tutorID)
	if err != nil {
		log.Warn().Err(err).Str("userId", tutorID).Msg("lookup tutor fcm token")
		return
	}
	s.push(ctx, token, msg)
}

func (s *NotificationService) toStudent(ctx context.Context, studentID string, msg pushMessage, event realtime.SessionEvent) {
	if err := s.publisher.Publish(ctx, studentID, event); err != nil {
		log.Warn().Err(err).Str("userId", studentID).Str("event", event.Type).Msg("publish realtime event")
	}
	token, err := s.tokens.StudentFCMToken(ctx, studentID)
	if err != nil {
		log.Warn().Err(err).Str("userId", studentID).Msg("lookup student fcm token")
		return
	}
	s.push(ctx, token, msg)
}

func (s *NotificationService) push(ctx context.Context, token *string, msg pushMessage) {
	if token == nil || *token == "" || s.serverKey == "" {
		return
	}

	payload := map[string]any{
		"to":   *token,
		"data": msg.Data,
	}
	if msg.Title != "" || msg.Body != "" {
		payload["notification"] = map[string]string{
			"title": msg.Title,
			"body":  msg.Body,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Msg("marshal push payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fcmEndpoint, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Msg("build push request")
		return
	}
	req.Header.Set("Authorization", "key="+s.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("send push notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Warn().
			Int("status", resp.StatusCode).
			Str("response", strings.TrimSpace(string(detail))).
			Msg("push notification rejected")
	}
}
