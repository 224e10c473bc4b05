package services

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/models"
)

const (
	rtcTokenTTL = time.Hour
	rtcMaxUID   = 100000
)

var ErrRTCNotConfigured = errors.New("RTC credentials are not defined in environment variables")

// RTCService issues media-session credentials for a student/tutor
// pairing: a channel name unique to the pairing plus a time component,
// random participant uids, and one-hour publisher tokens scoped to the
// channel. Construction fails when the app credentials are missing.
type RTCService struct {
	appID          string
	appCertificate string
}

func NewRTCService(appID, appCertificate string) (*RTCService, error) {
	if appID == "" || appCertificate == "" {
		return nil, ErrRTCNotConfigured
	}
	return &RTCService{appID: appID, appCertificate: appCertificate}, nil
}

type rtcClaims struct {
	Channel string `json:"channel"`
	UID     int    `json:"uid"`
	RTCRole string `json:"rtc_role"`
	jwt.RegisteredClaims
}

func (s *RTCService) IssueSessionCredentials(studentID, tutorID string) (*models.SessionCredentials, error) {
	epoch := fmt.Sprintf("%d", time.Now().UnixMilli())
	channelName := fmt.Sprintf(
		"session_%s_%s_%s",
		prefix(studentID, 5),
		prefix(tutorID, 5),
		suffix(epoch, 6),
	)

	studentUID := rand.Intn(rtcMaxUID) + 1
	tutorUID := rand.Intn(rtcMaxUID) + 1

	studentToken, err := s.buildToken(channelName, studentUID)
	if err != nil {
		return nil, fmt.Errorf("build student token: %w", err)
	}
	tutorToken, err := s.buildToken(channelName, tutorUID)
	if err != nil {
		return nil, fmt.Errorf("build tutor token: %w", err)
	}

	return &models.SessionCredentials{
		ChannelName:  channelName,
		StudentToken: studentToken,
		TutorToken:   tutorToken,
		StudentUID:   studentUID,
		TutorUID:     tutorUID,
	}, nil
}

func (s *RTCService) buildToken(channelName string, uid int) (string, error) {
	now := time.Now()
	claims := &rtcClaims{
		Channel: channelName,
		UID:     uid,
		RTCRole: "publisher",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.appID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(rtcTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.appCertificate))
}

// ValidateToken parses a media token back into its channel and uid.
// Used by tests and the websocket handshake; media delivery itself is
// external.
func (s *RTCService) ValidateToken(tokenString string) (channel string, uid int, err error) {
	claims := &rtcClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.appCertificate), nil
	})
	if err != nil {
		return "", 0, err
	}
	if !token.Valid {
		return "", 0, errors.New("invalid media token")
	}
	return claims.Channel, claims.UID, nil
}

func prefix(value string, n int) string {
	if len(value) < n {
		return value
	}
	return value[:n]
}

func suffix(value string, n int) string {
	if len(value) < n {
		return value
	}
	return value[len(value)-n:]
}
