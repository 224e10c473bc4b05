package handlers

import (
	"errors"
	"strings"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/Project404-PasalPintar/pasalpintar-backend/internal/realtime"
	"github.com/Project404-PasalPintar/pasalpintar-backend/pkg/utils"
)

const (
	eventWriteWait = 10 * time.Second
	eventPingEvery = 30 * time.Second
)

// EventsHandler streams a user's session events over a websocket. The
// events themselves travel through the Redis broker, so a client can
// connect to any instance and still see them.
type EventsHandler struct {
	broker    *realtime.Broker
	jwtSecret string
}

func NewEventsHandler(broker *realtime.Broker, jwtSecret string) *EventsHandler {
	return &EventsHandler{broker: broker, jwtSecret: jwtSecret}
}

// WebSocketAuth validates the token before the upgrade. Browsers cannot
// set headers on websocket requests, so a token query parameter is
// accepted too.
func (h *EventsHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Invalid or expired token")
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *EventsHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	if userID == "" {
		conn.Close()
		return
	}

	client := h.broker.Subscribe(userID)
	defer h.broker.Unsubscribe(client)

	// The read side only notices the peer going away. client.Done stays
	// owned by the broker.
	readerGone := make(chan struct{})
	go func() {
		defer close(readerGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventPingEvery)
	defer ticker.Stop()

	for {
		select {
		case event := <-client.Events:
			conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				log.Debug().Err(err).Str("userId", userID).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readerGone:
			return
		case <-client.Done:
			return
		}
	}
}

func (h *EventsHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}
