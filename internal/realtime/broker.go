package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SessionEvent is one session lifecycle notification delivered to a
// connected client.
type SessionEvent struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id"`
	Data      map[string]string `json:"data,omitempty"`
}

const (
	EventSessionRequested = "session_requested"
	EventSessionAccepted  = "session_accepted"
	EventSessionPaused    = "session_paused"
	EventSessionResumed   = "session_resumed"
	EventSessionEnded     = "session_ended"
)

type Client struct {
	UserID string
	Events chan SessionEvent
	Done   chan struct{}

	closeOnce sync.Once
}

// Close signals the client's write loop. Safe to call more than once;
// both the connection handler and the broker tear clients down.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Done) })
}

// userSubscription ties the clients of one user to the single Redis
// subscription that feeds them.
type userSubscription struct {
	clients map[*Client]bool
	pubsub  *redis.PubSub
}

// Broker fans session events out to connected clients through Redis
// pub/sub, keyed by user ID. Events published on one instance reach
// clients connected to any instance; the session core never talks to a
// process-local registry.
type Broker struct {
	redis  *RedisClient
	subs   map[string]*userSubscription
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroker(redisClient *RedisClient) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:  redisClient,
		subs:   make(map[string]*userSubscription),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *Broker) Subscribe(userID string) *Client {
	client := &Client{
		UserID: userID,
		Events: make(chan SessionEvent, 64),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	sub, ok := b.subs[userID]
	if !ok {
		sub = &userSubscription{
			clients: make(map[*Client]bool),
			pubsub:  b.redis.Subscribe(b.ctx, UserChannel(userID)),
		}
		b.subs[userID] = sub
		go b.fanout(userID, sub.pubsub)
	}
	sub.clients[client] = true
	clientCount := len(sub.clients)
	b.mu.Unlock()

	log.Info().
		Str("userId", userID).
		Int("clientCount", clientCount).
		Msg("realtime client subscribed")

	return client
}

// Unsubscribe removes the client and, when it was the user's last one,
// closes the user's Redis subscription so the fanout goroutine exits.
// Idempotent.
func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	sub, ok := b.subs[client.UserID]
	if !ok || !sub.clients[client] {
		b.mu.Unlock()
		client.Close()
		return
	}
	delete(sub.clients, client)
	remaining := len(sub.clients)
	var pubsub *redis.PubSub
	if remaining == 0 {
		pubsub = sub.pubsub
		delete(b.subs, client.UserID)
	}
	b.mu.Unlock()

	client.Close()
	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			log.Warn().Err(err).Str("userId", client.UserID).Msg("close redis subscription")
		}
	}

	log.Info().
		Str("userId", client.UserID).
		Int("clientCount", remaining).
		Msg("realtime client unsubscribed")
}

func (b *Broker) Publish(ctx context.Context, userID string, event SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, UserChannel(userID), payload).Err()
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	for userID, sub := range b.subs {
		sub.pubsub.Close()
		for client := range sub.clients {
			client.Close()
		}
		delete(b.subs, userID)
	}
}

func (b *Broker) fanout(userID string, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("userId", userID).Msg("drop malformed realtime event")
				continue
			}
			b.deliver(userID, event)
		}
	}
}

func (b *Broker) deliver(userID string, event SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, ok := b.subs[userID]
	if !ok {
		return
	}
	for client := range sub.clients {
		select {
		case client.Events <- event:
		default:
			// Slow consumer; drop rather than block the fanout.
			log.Warn().Str("userId", userID).Msg("realtime client buffer full, dropping event")
		}
	}
}
