// Package messaging provides a NATS client wrapper for the chat event feed.
// The chat server publishes one event per created or deleted message on a
// per-event subject so downstream services can react without polling.
package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gameday/event-chat/internal/chat"
)

// SubjectChatEvents is the subject prefix; the event ID is appended.
const SubjectChatEvents = "eventchat.event"

// Chat event types.
const (
	TypeMessageCreated = "message_created"
	TypeMessageDeleted = "message_deleted"
)

// ChatEvent is the payload published on the feed.
type ChatEvent struct {
	Type      string        `json:"type"`
	EventID   string        `json:"eventId"`
	MessageID string        `json:"messageId"`
	Message   *chat.Message `json:"message,omitempty"` // set for message_created
	At        time.Time     `json:"at"`
}

// ChatSubject returns the subject for one event's feed.
func ChatSubject(eventID string) string {
	return SubjectChatEvents + "." + eventID
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn   *nats.Conn
	logger *zap.Logger
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "chatserver",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, logger *zap.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("nats")

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info("connected", zap.String("url", nc.ConnectedUrl()))

	return &NATSClient{
		conn:   nc,
		logger: logger,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// PublishChatEvent publishes ev on its event's subject.
func (c *NATSClient) PublishChatEvent(ev ChatEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats marshal chat event: %w", err)
	}
	return c.conn.Publish(ChatSubject(ev.EventID), data)
}

// SubscribeChatEvents registers handler for one event's feed. Pass "*" to
// receive every event. Malformed payloads are logged and skipped.
func (c *NATSClient) SubscribeChatEvents(eventID string, handler func(ChatEvent)) error {
	subject := ChatSubject(eventID)
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		var ev ChatEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.logger.Warn("dropping malformed chat event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		handler(ev)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	if old, ok := c.subs[subject]; ok {
		_ = old.Unsubscribe()
	}
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// UnsubscribeChatEvents removes the subscription for one event's feed.
func (c *NATSClient) UnsubscribeChatEvents(eventID string) error {
	return c.unsubscribe(ChatSubject(eventID))
}

// Flush blocks until the server has processed all buffered publishes.
func (c *NATSClient) Flush() error {
	return c.conn.Flush()
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("drain subscription", zap.String("subject", subject), zap.Error(err))
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("connection drain", zap.Error(err))
	}
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *NATSClient) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}
