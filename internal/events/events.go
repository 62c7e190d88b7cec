// Package events publishes account lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/vidtube/apiserver/internal/mq"
	"github.com/vidtube/apiserver/types"
)

type Type string

const (
	UserRegistered        Type = "user.registered"
	UserProfileUpdated    Type = "user.profile_updated"
	UserAvatarUpdated     Type = "user.avatar_updated"
	UserCoverImageUpdated Type = "user.cover_image_updated"
)

// Event is the JSON body published for each account change.
type Event struct {
	Type       Type              `json:"type"`
	UserID     int               `json:"userId"`
	Username   string            `json:"username"`
	OccurredAt time.Time         `json:"occurredAt"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewEvent builds an event for user stamped with the current time.
func NewEvent(eventType Type, user types.User) Event {
	return Event{
		Type:       eventType,
		UserID:     user.ID,
		Username:   user.Username,
		OccurredAt: time.Now().UTC(),
	}
}

// Queue is the subset of mq.MQ the publisher needs.
type Queue interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// Publisher sends events to a queue. A nil queue makes it a no-op.
type Publisher struct {
	queue  Queue
	logger zerolog.Logger
}

func NewPublisher(queue Queue, logger zerolog.Logger) *Publisher {
	return &Publisher{
		queue:  queue,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// Publish sends event. Failures are logged and never returned.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil || p.queue == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("type", string(event.Type)).Msg("encode event")
		return
	}

	attrs := map[string]string{
		"type":             string(event.Type),
		mq.OrderingKeyAttr: strconv.Itoa(event.UserID),
		mq.ContentTypeAttr: "application/json",
	}
	id, err := p.queue.Publish(ctx, data, attrs)
	if err != nil {
		p.logger.Warn().Err(err).Str("type", string(event.Type)).Int("user_id", event.UserID).Msg("publish event failed")
		return
	}
	p.logger.Debug().Str("type", string(event.Type)).Str("message_id", id).Msg("event published")
}

// Decode parses a message produced by Publish.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	err := json.Unmarshal(msg.Data, &event)
	return event, err
}
