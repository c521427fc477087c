// internal/pkg/notify/publisher.go
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Publisher pushes warehouse events onto a redis pub/sub channel.
// Publishing is fire-and-forget: downstream consumers (dashboards,
// webhooks) are informational, so a redis outage never fails the
// operation that produced the event.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher creates a redis-backed event publisher
func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
	}
}

type envelope struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publish sends one event to the configured channel
func (p *Publisher) Publish(event string, payload interface{}) {
	if p.client == nil {
		return
	}

	body, err := json.Marshal(envelope{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logrus.WithError(err).WithField("event", event).Warn("Failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		logrus.WithError(err).WithField("event", event).Warn("Failed to publish event")
	}
}
