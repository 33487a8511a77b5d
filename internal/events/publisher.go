package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	MediaUploaded = "media.uploaded"
	MediaDeleted  = "media.deleted"
)

type MediaEvent struct {
	Event   string    `json:"event"`
	MediaID string    `json:"media_id"`
	Type    string    `json:"type,omitempty"`
	Name    string    `json:"name,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher emits media lifecycle events to Kafka. A nil Publisher is a
// no-op, so callers never guard the disabled case.
type Publisher struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewPublisher(brokers []string, topic string, log *zap.SugaredLogger) *Publisher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
		log: log,
	}
}

func (p *Publisher) Publish(ctx context.Context, ev MediaEvent) {
	if p == nil {
		return
	}
	ev.At = time.Now().UTC()
	b, _ := json.Marshal(ev)
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.MediaID), Value: b}); err != nil {
		p.log.Warnw("publish media event", "event", ev.Event, "error", err)
	}
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
