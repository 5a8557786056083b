// Package events publishes best-effort notifications about ignore
// toggles and purges to Kafka. Nothing in the core depends on these
// events arriving; a broker outage degrades observability, not
// correctness (see SPEC_FULL.md's design notes).
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Publisher writes JSON-encoded events to a single Kafka topic, keyed
// by channel login so all events for one channel land on the same
// partition and stay ordered relative to each other.
type Publisher struct {
	writer *kafka.Writer
	log    *logrus.Logger
}

// New constructs a Publisher. A nil writer (brokers not configured, or
// Kafka disabled) makes Publish a no-op.
func New(brokers []string, topic string, log *logrus.Logger) *Publisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if len(brokers) == 0 || topic == "" {
		return &Publisher{log: log}
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			Async:        true,
		},
		log: log,
	}
}

// Close flushes and releases the underlying writer, if any.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

type event struct {
	Type         string    `json:"type"`
	ChannelLogin string    `json:"channel_login"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int64     `json:"message_count,omitempty"`
}

func (p *Publisher) publish(ctx context.Context, evt event) {
	if p.writer == nil {
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		p.log.WithError(err).Warn("events: failed to marshal event")
		return
	}

	msg := kafka.Message{Key: []byte(evt.ChannelLogin), Value: data}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.WithError(err).WithField("type", evt.Type).Warn("events: failed to publish")
	}
}

// ChannelIgnored publishes a channel.ignored event.
func (p *Publisher) ChannelIgnored(ctx context.Context, channelLogin string) {
	p.publish(ctx, event{Type: "channel.ignored", ChannelLogin: channelLogin, Timestamp: time.Now()})
}

// ChannelUnignored publishes a channel.unignored event.
func (p *Publisher) ChannelUnignored(ctx context.Context, channelLogin string) {
	p.publish(ctx, event{Type: "channel.unignored", ChannelLogin: channelLogin, Timestamp: time.Now()})
}

// MessagesPurged publishes a messages.purged event carrying the number
// of rows removed.
func (p *Publisher) MessagesPurged(ctx context.Context, channelLogin string, count int64) {
	p.publish(ctx, event{Type: "messages.purged", ChannelLogin: channelLogin, Timestamp: time.Now(), MessageCount: count})
}
