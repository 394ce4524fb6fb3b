// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/oops"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by user id.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher writing to topic on the given brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, oops.Code("EVENTS_CONFIG_INVALID").Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, oops.Code("EVENTS_CONFIG_INVALID").Errorf("topic is required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, topic), nil
}

func newKafkaPublisher(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

// Publish encodes the event and writes it synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return oops.Code("EVENT_ENCODE_FAILED").
			With("event_type", string(event.Type)).
			Wrap(err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return oops.Code("EVENT_PUBLISH_FAILED").
			With("topic", p.topic).
			With("event_type", string(event.Type)).
			Wrap(err)
	}
	return nil
}

// Close flushes pending messages and releases connections.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return oops.Code("EVENT_PUBLISHER_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

var _ Publisher = (*KafkaPublisher)(nil)
