// Package mq is an in-process stand-in for the external message-queue
// transport named in spec §1/§6: a channel-backed implementation of
// domain.MessageQueueProducer[T], grounded on the teacher's Event
// publish-style API shape (internal/domain/event.go) since no third-party
// broker client appears anywhere in the example pack.
package mq

import (
	"context"
	"fmt"
)

// Envelope pairs a published message with the topic it was sent to.
type Envelope[T any] struct {
	Topic   string
	Message T
}

// ChannelProducer publishes onto a single buffered channel shared by every
// topic; subscribers filter on Envelope.Topic. This keeps the producer
// generic over T without per-topic channel plumbing.
type ChannelProducer[T any] struct {
	out chan Envelope[T]
}

// NewChannelProducer creates a producer whose channel has room for buffer
// pending envelopes before SendObject blocks.
func NewChannelProducer[T any](buffer int) *ChannelProducer[T] {
	return &ChannelProducer[T]{out: make(chan Envelope[T], buffer)}
}

// SendObject publishes msg under topic, honoring ctx cancellation while the
// channel is full (spec §5: every collaborator call is a suspension
// point).
func (p *ChannelProducer[T]) SendObject(ctx context.Context, msg T, topic string) error {
	select {
	case p.out <- Envelope[T]{Topic: topic, Message: msg}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mq: send to %q canceled: %w", topic, ctx.Err())
	}
}

// Subscribe returns the read end of the shared channel for test harnesses
// and local driver loops to consume.
func (p *ChannelProducer[T]) Subscribe() <-chan Envelope[T] {
	return p.out
}
