// Package redis provides a vigil producer for Redis pub/sub messages.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrClosed is returned when the message channel closes while the
// subscription is still in use.
var ErrClosed = errors.New("redis: subscription channel closed")

// Message is a message received on a subscription.
type Message struct {
	Channel string
	Pattern string
	Payload string
}

// Subscription is a fallible producer of pub/sub messages.
//
// The subscription is established on the first call to Next; a failure to
// confirm it is returned as the error. Cancelling the context passed to Next
// closes the subscription, and Next returns io.EOF once it is closed.
type Subscription struct {
	client  *redis.Client
	targets []string
	pattern bool

	mu     sync.Mutex
	pubsub *redis.PubSub
	ch     <-chan *redis.Message
	closed bool
}

// Subscribe creates a Subscription to the given channels.
//
// Example:
//
//	m := vigil.NewFallible(ctx, redis.Subscribe(client, "events"), func(ctx context.Context, msg redis.Message) {
//	    handle(msg.Payload)
//	})
func Subscribe(client *redis.Client, channels ...string) *Subscription {
	return &Subscription{client: client, targets: channels}
}

// PSubscribe creates a Subscription to the channels matching the given
// glob-style patterns.
func PSubscribe(client *redis.Client, patterns ...string) *Subscription {
	return &Subscription{client: client, targets: patterns, pattern: true}
}

// Next returns the next message.
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	ch, err := s.acquire(ctx)
	if err != nil {
		return Message{}, err
	}

	select {
	case <-ctx.Done():
		s.Close() //nolint:errcheck // releasing on the way out
		return Message{}, ctx.Err()

	case msg, ok := <-ch:
		if !ok {
			if s.isClosed() {
				return Message{}, io.EOF
			}
			return Message{}, ErrClosed
		}
		return Message{
			Channel: msg.Channel,
			Pattern: msg.Pattern,
			Payload: msg.Payload,
		}, nil
	}
}

// Close unsubscribes and releases the connection. It is idempotent.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.pubsub == nil {
		return nil
	}
	return s.pubsub.Close()
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// acquire returns the message channel, subscribing on first use.
func (s *Subscription) acquire(ctx context.Context) (<-chan *redis.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, io.EOF
	}
	if s.ch != nil {
		return s.ch, nil
	}

	var pubsub *redis.PubSub
	if s.pattern {
		pubsub = s.client.PSubscribe(ctx, s.targets...)
	} else {
		pubsub = s.client.Subscribe(ctx, s.targets...)
	}

	// Verify subscription worked
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		s.closed = true
		return nil, fmt.Errorf("failed to subscribe to %v: %w", s.targets, err)
	}

	s.pubsub = pubsub
	s.ch = pubsub.Channel()
	return s.ch, nil
}
