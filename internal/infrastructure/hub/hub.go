package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go-spreading-fire/internal/infrastructure/logger"
)

// ErrHubClosed is returned by Publish after Stop, and by Subscription.Recv
// once a subscriber has drained everything published before Stop.
var ErrHubClosed = errors.New("hub is closed")

// LaggedError reports that a subscriber fell behind the retained backlog.
// The subscription has already been moved to the oldest retained message.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged behind hub, %d messages skipped", e.Skipped)
}

// Hub fans text messages out to every subscription. Messages live in a
// fixed-size ring; each subscription keeps its own cursor into it, so a slow
// subscriber never blocks Publish.
type Hub struct {
	mu sync.Mutex

	ring []Message
	// next is the sequence number the next published message will get.
	next uint64
	// wake is closed and replaced on every publish and on Stop.
	wake chan struct{}

	running     bool
	subscribers int

	logger logger.Logger
}

// New creates a running hub retaining at most capacity messages.
func New(capacity int, logger logger.Logger) *Hub {
	if capacity <= 0 {
		panic("hub: capacity must be positive")
	}
	return &Hub{
		ring:    make([]Message, capacity),
		wake:    make(chan struct{}),
		running: true,
		logger:  logger.WithField("component", "hub"),
	}
}

// Stop closes the hub. Subscribers still receive the backlog they have not
// read yet and then observe ErrHubClosed.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil
	}
	h.running = false
	close(h.wake)

	h.logger.Infof("Hub stopped with %d subscribers", h.subscribers)
	return nil
}

// IsRunning returns true until Stop is called.
func (h *Hub) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// SubscriberCount returns the number of open subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribers
}

// Publish appends msg for every open subscription and returns how many
// subscriptions will see it. With no subscribers the message is discarded.
func (h *Hub) Publish(msg Message) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return 0, ErrHubClosed
	}
	if h.subscribers == 0 {
		return 0, nil
	}

	h.ring[h.next%uint64(len(h.ring))] = msg
	h.next++

	close(h.wake)
	h.wake = make(chan struct{})

	h.logger.Debugf("Published message %s from %q to %d subscribers", msg.ID, msg.Origin, h.subscribers)
	return h.subscribers, nil
}

// Subscribe returns a subscription that observes every message published
// from now on, in publish order.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil, ErrHubClosed
	}
	h.subscribers++
	return &Subscription{hub: h, cursor: h.next}, nil
}

// oldest returns the sequence number of the oldest retained message.
func (h *Hub) oldest() uint64 {
	capacity := uint64(len(h.ring))
	if h.next <= capacity {
		return 0
	}
	return h.next - capacity
}

// Subscription is one independent cursor into the hub. It is not safe for
// concurrent use by multiple goroutines.
type Subscription struct {
	hub    *Hub
	cursor uint64
	closed bool
}

// Recv blocks until the next message is available, ctx is done, or the hub
// is closed and fully drained. A *LaggedError is returned when messages were
// overwritten before this subscription read them; the next Recv continues
// from the oldest retained message.
func (s *Subscription) Recv(ctx context.Context) (Message, error) {
	h := s.hub
	for {
		h.mu.Lock()
		if s.closed {
			h.mu.Unlock()
			return Message{}, ErrHubClosed
		}

		if oldest := h.oldest(); s.cursor < oldest {
			skipped := oldest - s.cursor
			s.cursor = oldest
			h.mu.Unlock()
			return Message{}, &LaggedError{Skipped: skipped}
		}

		if s.cursor < h.next {
			msg := h.ring[s.cursor%uint64(len(h.ring))]
			s.cursor++
			h.mu.Unlock()
			return msg, nil
		}

		if !h.running {
			h.mu.Unlock()
			return Message{}, ErrHubClosed
		}

		wake := h.wake
		h.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	h.subscribers--
}
