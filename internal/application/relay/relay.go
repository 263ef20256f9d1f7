// Package relay bridges client connections to the process-wide hub. Every
// accepted connection becomes a session that republishes the client's text,
// forwards hub traffic back to the client, and runs at most one background
// calculation on the client's behalf.
package relay

import (
	"context"
	"errors"
	"sync"

	"go-spreading-fire/internal/application/calc"
	"go-spreading-fire/internal/infrastructure/config"
	"go-spreading-fire/internal/infrastructure/hub"
	"go-spreading-fire/internal/infrastructure/logger"
	"go-spreading-fire/internal/infrastructure/metrics"
	"go-spreading-fire/internal/infrastructure/registry"
)

// TriggerPrefix marks an inbound message as a calculation request.
const TriggerPrefix = "[Run calculation]"

// Conn is the duplex text channel a transport provides for one client.
// ReadText and WriteText are each called from a single goroutine; Close may
// be called concurrently with both and must unblock a pending ReadText.
type Conn interface {
	ReadText() (string, error)
	WriteText(text string) error
	Close() error
}

type Options struct {
	// ResultBuffer is the capacity of each session's private delivery channel.
	ResultBuffer int
	// Echo delivers a client's own broadcasts back to it.
	Echo bool
	// LagPolicy is config.LagPolicySkip or config.LagPolicyClose.
	LagPolicy string
}

// Relay creates and tracks sessions. One Relay serves the whole process.
type Relay struct {
	hub     *hub.Hub
	tasks   *registry.Registry[string]
	calc    *calc.Calculator
	opts    Options
	metrics *metrics.RelayMetrics
	logger  logger.Logger

	mu     sync.Mutex
	active int
	idle   chan struct{}
}

func New(
	h *hub.Hub,
	tasks *registry.Registry[string],
	calculator *calc.Calculator,
	opts Options,
	m *metrics.RelayMetrics,
	log logger.Logger,
) *Relay {
	if opts.ResultBuffer <= 0 {
		opts.ResultBuffer = 5
	}
	if opts.LagPolicy == "" {
		opts.LagPolicy = config.LagPolicySkip
	}
	return &Relay{
		hub:     h,
		tasks:   tasks,
		calc:    calculator,
		opts:    opts,
		metrics: m,
		logger:  log.WithField("component", "relay"),
	}
}

// Serve runs a session for conn until the client disconnects, any I/O path
// fails, ctx is cancelled, or the hub closes. identity keys the session's
// background calculation. Serve always closes conn before returning.
func (r *Relay) Serve(ctx context.Context, conn Conn, identity string) {
	sub, err := r.hub.Subscribe()
	if err != nil {
		r.logger.Warnf("Rejecting connection from %s: %v", identity, err)
		_ = conn.Close()
		return
	}

	r.track(1)
	defer r.track(-1)

	s := newSession(r, conn, sub, identity)
	s.run(ctx)
}

// ActiveSessions returns the number of sessions currently being served.
func (r *Relay) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// PendingCalculations returns the number of identities with an installed
// background calculation.
func (r *Relay) PendingCalculations() int {
	return r.tasks.Len()
}

// Publish sends server-originated text to every session.
func (r *Relay) Publish(text string) (int, error) {
	n, err := r.hub.Publish(hub.ServerMessage(text))
	if err != nil {
		return 0, err
	}
	r.metrics.MessagesPublished.Inc()
	return n, nil
}

// Shutdown broadcasts the shutdown notice, closes the hub and waits for every
// session to deliver its backlog and close.
func (r *Relay) Shutdown(ctx context.Context) error {
	if _, err := r.hub.Publish(hub.ShutdownMessage()); err != nil && !errors.Is(err, hub.ErrHubClosed) {
		return err
	}
	r.logger.Info(hub.ShutdownText)

	if err := r.hub.Stop(ctx); err != nil {
		return err
	}
	return r.Drain(ctx)
}

// Drain blocks until no session is active or ctx is done.
func (r *Relay) Drain(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.active == 0 {
			r.mu.Unlock()
			return nil
		}
		if r.idle == nil {
			r.idle = make(chan struct{})
		}
		idle := r.idle
		r.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Relay) track(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active += delta
	r.metrics.ActiveSessions.Add(float64(delta))
	if r.active == 0 && r.idle != nil {
		close(r.idle)
		r.idle = nil
	}
}
