package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go-spreading-fire/internal/application/calc"
	"go-spreading-fire/internal/infrastructure/config"
	"go-spreading-fire/internal/infrastructure/hub"
	"go-spreading-fire/internal/infrastructure/logger"
	"go-spreading-fire/internal/infrastructure/registry"
)

// session owns one connection's hub subscription, its private results
// channel and the goroutines moving data between them. The private channel is
// the only way to reach the client: hub traffic and calculation results both
// pass through it, and a single writer goroutine drains it.
type session struct {
	id       string
	identity string
	relay    *Relay
	conn     Conn
	sub      *hub.Subscription

	results chan string
	// hubDone is closed once the hub has closed and every backlog message
	// has been queued on results.
	hubDone chan struct{}

	calcs sync.WaitGroup

	logger logger.Logger
}

func newSession(r *Relay, conn Conn, sub *hub.Subscription, identity string) *session {
	id := uuid.NewString()
	return &session{
		id:       id,
		identity: identity,
		relay:    r,
		conn:     conn,
		sub:      sub,
		results:  make(chan string, r.opts.ResultBuffer),
		hubDone:  make(chan struct{}),
		logger: r.logger.WithFields(logger.Fields{
			"session_id":  id,
			"remote_addr": identity,
		}),
	}
}

func (s *session) run(ctx context.Context) {
	s.logger.Info("session joined")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.guard("hub listener", cancel, func() error { return s.forwardHub(gctx) }))
	g.Go(s.guard("client", cancel, func() error { return s.serveClient(gctx) }))
	err := g.Wait()

	s.close()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Infof("session closed: %v", err)
		return
	}
	s.logger.Info("session closed")
}

// close releases everything the session owns. Every path has returned by the
// time it runs.
func (s *session) close() {
	if h := s.relay.tasks.RemoveAndCancel(s.identity); h != nil {
		<-h.Done()
	}
	s.calcs.Wait()
	s.sub.Close()
	if err := s.conn.Close(); err != nil {
		s.logger.Debugf("closing connection: %v", err)
	}
}

// guard wraps a session path so that its end, including a panic, cancels its
// siblings.
func (s *session) guard(name string, cancel context.CancelFunc, fn func() error) func() error {
	return func() (err error) {
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				s.logger.Errorf("%s panicked: %v", name, p)
				err = fmt.Errorf("%s panicked: %v", name, p)
			}
		}()
		return fn()
	}
}

// forwardHub moves hub messages onto the private channel.
func (s *session) forwardHub(ctx context.Context) error {
	for {
		msg, err := s.sub.Recv(ctx)
		if err != nil {
			var lagged *hub.LaggedError
			switch {
			case errors.As(err, &lagged):
				s.relay.metrics.MessagesSkipped.Add(float64(lagged.Skipped))
				s.logger.Warnf("hub lagged, %d messages skipped", lagged.Skipped)
				if s.relay.opts.LagPolicy == config.LagPolicyClose {
					return err
				}
				continue
			case errors.Is(err, hub.ErrHubClosed):
				// Let the writer flush the backlog; it ends the session.
				close(s.hubDone)
				<-ctx.Done()
				return nil
			default:
				return err
			}
		}

		if msg.Origin == s.id && !s.relay.opts.Echo {
			continue
		}

		select {
		case s.results <- msg.Text:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// serveClient races the inbound reader against the outbound writer.
func (s *session) serveClient(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ReadText cannot observe ctx; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.guard("reader", cancel, func() error { return s.readClient(gctx) }))
	g.Go(s.guard("writer", cancel, func() error { return s.writeClient(gctx) }))
	return g.Wait()
}

func (s *session) readClient(ctx context.Context) error {
	for {
		text, err := s.conn.ReadText()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		if strings.HasPrefix(text, TriggerPrefix) {
			s.startCalculation(ctx)
			continue
		}
		s.publish(text)
	}
}

func (s *session) writeClient(ctx context.Context) error {
	for {
		select {
		case text := <-s.results:
			if err := s.write(text); err != nil {
				return err
			}
		case <-s.hubDone:
			for {
				select {
				case text := <-s.results:
					if err := s.write(text); err != nil {
						return err
					}
				default:
					return hub.ErrHubClosed
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *session) write(text string) error {
	if err := s.conn.WriteText(text); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (s *session) publish(text string) {
	n, err := s.relay.hub.Publish(hub.NewMessage(s.id, text))
	if err != nil {
		s.logger.Debugf("dropping client message: %v", err)
		return
	}
	s.relay.metrics.MessagesPublished.Inc()
	s.logger.Debugf("republished client message to %d subscribers", n)
}

// startCalculation replaces any calculation running for this identity.
func (s *session) startCalculation(ctx context.Context) {
	job := s.relay.calc.Schedule()

	s.calcs.Add(1)
	h := registry.Go(ctx, func(ctx context.Context) {
		defer s.calcs.Done()
		s.record(job.Run(ctx, s.results))
	})

	replaced := s.relay.tasks.Replace(s.identity, h)
	s.relay.metrics.CalculationsStarted.Inc()
	s.logger.WithField("replaced", replaced).Info("calc started")
}

func (s *session) record(outcome calc.Outcome) {
	switch outcome {
	case calc.Completed:
		s.relay.metrics.CalculationsCompleted.Inc()
		s.logger.Debug("calc done")
	case calc.Aborted:
		s.relay.metrics.CalculationsAborted.Inc()
		s.logger.Debug("calc aborted")
	case calc.Dropped:
		s.relay.metrics.ResultsDropped.Inc()
		s.logger.Warn("calc result dropped, session is not reading")
	}
}
