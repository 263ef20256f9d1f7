package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-spreading-fire/internal/infrastructure/logger"
)

var errConnClosed = errors.New("connection closed")

// fakeConn is an in-memory Conn. Tests play the client by sending on inbound
// and reading from outbound.
type fakeConn struct {
	inbound  chan string
	outbound chan string

	readPanic  atomic.Bool
	failWrites atomic.Bool

	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeConn(outboundBuffer int) *fakeConn {
	return &fakeConn{
		inbound:  make(chan string),
		outbound: make(chan string, outboundBuffer),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadText() (string, error) {
	if c.readPanic.Load() {
		panic("transport exploded")
	}
	select {
	case text := <-c.inbound:
		return text, nil
	case <-c.closed:
		return "", io.EOF
	}
}

func (c *fakeConn) WriteText(text string) error {
	if c.failWrites.Load() {
		return errors.New("broken pipe")
	}
	select {
	case c.outbound <- text:
		return nil
	case <-c.closed:
		return errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// send plays a client message into the session.
func (c *fakeConn) send(t *testing.T, text string) {
	t.Helper()
	select {
	case c.inbound <- text:
	case <-time.After(time.Second):
		t.Fatalf("session did not read %q", text)
	}
}

// expect waits for the next message written to the client.
func (c *fakeConn) expect(t *testing.T) string {
	t.Helper()
	select {
	case text := <-c.outbound:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("expected a message for the client")
		return ""
	}
}

// expectNothing asserts that no message reaches the client for a short while.
func (c *fakeConn) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case text := <-c.outbound:
		t.Fatalf("unexpected message for the client: %q", text)
	case <-time.After(100 * time.Millisecond):
	}
}

type mockLogger struct{}

func (m *mockLogger) Debug(msg string)                              {}
func (m *mockLogger) Debugf(format string, args ...any)             {}
func (m *mockLogger) Info(msg string)                               {}
func (m *mockLogger) Infof(format string, args ...any)              {}
func (m *mockLogger) Warn(msg string)                               {}
func (m *mockLogger) Warnf(format string, args ...any)              {}
func (m *mockLogger) Error(msg string)                              {}
func (m *mockLogger) Errorf(format string, args ...any)             {}
func (m *mockLogger) Fatal(msg string)                              {}
func (m *mockLogger) Fatalf(format string, args ...any)             {}
func (m *mockLogger) WithField(key string, value any) logger.Logger { return m }
func (m *mockLogger) WithFields(fields logger.Fields) logger.Logger { return m }
func (m *mockLogger) WithContext(ctx context.Context) logger.Logger { return m }
func (m *mockLogger) SetLevel(level logger.Level)                   {}
func (m *mockLogger) SetOutput(output io.Writer)                    {}
