package websocket

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-spreading-fire/internal/application/calc"
	"go-spreading-fire/internal/application/relay"
	"go-spreading-fire/internal/infrastructure/hub"
	"go-spreading-fire/internal/infrastructure/logger"
	"go-spreading-fire/internal/infrastructure/metrics"
	"go-spreading-fire/internal/infrastructure/registry"
)

const testCalcDelay = 200 * time.Millisecond

type testServer struct {
	url   string
	hub   *hub.Hub
	relay *relay.Relay
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewLogrusLogger(logger.NewDefaultConfig())
	log.SetOutput(io.Discard)

	h := hub.New(64, log)
	r := relay.New(
		h,
		registry.New[string](),
		calc.New(clockwork.NewRealClock(), testCalcDelay, time.Second),
		relay.Options{ResultBuffer: 5},
		metrics.NewRelayMetrics(prometheus.NewRegistry()),
		log,
	)

	router := gin.New()
	InitWebSocketRouter(log, r, Timeouts{
		PingInterval: time.Second,
		PongTimeout:  2 * time.Second,
		WriteTimeout: time.Second,
	}, router.Group(""))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		url:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		hub:   h,
		relay: r,
	}
}

// dial connects a client and waits until its session is subscribed.
func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	before := s.hub.SubscriberCount()

	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return s.hub.SubscriberCount() == before+1 },
		time.Second, 5*time.Millisecond)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

func receive(t *testing.T, conn *websocket.Conn, within time.Duration) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(within))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	return string(data)
}

func receiveNothing(t *testing.T, conn *websocket.Conn, within time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(within))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message %q", string(data))

	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestWebSocket_BroadcastToOtherClients(t *testing.T) {
	srv := newTestServer(t)
	s1, s2, s3 := srv.dial(t), srv.dial(t), srv.dial(t)

	send(t, s1, "hello")

	assert.Equal(t, "hello", receive(t, s2, time.Second))
	assert.Equal(t, "hello", receive(t, s3, time.Second))
}

func TestWebSocket_CalculationResultOnlyForRequester(t *testing.T) {
	srv := newTestServer(t)
	s1, s2 := srv.dial(t), srv.dial(t)

	send(t, s1, "[Run calculation] please")

	assert.True(t, strings.HasPrefix(receive(t, s1, 2*time.Second), "calculation done at "))
	receiveNothing(t, s2, testCalcDelay)
}

func TestWebSocket_RepeatedTriggerDeliversOneResult(t *testing.T) {
	srv := newTestServer(t)
	s1 := srv.dial(t)

	send(t, s1, "[Run calculation]")
	send(t, s1, "[Run calculation]")

	assert.True(t, strings.HasPrefix(receive(t, s1, 2*time.Second), "calculation done at "))
	receiveNothing(t, s1, 2*testCalcDelay)
}

func TestWebSocket_BinaryFramesAreIgnored(t *testing.T) {
	srv := newTestServer(t)
	s1, s2 := srv.dial(t), srv.dial(t)

	require.NoError(t, s1.WriteMessage(websocket.BinaryMessage, []byte{0x1, 0x2}))
	send(t, s1, "after binary")

	assert.Equal(t, "after binary", receive(t, s2, time.Second))
}

func TestWebSocket_ShutdownNotifiesAndCloses(t *testing.T) {
	srv := newTestServer(t)
	s1, s2 := srv.dial(t), srv.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.relay.Shutdown(ctx))

	for _, c := range []*websocket.Conn{s1, s2} {
		assert.Equal(t, hub.ShutdownText, receive(t, c, time.Second))

		c.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err := c.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	}
	assert.Zero(t, srv.relay.ActiveSessions())
}

func TestWebSocket_ClientDisconnectReleasesSession(t *testing.T) {
	srv := newTestServer(t)
	s1 := srv.dial(t)

	send(t, s1, "[Run calculation]")
	require.Eventually(t, func() bool { return srv.relay.PendingCalculations() == 1 },
		time.Second, 5*time.Millisecond)

	require.NoError(t, s1.Close())

	require.Eventually(t, func() bool {
		return srv.relay.ActiveSessions() == 0 && srv.relay.PendingCalculations() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, srv.hub.SubscriberCount())
}
