package main

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-spreading-fire/internal/application/calc"
	"go-spreading-fire/internal/application/relay"
	"go-spreading-fire/internal/infrastructure/config"
	"go-spreading-fire/internal/infrastructure/hub"
	"go-spreading-fire/internal/infrastructure/logger"
	"go-spreading-fire/internal/infrastructure/metrics"
	"go-spreading-fire/internal/infrastructure/registry"
	"go-spreading-fire/internal/infrastructure/server"
)

type testApp struct {
	cfg   *config.Config
	hub   *hub.Hub
	relay *relay.Relay
	reg   *prometheus.Registry
	log   logger.Logger
}

func newTestApp(t *testing.T, addr string) *testApp {
	t.Helper()

	log := logger.NewLogrusLogger(logger.NewDefaultConfig())
	log.SetOutput(io.Discard)

	cfg := &config.Config{
		Addr:            addr,
		HubCapacity:     16,
		ResultBuffer:    5,
		CalcDelay:       time.Second,
		LagPolicy:       config.LagPolicySkip,
		PingInterval:    time.Second,
		PongTimeout:     2 * time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}

	reg := prometheus.NewRegistry()
	h := hub.New(cfg.HubCapacity, log)
	r := relay.New(
		h,
		registry.New[string](),
		calc.New(clockwork.NewRealClock(), cfg.CalcDelay, time.Second),
		relay.Options{ResultBuffer: cfg.ResultBuffer, LagPolicy: cfg.LagPolicy},
		metrics.NewRelayMetrics(reg),
		log,
	)
	return &testApp{cfg: cfg, hub: h, relay: r, reg: reg, log: log}
}

func (a *testApp) application() *Application {
	router := InitRouter(a.cfg, a.hub, a.relay, a.reg, a.log)
	return newApplication(a.cfg, a.log, server.NewHTTPServer(a.cfg.Addr, router), a.relay)
}

func runAsync(app *Application, ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- app.Run(ctx) }()
	return errc
}

func TestApplication_RunReturnsWhenPortIsTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	a := newTestApp(t, ln.Addr().String())
	errc := runAsync(a.application(), context.Background())

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after the listener failed")
	}
	assert.False(t, a.hub.IsRunning(), "hub must be stopped on a failed start")
}

func TestApplication_RunStopsOnCancel(t *testing.T) {
	a := newTestApp(t, "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(a.application(), ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, a.hub.IsRunning())
}
