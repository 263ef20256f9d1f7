package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"go-spreading-fire/internal/application/calc"
	"go-spreading-fire/internal/application/relay"
	"go-spreading-fire/internal/infrastructure/config"
	"go-spreading-fire/internal/infrastructure/hub"
	"go-spreading-fire/internal/infrastructure/logger"
	"go-spreading-fire/internal/infrastructure/metrics"
	"go-spreading-fire/internal/infrastructure/registry"
	"go-spreading-fire/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	sctx := WithSignal(context.Background())

	log := logger.NewLogrusLogger(logger.NewConfig(cfg.LogLevel, cfg.LogFormat, cfg.LogOutput, cfg.LogFile))

	reg := metrics.NewRegistry()
	hubInstance := hub.New(cfg.HubCapacity, log)
	relayInstance := relay.New(
		hubInstance,
		registry.New[string](),
		calc.New(clockwork.NewRealClock(), cfg.CalcDelay, cfg.CalcSendPatience),
		relay.Options{
			ResultBuffer: cfg.ResultBuffer,
			Echo:         cfg.Echo,
			LagPolicy:    cfg.LagPolicy,
		},
		metrics.NewRelayMetrics(reg),
		log,
	)

	router := InitRouter(cfg, hubInstance, relayInstance, reg, log)
	httpSrv := server.NewHTTPServer(cfg.Addr, router)
	app := newApplication(cfg, log, httpSrv, relayInstance)

	log.Infof("listening on %s", cfg.Addr)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
		os.Exit(1)
	}
}

type Application struct {
	cfg     *config.Config
	logger  logger.Logger
	httpSrv server.Server
	relay   *relay.Relay
}

func newApplication(
	cfg *config.Config,
	logger logger.Logger,
	httpSrv *server.HTTPServer,
	relayInstance *relay.Relay,
) *Application {
	return &Application{
		cfg:     cfg,
		logger:  logger.WithField("app", "relay"),
		httpSrv: httpSrv,
		relay:   relayInstance,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(gctx)
	})

	// A failed Start cancels gctx, so the listener error also shuts down.
	eg.Go(func() error {
		<-gctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			app.cfg.ShutdownTimeout,
		)
		defer cancel()

		// Sessions first: they deliver the shutdown notice and close.
		if err := app.relay.Shutdown(gracefulshutdownCtx); err != nil {
			app.logger.Warnf("sessions did not drain: %v", err)
		}

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
