package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Lag policies applied by a session whose hub subscription fell behind.
const (
	LagPolicySkip  = "skip"
	LagPolicyClose = "close"
)

type Config struct {
	Addr string `env:"RELAY_ADDR" default:":3000"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"console"`
	LogOutput string `env:"LOG_OUTPUT" default:"stdout"`
	LogFile   string `env:"LOG_FILE"`

	HubCapacity  int `env:"HUB_CAPACITY" default:"100"`
	ResultBuffer int `env:"RESULT_BUFFER" default:"5"`

	CalcDelay        time.Duration `env:"CALC_DELAY" default:"5s"`
	CalcSendPatience time.Duration `env:"CALC_SEND_PATIENCE" default:"1s"`

	Echo      bool   `env:"RELAY_ECHO" default:"false"`
	LagPolicy string `env:"LAG_POLICY" default:"skip"`

	PingInterval time.Duration `env:"WS_PING_INTERVAL" default:"54s"`
	PongTimeout  time.Duration `env:"WS_PONG_TIMEOUT" default:"60s"`
	WriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT" default:"10s"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("RELAY_ADDR is required")
	}
	if c.HubCapacity <= 0 {
		return fmt.Errorf("HUB_CAPACITY must be positive, got %d", c.HubCapacity)
	}
	if c.ResultBuffer <= 0 {
		return fmt.Errorf("RESULT_BUFFER must be positive, got %d", c.ResultBuffer)
	}
	if c.CalcDelay < 0 {
		return fmt.Errorf("CALC_DELAY must not be negative, got %s", c.CalcDelay)
	}
	if c.CalcSendPatience <= 0 {
		return fmt.Errorf("CALC_SEND_PATIENCE must be positive, got %s", c.CalcSendPatience)
	}
	switch c.LagPolicy {
	case LagPolicySkip, LagPolicyClose:
	default:
		return fmt.Errorf("LAG_POLICY must be %q or %q, got %q", LagPolicySkip, LagPolicyClose, c.LagPolicy)
	}
	if c.PongTimeout <= c.PingInterval {
		return fmt.Errorf("WS_PONG_TIMEOUT (%s) must exceed WS_PING_INTERVAL (%s)", c.PongTimeout, c.PingInterval)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("WS_WRITE_TIMEOUT must be positive, got %s", c.WriteTimeout)
	}
	return nil
}
