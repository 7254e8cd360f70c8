// Package app wires the relay binary: configuration, the logging router,
// the websocket hub, and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-yaml"

	"footlights/stage/internal/relay"
	"footlights/stage/internal/telemetry"
	"footlights/stage/logging"
	"footlights/stage/logging/sinks"
)

// Config is the relay's runtime configuration. Environment variables fill
// it first; an optional YAML file overrides them.
type Config struct {
	Addr       string `env:"STAGE_ADDR" envDefault:":8790" yaml:"addr"`
	LogFormat  string `env:"STAGE_LOG_FORMAT" envDefault:"console" yaml:"logFormat"`
	LogLevel   string `env:"STAGE_LOG_LEVEL" envDefault:"info" yaml:"logLevel"`
	LogFile    string `env:"STAGE_LOG_FILE" yaml:"logFile"`
	ConfigFile string `env:"STAGE_CONFIG" yaml:"-"`

	ShutdownGrace time.Duration `env:"STAGE_SHUTDOWN_GRACE" envDefault:"5s" yaml:"shutdownGrace"`
}

// LoadConfig resolves the layered configuration.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	if cfg.ConfigFile != "" {
		raw, err := os.ReadFile(cfg.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	return cfg, nil
}

func severity(level string) logging.Severity {
	switch level {
	case "debug":
		return logging.SeverityDebug
	case "warn":
		return logging.SeverityWarn
	case "error":
		return logging.SeverityError
	default:
		return logging.SeverityInfo
	}
}

// newRouter builds the event router for the configured format.
func newRouter(cfg Config) (*logging.Router, error) {
	logCfg := logging.DefaultConfig()
	logCfg.MinimumSeverity = severity(cfg.LogLevel)

	var named []logging.NamedSink
	switch cfg.LogFormat {
	case "json":
		out := os.Stdout
		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file: %w", err)
			}
			out = f
		}
		logCfg.EnabledSinks = []string{"json"}
		named = append(named, logging.NamedSink{
			Name: "json",
			Sink: sinks.NewJSON(out, logCfg.JSON.FlushInterval),
		})
	default:
		named = append(named, logging.NamedSink{
			Name: "console",
			Sink: sinks.NewConsoleSink(os.Stdout, logCfg.Console),
		})
	}
	return logging.NewRouter(logging.SystemClock{}, logCfg, named)
}

// Run starts the relay and blocks until the context is cancelled or a
// termination signal arrives.
func Run(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	router, err := newRouter(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		router.Close(closeCtx)
	}()

	logger := telemetry.WrapLogger(log.Default())
	hub := relay.NewHub(logger, router)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: hub.Handler(),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Printf("relay listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("relay server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	logger.Printf("relay stopped")
	return nil
}
