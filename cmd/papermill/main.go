// Copyright 2025 The Papermill Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skewballfox/papermill"
	"github.com/skewballfox/papermill/config"
	"github.com/urfave/cli/v2"
)

// Keys into cli.App.Metadata.
const (
	metaConfig   = "config"
	metaRegistry = "registry"
	metaMetrics  = "metrics"
)

// openEngine opens the engine described by cfg. Tests replace it to inject
// a mock provider.
var openEngine = func(c *cli.Context, cfg *config.File) (*papermill.Engine, error) {
	opts := append(papermill.FromConfig(cfg), papermill.WithLogger(slog.Default()))
	if reg, ok := c.App.Metadata[metaRegistry].(prometheus.Registerer); ok {
		opts = append(opts, papermill.WithRegisterer(reg))
	}
	return papermill.Open(c.Context, cfg.Storage.Path, opts...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "papermill",
		Usage: "Hybrid search, summaries and a concept graph over a document collection",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML configuration file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file (default .env, if present)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve prometheus metrics on this address, e.g. :9090",
			},
		},
		Before:   setup,
		After:    teardown,
		Commands: commands(),
	}
}

// setup loads the environment file and configuration, applies flag
// overrides, then installs the logger and the metrics endpoint.
func setup(c *cli.Context) error {
	if err := config.LoadEnv(c.String("env-file"), !c.IsSet("env-file")); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("db") {
		cfg.Storage.Path = c.String("db")
		cfg.Storage.InMemory = false
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[metaConfig] = cfg

	if err := setupLogger(c.App.ErrWriter, cfg.Logging.Level); err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		startMetrics(c, cfg.Metrics.Addr)
	}
	return nil
}

func teardown(c *cli.Context) error {
	srv, ok := c.App.Metadata[metaMetrics].(*http.Server)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func startMetrics(c *cli.Context, addr string) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "addr", addr, "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)

	c.App.Metadata[metaRegistry] = reg
	c.App.Metadata[metaMetrics] = srv
}

func setupLogger(w io.Writer, levelStr string) error {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadedConfig returns the configuration installed by setup.
func loadedConfig(c *cli.Context) *config.File {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.File); ok {
		return cfg
	}
	return config.Default()
}

// withEngine opens the engine, runs fn and closes the engine.
func withEngine(c *cli.Context, fn func(*papermill.Engine) error) (err error) {
	e, err := openEngine(c, loadedConfig(c))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(e)
}
