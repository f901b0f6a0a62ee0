// Command seaguard-gateway bridges the boats' MQTT telemetry to an HTTP API
// for operator dashboards and relays control commands back to the boats.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"seaguard-gateway/internal/api"
	"seaguard-gateway/internal/archive"
	"seaguard-gateway/internal/boat"
	"seaguard-gateway/internal/broker"
	"seaguard-gateway/internal/clock"
	"seaguard-gateway/internal/config"
	"seaguard-gateway/internal/control"
	"seaguard-gateway/internal/registry"
	"seaguard-gateway/internal/sysstats"
	"seaguard-gateway/internal/telemetry"
)

func main() {
	started := time.Now()
	cfg := config.Load()

	// The MQTT client has to exist before the logger, which publishes
	// through it. Connect retries in the background, so an unreachable
	// broker only delays ingestion.
	mq := broker.New(cfg.MQTTBroker, cfg.MQTTClientID)
	if err := mq.Connect(10 * time.Second); err != nil {
		slog.Warn("MQTT not connected yet, retrying in background", "broker", cfg.MQTTBroker, "error", err)
	}

	logger := newLogger(cfg, mq)
	slog.SetDefault(logger)
	mq.SetLogger(logger)
	for _, w := range cfg.Warnings {
		logger.Warn("Configuration value ignored", "detail", w)
	}
	logger.Info("Starting SeaGuard gateway",
		"broker", cfg.MQTTBroker,
		"topic", cfg.InputTopic,
		"port", cfg.HTTPPort,
		"archive", cfg.PostgresURL != "" || cfg.ValkeyAddr != "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional storage: telemetry archive and the boats table.
	var (
		sink       telemetry.Sink
		counters   api.ArchiveCounters
		db         registry.Querier
		writerDone = make(chan struct{})
	)
	close(writerDone)

	if cfg.PostgresURL != "" || cfg.ValkeyAddr != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		repo, err := archive.NewRepository(connectCtx, cfg.PostgresURL, cfg.ValkeyAddr)
		cancel()
		if err != nil {
			logger.Error("Storage unreachable, archive disabled", "error", err)
		} else {
			defer repo.Close()
			writer := archive.NewWriter(repo, logger, cfg.ArchiveQueue)
			writerDone = make(chan struct{})
			go func() {
				writer.Run(ctx)
				close(writerDone)
			}()
			sink, counters = writer, writer
			if pool := repo.Pool(); pool != nil {
				db = pool
			}
			logger.Info("Telemetry archive enabled")
		}
	}

	// Boat registry: YAML file, then the database on top.
	var static []registry.Boat
	if cfg.BoatsFile != "" {
		boats, err := registry.LoadFile(cfg.BoatsFile)
		if err != nil {
			logger.Error("Cannot read boats file", "path", cfg.BoatsFile, "error", err)
			os.Exit(1)
		}
		static = boats
	}
	reg := registry.New(static, db, logger)
	if err := reg.LoadFromDB(ctx); err != nil {
		logger.Warn("Boats table not loaded, using configured boats only", "error", err)
	}
	go reg.StartAutoRefresh(ctx, cfg.RegistryRefresh)

	// Core: store, inbound router, outbound dispatcher.
	clk := clock.Real()
	store := boat.NewStore(clk, boat.Limits{
		History:   cfg.HistoryLimit,
		Acks:      cfg.AckLimit,
		AckMaxAge: cfg.AckMaxAge,
	})
	router := telemetry.NewRouter(store, clk, logger, sink)
	dispatcher := control.NewDispatcher(store, mq, clk, logger, cfg.ControlCooldown)

	if err := mq.Subscribe(cfg.InputTopic, 0, router.Handle); err != nil {
		logger.Error("Subscribe failed", "topic", cfg.InputTopic, "error", err)
		os.Exit(1)
	}
	logger.Info("Listening for telemetry", "topic", cfg.InputTopic)

	// HTTP surface.
	health := &api.Health{Started: started, Clock: clk, MQTT: mq, Archive: counters}
	if collector, err := sysstats.NewCollector(logger); err != nil {
		logger.Warn("Process statistics unavailable", "error", err)
	} else {
		health.Stats = collector
	}

	svc := api.NewService(store, boat.NewLiveness(store, clk, cfg.OnlineWindow), reg, cfg.HistoryLimit)
	handler := api.NewAPIHandler(svc, dispatcher, health, logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.CorsMiddleware(api.LoggingMiddleware(logger, mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP API listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", "error", err)
	}

	mq.Disconnect(250)
	<-writerDone
	logger.Info("Gateway stopped")
}

// newLogger builds the JSON logger. Every line goes to stdout, and
// optionally to logs/<client id> on the broker and to a rolling file.
func newLogger(cfg config.Config, mq *broker.Client) *slog.Logger {
	writers := []io.Writer{os.Stdout}
	if cfg.LogToMQTT {
		writers = append(writers, broker.NewLogWriter(mq.MQTT(), cfg.MQTTClientID))
	}
	if cfg.LogFile != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: cfg.LogLevel}))
}
