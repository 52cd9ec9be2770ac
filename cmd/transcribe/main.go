package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/duychung-keytechx/speech-demo/internal/capture"
	"github.com/duychung-keytechx/speech-demo/internal/config"
	"github.com/duychung-keytechx/speech-demo/internal/metrics"
	"github.com/duychung-keytechx/speech-demo/internal/server"
	"github.com/duychung-keytechx/speech-demo/internal/session"
	"github.com/duychung-keytechx/speech-demo/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "speech-demo"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Client starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
		slog.String("api_base_url", cfg.API.BaseURL),
		slog.Int("target_rate", cfg.Audio.TargetRate),
		slog.Float64("chunk_duration", cfg.Audio.ChunkDuration),
		slog.Int("capture_rate", cfg.Capture.SampleRate),
	)

	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	client, err := transcription.NewClient(transcription.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	mic := capture.NewMic(capture.Config{
		SampleRate: cfg.Capture.SampleRate,
		BlockSize:  cfg.Capture.BlockSize,
	}, logger)

	observer := session.Observer{
		OnTranscript: func(t session.Transcript) {
			if t.Final {
				fmt.Printf("\n=== Final transcript (%s) ===\n%s\n", t.Language, t.Text)
				return
			}
			fmt.Printf("\r%s", t.Text)
		},
		OnStateChange: func(s session.State) {
			logger.Info("Session state changed", slog.String("state", s.String()))
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "\nSession error: %v\n", err)
		},
	}

	controller, err := session.NewController(session.Config{
		TargetRate:    cfg.Audio.TargetRate,
		ChunkDuration: cfg.Audio.GetChunkDuration(),
		MaxBuffered:   cfg.Audio.GetMaxBufferedDuration(),
	}, client, mic, logger, appMetrics, observer)
	if err != nil {
		logger.Error("Failed to create session controller", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var httpServer *server.HTTPServer
	if cfg.Monitoring.Enabled {
		httpServer = server.NewHTTPServer(cfg.Monitoring, logger, controller, appMetrics, registry)
		httpServer.Start()
	}

	ctx := context.Background()
	if err := controller.Start(ctx); err != nil {
		logger.Error("Failed to start recording", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fmt.Println("Recording... press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.API.GetTimeoutDuration())
	defer cancel()

	if err := controller.Stop(stopCtx); err != nil {
		logger.Error("Failed to stop recording cleanly", slog.String("error", err.Error()))
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping monitoring server", slog.String("error", err.Error()))
		}
	}

	logger.Info("Client stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
