package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bkbest/calendar-agent/internal/agent"
	"github.com/Bkbest/calendar-agent/internal/config"
	"github.com/Bkbest/calendar-agent/internal/dispatch"
	"github.com/Bkbest/calendar-agent/internal/metrics"
	"github.com/Bkbest/calendar-agent/internal/server"
	"github.com/Bkbest/calendar-agent/internal/session"
	"github.com/Bkbest/calendar-agent/internal/transcription"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the voice agent server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Duration("inactivity_timeout", cfg.Session.GetInactivityTimeout()),
		slog.Duration("sweep_interval", cfg.Session.GetSweepInterval()),
		slog.Int("workers", cfg.Dispatcher.Workers),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("agent_endpoint", cfg.Agent.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Session registry with flush limits
	registry := session.NewRegistry(session.Limits{
		InactivityTimeout:    cfg.Session.GetInactivityTimeout(),
		MaxBufferBytes:       cfg.Session.MaxBufferBytes,
		MaxUtteranceDuration: cfg.Session.GetMaxUtteranceDuration(),
	}, logger)
	logger.Info("Session registry initialized")

	// Collaborator clients
	trClient, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		ModelID:       cfg.Transcription.ModelID,
		LanguageCode:  cfg.Transcription.LanguageCode,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
		OnRetry:       appMetrics.RecordTranscriptionRetry,
	})
	if err != nil {
		return fmt.Errorf("failed to create transcription client: %w", err)
	}

	agClient, err := agent.NewClient(agent.Config{
		Endpoint:      cfg.Agent.Endpoint,
		APIKey:        cfg.Agent.APIKey,
		Timeout:       cfg.Agent.GetTimeoutDuration(),
		MaxRetries:    cfg.Agent.MaxRetries,
		MaxConcurrent: cfg.Agent.MaxConcurrent,
		Toolset:       cfg.Agent.Toolset,
		OnRetry:       appMetrics.RecordAgentRetry,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent client: %w", err)
	}
	logger.Info("Collaborator clients initialized",
		slog.String("transcription_model", cfg.Transcription.ModelID),
		slog.Any("agent_toolset", cfg.Agent.Toolset),
	)

	// Reply sender, bound to the UDP socket once the server is up
	sender := server.NewSender(logger)

	// Dispatcher pool running the utterance pipeline
	pool := dispatch.NewPool(dispatch.Config{
		Workers:     cfg.Dispatcher.Workers,
		QueueSize:   cfg.Dispatcher.QueueSize,
		QueuePolicy: cfg.Dispatcher.QueuePolicy,
		ErrorReply:  cfg.Dispatcher.ErrorReply,
		SampleRate:  cfg.Audio.SampleRate,
	}, registry, trClient, agClient, sender, appMetrics, logger)

	// Inactivity sweeper feeding the pool
	sweeper := session.NewSweeper(registry, cfg.Session.GetSweepInterval(), pool.Flush, logger)

	// UDP server
	udpServer := server.NewUDPServer(&cfg.Server, logger, registry, appMetrics, pool.Flush)
	logger.Info("UDP server initialized")

	// HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, registry, udpServer, pool, sender, trClient, agClient, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start everything: workers first, then the sweeper, then the sockets
	pool.Start()
	sweeper.Start()

	if err := udpServer.Start(); err != nil {
		return fmt.Errorf("failed to start UDP server: %w", err)
	}
	sender.Bind(udpServer.Conn())

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.UDPPort)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop UDP intake, then the sweeper, then drain the pipeline
	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
	}
	sweeper.Stop()
	pool.Stop()

	if err := trClient.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}
	if err := agClient.Close(); err != nil {
		logger.Error("Error closing agent client", slog.String("error", err.Error()))
	}

	stats := udpServer.GetStatistics()
	poolStats := pool.Stats()
	logger.Info("Final server statistics",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_buffered", stats.PacketsBuffered),
		slog.Uint64("forced_flushes", stats.ForcedFlushes),
		slog.Uint64("utterances_dispatched", poolStats.Dispatched),
		slog.Uint64("utterances_succeeded", poolStats.Succeeded),
		slog.Uint64("utterances_failed", poolStats.Failed),
		slog.Uint64("utterances_dropped", poolStats.Dropped),
	)

	logger.Info("Service stopped")
	return nil
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
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
