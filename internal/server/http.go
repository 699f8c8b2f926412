package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Bkbest/calendar-agent/internal/agent"
	"github.com/Bkbest/calendar-agent/internal/config"
	"github.com/Bkbest/calendar-agent/internal/dispatch"
	"github.com/Bkbest/calendar-agent/internal/metrics"
	"github.com/Bkbest/calendar-agent/internal/session"
	"github.com/Bkbest/calendar-agent/internal/transcription"
)

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	registry   *session.Registry
	udpServer  *UDPServer
	dispatcher *dispatch.Pool
	sender     *Sender
	trClient   *transcription.Client
	agClient   *agent.Client
	metrics    *metrics.Metrics

	// Server state
	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	registry *session.Registry, udpServer *UDPServer, dispatcher *dispatch.Pool,
	sender *Sender, trClient *transcription.Client, agClient *agent.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		registry:   registry,
		udpServer:  udpServer,
		dispatcher: dispatcher,
		sender:     sender,
		trClient:   trClient,
		agClient:   agClient,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{key}", h.handleSessionDetail))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/stats/transcription", h.withMetrics("/stats/transcription", h.handleTranscriptionStats))
	mux.HandleFunc("/stats/agent", h.withMetrics("/stats/agent", h.handleAgentStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	udpStats := h.udpServer.GetStatistics()
	poolStats := h.dispatcher.Stats()
	trStats := h.trClient.GetStats()
	agStats := h.agClient.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "calendar-agent",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"udp_server": map[string]interface{}{
				"status":           "running",
				"packets_received": udpStats.PacketsReceived,
				"packets_buffered": udpStats.PacketsBuffered,
				"empty_datagrams":  udpStats.EmptyDatagrams,
				"queue_size":       udpStats.QueueSize,
			},
			"sessions": map[string]interface{}{
				"status": "running",
				"active": udpStats.ActiveSessions,
			},
			"dispatcher": map[string]interface{}{
				"status":      "running",
				"workers":     poolStats.Workers,
				"queue_depth": poolStats.QueueDepth,
				"dropped":     poolStats.Dropped,
			},
			"transcription": map[string]interface{}{
				"status":          "running",
				"total_requests":  trStats.TotalRequests,
				"success_rate":    trStats.SuccessRate,
				"active_requests": trStats.ActiveRequests,
			},
			"agent": map[string]interface{}{
				"status":          "running",
				"total_requests":  agStats.TotalRequests,
				"success_rate":    agStats.SuccessRate,
				"active_requests": agStats.ActiveRequests,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.registry.Snapshot()
	infos := make([]session.Info, 0, len(sessions))

	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}

	response := map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements the /sessions/{key} endpoint, where key is
// the client's ip:port
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := r.URL.Path[len("/sessions/"):]
	if key == "" {
		http.Error(w, "Session key required", http.StatusBadRequest)
		return
	}

	sess, exists := h.registry.Get(key)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.Info())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (API keys omitted)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"udp_port":        h.config.Server.UDPPort,
			"bind_address":    h.config.Server.BindAddress,
			"buffer_size":     h.config.Server.BufferSize,
			"max_packet_size": h.config.Server.MaxPacketSize,
		},
		"session": map[string]interface{}{
			"inactivity_timeout_ms":  h.config.Session.InactivityTimeoutMs,
			"sweep_interval_ms":      h.config.Session.SweepIntervalMs,
			"max_buffer_bytes":       h.config.Session.MaxBufferBytes,
			"max_utterance_duration": h.config.Session.MaxUtteranceDuration,
		},
		"dispatcher": map[string]interface{}{
			"workers":      h.config.Dispatcher.Workers,
			"queue_size":   h.config.Dispatcher.QueueSize,
			"queue_policy": h.config.Dispatcher.QueuePolicy,
			"error_reply":  h.config.Dispatcher.ErrorReply,
		},
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
			"channels":    h.config.Audio.Channels,
			"bit_depth":   h.config.Audio.BitDepth,
		},
		"transcription": map[string]interface{}{
			"endpoint":       h.config.Transcription.Endpoint,
			"model_id":       h.config.Transcription.ModelID,
			"language_code":  h.config.Transcription.LanguageCode,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
		},
		"agent": map[string]interface{}{
			"endpoint":       h.config.Agent.Endpoint,
			"timeout":        h.config.Agent.Timeout,
			"max_retries":    h.config.Agent.MaxRetries,
			"max_concurrent": h.config.Agent.MaxConcurrent,
			"toolset":        h.config.Agent.Toolset,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpServer.GetStatistics()
	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"udp": map[string]interface{}{
			"packets_received": udpStats.PacketsReceived,
			"packets_buffered": udpStats.PacketsBuffered,
			"empty_datagrams":  udpStats.EmptyDatagrams,
			"forced_flushes":   udpStats.ForcedFlushes,
			"dropped_packets":  udpStats.DroppedPackets,
			"queue_size":       udpStats.QueueSize,
			"queue_capacity":   udpStats.QueueCapacity,
		},
		"sessions":      h.registry.Stats(),
		"dispatcher":    h.dispatcher.Stats(),
		"sender":        h.sender.Stats(),
		"transcription": h.trClient.GetStats(),
		"agent":         h.agClient.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleTranscriptionStats implements the /stats/transcription endpoint
func (h *HTTPServer) handleTranscriptionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.trClient.GetStats())
}

// handleAgentStats implements the /stats/agent endpoint
func (h *HTTPServer) handleAgentStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.agClient.GetStats())
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Calendar Voice Agent",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"GET /health":              "Service health check",
			"GET /sessions":            "List all active sessions",
			"GET /sessions/{key}":      "Get detailed session information",
			"GET /config":              "Get service configuration",
			"GET /stats":               "Get service statistics",
			"GET /stats/transcription": "Get transcription client statistics",
			"GET /stats/agent":         "Get agent client statistics",
			"GET /metrics":             "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
