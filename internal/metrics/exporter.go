package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/pkg/logger"
)

// Exporter handles the HTTP server for Prometheus metrics
type Exporter struct {
	collector *Collector
	logger    *logger.Logger
	server    *http.Server
	listener  net.Listener
	host      string
	port      int
	path      string
}

// NewExporter creates a new Prometheus exporter
func NewExporter(collector *Collector, host string, port int, path string, logger *logger.Logger) *Exporter {
	if path == "" {
		path = "/metrics"
	}
	if port == 0 {
		port = 9090
	}

	return &Exporter{
		collector: collector,
		logger:    logger,
		host:      host,
		port:      port,
		path:      path,
	}
}

// Handler returns the exporter's HTTP routes.
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()

	// Metrics endpoint
	handler := promhttp.HandlerFor(
		e.collector.GetRegistry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Timeout:           10 * time.Second,
			ErrorLog:          e.logger.StdLogger(),
		},
	)
	mux.Handle(e.path, handler)

	// Health check endpoint
	mux.HandleFunc("/health", e.healthHandler)

	// Ready check endpoint
	mux.HandleFunc("/ready", e.readyHandler)

	return mux
}

// Start binds the listen address and serves in the background. Bind errors
// are returned directly.
func (e *Exporter) Start() error {
	addr := net.JoinHostPort(e.host, fmt.Sprintf("%d", e.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	e.listener = ln

	e.server = &http.Server{
		Handler:      e.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     e.logger.StdLogger(),
	}

	go func() {
		e.logger.Info("Starting Prometheus exporter",
			zap.String("addr", ln.Addr().String()),
			zap.String("path", e.path))

		if err := e.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			e.logger.Error("Prometheus exporter error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address once started.
func (e *Exporter) Addr() string {
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Stop stops the Prometheus HTTP server
func (e *Exporter) Stop() error {
	if e.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.server.Shutdown(ctx); err != nil {
		e.logger.Error("Failed to shutdown Prometheus exporter gracefully", zap.Error(err))
		return err
	}
	e.server = nil

	e.logger.Info("Prometheus exporter stopped")
	return nil
}

// healthHandler handles health check requests
func (e *Exporter) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readyHandler reports ready once any fetch has succeeded
func (e *Exporter) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !e.collector.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "No successful fetch yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// GetURL returns the URL of the metrics endpoint
func (e *Exporter) GetURL() string {
	return fmt.Sprintf("http://localhost:%d%s", e.port, e.path)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
