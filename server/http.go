// Package server provides the HTTP surface of the bot: the Telegram
// webhook plus a few diagnostic endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rmux/axion-bot/bot"
	"github.com/rmux/axion-bot/cache"
	"github.com/rmux/axion-bot/telegram"
	"github.com/rmux/axion-bot/telemetry"
)

// maxUpdateBytes bounds the webhook request body.
const maxUpdateBytes = 1 << 20

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// Dispatcher handles decoded webhook updates.
	Dispatcher *bot.Dispatcher

	// Cache backs the /clearcache endpoint.
	Cache *cache.Cache

	// Logs backs the /logs endpoint.
	Logs *bot.LogBuffer

	// Logger for the server
	Logger *slog.Logger
}

// Server is the bot's HTTP server.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.Logs == nil {
		cfg.Logs = bot.NewLogBuffer(bot.DefaultLogCapacity)
	}

	s := &Server{
		config: cfg,
		logger: cfg.Logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Telegram webhook
	mux.HandleFunc("POST /", s.handleWebhook)

	// Info page
	mux.HandleFunc("GET /{$}", s.handleIndex)

	// Diagnostics
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("GET /clearcache", s.handleClearCache)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", telemetry.Handler())
}

// handleWebhook decodes one Telegram update and dispatches it. The update
// is processed synchronously so Telegram's delivery retries line up with
// actual failures.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic handling update", "panic", rec)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpdateBytes))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	update, err := telegram.ParseUpdate(body)
	if err != nil {
		s.logger.Warn("rejecting malformed update", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.config.Dispatcher.HandleUpdate(r.Context(), update)
	_, _ = w.Write([]byte("OK"))
}

// handleIndex serves the static info page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// handleLogs serves recent log lines as a JSON array, newest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.config.Logs.Recent(bot.DefaultLogCapacity))
}

// handleClearCache unconditionally resets the cache.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if s.config.Cache != nil {
		s.config.Cache.Clear()
	}
	_, _ = w.Write([]byte("Cache cleared successfully"))
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// loggingMiddleware logs HTTP requests with structured fields.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)

		s.logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"bytes_sent", wrapped.bytesWritten,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		telemetry.RecordHTTP(r.Method, r.URL.Path, wrapped.status, duration)
	})
}

// Start starts the server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "address", s.config.Address)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the server's listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// responseWriter wraps http.ResponseWriter to capture the status code and
// bytes written.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
