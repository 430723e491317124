// Package hlsserver is a debug/reference HTTP server exposing the HLS
// input facade's virtual byte stream over Range-aware GET /stream, plus a
// GET /status endpoint reporting the live facade's state. It exists for
// manual inspection and integration tests, not as the package's public
// streaming API.
package hlsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vodlive/hlsingest/internal/hlsinput"
	"github.com/vodlive/hlsingest/internal/observability"
	"github.com/vodlive/hlsingest/pkg/httpclient"
)

// Config configures the debug server.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible debug-server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server is the debug/reference HTTP server, wired to one Input.
type Server struct {
	cfg        Config
	input      *hlsinput.Input
	router     *chi.Mux
	httpServer *http.Server
	logger     *slog.Logger
}

// New constructs a Server for input. logger defaults to slog.Default.
func New(cfg Config, input *hlsinput.Input, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "hlsserver")
	s := &Server{cfg: cfg, input: input, logger: logger}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogging(logger))
	r.Use(recovery(logger))
	r.Get("/stream", s.handleStream)
	r.Get("/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	s.router = r
	return s
}

// Router exposes the underlying chi router for tests and for mounting
// additional routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start binds and serves. It blocks until the server errors or is shut
// down; pair with a context-driven Shutdown call from another goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("starting debug server", slog.String("address", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("hlsserver: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, bounded by cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("hlsserver: shutdown: %w", err)
	}
	return nil
}

// statusResponse is the GET /status JSON payload.
type statusResponse struct {
	SessionID      string  `json:"session_id"`
	Live           bool    `json:"live"`
	TargetDuration int     `json:"target_duration_seconds"`
	Duration       float64 `json:"duration_seconds"`
	CurrentVariant *string `json:"current_variant_uri,omitempty"`
	Bandwidth      int     `json:"bandwidth,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		SessionID:      s.input.SessionID(),
		Live:           s.input.IsLive(),
		TargetDuration: s.input.TargetDuration(),
		Duration:       s.input.ComputeDuration(),
	}
	if v := s.input.CurrentVariant(); v != nil {
		uri := v.URI
		resp.CurrentVariant = &uri
		resp.Bandwidth = v.Bandwidth
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encoding status response", slog.Any("error", err))
	}
}

// healthResponse is the GET /health JSON payload: the circuit breaker
// state of every named HTTP client the manifest/segment/init-segment
// fetchers registered with httpclient.DefaultRegistry, plus the richer
// per-service stats (failure categorization, state duration history)
// the same breakers already accumulate via httpclient.DefaultManager.
type healthResponse struct {
	CircuitBreakers []httpclient.CircuitBreakerStatus                 `json:"circuit_breakers"`
	Enhanced        map[string]httpclient.EnhancedCircuitBreakerStats `json:"enhanced_stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		CircuitBreakers: httpclient.DefaultRegistry.GetCircuitBreakerStatuses(),
		Enhanced:        httpclient.DefaultManager.GetAllEnhancedStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encoding health response", slog.Any("error", err))
	}
}

// handleStream serves the virtual byte stream (init segment followed by
// tracked media segments) with HTTP Range support. Without a Range
// header it serves from byte 0 up to the currently known stream length.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	src := s.input.Source()
	if src == nil {
		http.Error(w, "source not initialized", http.StatusServiceUnavailable)
		return
	}

	totalLen, knownTotal := src.KnownByteLength()

	start, end, status, err := parseRange(r.Header.Get("Range"), totalLen, knownTotal)
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
		return
	}

	data, err := src.Read(r.Context(), start, end)
	if err != nil {
		s.logger.Warn("stream read failed", slog.Any("error", err), slog.Int64("start", start), slog.Int64("end", end))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Accept-Ranges", "bytes")
	if status == http.StatusPartialContent {
		totalStr := "*"
		if knownTotal {
			totalStr = strconv.FormatInt(totalLen, 10)
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%s", start, start+int64(len(data))-1, totalStr))
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// parseRange parses a "bytes=start-end" Range header against a resource
// of length totalLen (meaningful only when totalKnown). A missing header
// serves from 0; a malformed or unsupported one returns an error;
// totalKnown=false (live, not yet fully
// ingested) leaves an elided end value open rather than clamping it.
func parseRange(header string, totalLen int64, totalKnown bool) (start, end int64, status int, err error) {
	if header == "" {
		if totalKnown {
			return 0, totalLen, http.StatusOK, nil
		}
		return 0, 1 << 30, http.StatusOK, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, 0, fmt.Errorf("unsupported range unit")
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("malformed range")
	}

	if parts[0] == "" {
		// Suffix range "bytes=-N": last N bytes. Requires a known total.
		if !totalKnown {
			return 0, 0, 0, fmt.Errorf("suffix range requires known length")
		}
		n, perr := strconv.ParseInt(parts[1], 10, 64)
		if perr != nil || n <= 0 {
			return 0, 0, 0, fmt.Errorf("malformed suffix range")
		}
		start = totalLen - n
		if start < 0 {
			start = 0
		}
		return start, totalLen, http.StatusPartialContent, nil
	}

	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return 0, 0, 0, fmt.Errorf("malformed range start")
	}

	if parts[1] == "" {
		if totalKnown {
			return start, totalLen, http.StatusPartialContent, nil
		}
		return start, start + (1 << 30), http.StatusPartialContent, nil
	}

	endInclusive, perr := strconv.ParseInt(parts[1], 10, 64)
	if perr != nil || endInclusive < start {
		return 0, 0, 0, fmt.Errorf("malformed range end")
	}
	end = endInclusive + 1
	if totalKnown && end > totalLen {
		end = totalLen
	}
	return start, end, http.StatusPartialContent, nil
}
