// Package server exposes the proxy's HTTP surface: the upscale endpoint and
// the local mirror of cached HD assets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grokproxy/go_media/internal/grok"
)

// Upscaler is implemented by the grok client.
type Upscaler interface {
	UpscaleVideo(ctx context.Context, videoID, authToken string) (*grok.UpscaleResult, error)
}

// Config holds the server settings, injected from main.
type Config struct {
	Port         string
	CacheDir     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheStats   func() (hits, misses int64) // nil = zeros in /metrics
}

// Server serves the upscale API and cached assets.
type Server struct {
	cfg      Config
	upscaler Upscaler
	srv      *http.Server
}

// New wires the routes. Upscale requests can take minutes, so WriteTimeout
// must cover the upstream 180s bound.
func New(cfg Config, up Upscaler) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 300 * time.Second
	}

	s := &Server{cfg: cfg, upscaler: up}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /rest/media/video/upscale", s.handleUpscale)
	mux.HandleFunc("GET /images/{name}", s.handleImage)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.srv = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Run blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Run() error {
	slog.Info("http server listening", slog.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleUpscale(w http.ResponseWriter, r *http.Request) {
	metrics.UpscaleRequests.Add(1)

	var in struct {
		VideoID string `json:"videoId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, grok.CodeInvalidParams, "invalid JSON body")
		return
	}

	result, err := s.upscaler.UpscaleVideo(r.Context(), in.VideoID, authToken(r))
	if err != nil {
		metrics.UpscaleErrors.Add(1)
		var apiErr *grok.APIError
		if errors.As(err, &apiErr) {
			writeError(w, statusFor(apiErr.Code), apiErr.Code, apiErr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, grok.CodeUpscaleError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleImage serves a mirrored asset. Flattened file names contain no path
// separators, so anything that still looks like a path is rejected.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	metrics.ImageRequests.Add(1)

	name := r.PathValue("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.cfg.CacheDir, name)
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(FormatMetrics(s.cfg.CacheStats)))
}

// statusFor maps client error codes onto HTTP statuses.
func statusFor(code string) int {
	switch code {
	case grok.CodeInvalidParams:
		return http.StatusBadRequest
	case grok.CodeNoAuthToken:
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

// authToken extracts the caller's session token: x-auth-token wins, the raw
// Cookie header is the fallback so browser callers work unchanged.
func authToken(r *http.Request) string {
	if tok := r.Header.Get("x-auth-token"); tok != "" {
		return tok
	}
	return r.Header.Get("Cookie")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
