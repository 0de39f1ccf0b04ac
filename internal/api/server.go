// Package api exposes a running dev-mode session over a Unix socket so the
// CLI can inspect and steer it from another terminal.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/benaskins/devmode/internal/history"
	"github.com/benaskins/devmode/internal/session"
	"golang.org/x/time/rate"
)

const defaultLines = 50

// Limits manual rebuilds, each of which cancels the build in progress.
const (
	rebuildInterval = 2 * time.Second
	rebuildBurst    = 2
)

// Controller is the part of a session the API drives.
type Controller interface {
	Status() session.Status
	Rebuild()
	Stop()
}

// OutputTail returns the last lines of build output.
type OutputTail interface {
	Last(n int) []string
}

// Server serves the dev-mode REST API.
type Server struct {
	ctl         Controller
	output      OutputTail
	historyPath string
	rebuilds    *rate.Limiter
	server      *http.Server
	logger      *slog.Logger
}

// NewServer creates an API server for ctl. output and historyPath may be
// empty, in which case the matching endpoints return nothing.
func NewServer(ctl Controller, output OutputTail, historyPath string) *Server {
	s := &Server{
		ctl:         ctl,
		output:      output,
		historyPath: historyPath,
		rebuilds:    rate.NewLimiter(rate.Every(rebuildInterval), rebuildBurst),
		logger:      slog.With("component", "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", s.status)
	mux.HandleFunc("GET /v1/log", s.log)
	mux.HandleFunc("GET /v1/history", s.history)
	mux.HandleFunc("POST /v1/rebuild", s.rebuild)
	mux.HandleFunc("POST /v1/stop", s.stop)
	mux.HandleFunc("GET /v1/health", s.health)

	s.server = &http.Server{Handler: mux}
	return s
}

// ListenUnix serves on a Unix socket, replacing a stale socket file left by
// a previous run. It returns http.ErrServerClosed after Shutdown.
func (s *Server) ListenUnix(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.logger.Info("API listening", "socket", path)
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) log(w http.ResponseWriter, r *http.Request) {
	n, err := lines(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	out := []string{}
	if s.output != nil {
		out = append(out, s.output.Last(n)...)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"lines": out})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	n, err := lines(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	entries := []history.Entry{}
	if s.historyPath != "" {
		tail, err := history.Tail(s.historyPath, n)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		entries = append(entries, tail...)
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) rebuild(w http.ResponseWriter, r *http.Request) {
	if !s.rebuilds.Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rebuild requested too often"})
		return
	}
	s.logger.Info("rebuild requested over API")
	s.ctl.Rebuild()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuilding"})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("stop requested over API")
	s.ctl.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func lines(r *http.Request) (int, error) {
	v := r.URL.Query().Get("lines")
	if v == "" {
		return defaultLines, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.New("lines must be a positive integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
