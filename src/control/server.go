// Package control exposes the resident app on a loopback HTTP port so that a
// second invocation can trigger a capture, clear history or query status.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"screen-reader-llm/src/app"
	"screen-reader-llm/src/history"
)

const residentHost = "127.0.0.1"

// Controller is the part of *app.Controller the server drives.
type Controller interface {
	State() app.SessionState
	Combo() string
	Model() string
	Trigger() error
	ClearHistory()
	Snapshot() []history.Turn
}

type Status struct {
	State   string `json:"state"`
	Combo   string `json:"combo,omitempty"`
	Model   string `json:"model,omitempty"`
	History int    `json:"history"`
}

type Server struct {
	port int
	ctl  Controller
}

func NewServer(port int, ctl Controller) *Server {
	return &Server{port: port, ctl: ctl}
}

func (s *Server) Addr() string {
	return net.JoinHostPort(residentHost, strconv.Itoa(s.port))
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(rejectBrowserRequests)
	r.Get("/health", handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/trigger", s.handleTrigger)
	r.Get("/history", s.handleHistory)
	r.Post("/history/clear", s.handleClear)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("control server: %w", err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("control: listening on %s", s.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("control server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// rejectBrowserRequests refuses requests a web page could send to the
// loopback port. The CLI client never sets Origin or Sec-Fetch-Site.
func rejectBrowserRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site := r.Header.Get("Sec-Fetch-Site")
		if r.Header.Get("Origin") != "" || (site != "" && site != "none") {
			log.Printf("control: rejected %s %s from browser context (origin %q, site %q)",
				r.Method, r.URL.Path, r.Header.Get("Origin"), site)
			httpError(w, http.StatusForbidden, "browser requests are not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Status{
		State:   s.ctl.State().String(),
		Combo:   s.ctl.Combo(),
		Model:   s.ctl.Model(),
		History: len(s.ctl.Snapshot()),
	})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	err := s.ctl.Trigger()
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, app.ErrBusy), errors.Is(err, app.ErrNotListening):
		httpError(w, http.StatusConflict, "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "%v", err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns := s.ctl.Snapshot()
	if turns == nil {
		turns = []history.Turn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.ctl.ClearHistory()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{"message": fmt.Sprintf(format, args...)},
	})
}
