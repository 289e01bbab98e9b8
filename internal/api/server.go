// Package api exposes clone checks over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/panbanda/klone/internal/output"
	"github.com/panbanda/klone/pkg/catalog"
	"github.com/panbanda/klone/pkg/index"
	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/reportstore"
	"github.com/panbanda/klone/pkg/scheduler"
)

// Engine is the clone-check engine behind the API.
type Engine interface {
	RequestCheck(ctx context.Context, courseID int) ([]scheduler.Request, error)
	RequestSubmissionCheck(ctx context.Context, submissionID int) ([]scheduler.Request, error)
	Report(ctx context.Context, submissionID int) (models.ReportRow, error)
	Summary(ctx context.Context, courseID int) (models.CourseSummary, error)
	Queue() (scheduler.Stats, []scheduler.TaskInfo)
	IndexStats(ctx context.Context) (index.Stats, error)
}

// Server serves the HTTP API.
type Server struct {
	engine Engine
	logger *slog.Logger
	router *mux.Router
}

// NewServer creates a server for engine. A nil logger uses slog.Default().
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, logger: logger, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/courses/{id}/klonecheck", s.handleCourseCheck).Methods(http.MethodPost)
	s.router.HandleFunc("/courses/{id}/summary", s.handleSummary).Methods(http.MethodGet)
	s.router.HandleFunc("/submissions/{id}/klonecheck", s.handleSubmissionCheck).Methods(http.MethodPost)
	s.router.HandleFunc("/submissions/{id}/klones", s.handleReport).Methods(http.MethodGet)
	s.router.HandleFunc("/queue", s.handleQueue).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

type checkResponse struct {
	Requests []string `json:"requests"`
}

func requestNames(reqs []scheduler.Request) checkResponse {
	out := checkResponse{Requests: make([]string, len(reqs))}
	for i, r := range reqs {
		out.Requests[i] = r.String()
	}
	return out
}

func (s *Server) handleCourseCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	reqs, err := s.engine.RequestCheck(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, requestNames(reqs))
}

func (s *Server) handleSubmissionCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	reqs, err := s.engine.RequestSubmissionCheck(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, requestNames(reqs))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	row, err := s.engine.Report(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.render(w, r, output.CloneReport(row))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	sum, err := s.engine.Summary(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.render(w, r, output.CourseSummary(sum))
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	stats, pending := s.engine.Queue()
	s.render(w, r, output.Queue(stats, pending))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.IndexStats(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "index": stats})
}

// render writes v as JSON unless the format query parameter asks for text,
// markdown or toon.
func (s *Server) render(w http.ResponseWriter, r *http.Request, v output.Renderable) {
	format := output.ParseFormat(r.URL.Query().Get("format"))
	if r.URL.Query().Get("format") == "" {
		format = output.FormatJSON
	}

	switch format {
	case output.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case output.FormatMarkdown:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	if err := output.NewWriterFormatter(format, w, false).Output(v); err != nil {
		s.logger.Error("render response", "error", err)
	}
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id < 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, reportstore.ErrNotFound) {
		status = http.StatusNotFound
	} else {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}
