package service

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/veritract/veritract/artifact"
	"github.com/veritract/veritract/observability"
	"github.com/veritract/veritract/structure"
)

// validKinds are the artifact kinds readable over the API.
var validKinds = map[string]bool{
	artifact.KindNormalized: true,
	artifact.KindStructure:  true,
	artifact.KindMatches:    true,
	artifact.KindRiskReport: true,
	artifact.KindRedline:    true,
}

// ServerConfig wires the HTTP server.
type ServerConfig struct {
	Queue *Queue
	Store artifact.Store

	// Events records request logs and serves stage history. Optional.
	Events *observability.EventLogger

	// MaxBodyBytes caps uploaded normalized documents. Default: 16 MiB.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *ServerConfig) defaults() {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 16 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is the agreement analysis HTTP API.
type Server struct {
	cfg ServerConfig
}

// NewServer creates a Server.
func NewServer(cfg ServerConfig) *Server {
	cfg.defaults()
	return &Server{cfg: cfg}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/agreements/{agreementID}", func(r chi.Router) {
		r.Put("/normalized", s.handleUploadNormalized)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/status", s.handleStatus)
		r.Get("/artifacts/{kind}", s.handleArtifact)
	})

	return r
}

// handleUploadNormalized stores the normalized document that the pipeline
// consumes. The body must decode as a normalized document; anything else is
// rejected before it can poison the pipeline.
func (s *Server) handleUploadNormalized(w http.ResponseWriter, r *http.Request) {
	agreementID := chi.URLParam(r, "agreementID")

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var n structure.Normalized
	if err := json.Unmarshal(body, &n); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid normalized document: "+err.Error())
		return
	}

	if err := s.cfg.Store.Put(r.Context(), artifact.Key(agreementID, artifact.KindNormalized), body); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"agreement_id": agreementID,
		"sections":     len(n.Sections),
	})
}

// handleAnalyze enqueues a full analysis run.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	agreementID := chi.URLParam(r, "agreementID")

	if _, err := s.cfg.Store.Get(r.Context(), artifact.Key(agreementID, artifact.KindNormalized)); err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "no normalized document for agreement "+agreementID)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	jobID, err := s.cfg.Queue.Submit(r.Context(), agreementID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":       jobID,
		"agreement_id": agreementID,
		"status":       StatusPending,
	})
}

// handleStatus reports the agreement's latest job and its stage history.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	agreementID := chi.URLParam(r, "agreementID")

	job, err := s.cfg.Queue.Latest(r.Context(), agreementID)
	if errors.Is(err, ErrJobNotFound) {
		s.writeError(w, http.StatusNotFound, "agreement never submitted: "+agreementID)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"job": job}
	if s.cfg.Events != nil {
		if history, err := s.cfg.Events.StageHistory(r.Context(), agreementID); err == nil {
			stages := make([]map[string]any, 0, len(history))
			for _, e := range history {
				stages = append(stages, map[string]any{
					"stage":       e.Stage,
					"status":      e.Status,
					"duration_ms": e.Duration.Milliseconds(),
				})
			}
			resp["stages"] = stages
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleArtifact streams one artifact document as stored.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	agreementID := chi.URLParam(r, "agreementID")
	kind := chi.URLParam(r, "kind")
	if !validKinds[kind] {
		s.writeError(w, http.StatusBadRequest, "unknown artifact kind: "+kind)
		return
	}

	raw, err := s.cfg.Store.Get(r.Context(), artifact.Key(agreementID, kind))
	if errors.Is(err, artifact.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// requestLog logs each request via slog and, when configured, the
// observability store.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		s.cfg.Logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", elapsed)
		if s.cfg.Events != nil {
			s.cfg.Events.LogRequest(r.Context(), r.Method, r.URL.Path, ww.Status(), elapsed)
		}
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.cfg.Logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
