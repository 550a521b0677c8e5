// Package api exposes the HTTP interface for the knowledge engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/chat"
	"github.com/schoolchat/knowledge-engine/internal/crawler"
	"github.com/schoolchat/knowledge-engine/internal/index"
	"github.com/schoolchat/knowledge-engine/internal/metrics"
)

// Server wires HTTP handlers to the crawl service, indexer, and chat flow.
type Server struct {
	router  chi.Router
	crawls  *crawler.Service
	indexer *index.Indexer
	machine *chat.Machine

	defaultNamespace string
	logger           *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(crawls *crawler.Service, indexer *index.Indexer, machine *chat.Machine, defaultNamespace string, timeout time.Duration, logger *zap.Logger) *Server {
	s := &Server{
		crawls:           crawls,
		indexer:          indexer,
		machine:          machine,
		defaultNamespace: defaultNamespace,
		logger:           logger.Named("api"),
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/", s.submitCrawl)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getCrawl)
				r.Post("/cancel", s.cancelCrawl)
			})
		})
		r.Post("/documents", s.uploadDocument)
		r.Route("/chat", func(r chi.Router) {
			r.Post("/", s.chatTurn)
			r.Post("/reset", s.chatReset)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawler.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Namespace == "" {
		req.Namespace = s.defaultNamespace
	}
	job, err := s.crawls.Submit(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.crawls.Jobs().Get(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	cancelled, err := s.crawls.Jobs().Cancel(jobID)
	if errors.Is(err, crawler.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !cancelled {
		writeError(w, http.StatusConflict, "job already finished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(crawler.JobStatusCancelled)})
}

type documentRequest struct {
	Namespace string `json:"namespace"`
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
	Text      string `json:"text"`
}

// uploadDocument indexes raw text directly, bypassing the crawler. Useful
// for prospectuses and other content that is not on the website.
func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Namespace == "" {
		req.Namespace = s.defaultNamespace
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.SourceURL == "" {
		writeError(w, http.StatusBadRequest, "source_url is required")
		return
	}
	chunks, err := s.indexer.IndexPage(r.Context(), req.Namespace, req.SourceURL, req.Title, req.Text, index.NewGeneration())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks_indexed": chunks})
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (s *Server) chatTurn(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	result, err := s.machine.Turn(r.Context(), req.UserID, req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) chatReset(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := s.machine.Reset(r.Context(), req.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
