// Package server provides the HTTP API for indexd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/indexd/internal/config"
	"github.com/driftwoodlabs/indexd/internal/search"
	"github.com/driftwoodlabs/indexd/internal/store"
)

// pollInterval is how often a waiting search request re-checks the
// result cache for its answer.
const pollInterval = 250 * time.Millisecond

// JobQueue enqueues background work.
type JobQueue interface {
	EnqueueIndex(ctx context.Context, documentID uuid.UUID, force bool) (string, error)
	EnqueueBackfill(ctx context.Context) (string, error)
	EnqueueSearch(ctx context.Context, req search.Request) (string, error)
}

// ResultCache answers a search request from already-computed results.
type ResultCache interface {
	Lookup(req search.Request) ([]search.Hit, bool)
}

// DocumentGetter fetches document metadata for downloads.
type DocumentGetter interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
}

// Server provides HTTP endpoints for indexd.
type Server struct {
	echo      *echo.Echo
	queue     JobQueue
	results   ResultCache
	documents DocumentGetter
	signer    *search.URLSigner
	cfg       config.ServerConfig
	wait      time.Duration
	logger    *zap.Logger
}

// NewServer creates a new HTTP server.
func NewServer(q JobQueue, results ResultCache, documents DocumentGetter, signer *search.URLSigner, cfg config.ServerConfig, searchCfg config.SearchConfig, logger *zap.Logger) (*Server, error) {
	if q == nil {
		return nil, fmt.Errorf("job queue cannot be nil")
	}
	if results == nil {
		return nil, fmt.Errorf("result cache cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	wait := time.Duration(searchCfg.WaitTimeout)
	if wait <= 0 {
		wait = 60 * time.Second
	}

	s := &Server{
		echo:      e,
		queue:     q,
		results:   results,
		documents: documents,
		signer:    signer,
		cfg:       cfg,
		wait:      wait,
		logger:    logger,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/index", s.handleIndex)
	v1.POST("/backfill", s.handleBackfill)
	v1.POST("/search", s.handleSearch)
	v1.GET("/documents/:id/download", s.handleDownload)
}

// IndexRequest is the request body for POST /v1/index.
type IndexRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Force       bool     `json:"force"`
}

// IndexResponse is the response body for POST /v1/index.
type IndexResponse struct {
	Queued int  `json:"queued"`
	Force  bool `json:"force"`
}

// BackfillResponse is the response body for POST /v1/backfill.
type BackfillResponse struct {
	JobID string `json:"job_id"`
}

// SearchRequest is the request body for POST /v1/search.
type SearchRequest struct {
	TenantID    int64    `json:"tenant_id"`
	Query       string   `json:"query"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

// SearchResponse is the response body for POST /v1/search.
type SearchResponse struct {
	Status string       `json:"status"`
	Hits   []search.Hit `json:"hits,omitempty"`
	JobID  string       `json:"job_id,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleIndex(c echo.Context) error {
	var req IndexRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid index request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.DocumentIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "document_ids field is required")
	}

	ids := make([]uuid.UUID, 0, len(req.DocumentIDs))
	for _, raw := range req.DocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid document id %q", raw))
		}
		ids = append(ids, id)
	}

	queued := 0
	for _, id := range ids {
		if _, err := s.queue.EnqueueIndex(c.Request().Context(), id, req.Force); err != nil {
			s.logger.Error("enqueueing index job failed",
				zap.String("document_id", id.String()), zap.Error(err))
			continue
		}
		queued++
	}
	if queued == 0 {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "could not queue any documents")
	}

	return c.JSON(http.StatusAccepted, IndexResponse{Queued: queued, Force: req.Force})
}

func (s *Server) handleBackfill(c echo.Context) error {
	jobID, err := s.queue.EnqueueBackfill(c.Request().Context())
	if err != nil {
		s.logger.Error("enqueueing backfill failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "could not queue backfill")
	}
	return c.JSON(http.StatusAccepted, BackfillResponse{JobID: jobID})
}

func (s *Server) handleSearch(c echo.Context) error {
	var body SearchRequest
	if err := c.Bind(&body); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.TenantID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant_id field is required")
	}
	if body.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	req := search.Request{
		TenantID:    body.TenantID,
		Query:       body.Query,
		DocumentIDs: body.DocumentIDs,
		TopK:        body.TopK,
	}

	// Answered searches live in the result cache; a fresh query goes
	// through the job queue and the handler waits for the worker.
	if hits, ok := s.results.Lookup(req); ok {
		return c.JSON(http.StatusOK, SearchResponse{Status: "ok", Hits: hits})
	}

	jobID, err := s.queue.EnqueueSearch(c.Request().Context(), req)
	if err != nil {
		s.logger.Error("enqueueing search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "could not queue search")
	}

	deadline := time.NewTimer(s.wait)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		case <-deadline.C:
			return c.JSON(http.StatusAccepted, SearchResponse{Status: "pending", JobID: jobID})
		case <-ticker.C:
			if hits, ok := s.results.Lookup(req); ok {
				return c.JSON(http.StatusOK, SearchResponse{Status: "ok", Hits: hits})
			}
		}
	}
}

func (s *Server) handleDownload(c echo.Context) error {
	if s.signer == nil || s.documents == nil {
		return echo.NewHTTPError(http.StatusNotFound, "downloads are not enabled")
	}

	rawID := c.Param("id")
	id, err := uuid.Parse(rawID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}

	expires, err := strconv.ParseInt(c.QueryParam("expires"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "invalid download link")
	}
	if !s.signer.Verify(rawID, expires, c.QueryParam("sig"), time.Now()) {
		return echo.NewHTTPError(http.StatusForbidden, "download link is expired or invalid")
	}

	doc, err := s.documents.GetDocument(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		s.logger.Error("loading document for download failed",
			zap.String("document_id", rawID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "could not load document")
	}

	return c.Attachment(doc.Filepath, doc.Filename)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
