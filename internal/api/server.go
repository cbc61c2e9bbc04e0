package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/movierec/internal/config"
	"github.com/knowledge-engine/movierec/internal/engine"
	"github.com/knowledge-engine/movierec/internal/search"
)

const (
	defaultRecommendations = 5
	defaultSearchLimit     = 10
)

type Server struct {
	Engine *engine.Engine
	Logger *logrus.Entry
	Router chi.Router
	config config.ServerConfig
}

func NewServer(eng *engine.Engine, cfg config.ServerConfig, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.WithField("component", "api")
	}
	s := &Server{
		Engine: eng,
		Logger: logger,
		Router: chi.NewRouter(),
		config: cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.Use(requestID)
	s.Router.Use(chimiddleware.RealIP)
	s.Router.Use(s.requestLogger)
	s.Router.Use(chimiddleware.Recoverer)

	s.Router.Handle("/metrics", promhttp.Handler())

	s.Router.Route("/api/v1", func(r chi.Router) {
		if s.config.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.config.RateLimit, time.Minute))
		}
		if s.config.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(s.config.RequestTimeout))
		}

		r.Get("/recommend", s.handleRecommend)
		r.Get("/movies/category/{category}", s.handleCategory)
		r.Get("/movies/tag", s.handleTag)
		r.Get("/search", s.handleSearch)
		r.Get("/status", s.handleStatus)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.WithField("addr", addr).Info("Starting API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.Logger.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Responses
type ErrorResponse struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type ItemsResponse struct {
	Query string        `json:"query"`
	Count int           `json:"count"`
	Items []search.Item `json:"items"`
}

type SearchResponse struct {
	Query      string       `json:"query"`
	Categories []string     `json:"categories,omitempty"`
	Count      int          `json:"count"`
	Results    []search.Hit `json:"results"`
}

// Handlers

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query parameter 'title' is required"})
		return
	}

	n, ok := intParam(r, "n", defaultRecommendations)
	if !ok {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query parameter 'n' must be an integer"})
		return
	}

	rec, err := s.Engine.Recommend(r.Context(), title, n)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, rec)
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(chi.URLParam(r, "category"))

	items, err := s.Engine.SearchByCategory(r.Context(), category)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, ItemsResponse{Query: category, Count: len(items), Items: items})
}

func (s *Server) handleTag(w http.ResponseWriter, r *http.Request) {
	tag := strings.TrimSpace(r.URL.Query().Get("tag"))
	if tag == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query parameter 'tag' is required"})
		return
	}

	items, err := s.Engine.SearchByTag(r.Context(), tag)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, ItemsResponse{Query: tag, Count: len(items), Items: items})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	// An empty query is not an error; it matches nothing
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	limit, ok := intParam(r, "limit", defaultSearchLimit)
	if !ok {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query parameter 'limit' must be an integer"})
		return
	}

	var categories []string
	for _, raw := range r.URL.Query()["category"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
	}

	hits, err := s.Engine.KeywordSearch(r.Context(), query, categories, limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, SearchResponse{
		Query:      query,
		Categories: categories,
		Count:      len(hits),
		Results:    hits,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.Engine.Status())
}

// writeEngineError maps engine errors to HTTP statuses
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *engine.NotFoundError
	switch {
	case errors.As(err, &notFound):
		jsonResponse(w, http.StatusNotFound, ErrorResponse{
			Error:       "No movie found matching '" + notFound.Title + "'",
			Suggestions: notFound.Suggestions,
		})
	case errors.Is(err, engine.ErrNotFound):
		jsonResponse(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, search.ErrEmptyCorpus):
		jsonResponse(w, http.StatusServiceUnavailable, ErrorResponse{Error: "No movies are loaded"})
	default:
		s.Logger.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": RequestIDFrom(r.Context()),
		}).Error("Request failed")
		jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}

func intParam(r *http.Request, name string, def int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		code = http.StatusInternalServerError
		response = []byte(`{"error":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
