// Package server exposes search, expansion and clusters over HTTP and a
// WebSocket query channel.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/cluster"
	"github.com/xhad/recall/pkg/search"
)

const maxLimit = 50

// SearchService is implemented by *search.Engine.
type SearchService interface {
	Semantic(ctx context.Context, query string, opts search.Options) ([]models.SearchHit, error)
	Recent(ctx context.Context, query string, opts search.Options) (models.RecentResult, error)
	Hybrid(ctx context.Context, query string, opts search.Options) ([]models.SearchHit, error)
}

// ClusterService is implemented by *cluster.Engine.
type ClusterService interface {
	Details(ctx context.Context, scope models.Scope, minSize int) ([]models.ClusterDetail, error)
	Expand(ctx context.Context, seeds []int64, opts cluster.ExpandOptions) ([]models.ClusterMember, error)
	LatestRun(ctx context.Context, scope models.Scope) (*models.ClusterRun, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr string
	// AllowedOrigins are cross-origin pages allowed to open /ws. Empty means
	// same-origin only.
	AllowedOrigins []string
}

type Server struct {
	config   Config
	search   SearchService
	clusters ClusterService
	health   Pinger
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealthCheck makes /health ping p.
func WithHealthCheck(p Pinger) Option {
	return func(s *Server) {
		s.health = p
	}
}

func NewServer(config Config, searcher SearchService, clusters ClusterService, opts ...Option) *Server {
	s := &Server{
		config:   config,
		search:   searcher,
		clusters: clusters,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	// A nil CheckOrigin keeps gorilla's same-origin check.
	if len(config.AllowedOrigins) > 0 {
		s.upgrader.CheckOrigin = s.checkOrigin
	}
	return s
}

// checkOrigin accepts requests without an Origin header, same-origin
// requests and the configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/search/recent", s.handleRecent)
	mux.HandleFunc("GET /api/search/hybrid", s.handleHybrid)
	mux.HandleFunc("GET /api/search/expand", s.handleExpand)
	mux.HandleFunc("GET /api/clusters", s.handleClusters)
	mux.HandleFunc("GET /api/clusters/latest", s.handleLatestRun)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return s.logRequests(mux)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, opts, err := searchParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hits, err := s.search.Semantic(r.Context(), query, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	query, opts, err := searchParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.search.Recent(r.Context(), query, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHybrid(w http.ResponseWriter, r *http.Request) {
	query, opts, err := searchParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hits, err := s.search.Hybrid(r.Context(), query, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seeds, err := parseIDs(q.Get("chunk_ids"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	exclude, err := parseIDs(q.Get("exclude"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	scope, err := scopeParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	members, err := s.clusters.Expand(r.Context(), seeds, cluster.ExpandOptions{Scope: scope, Exclude: exclude})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	minSize, err := intParam(r, "min_size", 2)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if minSize < 1 {
		s.writeError(w, fmt.Errorf("%w: min_size must be at least 1", types.ErrInvalidInput))
		return
	}

	details, err := s.clusters.Details(r.Context(), scope, minSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	run, err := s.clusters.LatestRun(r.Context(), scope)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", "err", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func searchParams(r *http.Request) (string, search.Options, error) {
	q := r.URL.Query()
	var opts search.Options

	query := q.Get("q")
	if strings.TrimSpace(query) == "" {
		return "", opts, fmt.Errorf("%w: q is required", types.ErrInvalidInput)
	}

	opts.Org = q.Get("org")
	if opts.Org == "" {
		opts.Org = q.Get("client")
	}
	opts.Project = q.Get("project")

	limit, err := intParam(r, "limit", 10)
	if err != nil {
		return "", opts, err
	}
	if limit < 1 || limit > maxLimit {
		return "", opts, fmt.Errorf("%w: limit must be between 1 and %d", types.ErrInvalidInput, maxLimit)
	}
	opts.Limit = limit

	if q.Has("days") {
		days, err := intParam(r, "days", 0)
		if err != nil {
			return "", opts, err
		}
		opts.DaysBack = &days
	}

	if opts.DecayRate, err = floatParam(r, "decay"); err != nil {
		return "", opts, err
	}
	if q.Has("semantic_weight") {
		w, err := floatParam(r, "semantic_weight")
		if err != nil {
			return "", opts, err
		}
		opts.SemanticWeight = &w
	}
	if q.Has("lexical_weight") {
		w, err := floatParam(r, "lexical_weight")
		if err != nil {
			return "", opts, err
		}
		opts.LexicalWeight = &w
	}
	return query, opts, nil
}

func scopeParam(r *http.Request) (models.Scope, error) {
	callID, err := intParam(r, "call_id", 0)
	if err != nil {
		return models.Scope{}, err
	}
	if callID < 0 {
		return models.Scope{}, fmt.Errorf("%w: call_id cannot be negative", types.ErrInvalidInput)
	}
	return models.Scope{CallID: int64(callID)}, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", types.ErrInvalidInput, name)
	}
	return v, nil
}

func floatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", types.ErrInvalidInput, name)
	}
	return v, nil
}

// parseIDs reads a comma-separated list of chunk IDs.
func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid chunk id %q", types.ErrInvalidInput, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrUnparseableOutput):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("request failed", "status", status, "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}
