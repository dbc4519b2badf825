package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholarship-finder/internal/coordinator"
	"github.com/JakeFAU/scholarship-finder/internal/id/uuid"
	"github.com/JakeFAU/scholarship-finder/internal/metrics"
	"github.com/JakeFAU/scholarship-finder/internal/middleware"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

// MaxLimit bounds the limit query parameter.
const MaxLimit = 200

// Searcher answers searches and manages source hints. *coordinator.Coordinator satisfies it.
type Searcher interface {
	Search(ctx context.Context, req coordinator.Request) (coordinator.Response, error)
	AddSourceHint(ctx context.Context, rawURL, addedBy string, isPublic bool) (bool, error)
	SourceHints(ctx context.Context, userID string) ([]opportunity.SourceHint, error)
}

// Refreshes starts and reports refresh passes. *coordinator.Refresher satisfies it.
type Refreshes interface {
	Trigger(scope coordinator.Scope) bool
	Run(ctx context.Context, id string) (opportunity.Run, error)
	Runs(ctx context.Context, limit int) ([]opportunity.Run, error)
}

// Options tunes the server. The zero value serves without auth or metrics.
type Options struct {
	APIKey         string
	RequestTimeout time.Duration
	// MetricsPath mounts the Prometheus handler when not empty.
	MetricsPath string
	// Ready backs /readyz; nil always reports ready.
	Ready  func(ctx context.Context) error
	Logger *zap.Logger
}

// Server wires HTTP handlers to the coordinator and refresher.
type Server struct {
	router    chi.Router
	search    Searcher
	refreshes Refreshes
	ready     func(ctx context.Context) error
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. refreshes may be
// nil, in which case the refresh routes are not mounted.
func NewServer(search Searcher, refreshes Refreshes, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:    search,
		refreshes: refreshes,
		ready:     opts.Ready,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)
	if opts.APIKey != "" {
		r.Use(middleware.APIKey(opts.APIKey, "/healthz", "/readyz"))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if opts.MetricsPath != "" {
		r.Method(http.MethodGet, opts.MetricsPath, metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))
		r.Get("/opportunities", s.searchOpportunities)
		r.Route("/sources", func(r chi.Router) {
			r.Post("/", s.addSource)
			r.Get("/", s.listSources)
		})
		if refreshes != nil {
			r.Route("/refreshes", func(r chi.Router) {
				r.Post("/", s.triggerRefresh)
				r.Get("/", s.listRefreshes)
				r.Get("/{run_id}", s.getRefresh)
			})
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			middleware.WriteError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type opportunitiesResponse struct {
	Count int `json:"count"`
	coordinator.Response
}

func (s *Server) searchOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	goal, err := opportunity.ParseGoal(q.Get("goal"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.search.Search(r.Context(), coordinator.Request{
		Goal:     goal,
		Keywords: opportunity.SplitKeywords(q.Get("keywords")),
		Country:  strings.TrimSpace(q.Get("country")),
		UserID:   strings.TrimSpace(q.Get("user_id")),
		Limit:    limit,
	})
	if err != nil {
		s.logger.Error("search failed", zap.Error(err), zap.String("request_id", middleware.GetRequestID(r.Context())))
		middleware.WriteError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if resp.Records == nil {
		resp.Records = []opportunity.Record{}
	}
	middleware.WriteJSON(w, http.StatusOK, opportunitiesResponse{Count: len(resp.Records), Response: resp})
}

type addSourceRequest struct {
	URL      string `json:"url"`
	AddedBy  string `json:"added_by"`
	IsPublic *bool  `json:"is_public"`
}

func (s *Server) addSource(w http.ResponseWriter, r *http.Request) {
	var req addSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}
	added, err := s.search.AddSourceHint(r.Context(), req.URL, strings.TrimSpace(req.AddedBy), isPublic)
	switch {
	case errors.Is(err, coordinator.ErrInvalidHint):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("add source hint failed", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "could not store source")
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	middleware.WriteJSON(w, status, map[string]bool{"added": added})
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	hints, err := s.search.SourceHints(r.Context(), strings.TrimSpace(r.URL.Query().Get("user_id")))
	if err != nil {
		s.logger.Error("list source hints failed", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "could not list sources")
		return
	}
	if hints == nil {
		hints = []opportunity.SourceHint{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"sources": hints})
}

type refreshRequest struct {
	Goal    string `json:"goal"`
	Country string `json:"country"`
	UserID  string `json:"user_id"`
}

func (s *Server) triggerRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	goal, err := opportunity.ParseGoal(req.Goal)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	scope := coordinator.Scope{Goal: goal, Country: strings.TrimSpace(req.Country), UserID: strings.TrimSpace(req.UserID)}
	started := s.refreshes.Trigger(scope)
	status := http.StatusAccepted
	if !started {
		status = http.StatusConflict
	}
	middleware.WriteJSON(w, status, map[string]any{"scope": scope.Key(), "started": started})
}

func (s *Server) listRefreshes(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.refreshes.Runs(r.Context(), limit)
	if err != nil {
		s.logger.Error("list refreshes failed", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "could not list refreshes")
		return
	}
	if runs == nil {
		runs = []opportunity.Run{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"refreshes": runs})
}

func (s *Server) getRefresh(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if !uuid.Valid(runID) {
		middleware.WriteError(w, http.StatusBadRequest, "run_id must be a UUID")
		return
	}
	run, err := s.refreshes.Run(r.Context(), runID)
	switch {
	case errors.Is(err, opportunity.ErrRunNotFound):
		middleware.WriteError(w, http.StatusNotFound, "refresh not found")
		return
	case err != nil:
		s.logger.Error("get refresh failed", zap.String("run_id", runID), zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "could not load refresh")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, run)
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	if n > MaxLimit {
		n = MaxLimit
	}
	return n, nil
}
