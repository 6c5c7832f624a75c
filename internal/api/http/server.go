package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/t3m14/tours-sub000/internal/cache"
	"github.com/t3m14/tours-sub000/internal/domain"
	"github.com/t3m14/tours-sub000/internal/search"
)

// SearchClient is the remote tour search API.
type SearchClient interface {
	SubmitSearch(ctx context.Context, criteria domain.SearchCriteria) (domain.SearchJobID, error)
	PollStatus(ctx context.Context, id domain.SearchJobID) (domain.SearchStatus, error)
	FetchResultPage(ctx context.Context, id domain.SearchJobID, page, pageSize int) (domain.ResultPage, error)
	ContinueSearch(ctx context.Context, id domain.SearchJobID) (domain.SearchJobID, error)
	ActualizeTour(ctx context.Context, req domain.ActualizeRequest) (domain.ActualizedTour, error)
	ActualizeTourDetails(ctx context.Context, tourID string) (domain.TourFlights, error)
	Diagnostics() []domain.RemoteDiagnostics
}

// JobRegistry tracks the live jobs and their viewers.
type JobRegistry interface {
	Subscribe(id domain.SearchJobID, viewer search.Viewer) search.JobSnapshot
	Unsubscribe(id domain.SearchJobID, viewerID string)
	Snapshot(id domain.SearchJobID) (search.JobSnapshot, bool)
	Stats() domain.ConnectionStats
	CloseJob(id domain.SearchJobID, reason string) int
}

const (
	maxRequestBodyBytes = 64 * 1024
	cacheOpTimeout      = 3 * time.Second
)

type Server struct {
	search   SearchClient
	registry JobRegistry
	cache    cache.Cache
	logger   *slog.Logger

	allowedOrigins  []string
	paramsTTL       time.Duration
	resultsTTL      time.Duration
	defaultPageSize int
	rateLimit       float64
	rateBurst       int
	upgrader        websocket.Upgrader
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithCache(c cache.Cache) ServerOption {
	return func(s *Server) {
		s.cache = c
	}
}

func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = append([]string(nil), origins...)
	}
}

func WithSearchParamsTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		if ttl > 0 {
			s.paramsTTL = ttl
		}
	}
}

// WithResultsTTL caches result pages of finished searches for ttl.
func WithResultsTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		if ttl > 0 {
			s.resultsTTL = ttl
		}
	}
}

func WithDefaultPageSize(size int) ServerOption {
	return func(s *Server) {
		if size > 0 {
			s.defaultPageSize = domain.ClampPageSize(size)
		}
	}
}

// WithRateLimit limits REST traffic. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimit = rps
		s.rateBurst = burst
	}
}

func NewServer(searchClient SearchClient, registry JobRegistry, options ...ServerOption) *Server {
	server := &Server{
		search:          searchClient,
		registry:        registry,
		logger:          slog.Default(),
		paramsTTL:       2 * time.Hour,
		resultsTTL:      time.Hour,
		defaultPageSize: domain.DefaultPageSize,
		rateLimit:       50,
		rateBurst:       100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	server.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(server.allowedOrigins, r.Header.Get("Origin"))
		},
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/v1/tours/search", s.handleSubmitSearch)
	mux.HandleFunc("GET /api/v1/tours/search/{id}/status", s.handleSearchStatus)
	mux.HandleFunc("GET /api/v1/tours/search/{id}/results", s.handleSearchResults)
	mux.HandleFunc("GET /api/v1/tours/search/{id}/params", s.handleSearchParams)
	mux.HandleFunc("POST /api/v1/tours/search/{id}/continue", s.handleContinueSearch)
	mux.HandleFunc("POST /api/v1/tours/actualize", s.handleActualizeTour)
	mux.HandleFunc("GET /api/v1/tours/tour/{tourId}", s.handleTourByID)
	mux.HandleFunc("GET /api/v1/tours/remote/health", s.handleRemoteHealth)
	mux.HandleFunc("DELETE /api/v1/cache", s.handleClearCache)
	mux.HandleFunc("GET /api/v1/ws/stats", s.handleConnectionStats)
	mux.HandleFunc("DELETE /api/v1/ws/tours/{id}", s.handleCloseConnections)
	mux.HandleFunc("GET /ws/tours/{jobId}", s.handleTourSocket)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "tours-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger,
		corsMiddleware(s.allowedOrigins,
			rateLimitMiddleware(s.rateLimit, s.rateBurst, metricsMiddleware(traced))))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	status := "ok"
	if s.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), cacheOpTimeout)
		defer cancel()
		if err := s.cache.Ping(ctx); err != nil {
			components["cache"] = err.Error()
			status = "degraded"
		} else {
			components["cache"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC(),
	})
}

func (s *Server) handleSubmitSearch(w http.ResponseWriter, r *http.Request) {
	var criteria domain.SearchCriteria
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(&criteria); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON search criteria object")
		return
	}

	id, err := s.search.SubmitSearch(r.Context(), criteria)
	if err != nil {
		s.writeSearchError(w, "submit", err)
		return
	}
	s.storeSearchParams(r.Context(), id, criteria)
	writeJSON(w, http.StatusOK, map[string]any{"request_id": id})
}

func (s *Server) handleSearchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobIDParam(w, r)
	if !ok {
		return
	}
	status, err := s.search.PollStatus(r.Context(), id)
	if err != nil {
		s.writeSearchError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSearchResults(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobIDParam(w, r)
	if !ok {
		return
	}
	page, err := parsePositiveInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_page", err.Error())
		return
	}
	perPage, err := parsePositiveInt(r, "onpage", s.defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_page_size", err.Error())
		return
	}
	perPage = domain.ClampPageSize(perPage)

	key := cache.SearchResultsKey(id, page, perPage)
	result, cached := s.cachedResultPage(r.Context(), key)
	if !cached {
		result, err = s.search.FetchResultPage(r.Context(), id, page, perPage)
		if err != nil {
			s.writeSearchError(w, "results", err)
			return
		}
		if result.Status.Finished() {
			s.storeResultPage(r.Context(), key, result)
		}
	}
	if result.Hotels == nil {
		result.Hotels = []domain.OfferedHotel{}
	}
	total := max(result.Status.HotelsFound, len(result.Hotels))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     result.Status,
		"result":     result.Hotels,
		"pagination": domain.NewPagination(page, perPage, total, len(result.Hotels)),
	})
}

func (s *Server) handleSearchParams(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobIDParam(w, r)
	if !ok {
		return
	}
	if s.cache == nil {
		writeError(w, http.StatusNotFound, "not_found", "search parameters are not stored")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), cacheOpTimeout)
	defer cancel()
	var criteria domain.SearchCriteria
	found, err := cache.GetJSON(ctx, s.cache, cache.SearchParamsKey(id), &criteria)
	if err != nil {
		s.logger.Warn("search params read failed", slog.String("jobId", id.String()), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cache_error", "failed to read search parameters")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "no search parameters for this request id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": id, "params": criteria})
}

func (s *Server) handleContinueSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobIDParam(w, r)
	if !ok {
		return
	}
	next, err := s.search.ContinueSearch(r.Context(), id)
	if err != nil {
		s.writeSearchError(w, "continue", err)
		return
	}
	if next != id {
		s.copySearchParams(r.Context(), id, next)
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": next, "continued_from": id})
}

func (s *Server) handleActualizeTour(w http.ResponseWriter, r *http.Request) {
	var req domain.ActualizeRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON actualization request")
		return
	}
	s.writeTourDetails(w, r, req)
}

// handleTourByID answers from the remote cache, the cheapest actualization.
func (s *Server) handleTourByID(w http.ResponseWriter, r *http.Request) {
	s.writeTourDetails(w, r, domain.ActualizeRequest{
		TourID:       r.PathValue("tourId"),
		RequestCheck: domain.ActualizeCached,
	})
}

func (s *Server) writeTourDetails(w http.ResponseWriter, r *http.Request, req domain.ActualizeRequest) {
	if err := req.Validate(); err != nil {
		s.writeSearchError(w, "actualize", err)
		return
	}
	tour, err := s.search.ActualizeTour(r.Context(), req)
	if err != nil {
		s.writeSearchError(w, "actualize", err)
		return
	}
	flights, err := s.search.ActualizeTourDetails(r.Context(), req.TourID)
	if err != nil {
		s.writeSearchError(w, "actualize_detail", err)
		return
	}
	if flights.Flights == nil {
		flights.Flights = []domain.FlightOption{}
	}
	writeJSON(w, http.StatusOK, domain.TourDetails{Tour: tour, Flights: flights.Flights, Info: flights.Info})
}

func (s *Server) handleRemoteHealth(w http.ResponseWriter, _ *http.Request) {
	items := s.search.Diagnostics()
	if items == nil {
		items = []domain.RemoteDiagnostics{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	pattern := strings.TrimSpace(r.URL.Query().Get("pattern"))
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "invalid_pattern", "pattern is required")
		return
	}
	if s.cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"pattern": pattern, "deleted": 0})
		return
	}
	deleted, err := s.cache.DeleteByPattern(r.Context(), pattern)
	if err != nil {
		s.logger.Warn("cache clear failed", slog.String("pattern", pattern), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cache_error", "failed to clear cache")
		return
	}
	s.logger.Info("cache cleared", slog.String("pattern", pattern), slog.Int("deleted", deleted))
	writeJSON(w, http.StatusOK, map[string]any{"pattern": pattern, "deleted": deleted})
}

func (s *Server) handleConnectionStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

func (s *Server) handleCloseConnections(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobIDParam(w, r)
	if !ok {
		return
	}
	closed := s.registry.CloseJob(id, "connections closed by server")
	if closed == 0 {
		writeError(w, http.StatusNotFound, "not_found", domain.ErrJobNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": id, "closed": closed})
}

func (s *Server) writeSearchError(w http.ResponseWriter, operation string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCriteria):
		writeError(w, http.StatusBadRequest, "invalid_criteria", err.Error())
	case errors.Is(err, domain.ErrInvalidTourID):
		writeError(w, http.StatusBadRequest, "invalid_tour_id", err.Error())
	case errors.Is(err, domain.ErrTourNotFound):
		writeError(w, http.StatusNotFound, "tour_not_found", "tour is no longer available")
	case errors.Is(err, domain.ErrRemoteUnavailable):
		s.logger.Warn("remote search unavailable", slog.String("operation", operation), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "remote_unavailable", "tour search service is unavailable")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, "canceled", "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "tour search service timed out")
	default:
		s.logger.Error("search request failed", slog.String("operation", operation), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (s *Server) storeSearchParams(ctx context.Context, id domain.SearchJobID, criteria domain.SearchCriteria) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := cache.SetJSON(ctx, s.cache, cache.SearchParamsKey(id), criteria, s.paramsTTL); err != nil {
		s.logger.Warn("search params not cached", slog.String("jobId", id.String()), slog.String("error", err.Error()))
	}
}

func (s *Server) cachedResultPage(ctx context.Context, key string) (domain.ResultPage, bool) {
	var result domain.ResultPage
	if s.cache == nil {
		return result, false
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	found, err := cache.GetJSON(ctx, s.cache, key, &result)
	if err != nil {
		s.logger.Debug("result page cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return domain.ResultPage{}, false
	}
	return result, found
}

// storeResultPage caches a page of a finished search; those no longer change.
func (s *Server) storeResultPage(ctx context.Context, key string, result domain.ResultPage) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := cache.SetJSON(ctx, s.cache, key, result, s.resultsTTL); err != nil {
		s.logger.Debug("result page not cached", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Server) copySearchParams(ctx context.Context, from, to domain.SearchJobID) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	var criteria domain.SearchCriteria
	found, err := cache.GetJSON(ctx, s.cache, cache.SearchParamsKey(from), &criteria)
	if err != nil || !found {
		return
	}
	s.storeSearchParams(ctx, to, criteria)
}

func parseJobIDParam(w http.ResponseWriter, r *http.Request) (domain.SearchJobID, bool) {
	id, err := domain.ParseSearchJobID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_job_id", err.Error())
		return "", false
	}
	return id, true
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return value, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
