// Package handler exposes the lookup API under /api/v1/lookups.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"idlookup/internal/query/models"
	"idlookup/internal/query/service"
	dErrors "idlookup/pkg/domain-errors"
	"idlookup/pkg/platform/httputil"
	"idlookup/pkg/requestcontext"
)

// BasePath is where Register mounts the lookup routes.
const BasePath = "/api/v1/lookups"

// Service is the query orchestrator as seen by HTTP.
type Service interface {
	Lookup(ctx context.Context, req service.LookupRequest) (*models.QueryRecord, error)
	LookupAsync(ctx context.Context, req service.LookupRequest) (<-chan service.AsyncOutcome, error)
	HistoryFor(ctx context.Context, callerID string, req models.PageRequest) (models.Page[*models.QueryRecord], error)
	StatsFor(ctx context.Context, callerID string) (*models.Stats, error)
	Get(ctx context.Context, queryID uuid.UUID, callerID string) (*models.QueryRecord, error)
	Recent(ctx context.Context, callerID string, limit int) ([]*models.QueryRecord, error)
	Search(ctx context.Context, callerID, raw string) ([]*models.QueryRecord, error)
	CanQuery(ctx context.Context, callerID string) (*models.CallerStatus, error)
}

// Handler serves the lookup routes.
type Handler struct {
	svc       Service
	logger    *slog.Logger
	common    []func(http.Handler) http.Handler
	rateLimit func(http.Handler) http.Handler
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMiddleware adds middleware to every lookup route, typically auth.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.common = append(h.common, mw...) }
}

// WithRateLimit guards the two routes that start a lookup.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.rateLimit = mw }
}

func New(svc Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the lookup routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route(BasePath, func(r chi.Router) {
		r.Use(h.common...)

		r.Group(func(r chi.Router) {
			if h.rateLimit != nil {
				r.Use(h.rateLimit)
			}
			r.Post("/", h.handleLookup)
			r.Post("/async", h.handleLookupAsync)
		})

		r.Get("/history", h.handleHistory)
		r.Get("/stats", h.handleStats)
		r.Get("/recent", h.handleRecent)
		r.Get("/search", h.handleSearch)
		r.Get("/can-query", h.handleCanQuery)
		r.Get("/{queryID}", h.handleGet)
	})
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := h.lookupRequest(w, r)
	if !ok {
		return
	}

	record, err := h.svc.Lookup(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleLookupAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := h.lookupRequest(w, r)
	if !ok {
		return
	}

	// The outcome channel is buffered; the record is read back via /{queryID} or /recent.
	if _, err := h.svc.LookupAsync(ctx, req); err != nil {
		h.writeServiceError(ctx, w, "async lookup rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, AcceptedResponse{Accepted: true})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	page, err := parsePageRequest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.svc.HistoryFor(ctx, callerID, page)
	if err != nil {
		h.writeServiceError(ctx, w, "history failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.StatsFor(ctx, callerID)
	if err != nil {
		h.writeServiceError(ctx, w, "stats failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	limit, err := optionalInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.svc.Recent(ctx, callerID, limit)
	if err != nil {
		h.writeServiceError(ctx, w, "recent failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Items: nonNil(records)})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("identifier")
	if raw == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "identifier query parameter is required"))
		return
	}
	records, err := h.svc.Search(ctx, callerID, raw)
	if err != nil {
		h.writeServiceError(ctx, w, "search failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Items: nonNil(records)})
}

func (h *Handler) handleCanQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	status, err := h.svc.CanQuery(ctx, callerID)
	if err != nil {
		h.writeServiceError(ctx, w, "can-query failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	queryID, err := uuid.Parse(chi.URLParam(r, "queryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "query not found"))
		return
	}
	record, err := h.svc.Get(ctx, queryID, callerID)
	if err != nil {
		h.writeServiceError(ctx, w, "get failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) lookupRequest(w http.ResponseWriter, r *http.Request) (service.LookupRequest, bool) {
	callerID, ok := h.requireCaller(w, r)
	if !ok {
		return service.LookupRequest{}, false
	}

	var body LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.WarnContext(r.Context(), "invalid lookup request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return service.LookupRequest{}, false
	}
	if err := body.Validate(); err != nil {
		httputil.WriteError(w, err)
		return service.LookupRequest{}, false
	}

	ctx := r.Context()
	return service.LookupRequest{
		Identifier: body.Identifier,
		CallerID:   callerID,
		ClientIP:   requestcontext.ClientIP(ctx),
		UserAgent:  requestcontext.UserAgent(ctx),
	}, true
}

// requireCaller reads the caller set by the auth middleware.
func (h *Handler) requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	callerID := requestcontext.CallerID(r.Context())
	if callerID == "" {
		h.logger.ErrorContext(r.Context(), "caller missing from context",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return callerID, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	code := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"code", string(code),
		"error", err,
	}
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.InfoContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func parsePageRequest(r *http.Request) (models.PageRequest, error) {
	page, err := optionalInt(r, "page")
	if err != nil {
		return models.PageRequest{}, err
	}
	size, err := optionalInt(r, "size")
	if err != nil {
		return models.PageRequest{}, err
	}
	q := r.URL.Query()
	return models.PageRequest{
		Page:    page,
		Size:    size,
		SortBy:  models.SortField(q.Get("sort_by")),
		SortDir: models.SortDir(q.Get("sort_dir")),
	}, nil
}

func optionalInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be an integer")
	}
	return v, nil
}

func nonNil(records []*models.QueryRecord) []*models.QueryRecord {
	if records == nil {
		return []*models.QueryRecord{}
	}
	return records
}
