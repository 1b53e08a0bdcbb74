package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"marketfuse/internal/cache"
	apierrors "marketfuse/internal/errors"
	"marketfuse/internal/pipeline"
	"marketfuse/pkg/contracts/domain"
)

// PipelineHandler exposes the engine over HTTP.
type PipelineHandler struct {
	pipeline *pipeline.Pipeline
	cache    cache.Cache
	cacheTTL time.Duration
	validate *validator.Validate
	logger   *slog.Logger
}

// NewPipelineHandler creates the engine handler. A nil cache disables
// result caching.
func NewPipelineHandler(p *pipeline.Pipeline, c cache.Cache, cacheTTL time.Duration, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{
		pipeline: p,
		cache:    c,
		cacheTTL: cacheTTL,
		validate: validator.New(),
		logger:   logger.With(slog.String("handler", "pipeline")),
	}
}

// RegisterRoutes registers the engine routes.
func (h *PipelineHandler) RegisterRoutes(r chi.Router) {
	r.Route("/normalize", func(r chi.Router) {
		r.Post("/batch", h.NormalizeBatch)
		r.Post("/{dataType}", h.Normalize)
	})
	r.Post("/fuse", h.Fuse)
	r.Route("/statistics", func(r chi.Router) {
		r.Get("/", h.GetStatistics)
		r.Post("/reset", h.ResetStatistics)
	})
	r.Route("/config", func(r chi.Router) {
		r.Get("/", h.GetConfig)
		r.Put("/", h.UpdateConfig)
	})
}

// Normalize handles POST /normalize/{dataType}.
func (h *PipelineHandler) Normalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dataType := domain.DataType(chi.URLParam(r, "dataType"))
	if !dataType.IsValid() {
		render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_PARAMETER",
				"Unknown data type", string(dataType))))
		return
	}

	var payload domain.RawSourcePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	indicator := r.URL.Query().Get("indicator")
	if dataType == domain.DataTypeTechnicalIndicator && indicator == "" {
		render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.ErrValidation("indicator", "indicator query parameter is required for technical_indicator")))
		return
	}

	key := h.cacheKey(dataType, payload, indicator)
	if cached, ok := h.cacheGet(ctx, key); ok {
		w.Header().Set("X-Cache", "hit")
		render.JSON(w, r, cached)
		return
	}

	result := h.pipeline.Normalize(ctx, domain.BatchRequest{
		DataType:  dataType,
		Payload:   payload,
		Indicator: indicator,
	})
	if !result.Success {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.NormalizationError(result.Errors)))
		return
	}

	h.cacheSet(ctx, key, result)
	render.JSON(w, r, result)
}

// BatchNormalizeRequest is the batch endpoint's body.
type BatchNormalizeRequest struct {
	Requests []domain.BatchRequest `json:"requests" validate:"required,min=1,dive"`
}

// NormalizeBatch handles POST /normalize/batch.
func (h *PipelineHandler) NormalizeBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchNormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	result := h.pipeline.BatchNormalize(ctx, req.Requests)
	render.JSON(w, r, result)
}

// FuseRequest is the fusion endpoint's body.
type FuseRequest struct {
	Field      string                  `json:"field" validate:"required"`
	Strategy   domain.FusionStrategy   `json:"strategy,omitempty"`
	Candidates []domain.FusionCandidate `json:"candidates" validate:"required,min=1"`
}

// Fuse handles POST /fuse.
func (h *PipelineHandler) Fuse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req FuseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}
	if req.Strategy != "" && !req.Strategy.IsValid() {
		render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_PARAMETER",
				"Unknown fusion strategy", string(req.Strategy))))
		return
	}

	result, err := h.pipeline.Fuse(ctx, req.Field, req.Candidates, req.Strategy)
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.FusionError(err)))
		return
	}
	render.JSON(w, r, result)
}

// GetStatistics handles GET /statistics.
func (h *PipelineHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.pipeline.Statistics())
}

// ResetStatistics handles POST /statistics/reset.
func (h *PipelineHandler) ResetStatistics(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Reset()
	render.JSON(w, r, map[string]interface{}{"success": true})
}

// GetConfig handles GET /config.
func (h *PipelineHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.pipeline.Config())
}

// UpdateConfig handles PUT /config. Cached results computed under the old
// configuration are invalidated; nothing is reprocessed.
func (h *PipelineHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var patch pipeline.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}
	if err := h.pipeline.UpdateConfig(patch); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ConfigUpdateError(err)))
		return
	}

	invalidated := 0
	if h.cache != nil {
		invalidated = h.cache.InvalidatePattern(ctx, "normalize:*")
	}
	h.logger.InfoContext(ctx, "configuration updated",
		slog.Int("cache_entries_invalidated", invalidated))

	render.JSON(w, r, map[string]interface{}{
		"success":                   true,
		"cache_entries_invalidated": invalidated,
	})
}

func (h *PipelineHandler) cacheKey(dataType domain.DataType, payload domain.RawSourcePayload, indicator string) string {
	key := fmt.Sprintf("normalize:%s:%s:%s:%d", dataType, payload.Source, payload.Symbol, payload.FetchedAt.UnixNano())
	if indicator != "" {
		key += ":" + indicator
	}
	return key
}

func (h *PipelineHandler) cacheGet(ctx context.Context, key string) (interface{}, bool) {
	if h.cache == nil {
		return nil, false
	}
	return h.cache.Get(ctx, key)
}

func (h *PipelineHandler) cacheSet(ctx context.Context, key string, value interface{}) {
	if h.cache == nil {
		return
	}
	h.cache.Set(ctx, key, value, h.cacheTTL)
}
