package http

import (
	"context"
	"errors"
	"iter"
	"net/http"

	"github.com/gin-gonic/gin"

	"algomind/src/core/model"
	"algomind/src/core/reasoning"
)

// Pipeline is what the handlers need from the reasoning pipeline
type Pipeline interface {
	Stream(ctx context.Context, req model.QueryRequest) iter.Seq[reasoning.Event]
	Process(ctx context.Context, req model.QueryRequest) (*model.PipelineResult, error)
	Similar(ctx context.Context, id string, k int) ([]model.RecommendationItem, error)
	EntityGraph(ctx context.Context, key string, typ model.EntityType, depth, limit int) *model.GraphData
	Ready() map[string]bool
}

// Probe checks one external dependency
type Probe func(ctx context.Context) error

type Handler struct {
	pipeline Pipeline
	probes   map[string]Probe
}

func NewHandler(pipeline Pipeline, probes map[string]Probe) *Handler {
	if probes == nil {
		probes = map[string]Probe{}
	}
	return &Handler{
		pipeline: pipeline,
		probes:   probes,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	// Query routes
	v1.POST("/query", h.Query)
	v1.POST("/query/stream", h.QueryStream)

	// Exploration routes
	v1.GET("/entities/:id/similar", h.SimilarEntities)
	v1.GET("/graph", h.EntityGraph)

	// System routes
	v1.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func sendError(c *gin.Context, status int, err error) {
	var code string
	switch {
	case errors.Is(err, reasoning.ErrInvalidRequest):
		code = "INVALID_REQUEST"
		status = http.StatusBadRequest
	case errors.Is(err, reasoning.ErrUnknownEntity):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, reasoning.ErrGeneration):
		code = "GENERATION_FAILED"
		status = http.StatusBadGateway
	case status == http.StatusBadRequest:
		code = "BAD_REQUEST"
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
