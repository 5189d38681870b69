package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"algomind/src/core/model"
)

const maxSimilar = 50

// SimilarEntities handles GET /api/v1/entities/:id/similar?k=
func (h *Handler) SimilarEntities(c *gin.Context) {
	k, err := intQuery(c, "k", 0)
	if err != nil || k < 0 || k > maxSimilar {
		sendError(c, http.StatusBadRequest, fmt.Errorf("k must be an integer between 0 and %d", maxSimilar))
		return
	}

	items, err := h.pipeline.Similar(c.Request.Context(), c.Param("id"), k)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, gin.H{
		"items": items,
	})
}

// EntityGraph handles GET /api/v1/graph?entity=&type=&depth=&limit=
func (h *Handler) EntityGraph(c *gin.Context) {
	entity := c.Query("entity")
	if entity == "" {
		sendError(c, http.StatusBadRequest, fmt.Errorf("entity is required"))
		return
	}
	depth, err := intQuery(c, "depth", 0)
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid depth: %v", err))
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid limit: %v", err))
		return
	}

	var typ model.EntityType
	if t := c.Query("type"); t != "" {
		typ = model.ParseEntityType(t)
	}

	graph := h.pipeline.EntityGraph(c.Request.Context(), entity, typ, depth, limit)
	if graph == nil {
		c.Status(http.StatusNoContent)
		return
	}
	sendJSON(c, http.StatusOK, graph)
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
