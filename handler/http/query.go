package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"algomind/src/core/model"
	"algomind/src/core/reasoning"
	"algomind/src/core/stream"
	"algomind/src/log"
)

type queryRequest struct {
	Text       string       `json:"text" binding:"required"`
	SessionID  string       `json:"sessionId"`
	Context    []model.Turn `json:"context"`
	IntentHint string       `json:"intentHint"`
	Difficulty string       `json:"difficulty"`
}

// toModel accepts the request, assigning a session id when the client has none
func (r queryRequest) toModel() (model.QueryRequest, error) {
	req := model.QueryRequest{
		Text:       r.Text,
		SessionID:  r.SessionID,
		Context:    r.Context,
		IntentHint: model.Intent(r.IntentHint),
		Difficulty: r.Difficulty,
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if err := reasoning.Validate(req); err != nil {
		return model.QueryRequest{}, err
	}
	if req.IntentHint != "" {
		req.IntentHint, _ = model.ParseIntent(string(req.IntentHint))
	}
	return req, nil
}

func bindQuery(c *gin.Context) (model.QueryRequest, bool) {
	var body queryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("%w: %v", reasoning.ErrInvalidRequest, err))
		return model.QueryRequest{}, false
	}
	req, err := body.toModel()
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return model.QueryRequest{}, false
	}
	return req, true
}

// Query handles POST /api/v1/query and answers with the final result only
func (h *Handler) Query(c *gin.Context) {
	req, ok := bindQuery(c)
	if !ok {
		return
	}

	result, err := h.pipeline.Process(c.Request.Context(), req)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("X-Session-Id", req.SessionID)
	sendJSON(c, http.StatusOK, result)
}

// QueryStream handles POST /api/v1/query/stream. Reasoning steps are sent as they
// happen, then the final response or an error, then the [DONE] sentinel.
func (h *Handler) QueryStream(c *gin.Context) {
	req, ok := bindQuery(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Session-Id", req.SessionID)
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	stats, err := stream.NewEmitter(c.Writer).Emit(ctx, h.pipeline.Stream(ctx, req))
	if err != nil {
		log.Error(err, "stream write failed", "session_id", req.SessionID, "messages", stats.Messages)
		return
	}
	if stats.Cancelled {
		log.Info("client disconnected", "session_id", req.SessionID, "messages", stats.Messages)
	}
}
