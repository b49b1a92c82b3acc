package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	apierrors "geminigate/internal/errors"
	"geminigate/internal/pipeline"
)

func (s *Server) handleChatCompletions(c *gin.Context) {
	rawJSON, err := c.GetRawData()
	if err != nil {
		writeAPIError(c, apierrors.New(http.StatusBadRequest, "failed to read request body: "+err.Error()))
		return
	}

	model := gjson.GetBytes(rawJSON, "model").String()
	if model == "" {
		writeAPIError(c, apierrors.New(http.StatusBadRequest, "model is required"))
		return
	}
	c.Set("model", model)

	if gjson.GetBytes(rawJSON, "stream").Bool() {
		s.handleStreamingChat(c, model, rawJSON)
		return
	}

	resp, apiErr := s.pipeline.HandleUnary(c.Request.Context(), model, rawJSON)
	if apiErr != nil {
		writeAPIError(c, apiErr)
		return
	}
	c.Data(http.StatusOK, "application/json", resp)
}

func (s *Server) handleStreamingChat(c *gin.Context, model string, rawJSON []byte) {
	flusher := pipeline.PrepareSSE(c.Writer)
	if flusher == nil {
		writeAPIError(c, apierrors.New(http.StatusInternalServerError, "streaming unsupported by response writer"))
		return
	}
	s.pipeline.HandleStream(c.Request.Context(), c.Writer, flusher, model, rawJSON)
}

// writeAPIError serializes the gateway's uniform error envelope
// (spec.md §6) for requests that fail before a stream has been opened.
func writeAPIError(c *gin.Context, apiErr *apierrors.APIError) {
	c.Data(apiErr.HTTPStatus, "application/json", apiErr.JSON())
}
