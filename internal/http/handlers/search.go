package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepresearch-backend/internal/clients/tavily"
	"github.com/yungbote/deepresearch-backend/internal/http/response"
)

type SearchHandler struct {
	tavily *tavily.Client
}

func NewSearchHandler(client *tavily.Client) *SearchHandler {
	return &SearchHandler{tavily: client}
}

type searchRequest struct {
	Queries    []string `json:"queries" binding:"required,min=1"`
	MaxResults int      `json:"max_results"`
	Topic      string   `json:"topic"`
	Summarize  bool     `json:"summarize"`
}

// POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	if h.tavily == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "search_unavailable",
			errors.New("web search provider not configured"))
		return
	}

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	batches := h.tavily.Search(c.Request.Context(), req.Queries, req.MaxResults, req.Topic)
	if req.Summarize {
		response.RespondOK(c, gin.H{"formatted": h.tavily.FormatResults(c.Request.Context(), batches)})
		return
	}
	response.RespondOK(c, gin.H{"results": batches})
}
