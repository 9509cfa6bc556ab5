package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepresearch-backend/internal/domain"
	"github.com/yungbote/deepresearch-backend/internal/http/response"
	"github.com/yungbote/deepresearch-backend/internal/knowledge"
)

// IngestService is the session-facing slice of the integrator.
type IngestService interface {
	BeginSession(ctx context.Context, initialQuery, researchBrief string) (string, bool)
	Ingest(ctx context.Context, content, topic string, sourceMetadata map[string]any) knowledge.IngestReport
	LinkClaims(ctx context.Context, claim1ID, claim2ID, kind string) bool
	EndSession(ctx context.Context)
}

// GraphReader is the query-facing slice of the graph store.
type GraphReader interface {
	FindClaimsByConcepts(ctx context.Context, conceptNames []string, limit int) []domain.ClaimSummary
	GetAgentRunSummary(ctx context.Context, agentRunID string) *domain.RunSummary
}

type KnowledgeHandler struct {
	ingest IngestService
	reader GraphReader
}

func NewKnowledgeHandler(ingest IngestService, reader GraphReader) *KnowledgeHandler {
	return &KnowledgeHandler{ingest: ingest, reader: reader}
}

type beginSessionRequest struct {
	InitialQuery  string `json:"initial_query" binding:"required"`
	ResearchBrief string `json:"research_brief"`
}

// POST /api/knowledge/sessions
func (h *KnowledgeHandler) BeginSession(c *gin.Context) {
	var req beginSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	runID, ok := h.ingest.BeginSession(c.Request.Context(), req.InitialQuery, req.ResearchBrief)
	if !ok {
		response.RespondError(c, http.StatusBadGateway, "begin_session_failed",
			errors.New("could not start research session"))
		return
	}
	response.RespondOK(c, gin.H{"agent_run_id": runID})
}

type ingestRequest struct {
	Content        string         `json:"content" binding:"required"`
	Topic          string         `json:"topic" binding:"required"`
	SourceMetadata map[string]any `json:"source_metadata"`
}

// POST /api/knowledge/ingest
func (h *KnowledgeHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	report := h.ingest.Ingest(c.Request.Context(), req.Content, req.Topic, req.SourceMetadata)
	response.RespondOK(c, gin.H{
		"ok":               report.OK,
		"source_id":        report.SourceID,
		"source_stored":    report.SourceStored,
		"concepts_stored":  report.ConceptsStored,
		"concepts_merged":  report.ConceptsMerged,
		"concepts_skipped": report.ConceptsSkipped,
		"claims_stored":    report.ClaimsStored,
		"claims_failed":    report.ClaimsFailed,
		"links":            report.Links,
		"insights":         report.Insights,
	})
}

type linkClaimsRequest struct {
	Claim1ID     string `json:"claim1_id" binding:"required"`
	Claim2ID     string `json:"claim2_id" binding:"required"`
	Relationship string `json:"relationship" binding:"required"`
}

// POST /api/knowledge/claims/link
func (h *KnowledgeHandler) LinkClaims(c *gin.Context) {
	var req linkClaimsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if !h.ingest.LinkClaims(c.Request.Context(), req.Claim1ID, req.Claim2ID, req.Relationship) {
		response.RespondError(c, http.StatusBadGateway, "link_claims_failed",
			errors.New("could not link claims"))
		return
	}
	response.RespondOK(c, gin.H{"linked": true})
}

// DELETE /api/knowledge/sessions/current
func (h *KnowledgeHandler) EndSession(c *gin.Context) {
	h.ingest.EndSession(c.Request.Context())
	response.RespondOK(c, gin.H{"ended": true})
}

// GET /api/knowledge/runs/:id/summary
func (h *KnowledgeHandler) RunSummary(c *gin.Context) {
	summary := h.reader.GetAgentRunSummary(c.Request.Context(), c.Param("id"))
	if summary == nil {
		response.RespondError(c, http.StatusNotFound, "run_not_found",
			errors.New("agent run not found"))
		return
	}
	response.RespondOK(c, summary)
}

// GET /api/knowledge/claims/search?concepts=a,b&limit=10
func (h *KnowledgeHandler) SearchClaims(c *gin.Context) {
	raw := c.Query("concepts")
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	if len(names) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request",
			errors.New("concepts query parameter required"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	claims := h.reader.FindClaimsByConcepts(c.Request.Context(), names, limit)
	response.RespondOK(c, gin.H{"claims": claims})
}
