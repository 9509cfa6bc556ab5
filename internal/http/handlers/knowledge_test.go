package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepresearch-backend/internal/domain"
	"github.com/yungbote/deepresearch-backend/internal/knowledge"
)

type fakeIngestService struct {
	beginOK    bool
	linkOK     bool
	report     knowledge.IngestReport
	endCalled  bool
	lastIngest string
}

func (f *fakeIngestService) BeginSession(_ context.Context, _, _ string) (string, bool) {
	if !f.beginOK {
		return "", false
	}
	return "run-1", true
}

func (f *fakeIngestService) Ingest(_ context.Context, content, _ string, _ map[string]any) knowledge.IngestReport {
	f.lastIngest = content
	return f.report
}

func (f *fakeIngestService) LinkClaims(_ context.Context, _, _, _ string) bool {
	return f.linkOK
}

func (f *fakeIngestService) EndSession(_ context.Context) {
	f.endCalled = true
}

type fakeGraphReader struct {
	claims  []domain.ClaimSummary
	summary *domain.RunSummary
}

func (f *fakeGraphReader) FindClaimsByConcepts(_ context.Context, _ []string, _ int) []domain.ClaimSummary {
	return f.claims
}

func (f *fakeGraphReader) GetAgentRunSummary(_ context.Context, _ string) *domain.RunSummary {
	return f.summary
}

func newTestRouter(ingest IngestService, reader GraphReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewKnowledgeHandler(ingest, reader)
	r.POST("/api/knowledge/sessions", h.BeginSession)
	r.DELETE("/api/knowledge/sessions/current", h.EndSession)
	r.POST("/api/knowledge/ingest", h.Ingest)
	r.POST("/api/knowledge/claims/link", h.LinkClaims)
	r.GET("/api/knowledge/claims/search", h.SearchClaims)
	r.GET("/api/knowledge/runs/:id/summary", h.RunSummary)
	return r
}

func TestBeginSessionEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeIngestService{beginOK: true}
	r := newTestRouter(svc, &fakeGraphReader{})

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/sessions",
		strings.NewReader(`{"initial_query":"fusion energy","research_brief":"brief"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d want=%d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["agent_run_id"] != "run-1" {
		t.Fatalf("agent_run_id: got=%q", resp["agent_run_id"])
	}
}

func TestBeginSessionEndpointRejectsMissingQuery(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&fakeIngestService{beginOK: true}, &fakeGraphReader{})

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/sessions",
		strings.NewReader(`{"research_brief":"no query"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
}

func TestBeginSessionEndpointFailure(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&fakeIngestService{beginOK: false}, &fakeGraphReader{})

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/sessions",
		strings.NewReader(`{"initial_query":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusBadGateway)
	}
}

func TestIngestEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeIngestService{
		beginOK: true,
		report: knowledge.IngestReport{
			OK:             true,
			SourceID:       "src-1",
			SourceStored:   true,
			ConceptsStored: []string{"Apple Inc."},
			ClaimsStored:   []string{"claim-1"},
			Links:          map[string][]string{"claim-1": {"Apple Inc."}},
		},
	}
	r := newTestRouter(svc, &fakeGraphReader{})

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/ingest",
		strings.NewReader(`{"content":"Apple released a chip","topic":"hardware","source_metadata":{"url":"https://example.com"}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK             bool     `json:"ok"`
		SourceID       string   `json:"source_id"`
		ConceptsStored []string `json:"concepts_stored"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK || resp.SourceID != "src-1" || len(resp.ConceptsStored) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if svc.lastIngest != "Apple released a chip" {
		t.Fatalf("content not forwarded: %q", svc.lastIngest)
	}
}

func TestLinkClaimsEndpoint(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&fakeIngestService{linkOK: true}, &fakeGraphReader{})

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/claims/link",
		strings.NewReader(`{"claim1_id":"a","claim2_id":"b","relationship":"SUPPORTS"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestEndSessionEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeIngestService{}
	r := newTestRouter(svc, &fakeGraphReader{})

	req := httptest.NewRequest(http.MethodDelete, "/api/knowledge/sessions/current", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d", rec.Code)
	}
	if !svc.endCalled {
		t.Fatalf("EndSession not invoked")
	}
}

func TestSearchClaimsEndpoint(t *testing.T) {
	t.Parallel()

	reader := &fakeGraphReader{claims: []domain.ClaimSummary{
		{ClaimID: "claim-1", ClaimText: "Apple released a chip", ConfidenceScore: 0.9},
	}}
	r := newTestRouter(&fakeIngestService{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/claims/search?concepts=Apple%20Inc.,%20&limit=5", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "claim-1") {
		t.Fatalf("claims missing from response: %s", rec.Body.String())
	}
}

func TestSearchClaimsRequiresConcepts(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&fakeIngestService{}, &fakeGraphReader{})

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/claims/search", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
}

func TestRunSummaryNotFound(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&fakeIngestService{}, &fakeGraphReader{summary: nil})

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/runs/run-9/summary", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusNotFound)
	}
}
