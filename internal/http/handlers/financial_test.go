package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepresearch-backend/internal/clients/fmp"
	"github.com/yungbote/deepresearch-backend/internal/platform/logger"
)

func TestFinancialEndpointsUnavailableWithoutClient(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	h := NewFinancialHandler(nil)
	r.GET("/api/financial/profile/:symbol", h.Profile)
	r.GET("/api/financial/treasury-rates", h.TreasuryRates)

	for _, path := range []string{"/api/financial/profile/AAPL", "/api/financial/treasury-rates"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: status got=%d want=%d", path, rec.Code, http.StatusServiceUnavailable)
		}
	}
}

func TestEconomicEventsRequiresDateRange(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Setenv("FMP_API_KEY", "test-key")
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	client, err := fmp.NewClient(log)
	if err != nil {
		t.Fatalf("fmp.NewClient: %v", err)
	}

	r := gin.New()
	r.GET("/api/financial/economic-events", NewFinancialHandler(client).EconomicEvents)

	req := httptest.NewRequest(http.MethodGet, "/api/financial/economic-events?from=2026-06-01", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing to date: status got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
}

func TestSplitCSV(t *testing.T) {
	t.Parallel()

	got := splitCSV(" High, Medium ,,")
	if len(got) != 2 || got[0] != "High" || got[1] != "Medium" {
		t.Fatalf("splitCSV: got=%v", got)
	}
	if got := splitCSV(""); got != nil {
		t.Fatalf("empty input: got=%v want nil", got)
	}
}
