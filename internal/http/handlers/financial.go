package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepresearch-backend/internal/clients/fmp"
	"github.com/yungbote/deepresearch-backend/internal/http/response"
)

// FinancialHandler exposes market data lookups backed by the FMP client.
// Everything returns 503 when the client was not configured.
type FinancialHandler struct {
	fmp *fmp.Client
}

func NewFinancialHandler(client *fmp.Client) *FinancialHandler {
	return &FinancialHandler{fmp: client}
}

func (h *FinancialHandler) available(c *gin.Context) bool {
	if h.fmp == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "fmp_unavailable",
			errors.New("financial data provider not configured"))
		return false
	}
	return true
}

func respondFMPError(c *gin.Context, err error) {
	var apiErr *fmp.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		response.RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	response.RespondError(c, http.StatusBadGateway, "fmp_request_failed", err)
}

// GET /api/financial/profile/:symbol
func (h *FinancialHandler) Profile(c *gin.Context) {
	if !h.available(c) {
		return
	}
	profile, err := h.fmp.CompanyProfile(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondFMPError(c, err)
		return
	}
	response.RespondOK(c, profile)
}

// GET /api/financial/quote/:symbol
func (h *FinancialHandler) Quote(c *gin.Context) {
	if !h.available(c) {
		return
	}
	quote, err := h.fmp.FullQuote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondFMPError(c, err)
		return
	}
	response.RespondOK(c, quote)
}

// GET /api/financial/statements/:symbol?type=income|balance|cashflow&period=annual&limit=5
func (h *FinancialHandler) Statements(c *gin.Context) {
	if !h.available(c) {
		return
	}
	symbol := c.Param("symbol")
	period := c.DefaultQuery("period", "annual")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))

	var (
		rows []fmp.StatementRow
		err  error
	)
	switch c.DefaultQuery("type", "income") {
	case "income":
		rows, err = h.fmp.IncomeStatement(c.Request.Context(), symbol, period, limit)
	case "balance":
		rows, err = h.fmp.BalanceSheet(c.Request.Context(), symbol, period, limit)
	case "cashflow":
		rows, err = h.fmp.CashFlow(c.Request.Context(), symbol, period, limit)
	default:
		response.RespondError(c, http.StatusBadRequest, "invalid_request",
			errors.New("type must be income, balance, or cashflow"))
		return
	}
	if err != nil {
		respondFMPError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"statements": rows})
}

// GET /api/financial/metrics/:symbol
func (h *FinancialHandler) KeyMetrics(c *gin.Context) {
	if !h.available(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	rows, err := h.fmp.KeyMetrics(c.Request.Context(), c.Param("symbol"), c.DefaultQuery("period", "annual"), limit)
	if err != nil {
		respondFMPError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"metrics": rows})
}

// GET /api/financial/ratios/:symbol
func (h *FinancialHandler) Ratios(c *gin.Context) {
	if !h.available(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	rows, err := h.fmp.FinancialRatios(c.Request.Context(), c.Param("symbol"), c.DefaultQuery("period", "annual"), limit)
	if err != nil {
		respondFMPError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ratios": rows})
}

// GET /api/financial/treasury-rates
func (h *FinancialHandler) TreasuryRates(c *gin.Context) {
	if !h.available(c) {
		return
	}
	rates, err := h.fmp.TreasuryRates(c.Request.Context())
	if err != nil {
		respondFMPError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"treasury_rates": rates})
}

// GET /api/financial/eod/:symbol?from=2026-01-01&to=2026-01-31
func (h *FinancialHandler) EODQuotes(c *gin.Context) {
	if !h.available(c) {
		return
	}
	quotes, err := h.fmp.EODQuotes(c.Request.Context(), c.Param("symbol"), c.Query("from"), c.Query("to"))
	if err != nil {
		respondFMPError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"quotes": quotes})
}

// GET /api/financial/economic-events?from=2026-01-01&to=2026-01-15&impact=High,Medium&countries=US,EA
func (h *FinancialHandler) EconomicEvents(c *gin.Context) {
	if !h.available(c) {
		return
	}
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request",
			errors.New("from and to query parameters required (YYYY-MM-DD)"))
		return
	}

	events, err := h.fmp.EconomicEvents(c.Request.Context(), from, to,
		splitCSV(c.Query("impact")), splitCSV(c.Query("countries")))
	if err != nil {
		respondFMPError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"events": events})
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// GET /api/financial/news?symbols=AAPL,MSFT&limit=50
func (h *FinancialHandler) News(c *gin.Context) {
	if !h.available(c) {
		return
	}
	symbols := splitCSV(c.Query("symbols"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	articles, err := h.fmp.StockNews(c.Request.Context(), symbols, limit)
	if err != nil {
		respondFMPError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"articles": articles})
}

// GET /api/financial/search?q=apple&limit=10
func (h *FinancialHandler) SearchSymbols(c *gin.Context) {
	if !h.available(c) {
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request",
			errors.New("q query parameter required"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	matches, err := h.fmp.SearchSymbols(c.Request.Context(), query, limit)
	if err != nil {
		respondFMPError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"matches": matches})
}
