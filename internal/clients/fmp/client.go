package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/deepresearch-backend/internal/platform/envutil"
	"github.com/yungbote/deepresearch-backend/internal/platform/httpx"
	"github.com/yungbote/deepresearch-backend/internal/platform/logger"
)

// Error carries the upstream status so retry policy can inspect it.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("fmp api error %d: %s", e.StatusCode, e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// CompanyProfile is the subset of the profile payload the research pipeline
// cares about.
type CompanyProfile struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	Industry    string  `json:"industry"`
	Sector      string  `json:"sector"`
	Description string  `json:"description"`
	Website     string  `json:"website"`
	CEO         string  `json:"ceo"`
	Country     string  `json:"country"`
	MarketCap   float64 `json:"mktCap"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Exchange    string  `json:"exchangeShortName"`
	IPODate     string  `json:"ipoDate"`
}

type Quote struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	Price            float64 `json:"price"`
	Change           float64 `json:"change"`
	ChangePercentage float64 `json:"changesPercentage"`
	DayLow           float64 `json:"dayLow"`
	DayHigh          float64 `json:"dayHigh"`
	YearLow          float64 `json:"yearLow"`
	YearHigh         float64 `json:"yearHigh"`
	Volume           int64   `json:"volume"`
	AvgVolume        int64   `json:"avgVolume"`
	MarketCap        float64 `json:"marketCap"`
	PE               float64 `json:"pe"`
	EPS              float64 `json:"eps"`
	Timestamp        int64   `json:"timestamp"`
}

type TreasuryRate struct {
	Date   string  `json:"date"`
	Month1 float64 `json:"month1"`
	Month3 float64 `json:"month3"`
	Month6 float64 `json:"month6"`
	Year1  float64 `json:"year1"`
	Year2  float64 `json:"year2"`
	Year5  float64 `json:"year5"`
	Year10 float64 `json:"year10"`
	Year30 float64 `json:"year30"`
}

type NewsArticle struct {
	Symbol        string `json:"symbol"`
	PublishedDate string `json:"publishedDate"`
	Title         string `json:"title"`
	Site          string `json:"site"`
	Text          string `json:"text"`
	URL           string `json:"url"`
}

type EODQuote struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

// Calendar events carry a venue-specific field set; impact and country are
// the only keys the client itself reads.
type EconomicEvent = map[string]any

type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Exchange string `json:"exchangeShortName"`
}

// Statement rows vary widely by endpoint and plan; keep them generic and let
// callers pick fields.
type StatementRow = map[string]any

// Client talks to the Financial Modeling Prep REST API.
type Client struct {
	log        *logger.Logger
	apiKey     string
	baseURL    string
	stableURL  string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("FMP_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing FMP_API_KEY")
	}

	base := strings.TrimRight(envutil.Str("FMP_BASE_URL", "https://financialmodelingprep.com/api/v3"), "/")
	stable := strings.TrimRight(envutil.Str("FMP_STABLE_URL", "https://financialmodelingprep.com/stable"), "/")
	timeout := envutil.Seconds("FMP_TIMEOUT_SECONDS", 30*time.Second)
	maxRetries := envutil.Int("FMP_MAX_RETRIES", 3)
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Client{
		log:        log.With("service", "FMPClient"),
		apiKey:     apiKey,
		baseURL:    base,
		stableURL:  stable,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}, nil
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	fullURL := rawURL + "?" + params.Encode()

	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(httpx.JitterSleep(backoff)):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if httpx.IsRetryableError(err) {
				continue
			}
			return err
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			apiErr := &Error{StatusCode: resp.StatusCode, Message: truncateBody(body)}
			lastErr = apiErr
			if httpx.IsRetryableHTTPStatus(resp.StatusCode) {
				backoff = httpx.RetryAfterDuration(resp, backoff, 30*time.Second)
				c.log.Warn("fmp request retrying",
					"status", resp.StatusCode,
					"attempt", attempt+1,
				)
				continue
			}
			return apiErr
		}

		trimmed := strings.TrimSpace(string(body))
		if trimmed == "" || trimmed == "[]" || trimmed == "{}" {
			return &Error{StatusCode: http.StatusNotFound, Message: "no data found"}
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode fmp response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("fmp request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) getV3(ctx context.Context, endpoint string, params url.Values, out any) error {
	return c.get(ctx, c.baseURL+"/"+strings.TrimLeft(endpoint, "/"), params, out)
}

// CompanyProfile returns profile information for one symbol.
func (c *Client) CompanyProfile(ctx context.Context, symbol string) (*CompanyProfile, error) {
	var profiles []CompanyProfile
	if err := c.getV3(ctx, "profile/"+url.PathEscape(symbol), nil, &profiles); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, &Error{StatusCode: http.StatusNotFound, Message: "no data found"}
	}
	return &profiles[0], nil
}

// FullQuote returns the detailed quote for one symbol.
func (c *Client) FullQuote(ctx context.Context, symbol string) (*Quote, error) {
	var quotes []Quote
	if err := c.getV3(ctx, "quote/"+url.PathEscape(symbol), nil, &quotes); err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, &Error{StatusCode: http.StatusNotFound, Message: "no data found"}
	}
	return &quotes[0], nil
}

func (c *Client) IncomeStatement(ctx context.Context, symbol, period string, limit int) ([]StatementRow, error) {
	return c.statement(ctx, "income-statement/"+url.PathEscape(symbol), period, limit)
}

func (c *Client) BalanceSheet(ctx context.Context, symbol, period string, limit int) ([]StatementRow, error) {
	return c.statement(ctx, "balance-sheet-statement/"+url.PathEscape(symbol), period, limit)
}

func (c *Client) CashFlow(ctx context.Context, symbol, period string, limit int) ([]StatementRow, error) {
	return c.statement(ctx, "cash-flow-statement/"+url.PathEscape(symbol), period, limit)
}

func (c *Client) KeyMetrics(ctx context.Context, symbol, period string, limit int) ([]StatementRow, error) {
	return c.statement(ctx, "key-metrics/"+url.PathEscape(symbol), period, limit)
}

func (c *Client) FinancialRatios(ctx context.Context, symbol, period string, limit int) ([]StatementRow, error) {
	return c.statement(ctx, "ratios/"+url.PathEscape(symbol), period, limit)
}

func (c *Client) statement(ctx context.Context, endpoint, period string, limit int) ([]StatementRow, error) {
	if period == "" {
		period = "annual"
	}
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{}
	params.Set("period", period)
	params.Set("limit", strconv.Itoa(limit))

	var rows []StatementRow
	if err := c.getV3(ctx, endpoint, params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// TreasuryRates returns treasury rates for the past 30 days from the stable
// endpoint.
func (c *Client) TreasuryRates(ctx context.Context) ([]TreasuryRate, error) {
	now := time.Now().UTC()
	params := url.Values{}
	params.Set("from", now.AddDate(0, 0, -30).Format("2006-01-02"))
	params.Set("to", now.Format("2006-01-02"))

	var rates []TreasuryRate
	if err := c.get(ctx, c.stableURL+"/treasury-rates", params, &rates); err != nil {
		return nil, err
	}
	return rates, nil
}

// EODQuotes returns light end-of-day prices for a stock or index symbol from
// the stable endpoint. Empty dates leave that side of the range unbounded.
func (c *Client) EODQuotes(ctx context.Context, symbol, fromDate, toDate string) ([]EODQuote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if fromDate != "" {
		params.Set("from", fromDate)
	}
	if toDate != "" {
		params.Set("to", toDate)
	}

	var quotes []EODQuote
	if err := c.get(ctx, c.stableURL+"/historical-price-eod/light", params, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// EconomicEvents returns calendar events (CPI, GDP, Fed meetings) for a date
// range capped at 30 days. Passing either filter narrows the result; the
// other then defaults to the market-moving set (High/Medium, US/EA).
func (c *Client) EconomicEvents(ctx context.Context, fromDate, toDate string, impact, countries []string) ([]EconomicEvent, error) {
	from, err := time.Parse("2006-01-02", fromDate)
	if err != nil {
		return nil, fmt.Errorf("parse from date: %w", err)
	}
	to, err := time.Parse("2006-01-02", toDate)
	if err != nil {
		return nil, fmt.Errorf("parse to date: %w", err)
	}
	if to.Sub(from) > 30*24*time.Hour {
		toDate = from.AddDate(0, 0, 30).Format("2006-01-02")
		c.log.Warn("economic events range capped at 30 days", "from", fromDate, "to", toDate)
	}

	params := url.Values{}
	params.Set("from", fromDate)
	params.Set("to", toDate)

	var events []EconomicEvent
	if err := c.getV3(ctx, "economic_calendar", params, &events); err != nil {
		return nil, err
	}
	if len(impact) == 0 && len(countries) == 0 {
		return events, nil
	}
	if len(impact) == 0 {
		impact = []string{"High", "Medium"}
	}
	if len(countries) == 0 {
		countries = []string{"US", "EA"}
	}

	filtered := make([]EconomicEvent, 0, len(events))
	for _, ev := range events {
		imp, _ := ev["impact"].(string)
		country, _ := ev["country"].(string)
		if slices.Contains(impact, imp) && slices.Contains(countries, country) {
			filtered = append(filtered, ev)
		}
	}
	return filtered, nil
}

// StockNews returns recent articles, optionally filtered by tickers.
func (c *Client) StockNews(ctx context.Context, symbols []string, limit int) ([]NewsArticle, error) {
	if limit <= 0 {
		limit = 50
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if len(symbols) > 0 {
		params.Set("tickers", strings.Join(symbols, ","))
	}

	var articles []NewsArticle
	if err := c.getV3(ctx, "stock_news", params, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// SearchSymbols looks up tickers by free-text query.
func (c *Client) SearchSymbols(ctx context.Context, query string, limit int) ([]SymbolMatch, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))

	var matches []SymbolMatch
	if err := c.getV3(ctx, "search", params, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
