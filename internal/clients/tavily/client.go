package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/deepresearch-backend/internal/platform/envutil"
	"github.com/yungbote/deepresearch-backend/internal/platform/logger"
	"github.com/yungbote/deepresearch-backend/internal/platform/openai"
)

// Result is one search hit from the Tavily API.
type Result struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content"`
	Score      float64 `json:"score"`
}

// QueryResults pairs a query with its hits; failed queries carry an error
// placeholder result instead of aborting the batch.
type QueryResults struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Summary is the structured digest of one page, produced by the model when
// raw content is available.
type Summary struct {
	Summary     string `json:"summary"`
	KeyExcerpts string `json:"key_excerpts"`
}

type searchRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	Topic             string `json:"topic"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

type tavilyHTTPError struct {
	StatusCode int
	Body       string
}

func (e *tavilyHTTPError) Error() string {
	return fmt.Sprintf("tavily http %d: %s", e.StatusCode, e.Body)
}

func (e *tavilyHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// Client executes web searches and model-backed summarization of results.
// The llm is optional; without one, FormatResults falls back to the
// search-engine snippet.
type Client struct {
	log        *logger.Logger
	apiKey     string
	baseURL    string
	httpClient *http.Client
	llm        openai.Client

	maxContentChars int
	concurrency     int
}

func NewClient(log *logger.Logger, llm openai.Client) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("TAVILY_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing TAVILY_API_KEY")
	}

	return &Client{
		log:             log.With("service", "TavilyClient"),
		apiKey:          apiKey,
		baseURL:         strings.TrimRight(envutil.Str("TAVILY_BASE_URL", "https://api.tavily.com"), "/"),
		httpClient:      &http.Client{Timeout: envutil.Seconds("TAVILY_TIMEOUT_SECONDS", 60*time.Second)},
		llm:             llm,
		maxContentChars: envutil.Int("TAVILY_MAX_CONTENT_CHARS", 50000),
		concurrency:     envutil.Int("TAVILY_SEARCH_CONCURRENCY", 4),
	}, nil
}

// Search runs all queries concurrently. A failed query yields a placeholder
// error result so the caller always gets one entry per query, in order.
func (c *Client) Search(ctx context.Context, queries []string, maxResults int, topic string) []QueryResults {
	if maxResults <= 0 {
		maxResults = 5
	}
	switch topic {
	case "general", "news", "finance":
	default:
		topic = "general"
	}

	out := make([]QueryResults, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for idx, query := range queries {
		g.Go(func() error {
			results, err := c.searchOne(gctx, query, maxResults, topic)
			if err != nil {
				c.log.Warn("search query failed", "query", query, "error", err)
				out[idx] = QueryResults{
					Query: query,
					Results: []Result{{
						Title:   "Search Error",
						Content: fmt.Sprintf("error searching for %q: %v", query, err),
					}},
				}
				return nil
			}
			out[idx] = QueryResults{Query: query, Results: results}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Client) searchOne(ctx context.Context, query string, maxResults int, topic string) ([]Result, error) {
	payload, err := json.Marshal(searchRequest{
		Query:             query,
		MaxResults:        maxResults,
		Topic:             topic,
		IncludeRawContent: true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 500 {
			msg = msg[:500]
		}
		return nil, &tavilyHTTPError{StatusCode: resp.StatusCode, Body: msg}
	}

	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}
	return decoded.Results, nil
}

// FormatResults deduplicates hits by URL, summarizes pages that returned raw
// content, and renders one readable block per page. Summarization failures
// fall back to the search snippet.
func (c *Client) FormatResults(ctx context.Context, batches []QueryResults) string {
	type page struct {
		result Result
	}
	var order []string
	unique := map[string]page{}
	for _, batch := range batches {
		for _, r := range batch.Results {
			if r.URL == "" {
				continue
			}
			if _, seen := unique[r.URL]; seen {
				continue
			}
			unique[r.URL] = page{result: r}
			order = append(order, r.URL)
		}
	}

	summaries := make(map[string]*Summary, len(order))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, u := range order {
		p := unique[u]
		if c.llm == nil || p.result.RawContent == "" {
			continue
		}
		g.Go(func() error {
			s, err := c.summarize(gctx, p.result.RawContent)
			if err != nil {
				c.log.Warn("page summarization failed", "url", u, "error", err)
				return nil
			}
			mu.Lock()
			summaries[u] = s
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	for _, u := range order {
		r := unique[u].result
		b.WriteString("\n")
		fmt.Fprintf(&b, "Title: %s\n", orDefault(r.Title, "No title"))
		fmt.Fprintf(&b, "URL: %s\n", u)
		if s := summaries[u]; s != nil {
			fmt.Fprintf(&b, "Summary: %s\n", s.Summary)
			fmt.Fprintf(&b, "Key Excerpts: %s\n", s.KeyExcerpts)
		} else {
			fmt.Fprintf(&b, "Content: %s\n", orDefault(r.Content, "No content available"))
		}
		b.WriteString("---\n")
	}
	return b.String()
}

func (c *Client) summarize(ctx context.Context, rawContent string) (*Summary, error) {
	if len(rawContent) > c.maxContentChars {
		rawContent = rawContent[:c.maxContentChars]
	}

	system := "You summarize web pages for a research agent. Preserve concrete facts, figures, and named entities. Respond with valid JSON."
	user := fmt.Sprintf(`Summarize the following webpage content. Produce:
- "summary": a dense factual summary of the page
- "key_excerpts": the most important verbatim quotes, separated by newlines

Today's date: %s

Webpage content:
%s`, time.Now().UTC().Format("2006-01-02"), rawContent)

	raw, err := c.llm.GenerateJSON(ctx, system, user, "webpage_summary", summarySchema())
	if err != nil {
		return nil, err
	}

	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(buf, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func summarySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":      map[string]any{"type": "string"},
			"key_excerpts": map[string]any{"type": "string"},
		},
		"required":             []string{"summary", "key_excerpts"},
		"additionalProperties": false,
	}
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
