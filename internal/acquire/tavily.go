package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"go.uber.org/zap"
)

// MaxSearchResults is the most results a single search may request
const MaxSearchResults = 20

// TavilyClient searches the web through the Tavily search API
type TavilyClient struct {
	endpoint string
	apiKey   string
	depth    string
	client   *http.Client
	logger   *logger.Logger
}

type tavilyRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		RawContent string  `json:"raw_content"`
		Score      float64 `json:"score"`
	} `json:"results"`
}

// NewTavilyClient creates a search client
func NewTavilyClient(cfg config.SearchConfig, log *logger.Logger) *TavilyClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	depth := cfg.Depth
	if depth == "" {
		depth = "advanced"
	}
	return &TavilyClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		depth:    depth,
		client:   &http.Client{Timeout: timeout},
		logger:   log.WithComponent("tavily"),
	}
}

// Search runs a query. Failures come back as a single entry with Error set.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) []SearchResult {
	if maxResults <= 0 {
		maxResults = 5
	}
	if maxResults > MaxSearchResults {
		maxResults = MaxSearchResults
	}
	if c.apiKey == "" {
		return []SearchResult{{Error: "Tavily API key not configured"}}
	}

	body, err := json.Marshal(tavilyRequest{
		APIKey:            c.apiKey,
		Query:             query,
		MaxResults:        maxResults,
		SearchDepth:       c.depth,
		IncludeAnswer:     true,
		IncludeRawContent: true,
	})
	if err != nil {
		return []SearchResult{{Error: fmt.Sprintf("Tavily error: %v", err)}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return []SearchResult{{Error: fmt.Sprintf("Tavily error: %v", err)}}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return []SearchResult{{Error: "Tavily search timed out"}}
		}
		return []SearchResult{{Error: fmt.Sprintf("Tavily error: %v", err)}}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		c.logger.Warn("Search provider returned an error", zap.Int("status", resp.StatusCode))
		return []SearchResult{{Error: fmt.Sprintf("Tavily API error %d", resp.StatusCode)}}
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if isTimeout(err) {
			return []SearchResult{{Error: "Tavily search timed out"}}
		}
		return []SearchResult{{Error: fmt.Sprintf("Tavily error: %v", err)}}
	}

	results := make([]SearchResult, 0, len(decoded.Results))
	for _, item := range decoded.Results {
		if len(results) == maxResults {
			break
		}
		title := item.Title
		if title == "" {
			title = "Untitled"
		}
		results = append(results, SearchResult{
			Title:      title,
			URL:        item.URL,
			Content:    item.Content,
			RawContent: item.RawContent,
			Score:      item.Score,
		})
	}

	c.logger.Debug("Search completed",
		zap.Int("results", len(results)),
		zap.Duration("elapsed", time.Since(start)))
	return results
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
