package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/handoff-audit/audit/fileutils"
	"github.com/theimaginaryfoundation/handoff-audit/audit/provider"
)

// DefaultBaseURL is where a locally deployed R2R server listens.
const DefaultBaseURL = "http://localhost:7272"

// SearchSettings is the fixed retrieval configuration sent with every query.
type SearchSettings struct {
	SearchStrategy string         `json:"search_strategy"`
	Limit          int            `json:"limit"`
	SearchMode     string         `json:"search_mode"`
	Filters        map[string]any `json:"filters,omitempty"`
}

// DefaultSearchSettings scopes rag-fusion search to one ingested policy document.
func DefaultSearchSettings(documentID string) SearchSettings {
	s := SearchSettings{
		SearchStrategy: "rag_fusion",
		Limit:          20,
		SearchMode:     "advanced",
	}
	if documentID != "" {
		s.Filters = map[string]any{"document_id": map[string]string{"$eq": documentID}}
	}
	return s
}

type ragRequest struct {
	Query          string         `json:"query"`
	SearchSettings SearchSettings `json:"search_settings"`
}

type ragResponse struct {
	Results struct {
		Completion string `json:"completion"`
	} `json:"results"`
}

// maxErrorBody bounds the response body quoted in an HTTPStatusError message.
const maxErrorBody = 300

// HTTPStatusError captures non-2xx responses from the retrieval service.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("retrieval: unexpected status %d from %s: %s", e.StatusCode, e.URL, fileutils.Truncate(e.Body, maxErrorBody))
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client calls the R2R RAG endpoint. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	settings   SearchSettings
	httpClient *http.Client
	retry      provider.RetryPolicy
	logger     *zap.Logger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(apiKey)
	}
}

func WithRetryPolicy(p provider.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client whose searches are scoped to documentID.
func NewClient(documentID string, opts ...Option) (*Client, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, errors.New("retrieval: document id must not be empty")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		settings:   DefaultSearchSettings(documentID),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		retry:      provider.DefaultRetryPolicy(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		return nil, errors.New("retrieval: base url must not be empty")
	}
	return c, nil
}

// Settings returns the search settings sent with every query.
func (c *Client) Settings() SearchSettings {
	return c.settings
}

func ragURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/v3") {
		return base + "/retrieval/rag"
	}
	return base + "/v3/retrieval/rag"
}

// Retrieve sends query to the RAG endpoint and returns the synthesized completion with reference markers removed.
// Rate-limit and server errors are retried per the client's retry policy.
func (c *Client) Retrieve(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(ragRequest{Query: query, SearchSettings: c.settings})
	if err != nil {
		return "", fmt.Errorf("retrieval: marshal request: %w", err)
	}
	url := ragURL(c.baseURL)

	raw, err := provider.CallWithRetry(ctx, c.retry, c.logger, "retrieval.rag", func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("retrieval: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return c.doJSONRequest(req, url)
	})
	if err != nil {
		return "", fmt.Errorf("retrieval: request failed: %w", err)
	}

	var payload ragResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("retrieval: decode response: %w", err)
	}
	return CleanAnswer(payload.Results.Completion), nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
