// Package eventverse is a small Go client for the EventVerse agent REST API.
package eventverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Answers take two LLM rounds plus backend calls, so it is generous.
const DefaultHTTPTimeout = 90 * time.Second

// Client wraps the HTTP interactions with one agent.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// ChatResponse is the reply of POST /chat. Status is "success" when the agent
// produced an answer; a coordinator reports the transport status otherwise.
type ChatResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Exchange is one journal record returned by GET /api/v1/exchanges.
type Exchange struct {
	ID         string   `json:"id"`
	Agent      string   `json:"agent"`
	Role       string   `json:"role"`
	Channel    string   `json:"channel"`
	Query      string   `json:"query"`
	Answer     string   `json:"answer"`
	Tools      []string `json:"tools,omitempty"`
	Outcome    string   `json:"outcome"`
	DurationMS int64    `json:"duration_ms"`
	CreatedAt  int64    `json:"created_at"`
}

// Health is the reply of GET /healthz.
type Health struct {
	Status string `json:"status"`
	Agent  string `json:"agent"`
	Role   string `json:"role"`
}

// APIError represents a non-2xx answer from the agent.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("eventverse api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the agent listening at rawURL. When
// httpClient is nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Chat sends a message to the agent and returns its answer.
func (c *Client) Chat(ctx context.Context, message string) (ChatResponse, error) {
	var resp ChatResponse
	if err := c.post(ctx, "/chat", map[string]string{"message": message}, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

// Exchanges lists the most recent journal records, newest first.
func (c *Client) Exchanges(ctx context.Context, limit int) ([]Exchange, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []Exchange
	if err := c.get(ctx, "/api/v1/exchanges", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health reports the agent identity.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.get(ctx, "/healthz", nil, &out); err != nil {
		return Health{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
