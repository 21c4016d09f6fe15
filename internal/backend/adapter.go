// Package backend translates tool invocations into HTTP requests against the
// event canister's gateway.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/tools"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/pkg/logger"
)

const (
	defaultBaseURL    = "http://127.0.0.1:4943"
	defaultCanisterID = "w7lou-c7777-77774-qaamq-cai"
	defaultTimeout    = 30 * time.Second

	forceUpdateHeader = "X-Ic-Force-Update"
)

// HTTPError 表示后端返回了非 2xx 状态码。
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%d %s for url: %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Config 描述后端连接参数。
type Config struct {
	BaseURL    string
	CanisterID string
	Timeout    time.Duration
}

// Option 自定义 Adapter。
type Option func(*Adapter)

// WithHTTPClient 替换默认的 HTTP 客户端。
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithRoutes 替换接口表。
func WithRoutes(routes map[tools.ID]Route) Option {
	return func(a *Adapter) {
		if routes != nil {
			a.routes = routes
		}
	}
}

// Adapter 按接口表调用后端。无状态，可并发使用。
type Adapter struct {
	baseURL    string
	host       string
	httpClient *http.Client
	routes     map[tools.ID]Route
	logger     *slog.Logger
}

// NewAdapter 创建后端适配器。
func NewAdapter(cfg Config, opts ...Option) *Adapter {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	canister := strings.TrimSpace(cfg.CanisterID)
	if canister == "" {
		canister = defaultCanisterID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	a := &Adapter{
		baseURL:    baseURL,
		host:       canister + ".localhost",
		httpClient: &http.Client{Timeout: timeout},
		routes:     DefaultRoutes(),
		logger:     logger.Named("backend"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Supports 报告接口表是否覆盖该工具。
func (a *Adapter) Supports(id tools.ID) bool {
	_, ok := a.routes[id]
	return ok
}

// Invoke 执行一次工具调用并返回解码后的 JSON 结果。
func (a *Adapter) Invoke(ctx context.Context, id tools.ID, args map[string]any) (any, error) {
	route, ok := a.routes[id]
	if !ok {
		return nil, xerrors.New(xerrors.CodeUnsupportedTool, fmt.Sprintf("Unsupported function call: %s", id))
	}

	remaining := make(map[string]any, len(args))
	for k, v := range args {
		remaining[k] = v
	}
	if route.Validate != nil {
		if err := route.Validate(remaining); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("invalid arguments for %s", id))
		}
	}

	path, err := expandPath(route.Path, remaining)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("invalid arguments for %s", id))
	}
	if len(route.Fields) > 0 {
		remaining = pick(remaining, route.Fields)
	}

	endpoint := a.baseURL + path
	var body io.Reader
	switch route.Placement {
	case PlaceQuery:
		if query := encodeQuery(remaining); query != "" {
			endpoint += "?" + query
		}
	case PlaceBody:
		payload, err := json.Marshal(remaining)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode request body")
		}
		body = bytes.NewReader(payload)
	}
	if body == nil && route.Method == http.MethodPost {
		body = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, endpoint, body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeBackendFailure, err, "build backend request")
	}
	req.Host = a.host
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if route.ForceUpdate {
		req.Header.Set(forceUpdateHeader, "true")
	}

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeBackendFailure, err, fmt.Sprintf("call %s", id))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeBackendFailure, err, "read backend response")
	}
	a.logger.Debug("backend call finished",
		"tool", string(id),
		"method", route.Method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{
			Method:     route.Method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(raw)), 256),
		}
		return nil, xerrors.Wrap(xerrors.CodeBackendFailure, httpErr, fmt.Sprintf("%s failed", id),
			xerrors.WithMetadata("status", strconv.Itoa(resp.StatusCode)))
	}
	return decode(raw), nil
}

func expandPath(template string, args map[string]any) (string, error) {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("malformed path template %q", template)
		}
		name := rest[open+1 : open+end]
		value, ok := args[name]
		text := stringify(value)
		if !ok || text == "" {
			return "", fmt.Errorf("missing required argument %q", name)
		}
		delete(args, name)
		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(text))
		rest = rest[open+end+1:]
	}
}

func pick(args map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := args[f]; ok {
			out[f] = v
		}
	}
	return out
}

func encodeQuery(args map[string]any) string {
	values := url.Values{}
	for k, v := range args {
		if v == nil {
			continue
		}
		values.Set(k, stringify(v))
	}
	return values.Encode()
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// decode 优先按 JSON 解析，数字保留为 json.Number；非 JSON 响应按文本返回。
func decode(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil || dec.More() {
		return string(trimmed)
	}
	return out
}

// truncate 截断到至多 n 字节，且不会拆开 UTF-8 字符。
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
