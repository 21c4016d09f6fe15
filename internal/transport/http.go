package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
)

// SubmitPath 是对端接收信封的 REST 路径。
const SubmitPath = "/submit"

// HTTPConfig 描述 HTTP 总线的对端映射。
type HTTPConfig struct {
	Endpoints map[string]string
	Timeout   time.Duration
	Client    *http.Client
}

// HTTPBus 将信封以 JSON 形式 POST 到对端的 /submit 接口。
// 入站信封由 REST 服务接收后交给 Mailbox.Dispatch，因此 Consume 只等待退出。
type HTTPBus struct {
	endpoints map[string]string
	client    *http.Client
}

// NewHTTPBus 创建 HTTP 总线。
func NewHTTPBus(cfg HTTPConfig) *HTTPBus {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	endpoints := make(map[string]string, len(cfg.Endpoints))
	for address, endpoint := range cfg.Endpoints {
		endpoints[address] = strings.TrimRight(endpoint, "/")
	}
	return &HTTPBus{endpoints: endpoints, client: client}
}

func (b *HTTPBus) resolve(address string) (string, error) {
	if endpoint, ok := b.endpoints[address]; ok && endpoint != "" {
		return endpoint + SubmitPath, nil
	}
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return strings.TrimRight(address, "/") + SubmitPath, nil
	}
	return "", xerrors.New(xerrors.CodeTransportFailure, fmt.Sprintf("地址 %s 没有配置对端 endpoint", address))
}

// Publish 将信封 POST 到目标地址。
func (b *HTTPBus) Publish(ctx context.Context, address string, env Envelope) error {
	url, err := b.resolve(address)
	if err != nil {
		return err
	}
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "构建投递请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "投递信封失败")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return xerrors.New(xerrors.CodeTransportFailure,
			fmt.Sprintf("对端返回状态码 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return nil
}

// Consume 阻塞直到 ctx 结束。
func (b *HTTPBus) Consume(ctx context.Context, _ string, _ int, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close 释放空闲连接。
func (b *HTTPBus) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
