// Package journal keeps a write-only audit trail of completed exchanges.
// Records are never fed back into an LLM transcript.
package journal

import (
	"context"
	"time"
)

// 对话结果分类。
const (
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
	OutcomeRelayed  = "relayed"
)

// Exchange 表示一次完整的问答记录。
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

// Stamp 在缺省时补齐创建时间。
func (e *Exchange) Stamp(now time.Time) {
	if e.CreatedAt == 0 {
		e.CreatedAt = now.Unix()
	}
}

// Store 抽象对话记录的持久化接口。
type Store interface {
	Record(ctx context.Context, exchange Exchange) error
	Latest(ctx context.Context, limit int) ([]Exchange, error)
	Close() error
}

// Nop 丢弃所有记录。
type Nop struct{}

// Record 实现 Store。
func (Nop) Record(context.Context, Exchange) error { return nil }

// Latest 实现 Store。
func (Nop) Latest(context.Context, int) ([]Exchange, error) { return nil, nil }

// Close 实现 Store。
func (Nop) Close() error { return nil }
