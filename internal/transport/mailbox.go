package transport

import (
	"context"
	"sync"
	"time"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/pkg/logger"
)

// Status 描述一次请求的投递结果。
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusTimeout   Status = "timeout"
	StatusFailed    Status = "failed"
)

const defaultReplyTimeout = 30 * time.Second

// MailboxOption 自定义 Mailbox 行为。
type MailboxOption func(*Mailbox)

// WithReplyTimeout 设置 Request 等待回复的时长。
func WithReplyTimeout(d time.Duration) MailboxOption {
	return func(m *Mailbox) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithWorkers 设置消费本地地址的协程数量。
func WithWorkers(n int) MailboxOption {
	return func(m *Mailbox) {
		if n > 0 {
			m.workers = n
		}
	}
}

// Mailbox 绑定一个本地地址，在 Bus 之上提供请求/回复语义。
// 携带 CorrelationID 的信封会唤醒对应的 Request，其余信封交给 Listen 注册的处理函数。
type Mailbox struct {
	bus     Bus
	address string
	timeout time.Duration
	workers int

	mu      sync.Mutex
	pending map[string]chan Envelope
	handler Handler
}

// NewMailbox 创建绑定在 address 上的 Mailbox。
func NewMailbox(bus Bus, address string, opts ...MailboxOption) (*Mailbox, error) {
	if bus == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "消息总线未初始化")
	}
	if address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Mailbox 地址不能为空")
	}
	m := &Mailbox{
		bus:     bus,
		address: address,
		timeout: defaultReplyTimeout,
		workers: 1,
		pending: make(map[string]chan Envelope),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Address 返回本地地址。
func (m *Mailbox) Address() string {
	return m.address
}

// Listen 注册处理函数并开始消费本地地址，阻塞直到 ctx 结束。
func (m *Mailbox) Listen(ctx context.Context, handler Handler) error {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
	return m.bus.Consume(ctx, m.address, m.workers, m.Dispatch)
}

// Dispatch 处理一条入站信封。HTTP 驱动下由 /submit 接口直接调用。
func (m *Mailbox) Dispatch(ctx context.Context, env Envelope) error {
	if env.CorrelationID != "" {
		m.mu.Lock()
		ch, ok := m.pending[env.CorrelationID]
		if ok {
			delete(m.pending, env.CorrelationID)
		}
		m.mu.Unlock()
		if ok {
			ch <- env
			return nil
		}
		logger.Named("transport").Warn("dropping reply without pending request",
			"address", m.address,
			"correlation_id", env.CorrelationID,
			"sender", env.Sender,
		)
		return nil
	}

	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "Mailbox 尚未注册处理函数")
	}
	return handler(ctx, env)
}

// Send 向 target 投递一条不等待回复的消息。
func (m *Mailbox) Send(ctx context.Context, target string, kind Kind, payload any) (Envelope, error) {
	env, err := NewEnvelope(kind, m.address, target, payload)
	if err != nil {
		return Envelope{}, err
	}
	if err := m.bus.Publish(ctx, target, env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Request 投递消息并等待携带相同 CorrelationID 的回复。
func (m *Mailbox) Request(ctx context.Context, target string, kind Kind, payload any) (Envelope, Status, error) {
	env, err := NewEnvelope(kind, m.address, target, payload)
	if err != nil {
		return Envelope{}, StatusFailed, err
	}

	ch := make(chan Envelope, 1)
	m.mu.Lock()
	m.pending[env.ID] = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, env.ID)
		m.mu.Unlock()
	}()

	if err := m.bus.Publish(ctx, target, env); err != nil {
		return Envelope{}, StatusFailed, err
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, StatusDelivered, nil
	case <-timer.C:
		return Envelope{}, StatusTimeout, xerrors.New(xerrors.CodeTimeout, "等待 "+target+" 回复超时")
	case <-ctx.Done():
		return Envelope{}, StatusFailed, ctx.Err()
	}
}

// Reply 回复 to 的发送方，并携带 to 的 ID 作为 CorrelationID。
func (m *Mailbox) Reply(ctx context.Context, to Envelope, kind Kind, payload any) error {
	if to.Sender == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "原始消息缺少发送方地址")
	}
	env, err := NewEnvelope(kind, m.address, to.Sender, payload)
	if err != nil {
		return err
	}
	env.CorrelationID = to.ID
	return m.bus.Publish(ctx, to.Sender, env)
}
