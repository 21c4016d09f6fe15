// Package router implements the coordinator: it picks a specialist agent for
// each query and relays the query over the inter-agent transport.
package router

import (
	"context"
	"strings"
	"time"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/agent"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/config"
	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/journal"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/observability/metrics"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/transport"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/pkg/logger"
)

// Target 是转发目标。
type Target string

const (
	TargetEvents  Target = "events"
	TargetPayment Target = "payment"
)

// StatusSuccess 表示收到了对端的文本回复。
const StatusSuccess = "success"

// NoTextMessage 是未收到可用回复时返回的说明。
const NoTextMessage = "Reply contained no text"

// Route 按关键字选择转发目标：包含 pay（含 payment）即转给支付 Agent。
// 否定句同样命中，例如 "I don't want to pay"。
func Route(query string) Target {
	if strings.Contains(strings.ToLower(query), "pay") {
		return TargetPayment
	}
	return TargetEvents
}

// Requester 抽象请求/回复式的消息投递，transport.Mailbox 实现了该接口。
type Requester interface {
	Request(ctx context.Context, target string, kind transport.Kind, payload any) (transport.Envelope, transport.Status, error)
}

// Reply 是协调者返回给调用方的结果。
type Reply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Option 定义可选的 Coordinator 配置。
type Option func(*Coordinator)

// WithMetrics 配置指标收集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithJournal 配置对话记录存储。
func WithJournal(store journal.Store) Option {
	return func(c *Coordinator) {
		if store != nil {
			c.journal = store
		}
	}
}

// WithName 设置写入记录的 Agent 名称。
func WithName(name string) Option {
	return func(c *Coordinator) { c.name = name }
}

// Coordinator 将用户查询转发给专职 Agent 并同步等待回复。
type Coordinator struct {
	requester Requester
	peers     map[Target]string
	name      string
	metrics   *metrics.Metrics
	journal   journal.Store
}

// NewCoordinator 创建协调者。
func NewCoordinator(requester Requester, peers config.PeersConfig, opts ...Option) (*Coordinator, error) {
	if requester == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置消息投递通道")
	}
	if peers.Events == "" || peers.Payment == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "转发目标地址不能为空")
	}
	c := &Coordinator{
		requester: requester,
		peers:     map[Target]string{TargetEvents: peers.Events, TargetPayment: peers.Payment},
		name:      "Coordinator",
		journal:   journal.Nop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Relay 路由并转发查询，返回对端文本或投递状态。
func (c *Coordinator) Relay(ctx context.Context, query string) Reply {
	start := time.Now()
	query = strings.TrimSpace(query)
	log := logger.Named("router")
	log.Info("incoming user request", "query", query)

	target := Route(query)
	address := c.peers[target]
	c.metrics.ObserveRoute(string(target))
	log.Info("routing query", "target", target, "address", address)

	env, status, err := c.requester.Request(ctx, address, transport.KindAgentMessage, transport.AgentMessage{Message: query})
	c.metrics.ObserveRelay(string(target), string(status))
	logger.Audit().Info("agent message relayed", "target", string(target), "address", address, "status", string(status))

	reply := Reply{Status: string(status), Message: NoTextMessage}
	switch {
	case err != nil:
		log.Warn("relay failed", "target", target, "status", status, "error", err)
	case env.Kind != transport.KindAgentMessage:
		log.Warn("reply is not an agent message", "target", target, "kind", env.Kind)
	default:
		var msg transport.AgentMessage
		if decodeErr := env.Decode(&msg); decodeErr != nil {
			log.Warn("decode agent reply failed", "error", decodeErr)
		} else {
			reply = Reply{Status: StatusSuccess, Message: msg.Message}
		}
	}

	outcome := journal.OutcomeRelayed
	if reply.Status != StatusSuccess {
		outcome = journal.OutcomeError
	}
	exchange := journal.Exchange{
		Agent:      c.name,
		Role:       config.RoleCoordinator,
		Channel:    agent.ChannelFrom(ctx),
		Query:      query,
		Answer:     reply.Message,
		Tools:      []string{string(target)},
		Outcome:    outcome,
		DurationMS: time.Since(start).Milliseconds(),
	}
	exchange.Stamp(start)
	if err := c.journal.Record(context.WithoutCancel(ctx), exchange); err != nil {
		log.Warn("record exchange failed", "error", err)
	}
	return reply
}
