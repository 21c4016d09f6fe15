package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/config"
	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/journal"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/llm"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/observability/alerting"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/observability/metrics"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/tools"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/pkg/logger"
)

// 各角色在大模型未请求任何工具时返回的固定文案。
const (
	FallbackFull    = "I couldn't determine what Event information you're looking for. Please try rephrasing your question."
	FallbackEvents  = "I couldn't figure out which event info you need."
	FallbackPayment = "I couldn't figure out which payment info you need."
)

const errorPrefix = "An error occurred while processing your request: "

// Backend 执行工具调用。
type Backend interface {
	tools.Handler
	Invoke(ctx context.Context, id tools.ID, args map[string]any) (any, error)
}

// Formatter 将工具结果渲染为文本。
type Formatter interface {
	tools.Handler
	Format(id tools.ID, args map[string]any, result any) string
}

// Config 描述 Orchestrator 的身份与采样参数。
type Config struct {
	Name        string
	Role        string
	Fallback    string
	Temperature float32
	MaxTokens   int
}

// ToolExecution 记录一次工具调用的结果。
type ToolExecution struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Content string `json:"content"`
}

// Result 是一次问答的完整结果，Answer 始终可以直接返回给用户。
type Result struct {
	Answer   string
	Outcome  string
	Tools    []ToolExecution
	Err      error
	Duration time.Duration
}

// Option 定义可选的 Orchestrator 配置。
type Option func(*Orchestrator)

// WithMetrics 配置指标收集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithJournal 配置对话记录存储。
func WithJournal(store journal.Store) Option {
	return func(o *Orchestrator) {
		if store != nil {
			o.journal = store
		}
	}
}

// WithAlerts 配置失败告警的分发器。
func WithAlerts(d alerting.Dispatcher) Option {
	return func(o *Orchestrator) {
		o.alerts = d
	}
}

// WithRegistryOptions 在构建工具注册表时追加选项。
func WithRegistryOptions(opts ...tools.Option) Option {
	return func(o *Orchestrator) {
		o.registryOpts = append(o.registryOpts, opts...)
	}
}

// Orchestrator 协调大模型与事件后端，是系统的业务核心。
type Orchestrator struct {
	cfg       Config
	llm       llm.Client
	backend   Backend
	formatter Formatter
	registry  *tools.Registry

	registryOpts []tools.Option
	metrics      *metrics.Metrics
	journal      journal.Store
	alerts       alerting.Dispatcher
	now          func() time.Time
}

// New 创建一个 Orchestrator，并校验角色的工具集合被后端与格式化器完整覆盖。
func New(cfg Config, client llm.Client, backend Backend, formatter Formatter, opts ...Option) (*Orchestrator, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if backend == nil || formatter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置事件后端或结果格式化器")
	}
	if cfg.Role == "" {
		cfg.Role = config.RoleFull
	}
	if cfg.Role == config.RoleCoordinator {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "协调者不直接调用大模型")
	}
	if cfg.Fallback == "" {
		cfg.Fallback = DefaultFallback(cfg.Role)
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	o := &Orchestrator{
		cfg:       cfg,
		llm:       client,
		backend:   backend,
		formatter: formatter,
		journal:   journal.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	ids, err := tools.ForRole(cfg.Role)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析角色工具集合失败")
	}
	registryOpts := append([]tools.Option{
		tools.WithHandler("backend route", backend),
		tools.WithHandler("formatter", formatter),
	}, o.registryOpts...)
	registry, err := tools.NewRegistry(ids, registryOpts...)
	if err != nil {
		return nil, err
	}
	o.registry = registry
	return o, nil
}

// DefaultFallback 返回角色的默认兜底文案。
func DefaultFallback(role string) string {
	switch role {
	case config.RoleEvents:
		return FallbackEvents
	case config.RolePayment:
		return FallbackPayment
	default:
		return FallbackFull
	}
}

// Role 返回 Orchestrator 的角色。
func (o *Orchestrator) Role() string { return o.cfg.Role }

// Tools 返回暴露给大模型的工具名称。
func (o *Orchestrator) Tools() []tools.ID { return o.registry.IDs() }

// Answer 返回查询的最终文本，任何失败都已被转换为说明文字。
func (o *Orchestrator) Answer(ctx context.Context, query string) string {
	return o.Run(ctx, query).Answer
}

// Run 执行一次完整的两轮问答，并写入对话记录。
func (o *Orchestrator) Run(ctx context.Context, query string) Result {
	start := o.now()
	result := o.run(ctx, query)
	result.Duration = o.now().Sub(start)

	o.metrics.ObserveAnswer(result.Outcome)
	o.record(ctx, query, result, start)
	return result
}

func (o *Orchestrator) run(ctx context.Context, query string) Result {
	transcript := []llm.Message{llm.UserMessage(query)}

	first, err := o.complete(ctx, 1, llm.Request{
		Messages:    transcript,
		Tools:       o.registry.Definitions(),
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err != nil {
		return o.failure(ctx, err)
	}
	if len(first.ToolCalls) == 0 {
		return Result{Answer: o.cfg.Fallback, Outcome: journal.OutcomeFallback}
	}

	transcript = append(transcript, llm.AssistantMessage(first.Content, first.ToolCalls))
	executions := make([]ToolExecution, 0, len(first.ToolCalls))
	for _, call := range first.ToolCalls {
		exec := o.execute(ctx, call)
		executions = append(executions, exec)
		transcript = append(transcript, llm.ToolMessage(call.ID, exec.Content))
	}

	second, err := o.complete(ctx, 2, llm.Request{
		Messages:    transcript,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err != nil {
		result := o.failure(ctx, err)
		result.Tools = executions
		return result
	}
	return Result{Answer: second.Content, Outcome: journal.OutcomeAnswered, Tools: executions}
}

func (o *Orchestrator) complete(ctx context.Context, round int, req llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := o.llm.Complete(ctx, req)
	if err == nil && resp == nil {
		err = xerrors.New(xerrors.CodeLLMFailure, "llm returned an empty response")
	}
	o.metrics.ObserveLLMRound(round, err, time.Since(start))
	return resp, err
}

func (o *Orchestrator) failure(ctx context.Context, err error) Result {
	logger.Named("agent").Error("query failed", "role", o.cfg.Role, "error", err)
	o.alert(ctx, err, "")
	return Result{Answer: errorPrefix + Detail(err), Outcome: journal.OutcomeError, Err: err}
}

// execute 执行单个工具调用，失败时返回结构化的错误负载而不是中断循环。
func (o *Orchestrator) execute(ctx context.Context, call llm.ToolCall) ToolExecution {
	exec := ToolExecution{CallID: call.ID, Name: call.Name, Status: "ok"}

	content, err := o.invoke(ctx, call)
	if err != nil {
		exec.Status = "failed"
		exec.Content = failurePayload(err)
	} else {
		exec.Content = content
	}

	o.metrics.ObserveTool(call.Name, exec.Status)
	attrs := []any{"agent", o.cfg.Name, "role", o.cfg.Role, "tool", call.Name, "call_id", call.ID, "status", exec.Status}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		o.alert(ctx, err, call.Name)
	}
	logger.Audit().Info("tool executed", attrs...)
	return exec
}

func (o *Orchestrator) alert(ctx context.Context, err error, tool string) {
	if o.alerts == nil {
		return
	}
	event := alerting.FromError(err)
	event.Agent = o.cfg.Name
	event.Role = o.cfg.Role
	event.Tool = tool
	if notifyErr := o.alerts.Notify(context.WithoutCancel(ctx), event); notifyErr != nil {
		logger.Named("agent").Warn("alert delivery failed", "error", notifyErr)
	}
}

func (o *Orchestrator) invoke(ctx context.Context, call llm.ToolCall) (string, error) {
	id, ok := o.registry.Lookup(call.Name)
	if !ok {
		return "", xerrors.New(xerrors.CodeUnsupportedTool, fmt.Sprintf("Unsupported function call: %s", call.Name))
	}
	args, err := decodeArguments(call.Arguments)
	if err != nil {
		return "", err
	}
	result, err := o.backend.Invoke(ctx, id, args)
	if err != nil {
		return "", err
	}
	return o.formatter.Format(id, args, result), nil
}

func decodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&args); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid tool arguments")
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func failurePayload(err error) string {
	var b strings.Builder
	encoder := json.NewEncoder(&b)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(map[string]string{
		"error":  "Tool execution failed: " + Detail(err),
		"status": "failed",
	})
	return strings.TrimSuffix(b.String(), "\n")
}

// Detail 返回去掉错误码前缀的错误描述。
func Detail(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := xerrors.From(err); ok {
		if cause := errors.Unwrap(e); cause != nil {
			return e.Message() + ": " + cause.Error()
		}
		return e.Message()
	}
	return err.Error()
}

func (o *Orchestrator) record(ctx context.Context, query string, result Result, start time.Time) {
	names := make([]string, 0, len(result.Tools))
	for _, exec := range result.Tools {
		names = append(names, exec.Name)
	}
	exchange := journal.Exchange{
		Agent:      o.cfg.Name,
		Role:       o.cfg.Role,
		Channel:    ChannelFrom(ctx),
		Query:      query,
		Answer:     result.Answer,
		Tools:      names,
		Outcome:    result.Outcome,
		DurationMS: result.Duration.Milliseconds(),
	}
	exchange.Stamp(start)
	if err := o.journal.Record(context.WithoutCancel(ctx), exchange); err != nil {
		logger.Named("agent").Warn("record exchange failed", "error", err)
	}
}
