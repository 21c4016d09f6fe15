package llm

import "context"

// Role 表示对话记录中一条消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message 是对话记录中的一条消息。
//
// user 消息只使用 Content；assistant 消息可以同时携带 Content 与 ToolCalls；
// tool 消息通过 ToolCallID 关联到对应的工具调用。
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// UserMessage 构建一条用户消息。
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage 构建一条携带工具调用的助手消息。
func AssistantMessage(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage 构建一条工具结果消息。
func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: content}
}

// ToolCall 描述大模型选择的一次工具调用，Arguments 保留模型输出的原始 JSON。
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition 是提供给大模型的工具描述，Parameters 为 JSON Schema 对象。
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request 描述一次对话补全请求。Tools 为空时表示不允许调用工具。
type Request struct {
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float32
	MaxTokens   int
}

// Response 是大模型返回的首个候选结果。
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc 允许使用普通函数实现 Client，便于测试替身。
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Complete 调用函数本身。
func (f ClientFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
