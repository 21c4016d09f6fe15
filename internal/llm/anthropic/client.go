package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/llm"
)

const (
	defaultModelName = "claude-3-5-haiku-latest"
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second
)

// Config 描述 Anthropic Messages API 的连接参数。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 使用 Anthropic SDK 实现 llm.Client。
type Client struct {
	model  string
	client anthropic.Client
}

// NewClient 创建 Anthropic 客户端。
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" || strings.HasPrefix(model, "asi1") {
		model = defaultModelName
	}

	return &Client{
		model:  model,
		client: anthropic.NewClient(opts...),
	}
}

// Model 返回请求使用的模型名称。
func (c *Client) Model() string { return c.model }

// Complete 调用 Messages API。
//
// 当请求不带工具时，历史中的 tool_use/tool_result 会被展开为纯文本，
// 因为 Messages API 要求出现工具块的请求必须同时声明工具。
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	inlineTools := len(req.Tools) == 0
	messages, err := convertMessages(req.Messages, inlineTools)
	if err != nil {
		return nil, err
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if tools := convertTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLLMFailure, err, "llm request failed")
	}

	var text strings.Builder
	out := &llm.Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	out.Content = text.String()
	return out, nil
}

func convertMessages(messages []llm.Message, inlineTools bool) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	// 连续的 tool 消息合并为同一条 user 消息。
	var pendingResults []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(pendingResults) == 0 {
			return
		}
		result = append(result, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: pendingResults,
		})
		pendingResults = nil
	}

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleTool:
			if inlineTools {
				pendingResults = append(pendingResults, anthropic.NewTextBlock(
					fmt.Sprintf("Result of tool call %s:\n%s", msg.ToolCallID, msg.Content)))
				continue
			}
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		case llm.RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				if inlineTools {
					blocks = append(blocks, anthropic.NewTextBlock(
						fmt.Sprintf("Calling tool %s (%s) with arguments %s", tc.Name, tc.ID, tc.Arguments)))
					continue
				}
				input := map[string]any{}
				if strings.TrimSpace(tc.Arguments) != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = map[string]any{}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			result = append(result, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		default:
			flush()
			result = append(result, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
			})
		}
	}
	flush()

	if len(result) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "conversation is empty")
	}
	return result, nil
}

func convertTools(tools []llm.ToolDefinition) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if properties, ok := tool.Parameters["properties"]; ok {
			schema.Properties = properties
		}
		if required, ok := tool.Parameters["required"].([]string); ok {
			schema.Required = required
		}
		extra := map[string]any{}
		for key, value := range tool.Parameters {
			if key != "type" && key != "properties" && key != "required" {
				extra[key] = value
			}
		}
		if len(extra) > 0 {
			schema.ExtraFields = extra
		}
		result[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: schema,
			},
		}
	}
	return result
}
