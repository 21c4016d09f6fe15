package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/llm"
)

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{})
	if client.Model() != "asi1-mini" {
		t.Fatalf("unexpected default model: %s", client.Model())
	}
}

func TestCompleteReturnsToolCalls(t *testing.T) {
	var captured struct {
		Authorization string
		Path          string
		Body          map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Authorization = r.Header.Get("Authorization")
		captured.Path = r.URL.Path
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "asi1-mini",
			"choices": []map[string]any{
				{
					"index": 0,
					"message": map[string]any{
						"role":    "assistant",
						"content": "",
						"tool_calls": []map[string]any{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]any{
									"name":      "payment",
									"arguments": `{"eventId":"ev123"}`,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	resp, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{llm.UserMessage("pay for ev123")},
		Tools: []llm.ToolDefinition{{
			Name:        "payment",
			Description: "Get a payment link",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"eventId": map[string]any{"type": "string"}},
				"required":   []string{"eventId"},
			},
		}},
		Temperature: 0.7,
		MaxTokens:   1024,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "payment" || resp.ToolCalls[0].Arguments != `{"eventId":"ev123"}` {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if captured.Authorization != "Bearer test" {
		t.Fatalf("authorization header missing: %q", captured.Authorization)
	}
	if captured.Path != "/chat/completions" {
		t.Fatalf("unexpected path: %s", captured.Path)
	}
	if captured.Body["model"] != "asi1-mini" {
		t.Fatalf("model field missing in request: %v", captured.Body["model"])
	}
	if captured.Body["max_tokens"] != float64(1024) {
		t.Fatalf("max_tokens not forwarded: %v", captured.Body["max_tokens"])
	}
	tools, _ := captured.Body["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected tools in request, got %v", captured.Body["tools"])
	}
}

func TestCompleteReplaysToolTranscript(t *testing.T) {
	var body struct {
		Messages []struct {
			Role       string `json:"role"`
			ToolCallID string `json:"tool_call_id"`
			ToolCalls  []struct {
				ID string `json:"id"`
			} `json:"tool_calls"`
		} `json:"messages"`
		Tools []any `json:"tools"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Here is your link."}}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	resp, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{
			llm.UserMessage("pay for ev123"),
			llm.AssistantMessage("", []llm.ToolCall{{ID: "call_1", Name: "payment", Arguments: `{"eventId":"ev123"}`}}),
			llm.ToolMessage("call_1", "💳 Payment link for event ev123: https://pay.example/ev123"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Here is your link." {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if len(body.Messages) != 3 || body.Messages[1].Role != "assistant" || body.Messages[2].ToolCallID != "call_1" {
		t.Fatalf("transcript not replayed: %+v", body.Messages)
	}
	if len(body.Messages[1].ToolCalls) != 1 || body.Messages[1].ToolCalls[0].ID != "call_1" {
		t.Fatalf("assistant tool calls missing: %+v", body.Messages[1])
	}
	if len(body.Tools) != 0 {
		t.Fatalf("second round must not send tools")
	}
}

func TestCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	_, err := client.Complete(context.Background(), llm.Request{Messages: []llm.Message{llm.UserMessage("hi")}})
	if err == nil {
		t.Fatalf("expected error when http status is not success")
	}
	if xerrors.CodeOf(err) != xerrors.CodeLLMFailure {
		t.Fatalf("unexpected error code: %v", xerrors.CodeOf(err))
	}
	if e, ok := xerrors.From(err); !ok || e.Message() != "llm request failed" {
		t.Fatalf("user-facing message must stay in English, got %v", err)
	}
}
