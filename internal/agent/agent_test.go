package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/backend"
	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/format"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/journal"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/llm"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/observability/alerting"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/tools"
)

// scriptedLLM 依次返回预设的响应，并记录收到的请求。
type scriptedLLM struct {
	responses []*llm.Response
	err       error
	requests  []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &llm.Response{Content: "done"}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func newCanister(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*backend.Adapter, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w)
	}))
	t.Cleanup(srv.Close)
	return backend.NewAdapter(backend.Config{BaseURL: srv.URL, CanisterID: "test-canister"}, backend.WithHTTPClient(srv.Client())), &hits
}

func respond(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newOrchestrator(t *testing.T, role string, client llm.Client, adapter *backend.Adapter, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(Config{Name: "test", Role: role}, client, adapter, format.New(), opts...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func toolMessages(req llm.Request) []llm.Message {
	var out []llm.Message
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleTool {
			out = append(out, msg)
		}
	}
	return out
}

func TestAnswerFallbackWithoutToolCalls(t *testing.T) {
	adapter, hits := newCanister(t, nil)
	client := &scriptedLLM{responses: []*llm.Response{{Content: "I am not sure"}}}
	o := newOrchestrator(t, "events", client, adapter)

	got := o.Answer(context.Background(), "hello there")
	if got != FallbackEvents {
		t.Fatalf("unexpected answer: %q", got)
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected a single llm round, got %d", len(client.requests))
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Fatalf("fallback must not call the backend")
	}
	if len(client.requests[0].Tools) != 5 || client.requests[0].Temperature != 0.7 || client.requests[0].MaxTokens != 1024 {
		t.Fatalf("unexpected first round request: %+v", client.requests[0])
	}
}

func TestAnswerUnknownToolContinuesInOrder(t *testing.T) {
	adapter, _ := newCanister(t, map[string]func(http.ResponseWriter){
		"GET /events": respond(http.StatusOK, `[{"name":"Hackathon","date":"2025-06-01","location":"Jakarta","price":"0.1"}]`),
	})
	client := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "launch_rocket", Arguments: `{}`},
			{ID: "call_2", Name: "get_events", Arguments: `{"limit":10}`},
		}},
		{Content: "Here are the events."},
	}}
	o := newOrchestrator(t, "full", client, adapter)

	result := o.Run(context.Background(), "list events")
	if result.Answer != "Here are the events." || result.Outcome != journal.OutcomeAnswered {
		t.Fatalf("unexpected result: %+v", result)
	}

	second := client.requests[1]
	if len(second.Tools) != 0 {
		t.Fatalf("second round must not offer tools")
	}
	if len(second.Messages) != 4 || second.Messages[1].Role != llm.RoleAssistant || len(second.Messages[1].ToolCalls) != 2 {
		t.Fatalf("unexpected transcript: %+v", second.Messages)
	}
	results := toolMessages(second)
	if results[0].ToolCallID != "call_1" || results[1].ToolCallID != "call_2" {
		t.Fatalf("tool results out of order: %+v", results)
	}
	want := `{"error":"Tool execution failed: Unsupported function call: launch_rocket","status":"failed"}`
	if results[0].Content != want {
		t.Fatalf("unexpected failure payload: %s", results[0].Content)
	}
	if results[1].Content != "- Hackathon | 2025-06-01 | Jakarta | 0.1 ETH" {
		t.Fatalf("unexpected formatted events: %q", results[1].Content)
	}
	if result.Tools[0].Status != "failed" || result.Tools[1].Status != "ok" {
		t.Fatalf("unexpected tool statuses: %+v", result.Tools)
	}
}

func TestAnswerPaymentRoundTrip(t *testing.T) {
	adapter, _ := newCanister(t, map[string]func(http.ResponseWriter){
		"GET /payment/ev123": respond(http.StatusOK, `{"success":true,"paymentLink":"https://pay.example/ev123"}`),
	})
	client := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call_pay", Name: "payment", Arguments: `{"eventId":"ev123"}`}}},
		{Content: "You can pay here: https://pay.example/ev123"},
	}}
	o := newOrchestrator(t, "payment", client, adapter)

	if got := o.Answer(context.Background(), "pay for ev123"); got != "You can pay here: https://pay.example/ev123" {
		t.Fatalf("unexpected answer: %q", got)
	}
	results := toolMessages(client.requests[1])
	if len(results) != 1 || results[0].Content != "💳 Payment link for event ev123: https://pay.example/ev123" {
		t.Fatalf("unexpected tool result: %+v", results)
	}
}

func TestAnswerBackendErrorStillAnswers(t *testing.T) {
	adapter, _ := newCanister(t, map[string]func(http.ResponseWriter){
		"GET /events/ev9": respond(http.StatusInternalServerError, `{"error":"boom"}`),
	})
	client := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_event_by_id", Arguments: `{"eventId":"ev9"}`}}},
		{Content: "Sorry, that event could not be loaded."},
	}}
	o := newOrchestrator(t, "events", client, adapter)

	if got := o.Answer(context.Background(), "show ev9"); got != "Sorry, that event could not be loaded." {
		t.Fatalf("unexpected answer: %q", got)
	}
	content := toolMessages(client.requests[1])[0].Content
	if !strings.Contains(content, `"status":"failed"`) || !strings.Contains(content, "500") {
		t.Fatalf("expected failure payload with status code, got %s", content)
	}
}

func TestAnswerInvalidArgumentsFoldedIntoPayload(t *testing.T) {
	adapter, hits := newCanister(t, nil)
	client := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_event_by_id", Arguments: `{not json`}}},
		{Content: "ok"},
	}}
	o := newOrchestrator(t, "full", client, adapter)

	if got := o.Answer(context.Background(), "event?"); got != "ok" {
		t.Fatalf("unexpected answer: %q", got)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Fatalf("backend must not be called with undecodable arguments")
	}
	if content := toolMessages(client.requests[1])[0].Content; !strings.HasPrefix(content, `{"error":"Tool execution failed: invalid tool arguments`) {
		t.Fatalf("unexpected payload: %s", content)
	}
}

func TestAnswerLLMFailureBecomesText(t *testing.T) {
	adapter, _ := newCanister(t, nil)
	client := &scriptedLLM{err: xerrors.Wrap(xerrors.CodeLLMFailure, errors.New("401 unauthorized"), "llm request failed")}
	o := newOrchestrator(t, "full", client, adapter)

	result := o.Run(context.Background(), "anything")
	want := "An error occurred while processing your request: llm request failed: 401 unauthorized"
	if result.Answer != want {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if result.Outcome != journal.OutcomeError || xerrors.CodeOf(result.Err) != xerrors.CodeLLMFailure {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunRecordsExchangeWithChannel(t *testing.T) {
	adapter, _ := newCanister(t, map[string]func(http.ResponseWriter){
		"GET /events/count": respond(http.StatusOK, `{"count":3}`),
	})
	client := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c", Name: "count_events"}}},
		{Content: "There are 3 events."},
	}}
	store, err := journal.NewMemoryStore("", 4)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	o := newOrchestrator(t, "full", client, adapter, WithJournal(store))

	o.Answer(WithChannel(context.Background(), ChannelChat), "how many events?")

	records, _ := store.Latest(context.Background(), 10)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	rec := records[0]
	if rec.Channel != ChannelChat || rec.Outcome != journal.OutcomeAnswered || rec.Answer != "There are 3 events." {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.Tools) != 1 || rec.Tools[0] != "count_events" {
		t.Fatalf("unexpected tools: %+v", rec.Tools)
	}
}

type alertRecorder struct {
	events []alerting.Event
}

func (a *alertRecorder) Notify(_ context.Context, event alerting.Event) error {
	a.events = append(a.events, event)
	return nil
}

func TestToolFailureRaisesAlert(t *testing.T) {
	adapter, _ := newCanister(t, nil)
	client := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "drop_tables"}}},
		{Content: "sorry"},
	}}
	alerts := &alertRecorder{}
	o := newOrchestrator(t, "full", client, adapter, WithAlerts(alerts))

	o.Answer(context.Background(), "drop everything")
	if len(alerts.events) != 1 {
		t.Fatalf("expected one alert, got %+v", alerts.events)
	}
	ev := alerts.events[0]
	if ev.Code != xerrors.CodeUnsupportedTool || ev.Tool != "drop_tables" || ev.Role != "full" {
		t.Fatalf("unexpected alert: %+v", ev)
	}
}

type partialFormatter struct{}

func (partialFormatter) Supports(id tools.ID) bool { return id != tools.Payment }
func (partialFormatter) Format(tools.ID, map[string]any, any) string {
	return ""
}

func TestNewRejectsIncompleteHandlers(t *testing.T) {
	adapter, _ := newCanister(t, nil)
	client := &scriptedLLM{}
	if _, err := New(Config{Role: "payment"}, client, adapter, partialFormatter{}); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected initialization failure, got %v", err)
	}
	if _, err := New(Config{Role: "coordinator"}, client, adapter, format.New()); err == nil {
		t.Fatalf("coordinator must not build an orchestrator")
	}
	if _, err := New(Config{Role: "full"}, nil, adapter, format.New()); err == nil {
		t.Fatalf("expected error without llm client")
	}
}

func TestRegistryOptionsRewordToolDefinitions(t *testing.T) {
	adapter, _ := newCanister(t, nil)
	var seen []llm.ToolDefinition
	client := llm.ClientFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		seen = req.Tools
		return &llm.Response{Content: "ignored"}, nil
	})
	def, _ := tools.Definition(tools.Payment)
	def.Description = "Look up the checkout link of an event"

	o := newOrchestrator(t, "payment", client, adapter,
		WithRegistryOptions(tools.WithDefinition(tools.Payment, def)))
	if got := o.Answer(context.Background(), "how do I pay?"); got != FallbackPayment {
		t.Fatalf("unexpected answer: %q", got)
	}
	if len(seen) != 1 || seen[0].Description != "Look up the checkout link of an event" {
		t.Fatalf("unexpected tool definitions: %+v", seen)
	}
}
