package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/journal"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/observability/metrics"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/transport"
)

func echoChat(_ context.Context, message string) ChatResponse {
	return ChatResponse{Status: "success", Message: "echo: " + message}
}

type chanDispatcher chan transport.Envelope

func (c chanDispatcher) Dispatch(_ context.Context, env transport.Envelope) error {
	c <- env
	return nil
}

func TestHandleChat(t *testing.T) {
	server := NewServer(":0", Info{Name: "EventAgent", Role: "events"}, echoChat)
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"list events"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var got ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got != (ChatResponse{Status: "success", Message: "echo: list events"}) {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestHandleChatErrors(t *testing.T) {
	handler := NewServer(":0", Info{}, echoChat).Handler()

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/chat", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestHandleSubmitDispatches(t *testing.T) {
	dispatched := make(chanDispatcher, 1)
	handler := NewServer(":0", Info{}, echoChat, WithDispatcher(dispatched)).Handler()

	env, err := transport.NewEnvelope(transport.KindAgentMessage, "agent.coordinator", "agent.events", transport.AgentMessage{Message: "hi"})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	body, _ := json.Marshal(env)
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}
	select {
	case got := <-dispatched:
		if got.ID != env.ID || got.Sender != "agent.coordinator" {
			t.Fatalf("unexpected envelope: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("envelope was not dispatched")
	}

	req = httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for empty envelope, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleSubmitDisabled(t *testing.T) {
	handler := NewServer(":0", Info{}, echoChat).Handler()
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestHandleHealthAndExchanges(t *testing.T) {
	store, _ := journal.NewMemoryStore("", 8)
	for _, q := range []string{"first", "second", "third"} {
		_ = store.Record(context.Background(), journal.Exchange{Query: q, Outcome: journal.OutcomeAnswered})
	}
	handler := NewServer(":0", Info{Name: "PaymentAgent", Role: "payment"}, echoChat, WithJournal(store)).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var health map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &health)
	if health["status"] != "ok" || health["role"] != "payment" || health["agent"] != "PaymentAgent" {
		t.Fatalf("unexpected health: %v", health)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exchanges?limit=2", nil))
	var exchanges []journal.Exchange
	if err := json.Unmarshal(rec.Body.Bytes(), &exchanges); err != nil {
		t.Fatalf("decode exchanges: %v", err)
	}
	if len(exchanges) != 2 || exchanges[0].Query != "third" {
		t.Fatalf("unexpected exchanges: %+v", exchanges)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exchanges?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New("EventAgent", "events")
	handler := NewServer(":0", Info{}, echoChat, WithMetrics(m)).Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"x"}`)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `eventverse_http_requests_total`) || !strings.Contains(string(body), `handler="chat"`) {
		t.Fatalf("metrics output missing http counter: %s", body)
	}
}
