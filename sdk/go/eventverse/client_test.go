package eventverse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatPostsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agent/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("unexpected body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ChatResponse{Status: "success", Message: "echo: " + body["message"]})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/agent", srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.Chat(context.Background(), "list events")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Status != "success" || resp.Message != "echo: list events" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestExchangesSendsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/exchanges" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected request: %s", r.URL.String())
		}
		_ = json.NewEncoder(w).Encode([]Exchange{{ID: "x1", Query: "q", Outcome: "answered"}})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	got, err := client.Exchanges(context.Background(), 5)
	if err != nil {
		t.Fatalf("exchanges: %v", err)
	}
	if len(got) != 1 || got[0].ID != "x1" {
		t.Fatalf("unexpected exchanges: %+v", got)
	}
}

func TestAPIErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, srv.Client())
	_, err := client.Chat(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "bad request" {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient("localhost:8001", nil); err == nil {
		t.Fatalf("expected error for url without scheme")
	}
}
