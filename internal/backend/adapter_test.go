package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/tools"
)

type capturedRequest struct {
	Method      string
	Path        string
	RawQuery    string
	Host        string
	ForceUpdate string
	Body        string
}

func newBackend(t *testing.T, status int, response string) (*Adapter, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*captured = capturedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			RawQuery:    r.URL.RawQuery,
			Host:        r.Host,
			ForceUpdate: r.Header.Get("X-Ic-Force-Update"),
			Body:        string(body),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return NewAdapter(Config{BaseURL: srv.URL, CanisterID: "w7lou-c7777-77774-qaamq-cai"}, WithHTTPClient(srv.Client())), captured
}

func TestInvokePaymentUsesPathAndHeaders(t *testing.T) {
	adapter, captured := newBackend(t, http.StatusOK, `{"success":true,"paymentLink":"https://pay.example/ev123"}`)

	result, err := adapter.Invoke(context.Background(), tools.Payment, map[string]any{"eventId": "ev123"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if captured.Method != http.MethodGet || captured.Path != "/payment/ev123" {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if captured.Host != "w7lou-c7777-77774-qaamq-cai.localhost" {
		t.Fatalf("unexpected host header: %s", captured.Host)
	}
	if captured.ForceUpdate != "true" {
		t.Fatalf("force update header missing")
	}
	obj, ok := result.(map[string]any)
	if !ok || obj["paymentLink"] != "https://pay.example/ev123" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestInvokeGetEventsEncodesQuery(t *testing.T) {
	adapter, captured := newBackend(t, http.StatusOK, `[]`)

	if _, err := adapter.Invoke(context.Background(), tools.GetEvents, map[string]any{"limit": float64(5), "offset": float64(10), "extra": "x"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if captured.RawQuery != "limit=5&offset=10" {
		t.Fatalf("unexpected query: %s", captured.RawQuery)
	}
}

func TestInvokePostBodies(t *testing.T) {
	adapter, captured := newBackend(t, http.StatusOK, `{"balance":1200}`)

	if _, err := adapter.Invoke(context.Background(), tools.GetBalance, map[string]any{"address": "tb1qxyz", "network": "testnet"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(captured.Body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || body["address"] != "tb1qxyz" {
		t.Fatalf("unexpected body: %s", captured.Body)
	}
	if captured.ForceUpdate != "" {
		t.Fatalf("ledger routes must not force update")
	}

	if _, err := adapter.Invoke(context.Background(), tools.GetCurrentFeePercentiles, nil); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if captured.Method != http.MethodPost || captured.Body != "{}" {
		t.Fatalf("expected empty json body, got %s %q", captured.Method, captured.Body)
	}
}

func TestInvokeHTTPErrorCarriesStatus(t *testing.T) {
	adapter, _ := newBackend(t, http.StatusInternalServerError, `{"error":"boom"}`)

	_, err := adapter.Invoke(context.Background(), tools.GetEventByID, map[string]any{"eventId": "42"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected HTTPError with status 500, got %v", err)
	}
	if xerrors.CodeOf(err) != xerrors.CodeBackendFailure {
		t.Fatalf("unexpected code: %v", xerrors.CodeOf(err))
	}
}

func TestInvokeUnsupportedTool(t *testing.T) {
	adapter := NewAdapter(Config{}, WithRoutes(map[tools.ID]Route{}))
	_, err := adapter.Invoke(context.Background(), tools.Payment, map[string]any{"eventId": "1"})
	if xerrors.CodeOf(err) != xerrors.CodeUnsupportedTool {
		t.Fatalf("expected unsupported tool, got %v", err)
	}
}

func TestInvokeRejectsBadArgumentsBeforeCalling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()
	adapter := NewAdapter(Config{BaseURL: srv.URL})

	if _, err := adapter.Invoke(context.Background(), tools.AddressBalance, map[string]any{"address": "not-an-address"}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := adapter.Invoke(context.Background(), tools.Payment, map[string]any{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected missing path argument error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("backend must not be called for invalid arguments")
	}
}

func TestInvokeAddressBalanceChecksumsAddress(t *testing.T) {
	adapter, captured := newBackend(t, http.StatusOK, `{"balance":"1500000000000000000"}`)
	if _, err := adapter.Invoke(context.Background(), tools.AddressBalance, map[string]any{"address": "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if captured.RawQuery != "address=0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Fatalf("unexpected query: %s", captured.RawQuery)
	}
}

func TestRoutesCoverCatalogue(t *testing.T) {
	adapter := NewAdapter(Config{})
	for _, id := range tools.All() {
		if !adapter.Supports(id) {
			t.Fatalf("no route for %s", id)
		}
	}
}

func TestDecodeKeepsNumbersAndText(t *testing.T) {
	if n, ok := decode([]byte(`7`)).(json.Number); !ok || n.String() != "7" {
		t.Fatalf("expected json.Number, got %#v", decode([]byte(`7`)))
	}
	if s := decode([]byte(`transaction sent with hash: 0xabc`)); s != "transaction sent with hash: 0xabc" {
		t.Fatalf("expected plain text, got %#v", s)
	}
	if decode(nil) != nil {
		t.Fatalf("empty body should decode to nil")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	body := "错误详情" // three bytes per rune
	for n := 1; n < len(body); n++ {
		got := truncate(body, n)
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%d) split a rune: %q", n, got)
		}
	}
	if got := truncate(body, 4); got != "错..." {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("short strings must pass through: %q", got)
	}
}
