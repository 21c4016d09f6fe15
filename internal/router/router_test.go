package router

import (
	"context"
	"testing"
	"time"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/config"
	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/journal"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/transport"
)

func TestRoute(t *testing.T) {
	cases := map[string]Target{
		"I want to PAY for ev1":      TargetPayment,
		"payment link please":        TargetPayment,
		"I don't want to pay":        TargetPayment,
		"list upcoming events":       TargetEvents,
		"":                           TargetEvents,
		"what is the canister addr?": TargetEvents,
	}
	for query, want := range cases {
		if got := Route(query); got != want {
			t.Fatalf("Route(%q) = %s, want %s", query, got, want)
		}
	}
}

type stubRequester struct {
	target  string
	payload any
	reply   transport.Envelope
	status  transport.Status
	err     error
}

func (s *stubRequester) Request(_ context.Context, target string, _ transport.Kind, payload any) (transport.Envelope, transport.Status, error) {
	s.target = target
	s.payload = payload
	return s.reply, s.status, s.err
}

var peers = config.PeersConfig{Events: "agent.events", Payment: "agent.payment"}

func TestRelayReturnsRemoteText(t *testing.T) {
	reply, err := transport.NewEnvelope(transport.KindAgentMessage, "agent.payment", "agent.coordinator", transport.AgentMessage{Message: "💳 link"})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	stub := &stubRequester{reply: reply, status: transport.StatusDelivered}
	store, _ := journal.NewMemoryStore("", 8)
	c, err := NewCoordinator(stub, peers, WithJournal(store))
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	got := c.Relay(context.Background(), "  pay for ev123  ")
	if got != (Reply{Status: StatusSuccess, Message: "💳 link"}) {
		t.Fatalf("unexpected reply: %+v", got)
	}
	if stub.target != "agent.payment" {
		t.Fatalf("unexpected target: %s", stub.target)
	}
	if msg, ok := stub.payload.(transport.AgentMessage); !ok || msg.Message != "pay for ev123" {
		t.Fatalf("unexpected payload: %#v", stub.payload)
	}
	records, _ := store.Latest(context.Background(), 1)
	if len(records) != 1 || records[0].Outcome != journal.OutcomeRelayed {
		t.Fatalf("unexpected journal: %+v", records)
	}
}

func TestRelayRejectsReplyOfOtherKind(t *testing.T) {
	for _, kind := range []transport.Kind{transport.KindChatAck, transport.KindChatMessage} {
		reply, err := transport.NewEnvelope(kind, "agent.events", "agent.coordinator", map[string]any{"acknowledged_msg_id": "m1"})
		if err != nil {
			t.Fatalf("envelope: %v", err)
		}
		stub := &stubRequester{reply: reply, status: transport.StatusDelivered}
		c, err := NewCoordinator(stub, peers)
		if err != nil {
			t.Fatalf("new coordinator: %v", err)
		}

		got := c.Relay(context.Background(), "list events")
		want := Reply{Status: string(transport.StatusDelivered), Message: NoTextMessage}
		if got != want {
			t.Fatalf("kind %s: unexpected reply %+v", kind, got)
		}
	}
}

func TestRelayTimeoutReturnsStatus(t *testing.T) {
	stub := &stubRequester{status: transport.StatusTimeout, err: xerrors.New(xerrors.CodeTimeout, "timeout")}
	c, _ := NewCoordinator(stub, peers)

	got := c.Relay(context.Background(), "list events")
	if got != (Reply{Status: "timeout", Message: NoTextMessage}) {
		t.Fatalf("unexpected reply: %+v", got)
	}
	if stub.target != "agent.events" {
		t.Fatalf("unexpected target: %s", stub.target)
	}
}

func TestRelayOverMemoryBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := transport.NewMemoryBus(4)
	defer bus.Close()
	coordinator, _ := transport.NewMailbox(bus, "agent.coordinator", transport.WithReplyTimeout(2*time.Second))
	events, _ := transport.NewMailbox(bus, "agent.events")

	go coordinator.Listen(ctx, func(context.Context, transport.Envelope) error { return nil })
	go events.Listen(ctx, func(ctx context.Context, env transport.Envelope) error {
		return events.Reply(ctx, env, transport.KindAgentMessage, transport.AgentMessage{Message: "No events found."})
	})

	c, _ := NewCoordinator(coordinator, peers)
	if got := c.Relay(ctx, "show events"); got.Status != StatusSuccess || got.Message != "No events found." {
		t.Fatalf("unexpected reply: %+v", got)
	}
}

func TestNewCoordinatorValidates(t *testing.T) {
	if _, err := NewCoordinator(nil, peers); err == nil {
		t.Fatalf("expected error for nil requester")
	}
	if _, err := NewCoordinator(&stubRequester{}, config.PeersConfig{}); err == nil {
		t.Fatalf("expected error for empty peers")
	}
}
