// Package transport carries envelopes between agents. A Bus moves raw
// envelopes between addresses (in memory, over Redis lists, RabbitMQ queues
// or HTTP); a Mailbox adds request/reply correlation on top of a Bus.
package transport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
)

// Kind 标识信封中负载的类型。
type Kind string

const (
	KindAgentMessage Kind = "agent.message"
	KindChatMessage  Kind = "chat.message"
	KindChatAck      Kind = "chat.ack"
)

// Envelope 是 Agent 之间传递的消息外壳。
type Envelope struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	Sender        string          `json:"sender"`
	Target        string          `json:"target"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewEnvelope 序列化负载并生成新的信封。
func NewEnvelope(kind Kind, sender, target string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码消息负载失败")
	}
	return Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		Sender:    sender,
		Target:    target,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Decode 将负载解析到 v。
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "消息负载为空")
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析消息负载失败")
	}
	return nil
}

// AgentMessage 是 Agent 之间请求与回复共用的负载。
type AgentMessage struct {
	Message string `json:"message"`
}

func marshalEnvelope(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "编码信封失败")
	}
	return data, nil
}

func unmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, xerrors.Wrap(xerrors.CodeTransportFailure, err, "解析信封失败")
	}
	return env, nil
}
