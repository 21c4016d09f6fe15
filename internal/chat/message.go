// Package chat implements the agent chat protocol: timestamped messages with
// typed content items, acknowledgements, and the handlers that specialist and
// coordinator agents run for inbound envelopes.
package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// 内容类型标识。
const (
	TypeText         = "text"
	TypeStartSession = "start-session"
)

// Content 是消息中的单个内容项。
type Content interface {
	ContentType() string
}

// TextContent 携带一段文本。
type TextContent struct {
	Text string
}

func (TextContent) ContentType() string { return TypeText }

// StartSessionContent 表示会话开始。
type StartSessionContent struct{}

func (StartSessionContent) ContentType() string { return TypeStartSession }

// UnknownContent 保留无法识别的内容项。
type UnknownContent struct {
	Type string
	Raw  json.RawMessage
}

func (c UnknownContent) ContentType() string { return c.Type }

// Message 是一条聊天消息。
type Message struct {
	Timestamp time.Time
	MsgID     string
	Content   []Content
}

// Acknowledgement 确认收到某条消息。
type Acknowledgement struct {
	Timestamp         time.Time         `json:"timestamp"`
	AcknowledgedMsgID string            `json:"acknowledged_msg_id"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// NewTextMessage 创建只包含一段文本的消息。
func NewTextMessage(text string) Message {
	return Message{
		Timestamp: time.Now().UTC(),
		MsgID:     uuid.NewString(),
		Content:   []Content{TextContent{Text: text}},
	}
}

// NewAcknowledgement 创建对 msgID 的确认。
func NewAcknowledgement(msgID string) Acknowledgement {
	return Acknowledgement{Timestamp: time.Now().UTC(), AcknowledgedMsgID: msgID}
}

// Texts 返回消息中全部文本内容。
func (m Message) Texts() []string {
	var out []string
	for _, item := range m.Content {
		if text, ok := item.(TextContent); ok {
			out = append(out, text.Text)
		}
	}
	return out
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wireMessage struct {
	Timestamp time.Time         `json:"timestamp"`
	MsgID     string            `json:"msg_id"`
	Content   []json.RawMessage `json:"content"`
}

// MarshalJSON 以 type 字段区分内容项。
func (m Message) MarshalJSON() ([]byte, error) {
	wire := wireMessage{Timestamp: m.Timestamp, MsgID: m.MsgID, Content: make([]json.RawMessage, 0, len(m.Content))}
	for _, item := range m.Content {
		var (
			raw []byte
			err error
		)
		switch c := item.(type) {
		case TextContent:
			raw, err = json.Marshal(wireContent{Type: TypeText, Text: c.Text})
		case StartSessionContent:
			raw, err = json.Marshal(wireContent{Type: TypeStartSession})
		case UnknownContent:
			raw = c.Raw
			if len(raw) == 0 {
				raw, err = json.Marshal(wireContent{Type: c.Type})
			}
		default:
			raw, err = json.Marshal(wireContent{Type: item.ContentType()})
		}
		if err != nil {
			return nil, err
		}
		wire.Content = append(wire.Content, raw)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON 按 type 字段解析内容项，未知类型保存为 UnknownContent。
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.Timestamp = wire.Timestamp
	m.MsgID = wire.MsgID
	m.Content = make([]Content, 0, len(wire.Content))
	for _, raw := range wire.Content {
		var item wireContent
		if err := json.Unmarshal(raw, &item); err != nil {
			return err
		}
		switch item.Type {
		case TypeText:
			m.Content = append(m.Content, TextContent{Text: item.Text})
		case TypeStartSession:
			m.Content = append(m.Content, StartSessionContent{})
		default:
			m.Content = append(m.Content, UnknownContent{Type: item.Type, Raw: append(json.RawMessage(nil), raw...)})
		}
	}
	return nil
}
