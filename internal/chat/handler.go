package chat

import (
	"context"
	"fmt"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/agent"
	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/transport"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/pkg/logger"
)

// Answerer 将查询转换为最终回答。
type Answerer interface {
	Answer(ctx context.Context, query string) string
}

// Outbox 负责向其他 Agent 发送消息，transport.Mailbox 实现了该接口。
type Outbox interface {
	Send(ctx context.Context, target string, kind transport.Kind, payload any) (transport.Envelope, error)
	Reply(ctx context.Context, to transport.Envelope, kind transport.Kind, payload any) error
}

// SpecialistHandler 处理专职 Agent 收到的聊天消息与 Agent 消息。
type SpecialistHandler struct {
	answerer Answerer
	outbox   Outbox
}

// NewSpecialistHandler 创建专职 Agent 的入站处理器。
func NewSpecialistHandler(answerer Answerer, outbox Outbox) *SpecialistHandler {
	return &SpecialistHandler{answerer: answerer, outbox: outbox}
}

// Handle 实现 transport.Handler。
func (h *SpecialistHandler) Handle(ctx context.Context, env transport.Envelope) error {
	switch env.Kind {
	case transport.KindAgentMessage:
		return h.handleAgentMessage(ctx, env)
	case transport.KindChatMessage:
		return h.handleChat(ctx, env)
	case transport.KindChatAck:
		logAcknowledgement(env)
		return nil
	default:
		logger.Named("chat").Info("ignoring envelope of unknown kind", "kind", env.Kind, "sender", env.Sender)
		return nil
	}
}

func (h *SpecialistHandler) handleAgentMessage(ctx context.Context, env transport.Envelope) error {
	var msg transport.AgentMessage
	if err := env.Decode(&msg); err != nil {
		return err
	}
	logger.Named("chat").Info("agent message received", "sender", env.Sender, "message", msg.Message)
	answer := h.answerer.Answer(agent.WithChannel(ctx, agent.ChannelAgent), msg.Message)
	return h.outbox.Reply(ctx, env, transport.KindAgentMessage, transport.AgentMessage{Message: answer})
}

// handleChat 先确认消息，再逐项处理内容。任何失败都以文本消息告知发送方。
func (h *SpecialistHandler) handleChat(ctx context.Context, env transport.Envelope) (err error) {
	log := logger.Named("chat").With("sender", env.Sender)
	if env.Sender == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "聊天消息缺少发送方地址")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
		if err != nil {
			log.Error("handle chat message failed", "error", err)
			err = h.send(ctx, env.Sender, NewTextMessage(fmt.Sprintf("An error occurred: %s", agent.Detail(err))))
		}
	}()

	var msg Message
	if err := env.Decode(&msg); err != nil {
		return err
	}
	if _, err := h.outbox.Send(ctx, env.Sender, transport.KindChatAck, NewAcknowledgement(msg.MsgID)); err != nil {
		return err
	}

	for _, item := range msg.Content {
		switch c := item.(type) {
		case StartSessionContent:
			log.Info("start session received")
		case TextContent:
			log.Info("chat message received", "text", c.Text)
			answer := h.answerer.Answer(agent.WithChannel(ctx, agent.ChannelChat), c.Text)
			log.Info("chat response ready", "text", answer)
			if err := h.send(ctx, env.Sender, NewTextMessage(answer)); err != nil {
				return err
			}
		default:
			log.Info("unexpected chat content", "type", item.ContentType())
		}
	}
	return nil
}

func (h *SpecialistHandler) send(ctx context.Context, target string, msg Message) error {
	_, err := h.outbox.Send(ctx, target, transport.KindChatMessage, msg)
	return err
}

// CoordinatorHandler 只记录协调者收到的聊天文本与确认。
func CoordinatorHandler(_ context.Context, env transport.Envelope) error {
	log := logger.Named("chat").With("sender", env.Sender)
	switch env.Kind {
	case transport.KindChatAck:
		logAcknowledgement(env)
	case transport.KindChatMessage:
		var msg Message
		if err := env.Decode(&msg); err != nil {
			return err
		}
		for _, text := range msg.Texts() {
			log.Info("response received", "text", text)
		}
	default:
		log.Info("ignoring envelope", "kind", env.Kind)
	}
	return nil
}

func logAcknowledgement(env transport.Envelope) {
	var ack Acknowledgement
	if err := env.Decode(&ack); err != nil {
		logger.Named("chat").Warn("malformed acknowledgement", "sender", env.Sender, "error", err)
		return
	}
	attrs := []any{"sender", env.Sender, "acknowledged_msg_id", ack.AcknowledgedMsgID}
	if len(ack.Metadata) > 0 {
		attrs = append(attrs, "metadata", ack.Metadata)
	}
	logger.Named("chat").Info("acknowledgement received", attrs...)
}
