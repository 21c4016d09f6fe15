package transport

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/pkg/logger"
)

// RabbitMQConfig 描述 RabbitMQ 总线的连接参数。
type RabbitMQConfig struct {
	URL        string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQBus 为每个地址声明一个队列，通过默认交换机按队列名路由。
type RabbitMQBus struct {
	cfg  RabbitMQConfig
	conn *amqp.Connection
	ch   *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitMQBus 连接 RabbitMQ 并打开 channel。
func NewRabbitMQBus(cfg RabbitMQConfig) (*RabbitMQBus, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "创建 RabbitMQ channel 失败")
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "设置 RabbitMQ QOS 失败")
		}
	}
	return &RabbitMQBus{cfg: cfg, conn: conn, ch: ch, declared: make(map[string]bool)}, nil
}

func (b *RabbitMQBus) declare(address string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.declared[address] {
		return nil
	}
	if _, err := b.ch.QueueDeclare(address, b.cfg.Durable, b.cfg.AutoDelete, false, false, nil); err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "声明 RabbitMQ 队列失败")
	}
	b.declared[address] = true
	return nil
}

// Publish 将信封发布到以地址命名的队列。
func (b *RabbitMQBus) Publish(ctx context.Context, address string, env Envelope) error {
	if err := b.declare(address); err != nil {
		return err
	}
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	deliveryMode := amqp.Transient
	if b.cfg.Durable {
		deliveryMode = amqp.Persistent
	}
	err = b.ch.PublishWithContext(ctx, "", address, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  deliveryMode,
		MessageId:     env.ID,
		CorrelationId: env.CorrelationID,
		ReplyTo:       env.Sender,
		Timestamp:     env.Timestamp,
		Type:          string(env.Kind),
		Body:          data,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "RabbitMQ 投递消息失败")
	}
	return nil
}

// Consume 使用手动确认模式消费本地地址的队列。
func (b *RabbitMQBus) Consume(ctx context.Context, address string, workers int, handler Handler) error {
	if err := b.declare(address); err != nil {
		return err
	}
	if workers <= 0 {
		workers = 1
	}
	msgs, err := b.ch.Consume(address, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "订阅 RabbitMQ 队列失败")
	}
	log := logger.Named("transport").With("driver", "rabbitmq", "address", address)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					env, err := unmarshalEnvelope(msg.Body)
					if err != nil {
						log.Warn("dropping malformed envelope", "error", err)
						_ = msg.Nack(false, false)
						continue
					}
					if err := handler(ctx, env); err != nil {
						log.Warn("envelope handler failed", "id", env.ID, "kind", env.Kind, "error", err)
					}
					_ = msg.Ack(false)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭 RabbitMQ 连接。
func (b *RabbitMQBus) Close() error {
	if b == nil {
		return nil
	}
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
