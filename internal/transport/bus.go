package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/config"
	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
)

// Handler 处理投递到本地地址的信封。
type Handler func(ctx context.Context, env Envelope) error

// Publisher 负责向指定地址投递信封。
type Publisher interface {
	Publish(ctx context.Context, address string, env Envelope) error
	Close() error
}

// Consumer 负责消费本地地址上的信封，阻塞直到 ctx 结束或出现致命错误。
type Consumer interface {
	Consume(ctx context.Context, address string, workers int, handler Handler) error
	Close() error
}

// Bus 同时具备投递与消费能力。
type Bus interface {
	Publisher
	Consumer
}

// Open 根据配置创建消息总线。
func Open(ctx context.Context, cfg config.TransportConfig) (Bus, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryBus(64), nil
	case "redis":
		bus, err := NewRedisBus(ctx, RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return bus, nil
	case "rabbitmq":
		bus, err := NewRabbitMQBus(RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return nil, err
		}
		return bus, nil
	case "http":
		return NewHTTPBus(HTTPConfig{
			Endpoints: cfg.Endpoints,
			Timeout:   cfg.ReplyTimeout(),
		}), nil
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的消息总线驱动: %s", cfg.Driver))
	}
}
