package transport

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/pkg/logger"
)

// RedisConfig 描述 Redis 总线的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	BlockWait time.Duration
}

// RedisBus 为每个地址维护一个 Redis list，LPUSH 投递、BRPOP 消费。
type RedisBus struct {
	client *redis.Client
	prefix string
	wait   time.Duration
}

// NewRedisBus 创建 Redis 总线并检查连通性。
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "eventverse:mailbox:"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "连接 Redis 失败")
	}
	return &RedisBus{client: client, prefix: prefix, wait: wait}, nil
}

func (b *RedisBus) key(address string) string {
	return b.prefix + address
}

// Publish 将信封写入目标地址的 list。
func (b *RedisBus) Publish(ctx context.Context, address string, env Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, b.key(address), data).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "Redis 投递消息失败")
	}
	return nil
}

// Consume 通过 BRPOP 从本地地址的 list 获取信封。
func (b *RedisBus) Consume(ctx context.Context, address string, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}
	log := logger.Named("transport").With("driver", "redis", "address", address)
	key := b.key(address)

	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			for {
				if ctx.Err() != nil {
					errCh <- ctx.Err()
					return
				}
				values, err := b.client.BRPop(ctx, b.wait, key).Result()
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					errCh <- xerrors.Wrap(xerrors.CodeTransportFailure, err, "Redis 读取消息失败")
					return
				}
				if len(values) != 2 {
					continue
				}
				env, err := unmarshalEnvelope([]byte(values[1]))
				if err != nil {
					log.Warn("dropping malformed envelope", "error", err)
					continue
				}
				if err := handler(ctx, env); err != nil {
					log.Warn("envelope handler failed", "id", env.ID, "kind", env.Kind, "error", err)
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close 关闭 Redis 连接。
func (b *RedisBus) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
