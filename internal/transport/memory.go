package transport

import (
	"context"
	"sync"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/pkg/logger"
)

// MemoryBus 使用 channel 在同一进程内投递信封，每个地址一个缓冲队列。
type MemoryBus struct {
	mu      sync.RWMutex
	size    int
	queues  map[string]chan Envelope
	closed  bool
	closing chan struct{}
}

// NewMemoryBus 创建内存总线，size 为每个地址的缓冲大小。
func NewMemoryBus(size int) *MemoryBus {
	if size <= 0 {
		size = 64
	}
	return &MemoryBus{
		size:    size,
		queues:  make(map[string]chan Envelope),
		closing: make(chan struct{}),
	}
}

func (b *MemoryBus) queue(address string) (chan Envelope, error) {
	b.mu.RLock()
	q, ok := b.queues[address]
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, xerrors.New(xerrors.CodeTransportFailure, "总线已关闭")
	}
	if ok {
		return q, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok = b.queues[address]; !ok {
		q = make(chan Envelope, b.size)
		b.queues[address] = q
	}
	return q, nil
}

// Publish 将信封投递到地址对应的队列。
func (b *MemoryBus) Publish(ctx context.Context, address string, env Envelope) error {
	q, err := b.queue(address)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closing:
		return xerrors.New(xerrors.CodeTransportFailure, "总线已关闭")
	case q <- env:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费地址上的信封。
func (b *MemoryBus) Consume(ctx context.Context, address string, workers int, handler Handler) error {
	q, err := b.queue(address)
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = 1
	}
	log := logger.Named("transport").With("driver", "memory", "address", address)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-b.closing:
					return
				case env := <-q:
					if err := handler(ctx, env); err != nil {
						log.Warn("envelope handler failed", "id", env.ID, "kind", env.Kind, "error", err)
					}
				}
			}
		}()
	}
	select {
	case <-ctx.Done():
	case <-b.closing:
	}
	wg.Wait()
	return ctx.Err()
}

// Close 关闭总线，正在消费的协程随之退出。
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.closing)
	}
	return nil
}
