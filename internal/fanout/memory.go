package fanout

import (
	"context"
	"sync"
)

// MemoryBus is an in-process loopback with the same contract as RedisBus,
// for single-node deployments and tests.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers []DeliverFunc
	closed      bool
}

var _ Bus = (*MemoryBus)(nil)

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for _, deliver := range b.subscribers {
		deliver(env)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, deliver DeliverFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, deliver)
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = nil
	return nil
}
