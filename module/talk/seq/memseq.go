package seq

import (
	"context"
	"sync"
)

// MemAllocator 进程内发号：单测与无 Redis 的单机部署。
type MemAllocator struct {
	mu   sync.Mutex
	next map[string]int64
}

func NewMemAllocator() *MemAllocator {
	return &MemAllocator{next: make(map[string]int64)}
}

func (a *MemAllocator) Next(_ context.Context, convID string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next[convID]++
	return a.next[convID], nil
}
