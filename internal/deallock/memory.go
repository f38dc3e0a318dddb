// Package deallock serializes emit calls for the same deal.
//
// Memory locks a deal within one process; Redis locks it across replicas.
// Both give up with sentinel.ErrLockHeld when the lock is not acquired within
// the wait bound or before the context ends.
package deallock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/sentinel"
)

const (
	shardCount = 128

	// DefaultWait bounds how long Lock waits for a held deal.
	DefaultWait = 5 * time.Second
)

// Memory is an in-process lock striped over a fixed set of shards. Deals that
// hash to the same shard share a lock.
type Memory struct {
	shards [shardCount]chan struct{}
	wait   time.Duration
}

// NewMemory builds a striped lock. A non-positive wait uses DefaultWait.
func NewMemory(wait time.Duration) *Memory {
	if wait <= 0 {
		wait = DefaultWait
	}
	m := &Memory{wait: wait}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
	}
	return m
}

func (m *Memory) Lock(ctx context.Context, dealID id.DealID) (func(), error) {
	shard := m.shards[shardFor(dealID)]

	ctx, cancel := context.WithTimeout(ctx, m.wait)
	defer cancel()

	select {
	case shard <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-shard }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("deal %s: %w", dealID, sentinel.ErrLockHeld)
	}
}

func shardFor(dealID id.DealID) uint32 {
	h := fnv.New32a()
	b, _ := dealID.MarshalText()
	_, _ = h.Write(b)
	return h.Sum32() % shardCount
}
