package deallock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dealflow/pkg/domain"
	"dealflow/pkg/platform/sentinel"
)

func TestMemoryLockSerializesDeal(t *testing.T) {
	lock := NewMemory(time.Second)
	dealID := id.NewDealID()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := lock.Lock(context.Background(), dealID)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestMemoryLockGivesUp(t *testing.T) {
	lock := NewMemory(20 * time.Millisecond)
	dealID := id.NewDealID()

	unlock, err := lock.Lock(context.Background(), dealID)
	require.NoError(t, err)

	_, err = lock.Lock(context.Background(), dealID)
	assert.ErrorIs(t, err, sentinel.ErrLockHeld)

	unlock()
	unlock()

	again, err := lock.Lock(context.Background(), dealID)
	require.NoError(t, err)
	again()
}

func TestMemoryLockHonoursContext(t *testing.T) {
	lock := NewMemory(time.Minute)
	dealID := id.NewDealID()
	unlock, err := lock.Lock(context.Background(), dealID)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lock.Lock(ctx, dealID)
	assert.ErrorIs(t, err, sentinel.ErrLockHeld)
}

func TestShardForIsStable(t *testing.T) {
	dealID := id.NewDealID()
	assert.Equal(t, shardFor(dealID), shardFor(dealID))
	assert.Less(t, shardFor(dealID), uint32(shardCount))
}
