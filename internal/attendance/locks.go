package attendance

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// dayGateWeight is the capacity of a per-day gate. Scans take one unit,
// clearing a day takes all of them.
const dayGateWeight = 1 << 30

type lockSlot struct {
	sem  *semaphore.Weighted
	refs int
}

// keyedLocks hands out context-aware exclusive (or shared, for weights
// below size) sections per key. Slots are created on demand and dropped when
// the last holder or waiter leaves.
type keyedLocks struct {
	size  int64
	mu    sync.Mutex
	slots map[string]*lockSlot
}

func newKeyedLocks(size int64) *keyedLocks {
	return &keyedLocks{size: size, slots: make(map[string]*lockSlot)}
}

// Acquire blocks until n units of key are held or ctx is done.
func (k *keyedLocks) Acquire(ctx context.Context, key string, n int64) (release func(), err error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &lockSlot{sem: semaphore.NewWeighted(k.size)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	if err := s.sem.Acquire(ctx, n); err != nil {
		k.drop(key, s)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.sem.Release(n)
			k.drop(key, s)
		})
	}, nil
}

func (k *keyedLocks) drop(key string, s *lockSlot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// cooldownCache remembers the last accepted scan per tag. Entries live in
// memory only and start empty after a restart.
type cooldownCache struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newCooldownCache() *cooldownCache {
	return &cooldownCache{last: make(map[string]time.Time)}
}

func (c *cooldownCache) Get(rfidUID string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[rfidUID]
}

func (c *cooldownCache) Set(rfidUID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[rfidUID] = at
}

func (c *cooldownCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.last)
}
