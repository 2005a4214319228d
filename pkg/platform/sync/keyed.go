package sync

import (
	"context"
	"sync"
)

// KeyedMutex serializes work per key. Callers for the same key queue behind
// the current holder; callers for different keys never block each other.
// The lock table is sharded by key hash so bookkeeping for unrelated keys does
// not contend on one mutex.
type KeyedMutex struct {
	shards [32]keyShard
}

type keyShard struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is a single-slot semaphore plus a count of holders and waiters.
// The entry is removed from its shard once refs drops to zero.
type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	m := &KeyedMutex{}
	for i := range m.shards {
		m.shards[i].locks = make(map[string]*keyLock)
	}
	return m
}

// Lock blocks until the key is free or ctx is done. On success it returns an
// unlock function that is safe to call more than once.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shard := m.shardFor(key)
	l := shard.acquire(key)

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.sem
				shard.release(key, l)
			})
		}, nil
	case <-ctx.Done():
		shard.release(key, l)
		return nil, ctx.Err()
	}
}

// Len returns the number of keys currently held or waited on.
func (m *KeyedMutex) Len() int {
	total := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		total += len(s.locks)
		s.mu.Unlock()
	}
	return total
}

func (s *keyShard) acquire(key string) *keyLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	l.refs++
	return l
}

func (s *keyShard) release(key string, l *keyLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
}

func (m *KeyedMutex) shardFor(key string) *keyShard {
	return &m.shards[hashString(key)%uint32(len(m.shards))]
}

// hashString provides a simple djb2-style hash for shard selection.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
