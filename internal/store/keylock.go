package store

import (
	"context"
	"sync"
	"vidcat/internal/models"
)

// keyedMutex serializes work per record id. Slots are created on demand and
// dropped once nobody holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[models.ID]*slot
}

type slot struct {
	token chan struct{}
	refs  int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[models.ID]*slot)}
}

// Lock waits for id until ctx is done. The returned func releases it.
func (k *keyedMutex) Lock(ctx context.Context, id models.ID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	s, ok := k.slots[id]
	if !ok {
		s = &slot{token: make(chan struct{}, 1)}
		k.slots[id] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.token <- struct{}{}:
	case <-ctx.Done():
		k.release(id, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.token
			k.release(id, s)
		})
	}, nil
}

func (k *keyedMutex) release(id models.ID, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(k.slots, id)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
