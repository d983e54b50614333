package consolidation

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// keyLocks hands out one mutation slot per key. Slots are reference counted and
// dropped once idle so the table does not grow with the keyspace; the table
// itself is striped so unrelated keys rarely touch the same mutex.
type keyLocks struct {
	stripes []lockStripe
}

type lockStripe struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newKeyLocks(stripes int) *keyLocks {
	if stripes < 1 {
		stripes = 1
	}
	kl := &keyLocks{stripes: make([]lockStripe, stripes)}
	for i := range kl.stripes {
		kl.stripes[i].slots = make(map[string]*slot)
	}
	return kl
}

func (kl *keyLocks) stripe(key string) *lockStripe {
	return &kl.stripes[xxhash.Sum64String(key)%uint64(len(kl.stripes))]
}

// Lock blocks until the slot for key is free or ctx is done. The returned
// func releases the slot.
func (kl *keyLocks) Lock(ctx context.Context, key string) (func(), error) {
	st := kl.stripe(key)

	st.mu.Lock()
	s, ok := st.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		st.slots[key] = s
	}
	s.refs++
	st.mu.Unlock()

	release := func() {
		st.mu.Lock()
		s.refs--
		if s.refs == 0 {
			delete(st.slots, key)
		}
		st.mu.Unlock()
	}

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}
