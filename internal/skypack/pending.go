package skypack

import (
	"sync"
	"sync/atomic"
)

const pendingShards = 32

// waiter is a single-use cell between a requester and the receiver. It is
// resolved exactly once, either fulfilled with a response or dropped.
type waiter struct {
	done chan struct{}
	once sync.Once
	resp *Response
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

// fulfill delivers r. It reports false if the waiter was already resolved.
func (w *waiter) fulfill(r *Response) bool {
	ok := false
	w.once.Do(func() {
		w.resp = r
		ok = true
		close(w.done)
	})
	return ok
}

// drop resolves the waiter without a response.
func (w *waiter) drop() bool {
	ok := false
	w.once.Do(func() {
		ok = true
		close(w.done)
	})
	return ok
}

// response is only valid after done is closed. A nil result means dropped.
func (w *waiter) response() *Response {
	return w.resp
}

type pendingShard struct {
	mu      sync.Mutex
	entries map[Key]*waiter
}

// pendingTable maps correlation keys to waiters. It is split into shards
// with their own lock so unrelated requests do not contend.
type pendingTable struct {
	shards [pendingShards]pendingShard
	closed atomic.Bool
}

func newPendingTable() *pendingTable {
	t := &pendingTable{}
	for i := range t.shards {
		t.shards[i].entries = make(map[Key]*waiter)
	}
	return t
}

func (t *pendingTable) shard(k Key) *pendingShard {
	h := k.ID ^ (uint64(k.Kind) * 0x9E3779B97F4A7C15)
	return &t.shards[h%pendingShards]
}

// Insert registers w under k. An existing waiter for k is displaced and
// dropped so its requester fails with ErrInternal rather than waiting out its
// deadlines; Insert reports whether that happened. Inserting into a closed
// table drops w immediately.
func (t *pendingTable) Insert(k Key, w *waiter) (displaced bool) {
	s := t.shard(k)
	s.mu.Lock()
	if t.closed.Load() {
		s.mu.Unlock()
		w.drop()
		return false
	}
	prev, ok := s.entries[k]
	s.entries[k] = w
	s.mu.Unlock()

	if ok && prev != w {
		prev.drop()
		return true
	}
	return false
}

// Take removes and returns the waiter for k. Of several concurrent Take
// calls for one key, at most one gets the waiter.
func (t *pendingTable) Take(k Key) (*waiter, bool) {
	s := t.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.entries[k]
	if ok {
		delete(s.entries, k)
	}
	return w, ok
}

// Remove deletes the entry for k only if it is still w. Requesters use it for
// cleanup so that a stale requester cannot unregister a newer one. Removing
// an absent entry is a no-op.
func (t *pendingTable) Remove(k Key, w *waiter) bool {
	s := t.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[k]; ok && cur == w {
		delete(s.entries, k)
		return true
	}
	return false
}

// Len returns the number of registered waiters.
func (t *pendingTable) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Close drops every registered waiter and makes later inserts fail fast.
func (t *pendingTable) Close() {
	t.closed.Store(true)
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		entries := s.entries
		s.entries = make(map[Key]*waiter)
		s.mu.Unlock()
		for _, w := range entries {
			w.drop()
		}
	}
}
