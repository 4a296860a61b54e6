package store

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	corestate "github.com/cuemby/corestate"
	"github.com/cuemby/corestate/pkg/log"
)

// Callback receives the post-commit root every time the owning store
// commits a change.
type Callback func(root corestate.Value)

// Bus is a per-store, copy-on-write subscriber list. Subscribing and
// unsubscribing replace the whole slice under a lock so that a fan-out
// in progress always iterates a consistent snapshot; notify never blocks
// a concurrent Subscribe/Unsubscribe and vice versa.
//
// Grounded on warren's pkg/events.Broker, whose Unsubscribe already
// removes a single subscriber by identity rather than clearing the
// whole subscriber set — the behavior original_source's lib.rs
// SUBSCRIPTIONS.clear() gets wrong (spec.md's documented bug).
type Bus struct {
	mu   sync.Mutex
	subs []subscription
}

type subscription struct {
	id string
	cb Callback
}

func newBus() *Bus {
	return &Bus{}
}

// Subscribe registers cb and returns an opaque subscription id, unique
// for the lifetime of the process.
func (b *Bus) Subscribe(cb Callback) string {
	id := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	next := make([]subscription, len(b.subs), len(b.subs)+1)
	copy(next, b.subs)
	b.subs = append(next, subscription{id: id, cb: cb})
	return id
}

// Unsubscribe removes exactly the subscription identified by id, if
// present. Unsubscribing an unknown id is a no-op, not an error: callers
// may race a commit's notify against their own unsubscribe.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.id != id {
			next = append(next, s)
		}
	}
	b.subs = next
}

// Count returns the number of active subscriptions.
func (b *Bus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// notify fans root out to every subscriber registered at the moment of
// the call, concurrently, under a snapshot of the subscriber slice so a
// concurrent Subscribe/Unsubscribe never observes or causes a torn
// fan-out.
func (b *Bus) notify(root corestate.Value) {
	b.mu.Lock()
	snapshot := b.subs
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	var g errgroup.Group
	for _, s := range snapshot {
		cb := s.cb
		g.Go(func() error {
			callSafely(cb, root)
			return nil
		})
	}
	_ = g.Wait()
}

// callSafely invokes cb and recovers a panic instead of letting it
// escape the goroutine and crash the process: a callback that raises
// is logged and isolated, the remaining callbacks still fire.
func callSafely(cb Callback, root corestate.Value) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("subscriber callback panicked: " + fmtPanic(r))
		}
	}()
	cb(root)
}

func fmtPanic(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(r)
}
