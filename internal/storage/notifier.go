package storage

import "sync"

// notifier hands committed changes to subscribers in commit order. A store
// takes a ticket while it still holds its own lock and publishes with that
// ticket after releasing it; publish blocks until every earlier ticket has
// been delivered. Subscribers may read the store but must not write to it.
type notifier[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond
	next uint64
	turn uint64
	subs map[int]func(T)
	seq  int
}

func newNotifier[T any]() *notifier[T] {
	n := &notifier[T]{subs: make(map[int]func(T))}
	n.cond = sync.NewCond(&n.mu)
	return n
}

func (n *notifier[T]) subscribe(fn func(T)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seq++
	id := n.seq
	n.subs[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// ticket must be called with the store lock held, once per commit.
func (n *notifier[T]) ticket() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	t := n.next
	n.next++
	return t
}

func (n *notifier[T]) publish(ticket uint64, v T) {
	n.mu.Lock()
	for n.turn != ticket {
		n.cond.Wait()
	}
	subs := make([]func(T), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		n.turn++
		n.cond.Broadcast()
		n.mu.Unlock()
	}()
	for _, fn := range subs {
		fn(v)
	}
}
