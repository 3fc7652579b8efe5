package device

import (
	"slices"
	"sync"
)

// notifier fans updates out to observers on a single goroutine, so updates
// reach every observer in publish order.
type notifier struct {
	mu        sync.Mutex
	queue     []Update
	observers map[int]func(Update)
	nextID    int
	closed    bool

	wake chan struct{}
	done chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		observers: make(map[int]func(Update)),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) subscribe(fn func(Update)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return func() {}
	}
	id := n.nextID
	n.nextID++
	n.observers[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.observers, id)
		n.mu.Unlock()
	}
}

func (n *notifier) publish(u Update) {
	n.mu.Lock()
	if n.closed || len(n.observers) == 0 {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, u)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	for {
		select {
		case <-n.wake:
			n.drain()
		case <-n.done:
			return
		}
	}
}

func (n *notifier) drain() {
	for {
		n.mu.Lock()
		if n.closed || len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		u := n.queue[0]
		n.queue = n.queue[1:]
		ids := make([]int, 0, len(n.observers))
		for id := range n.observers {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		fns := make([]func(Update), 0, len(ids))
		for _, id := range ids {
			fns = append(fns, n.observers[id])
		}
		n.mu.Unlock()

		for _, fn := range fns {
			fn(u)
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	n.queue = nil
	n.observers = nil
	close(n.done)
}
