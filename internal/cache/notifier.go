package cache

import "sync"

// notifier hands snapshots to the observer through one dispatcher
// goroutine draining an ordered queue. Enqueueing never blocks, so a
// slow observer cannot stall a mutation, and the observer always ends
// on the snapshot of the last mutation.
type notifier[T any] struct {
	mu      sync.Mutex
	queue   [][]T
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
	deliver func([]T)
}

func newNotifier[T any](fn func([]T)) *notifier[T] {
	n := &notifier[T]{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		deliver: fn,
	}
	go n.run()
	return n
}

func (n *notifier[T]) enqueue(snapshot []T) {
	n.mu.Lock()
	n.queue = append(n.queue, snapshot)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier[T]) stop() {
	n.once.Do(func() { close(n.done) })
}

func (n *notifier[T]) run() {
	for {
		select {
		case <-n.done:
			return
		case <-n.wake:
		}

		for {
			n.mu.Lock()
			if len(n.queue) == 0 {
				n.mu.Unlock()
				break
			}
			snapshot := n.queue[0]
			n.queue = n.queue[1:]
			n.mu.Unlock()

			n.deliver(snapshot)
		}
	}
}
