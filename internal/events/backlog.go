package events

import (
	"sync"

	"github.com/pkordes/parking-ledger/internal/domain"
)

// backlog is an unbounded FIFO in front of an unbuffered channel. push never
// blocks; a pump goroutine hands queued events to the reader one at a time.
type backlog struct {
	out chan domain.StayEvent

	mu      sync.Mutex
	items   []domain.StayEvent
	done    bool
	wake    chan struct{}
	stop    chan struct{}
	stopped sync.Once
}

func newBacklog() *backlog {
	b := &backlog{
		out:  make(chan domain.StayEvent),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go b.pump()
	return b
}

func (b *backlog) push(ev domain.StayEvent) {
	b.mu.Lock()
	b.items = append(b.items, ev)
	b.mu.Unlock()
	b.signal()
}

// finish closes out once everything already queued has been delivered.
func (b *backlog) finish() {
	b.mu.Lock()
	b.done = true
	b.mu.Unlock()
	b.signal()
}

// cancel closes out without delivering the rest of the queue.
func (b *backlog) cancel() {
	b.stopped.Do(func() { close(b.stop) })
}

func (b *backlog) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *backlog) pump() {
	defer close(b.out)
	for {
		b.mu.Lock()
		items, done := b.items, b.done
		b.items = nil
		b.mu.Unlock()

		for _, ev := range items {
			select {
			case b.out <- ev:
			case <-b.stop:
				return
			}
		}
		if len(items) > 0 {
			continue
		}
		if done {
			return
		}
		select {
		case <-b.wake:
		case <-b.stop:
			return
		}
	}
}
