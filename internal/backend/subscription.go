package backend

import (
	"sync"

	"github.com/Atulx21/SevaConnect/internal/domain"
)

// subscription delivers events to one consumer in emission order. Pushes
// never block; a slow consumer only grows its own queue.
type subscription struct {
	mu    sync.Mutex
	queue []domain.AuthEvent
	wake  chan struct{}
	out   chan domain.AuthEvent
	done  chan struct{}
	once  sync.Once
}

func newSubscription() *subscription {
	s := &subscription{
		wake: make(chan struct{}, 1),
		out:  make(chan domain.AuthEvent),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscription) push(ev domain.AuthEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = domain.AuthEvent{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// broadcaster fans events out to every live subscription.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]*subscription)}
}

func (b *broadcaster) subscribe() (<-chan domain.AuthEvent, func()) {
	s := newSubscription()

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	return s.out, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		s.close()
	}
}

// emit holds the lock while pushing so every subscriber sees the same order.
func (b *broadcaster) emit(ev domain.AuthEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.push(ev)
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		s.close()
		delete(b.subs, id)
	}
}
