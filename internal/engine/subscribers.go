package engine

import (
	"sync"

	"github.com/flybeeper/track-recorder/internal/models"
)

// subscribers рассылка допущенных точек без блокировки движка
type subscribers struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan models.RoutePoint
	buffer int
	closed bool
}

func newSubscribers(buffer int) *subscribers {
	return &subscribers{
		subs:   make(map[int]chan models.RoutePoint),
		buffer: buffer,
	}
}

func (s *subscribers) add() (<-chan models.RoutePoint, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.RoutePoint, s.buffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.next
	s.next++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *subscribers) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *subscribers) broadcast(point models.RoutePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- point:
		default:
			// подписчик не успевает, точка пропускается
		}
	}
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
