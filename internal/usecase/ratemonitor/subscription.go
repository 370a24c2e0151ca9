package ratemonitor

import (
	"sync"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

// Subscription delivers published samples in order.
// Each subscription buffers independently so a slow reader never holds up
// the monitor or other subscribers.
type Subscription struct {
	m *Monitor

	mu    sync.Mutex
	queue []*domain.PriceSample

	notify    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	out       chan *domain.PriceSample
}

func newSubscription(m *Monitor) *Subscription {
	return &Subscription{
		m:      m,
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
		out:    make(chan *domain.PriceSample),
	}
}

// C returns the delivery channel. A nil value means no rate is known yet.
// The channel is closed after Close.
func (s *Subscription) C() <-chan *domain.PriceSample {
	return s.out
}

// Close detaches the subscription. It never blocks on the reader.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.m.unsubscribe(s)
		close(s.closed)
	})
}

func (s *Subscription) enqueue(sample *domain.PriceSample) {
	s.mu.Lock()
	s.queue = append(s.queue, sample)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.closed:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.closed:
			return
		}
	}
}
