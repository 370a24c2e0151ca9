package analytics

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

type pendingEvent struct {
	name   string
	params map[string]string
}

// AsyncObserver forwards events to another Observer from a single worker
// goroutine. Notify never blocks: when the buffer is full the event is
// dropped and counted.
type AsyncObserver struct {
	next   domain.Observer
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan pendingEvent
	done   chan struct{}

	dropped atomic.Int64
}

var _ domain.Observer = (*AsyncObserver)(nil)

// NewAsyncObserver starts the forwarding worker. buffer below 1 is raised to 1.
func NewAsyncObserver(next domain.Observer, buffer int, logger zerolog.Logger) *AsyncObserver {
	if buffer < 1 {
		buffer = 1
	}
	a := &AsyncObserver{
		next:   next,
		logger: logger,
		queue:  make(chan pendingEvent, buffer),
		done:   make(chan struct{}),
	}
	go a.work()
	return a
}

// Notify queues the event for delivery
func (a *AsyncObserver) Notify(name string, params map[string]string) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return
	}

	select {
	case a.queue <- pendingEvent{name: name, params: params}:
	default:
		a.dropped.Add(1)
		a.logger.Warn().Str("event", name).Msg("observer queue full, event dropped")
	}
}

// Dropped returns how many events were discarded because the queue was full
func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits until queued ones are delivered
func (a *AsyncObserver) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	<-a.done
}

func (a *AsyncObserver) work() {
	defer close(a.done)
	for e := range a.queue {
		a.next.Notify(e.name, e.params)
	}
}
