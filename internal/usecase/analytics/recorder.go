package analytics

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"go.jetify.com/typeid/v2"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

// EventPrefix is the TypeID prefix of recorded events
const EventPrefix = "evt"

// DefaultCapacity bounds how many events a Recorder keeps
const DefaultCapacity = 10000

// Event is one recorded occurrence
type Event struct {
	ID         typeid.TypeID
	Name       string
	Parameters map[string]string
	Date       time.Time
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithCapacity sets how many events are retained; the oldest are evicted first
func WithCapacity(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithRecorderClock overrides the time source used to stamp events
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// Recorder is an in-memory event log queryable by name and date range
type Recorder struct {
	mu sync.RWMutex
	// events is a ring of up to capacity entries; head indexes the oldest
	events   []Event
	head     int
	capacity int
	now      func() time.Time
}

var _ domain.Observer = (*Recorder)(nil)

// NewRecorder creates an empty Recorder
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores a named event with a copy of params
func (r *Recorder) Record(name string, params map[string]string) (Event, error) {
	tid, err := typeid.Generate(EventPrefix)
	if err != nil {
		return Event{}, fmt.Errorf("failed to generate event id: %w", err)
	}

	e := Event{
		ID:         tid,
		Name:       name,
		Parameters: maps.Clone(params),
		Date:       r.now().UTC(),
	}
	if e.Parameters == nil {
		e.Parameters = map[string]string{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) < r.capacity {
		r.events = append(r.events, e)
		return e, nil
	}
	r.events[r.head] = e
	r.head = (r.head + 1) % r.capacity
	return e, nil
}

// Notify implements domain.Observer
func (r *Recorder) Notify(name string, params map[string]string) {
	_, _ = r.Record(name, params)
}

// Events returns recorded events in recording order.
// An empty names slice matches every name; a zero from or to leaves that
// side of the date range open. Both bounds are inclusive.
func (r *Recorder) Events(names []string, from, to time.Time) []Event {
	var nameSet map[string]struct{}
	if len(names) > 0 {
		nameSet = make(map[string]struct{}, len(names))
		for _, n := range names {
			nameSet[n] = struct{}{}
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Event, 0)
	for i := range r.events {
		e := r.events[(r.head+i)%len(r.events)]
		if nameSet != nil {
			if _, ok := nameSet[e.Name]; !ok {
				continue
			}
		}
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && e.Date.After(to) {
			continue
		}
		e.Parameters = maps.Clone(e.Parameters)
		out = append(out, e)
	}
	return out
}

// Len returns the number of retained events
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}
