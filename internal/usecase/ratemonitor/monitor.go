package ratemonitor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/matviysuk/btcwallet-backend/internal/domain"
)

// DefaultInterval is the polling period used when none is configured
const DefaultInterval = 5 * time.Second

const defaultStopGrace = 2 * time.Second

// State is the lifecycle state of a Monitor
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a Monitor
type Option func(*Monitor)

// WithObserver reports rate events to o. Notify is called from the polling
// goroutine, so o should not block.
func WithObserver(o domain.Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

// WithLogger sets the logger used for failures
func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithClock overrides the time source used to stamp samples
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithStopGrace bounds how long Stop waits for the loop to exit
func WithStopGrace(d time.Duration) Option {
	return func(m *Monitor) { m.stopGrace = d }
}

// Monitor polls a RateFetcher on a fixed interval, writes every successful
// sample through a RateCache and broadcasts it to subscribers.
// Fetch failures never change the published value.
type Monitor struct {
	fetcher   domain.RateFetcher
	cache     domain.RateCache
	interval  time.Duration
	observer  domain.Observer
	logger    zerolog.Logger
	now       func() time.Time
	stopGrace time.Duration

	lifecycleMu sync.Mutex
	state       State
	cancel      context.CancelFunc
	done        chan struct{}

	mu      sync.Mutex
	current *domain.PriceSample
	subs    map[*Subscription]struct{}
}

// New creates an idle Monitor. interval must be strictly positive.
func New(fetcher domain.RateFetcher, cache domain.RateCache, interval time.Duration, opts ...Option) (*Monitor, error) {
	if fetcher == nil || cache == nil {
		return nil, fmt.Errorf("%w: fetcher and cache are required", domain.ErrInvalidConfig)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive, got %s", domain.ErrInvalidConfig, interval)
	}

	m := &Monitor{
		fetcher:   fetcher,
		cache:     cache,
		interval:  interval,
		observer:  domain.NopObserver,
		logger:    zerolog.New(io.Discard),
		now:       time.Now,
		stopGrace: defaultStopGrace,
		subs:      make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Interval returns the polling period
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// State returns the current lifecycle state
func (m *Monitor) State() State {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.state
}

// Current returns the last published sample, nil if none
func (m *Monitor) Current() *domain.PriceSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySample(m.current)
}

// Start seeds the published value from the cache when nothing is published
// yet and launches the polling loop. It is a no-op while running.
// ctx bounds only the cache read; the loop runs until Stop.
func (m *Monitor) Start(ctx context.Context) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.state == StateRunning {
		return
	}

	m.seedFromCache(ctx)

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	prev := m.done

	m.cancel = cancel
	m.done = done
	m.state = StateRunning

	go m.run(loopCtx, prev, done)

	m.logger.Info().Dur("interval", m.interval).Msg("rate monitor started")
}

// Stop cancels the polling loop and waits up to the grace period for it to
// exit. It is a no-op unless running.
func (m *Monitor) Stop() {
	m.lifecycleMu.Lock()
	if m.state != StateRunning {
		m.lifecycleMu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.state = StateStopped
	m.lifecycleMu.Unlock()

	cancel()

	timer := time.NewTimer(m.stopGrace)
	defer timer.Stop()
	select {
	case <-done:
		m.logger.Info().Msg("rate monitor stopped")
	case <-timer.C:
		m.logger.Warn().Dur("grace", m.stopGrace).Msg("rate monitor loop still finishing after stop")
	}
}

func (m *Monitor) seedFromCache(ctx context.Context) {
	m.mu.Lock()
	hasValue := m.current != nil
	m.mu.Unlock()
	if hasValue {
		return
	}

	sample, err := m.cache.Load(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to load cached rate")
		return
	}
	if sample == nil {
		return
	}
	m.publish(*sample)
}

// run is the polling loop. It waits for the previous loop to fully exit so
// two loops never fetch concurrently.
func (m *Monitor) run(ctx context.Context, prev <-chan struct{}, done chan struct{}) {
	defer close(done)

	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.poll(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	rate, err := m.fetcher.Fetch(ctx)
	if err != nil {
		// Stopped mid-fetch
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn().Err(err).Msg("rate fetch failed")
		m.observer.Notify(domain.EventRateFetchFailed, map[string]string{"error": err.Error()})
		return
	}

	sample, err := domain.NewPriceSample(rate, m.now())
	if err != nil {
		fetchErr := &domain.FetchError{Kind: domain.FetchDecode, Err: err}
		m.logger.Warn().Err(fetchErr).Msg("rate fetch failed")
		m.observer.Notify(domain.EventRateFetchFailed, map[string]string{"error": fetchErr.Error()})
		return
	}

	// The write must complete even if Stop lands mid-poll
	if err := m.cache.Store(context.WithoutCancel(ctx), sample); err != nil {
		m.logger.Error().Err(err).Msg("failed to persist rate")
		m.observer.Notify(domain.EventRateCacheWriteFailed, map[string]string{"error": err.Error()})
	}

	m.publish(sample)

	m.logger.Debug().Str("rate", sample.RateUSD.String()).Msg("rate updated")
	m.observer.Notify(domain.EventRateUpdate, map[string]string{"rate": sample.RateUSD.String()})
}

func (m *Monitor) publish(sample domain.PriceSample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = &sample
	for sub := range m.subs {
		sub.enqueue(copySample(&sample))
	}
}

// Subscribe returns a subscription whose channel first yields the current
// value (nil when nothing is published yet) and then every later update in
// order. Callers must Close the subscription when done.
func (m *Monitor) Subscribe() *Subscription {
	sub := newSubscription(m)

	m.mu.Lock()
	sub.enqueue(copySample(m.current))
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go sub.pump()
	return sub
}

func (m *Monitor) unsubscribe(sub *Subscription) {
	m.mu.Lock()
	delete(m.subs, sub)
	m.mu.Unlock()
}

// Subscribers returns the number of open subscriptions
func (m *Monitor) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func copySample(s *domain.PriceSample) *domain.PriceSample {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
