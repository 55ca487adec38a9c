// Package poller drives periodic fetches with an interval that adapts to chat
// activity: it speeds up while messages arrive, backs off when the chat is
// quiet or the server fails, and pauses entirely while the view is hidden.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gameday/event-chat/internal/metrics"
)

// State is the scheduler's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateFetching
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateFetching:
		return "fetching"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// FetchFunc performs one poll round and reports how many novel messages it
// produced. The context is cancelled when the scheduler stops.
type FetchFunc func(ctx context.Context) (novel int, err error)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger for poll outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithIntervalHook registers fn to be called with every new interval.
func WithIntervalHook(fn func(time.Duration)) Option {
	return func(s *Scheduler) { s.onInterval = fn }
}

// Scheduler runs FetchFunc on an adaptive timer. A single loop goroutine owns
// the timer, so fetches never overlap. All methods are safe for concurrent
// use.
type Scheduler struct {
	cfg        Config
	fetch      FetchFunc
	logger     *zap.Logger
	onInterval func(time.Duration)

	mu        sync.Mutex
	interval  time.Duration
	state     State
	suspended bool
	fetchNow  bool
	running   bool
	pinned    uint64 // bumped by Boost and Throttle

	cancel    context.CancelFunc
	done      chan struct{}

	// wake asks the loop to re-read its settings and re-arm the timer.
	wake chan struct{}
}

// New creates a stopped Scheduler. It panics if cfg is invalid; call
// Config.Validate first when the values come from user input.
func New(cfg Config, fetch FetchFunc, opts ...Option) *Scheduler {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	s := &Scheduler{
		cfg:      cfg,
		fetch:    fetch,
		logger:   zap.NewNop(),
		interval: cfg.StartInterval,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("poller")
	return s
}

// Start arms the first poll after StartInterval. It is a no-op while the
// scheduler is already running. Suspension set before Start is kept.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.interval = s.cfg.StartInterval
	s.fetchNow = false
	if s.suspended {
		s.state = StateSuspended
	} else {
		s.state = StateScheduled
	}
	go s.loop(ctx, s.done)
	s.mu.Unlock()

	s.notifyInterval(s.cfg.StartInterval)
}

// Stop cancels the pending timer and any in-flight fetch, then waits for the
// loop to exit. No fetch starts after Stop returns. It is idempotent. Stop
// must not be called from FetchFunc or the interval hook; use Halt there.
func (s *Scheduler) Stop() {
	<-s.Halt()
}

// Halt cancels the pending timer and any in-flight fetch without waiting.
// The returned channel is closed once the loop has exited. No fetch starts
// after Halt returns, though one already in flight may still be finishing
// against its cancelled context. It is idempotent and may be called from
// the loop goroutine itself.
func (s *Scheduler) Halt() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.running = false
		s.cancel()
		s.state = StateIdle
		s.suspended = false
	}
	if s.done == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return s.done
}

// Suspend pauses polling. The interval is retained. A fetch already in
// flight completes but no new one starts.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	s.suspended = true
	if s.running && s.state == StateScheduled {
		s.state = StateSuspended
	}
	s.mu.Unlock()
	s.poke()
}

// Resume ends a suspension and fetches immediately. It is a no-op when the
// scheduler is not suspended.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	if !s.suspended {
		s.mu.Unlock()
		return
	}
	s.suspended = false
	s.fetchNow = s.running
	if s.running && s.state == StateSuspended {
		s.state = StateScheduled
	}
	s.mu.Unlock()
	s.poke()
}

// Boost drops the interval to MinInterval and re-arms the pending timer.
func (s *Scheduler) Boost() {
	s.setInterval(s.cfg.MinInterval)
}

// Throttle raises the interval to InactiveInterval and re-arms the pending
// timer.
func (s *Scheduler) Throttle() {
	s.setInterval(s.cfg.InactiveInterval)
}

// Interval returns the delay used for the next re-arm.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setInterval overrides the interval. A fetch in flight keeps the override
// instead of applying its own adjustment.
func (s *Scheduler) setInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.pinned++
	s.mu.Unlock()
	s.notifyInterval(d)
	s.poke()
}

// poke wakes the loop without blocking. One pending wake-up is enough since
// the loop re-reads all settings when it handles it.
func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// notifyInterval must be called without s.mu held so the hook may call back
// into the scheduler.
func (s *Scheduler) notifyInterval(d time.Duration) {
	metrics.PollInterval.Set(d.Seconds())
	if s.onInterval != nil {
		s.onInterval(d)
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		switch {
		case s.suspended:
			s.state = StateSuspended
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			continue

		case s.fetchNow:
			s.fetchNow = false
			s.mu.Unlock()

		default:
			d := s.interval
			s.state = StateScheduled
			s.mu.Unlock()

			timer.Reset(d)
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				stopTimer(timer)
				continue
			case <-timer.C:
			}
		}

		if !s.runOnce(ctx) {
			return
		}
	}
}

// runOnce performs one fetch and applies its outcome. It returns false when
// the scheduler is stopping.
func (s *Scheduler) runOnce(ctx context.Context) bool {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if s.suspended {
		s.mu.Unlock()
		return true
	}
	s.state = StateFetching
	gen := s.pinned
	s.mu.Unlock()

	novel, err := s.fetch(ctx)

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if s.pinned == gen {
		s.interval = s.cfg.nextInterval(s.interval, novel, err)
	}
	next := s.interval
	if s.suspended {
		s.state = StateSuspended
	} else {
		s.state = StateScheduled
	}
	s.mu.Unlock()
	s.notifyInterval(next)

	switch {
	case err != nil:
		metrics.PollsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("poll failed",
			zap.Error(err),
			zap.Duration("interval", next),
		)
	case novel > 0:
		metrics.PollsTotal.WithLabelValues("novel").Inc()
		s.logger.Debug("poll delivered messages",
			zap.Int("novel", novel),
			zap.Duration("interval", next),
		)
	default:
		metrics.PollsTotal.WithLabelValues("empty").Inc()
		s.logger.Debug("poll empty", zap.Duration("interval", next))
	}
	return true
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
