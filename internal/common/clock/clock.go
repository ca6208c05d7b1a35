// Package clock abstracts wall time and tickers so that timer-driven code
// (payment polling, countdowns) can be driven deterministically in tests.
//
// Core packages take a Clock instead of calling time.Now or time.NewTicker.
// Only cmd/* should construct the real clock.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock provides the current time and recurring tickers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until Stop is called.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is backed by the time package.
type Real struct{}

// NewReal returns the system clock.
func NewReal() Clock { return Real{} }

func (Real) Now() time.Time { return time.Now().UTC() }

func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Manual is a Clock whose time only moves when Advance is called.
// Ticks are delivered synchronously: Advance blocks until every due tick has
// been received or its ticker has been stopped.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManual returns a Manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{
		clock:    m,
		interval: d,
		next:     m.now.Add(d),
		ch:       make(chan time.Time),
		stopped:  make(chan struct{}),
	}
	m.tickers = append(m.tickers, t)
	return t
}

// Tickers reports how many tickers are currently running.
func (m *Manual) Tickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

// Advance moves the clock forward by d, firing due ticks in time order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var due []*manualTicker
		for _, t := range m.tickers {
			if !t.next.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			m.now = target
			m.mu.Unlock()
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })
		t := due[0]
		at := t.next
		t.next = t.next.Add(t.interval)
		m.now = at
		m.mu.Unlock()

		t.deliver(at)
	}
}

func (m *Manual) remove(t *manualTicker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, other := range m.tickers {
		if other == t {
			m.tickers = append(m.tickers[:i], m.tickers[i+1:]...)
			return
		}
	}
}

type manualTicker struct {
	clock    *Manual
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  chan struct{}
	once     sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.once.Do(func() {
		close(t.stopped)
		t.clock.remove(t)
	})
}

func (t *manualTicker) deliver(at time.Time) {
	select {
	case t.ch <- at:
	case <-t.stopped:
	}
}

var (
	_ Clock = Real{}
	_ Clock = (*Manual)(nil)
)
