package watcher

import (
	"sync"
	"time"
)

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t    *time.Ticker
	c    chan time.Time
	done chan struct{}
	once sync.Once
}

// NewTimeTicker is the default TickerFactory. The first tick is delivered
// immediately, then one every d. Like time.Ticker, ticks are dropped while
// the reader is behind.
func NewTimeTicker(d time.Duration) Ticker {
	t := &timeTicker{
		t:    time.NewTicker(d),
		c:    make(chan time.Time, 1),
		done: make(chan struct{}),
	}
	t.c <- time.Now()
	go t.relay()
	return t
}

func (t *timeTicker) relay() {
	for {
		select {
		case <-t.done:
			return
		case now := <-t.t.C:
			select {
			case t.c <- now:
			default:
			}
		}
	}
}

func (t *timeTicker) C() <-chan time.Time { return t.c }

func (t *timeTicker) Stop() {
	t.once.Do(func() {
		t.t.Stop()
		close(t.done)
	})
}

// Option configures a poller or the Watcher.
type Option func(*options)

type options struct {
	observer  Observer
	newTicker TickerFactory
}

func newOptions(opts []Option) options {
	o := options{
		observer:  nopObserver{},
		newTicker: NewTimeTicker,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithObserver reports poller activity to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithTickerFactory replaces the interval ticker, mainly for tests.
func WithTickerFactory(f TickerFactory) Option {
	return func(o *options) {
		if f != nil {
			o.newTicker = f
		}
	}
}
