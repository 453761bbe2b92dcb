// Package watcher runs the polling loops that observe a Bitcoin node and a
// fee estimation service and fan the results out to consumers.
package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/internal/broadcast"
	"github.com/0xmhha/btcwatcher/pkg/logger"
	"github.com/0xmhha/btcwatcher/pkg/types"
)

// DefaultChainPollInterval is used when a non-positive interval is given.
const DefaultChainPollInterval = 10 * time.Second

// heightMark is the last height a poller has recorded. The zero value is
// unseen, which keeps a legitimate height of 0 distinct from "nothing yet".
type heightMark struct {
	seen   bool
	height uint64
}

// advance records h if it is the first height or strictly above the
// recorded one, and reports whether it did.
func (m *heightMark) advance(h uint64) bool {
	if m.seen && h <= m.height {
		return false
	}
	m.set(h)
	return true
}

// set records h unconditionally.
func (m *heightMark) set(h uint64) {
	m.seen = true
	m.height = h
}

// get returns the recorded height and whether one exists.
func (m *heightMark) get() (uint64, bool) {
	return m.height, m.seen
}

// ChainStatePoller fetches chain state on a fixed interval and publishes
// each value whose height is new.
//
// The first successful fetch is always published as the baseline. After
// that, a value is published only when its height is strictly greater than
// the last recorded height; anything else is discarded as stale. Fetch
// failures are skipped until the next tick.
type ChainStatePoller struct {
	source   DataSource
	interval time.Duration
	out      *broadcast.Broadcaster[types.ChainState]
	logger   *logger.Logger
	opts     options

	// Owned by the Run goroutine.
	mark heightMark
}

// NewChainStatePoller creates a poller publishing to out.
func NewChainStatePoller(source DataSource, interval time.Duration, out *broadcast.Broadcaster[types.ChainState], logger *logger.Logger, opts ...Option) *ChainStatePoller {
	if interval <= 0 {
		interval = DefaultChainPollInterval
	}

	return &ChainStatePoller{
		source:   source,
		interval: interval,
		out:      out,
		logger:   logger.With(zap.String("poller", StreamChainState)),
		opts:     newOptions(opts),
	}
}

// Run polls until ctx is cancelled. A fetch already in flight when ctx is
// cancelled is allowed to finish; no further tick is scheduled afterwards.
func (p *ChainStatePoller) Run(ctx context.Context) {
	ticker := p.opts.newTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("chain state poller started", zap.Duration("interval", p.interval))
	defer p.logger.Info("chain state poller stopped")

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C():
			p.poll(context.WithoutCancel(ctx))
		}
	}
}

func (p *ChainStatePoller) poll(ctx context.Context) {
	start := time.Now()
	state, err := p.source.FetchChainState(ctx)
	p.opts.observer.ObserveFetch(StreamChainState, time.Since(start), err)
	if err != nil {
		p.logger.Warn("failed to fetch chain state, skipping tick", zap.Error(err))
		return
	}

	if !p.mark.advance(state.Height) {
		last, _ := p.mark.get()
		p.opts.observer.ObserveStaleDiscard()
		p.logger.Debug("discarding stale chain state",
			zap.Uint64("height", state.Height),
			zap.Uint64("last_height", last))
		return
	}

	delivered := p.out.Publish(state)
	p.opts.observer.ObservePublish(StreamChainState)
	p.opts.observer.ObserveHeight(state.Height)
	p.logger.Debug("published chain state",
		zap.Uint64("height", state.Height),
		zap.Int("subscribers", delivered))
}
