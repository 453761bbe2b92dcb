package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/internal/broadcast"
	"github.com/0xmhha/btcwatcher/pkg/logger"
	"github.com/0xmhha/btcwatcher/pkg/types"
)

// DefaultBlockStatsPollInterval is used when a non-positive interval is given.
const DefaultBlockStatsPollInterval = 10 * time.Second

// BlockStatsPoller fetches block statistics for the most recently received
// chain height on a fixed interval.
//
// It learns heights only from its chain state subscription and keeps the
// latest one privately; every received value overwrites it. Until a height
// has been received, ticks do nothing.
type BlockStatsPoller struct {
	source   DataSource
	interval time.Duration
	in       *broadcast.Subscription[types.ChainState]
	out      *broadcast.Broadcaster[types.BlockStats]
	logger   *logger.Logger
	opts     options

	// Owned by the Run goroutine.
	latest heightMark
}

// NewBlockStatsPoller creates a poller reading heights from in and
// publishing to out. The poller takes ownership of in and unsubscribes it
// when Run returns.
func NewBlockStatsPoller(source DataSource, interval time.Duration, in *broadcast.Subscription[types.ChainState], out *broadcast.Broadcaster[types.BlockStats], logger *logger.Logger, opts ...Option) *BlockStatsPoller {
	if interval <= 0 {
		interval = DefaultBlockStatsPollInterval
	}

	return &BlockStatsPoller{
		source:   source,
		interval: interval,
		in:       in,
		out:      out,
		logger:   logger.With(zap.String("poller", StreamBlockStats)),
		opts:     newOptions(opts),
	}
}

// Run polls until ctx is cancelled.
func (p *BlockStatsPoller) Run(ctx context.Context) {
	defer p.in.Unsubscribe()

	ticker := p.opts.newTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("block stats poller started", zap.Duration("interval", p.interval))
	defer p.logger.Info("block stats poller stopped")

	heights := p.in.C()
	for {
		select {
		case <-ctx.Done():
			return

		case state, ok := <-heights:
			if !ok {
				// Keep ticking on the last known height.
				p.logger.Warn("chain state subscription closed")
				heights = nil
				continue
			}
			p.latest.set(state.Height)

		case <-ticker.C():
			p.poll(context.WithoutCancel(ctx))
		}
	}
}

func (p *BlockStatsPoller) poll(ctx context.Context) {
	height, ok := p.latest.get()
	if !ok {
		p.logger.Debug("no chain height received yet, skipping tick")
		return
	}

	start := time.Now()
	stats, err := p.source.FetchBlockStats(ctx, height)
	p.opts.observer.ObserveFetch(StreamBlockStats, time.Since(start), err)
	if err != nil {
		p.logger.Warn("failed to fetch block stats, skipping tick",
			zap.Uint64("height", height),
			zap.Error(err))
		return
	}

	delivered := p.out.Publish(stats)
	p.opts.observer.ObservePublish(StreamBlockStats)
	p.logger.Debug("published block stats",
		zap.Uint64("height", height),
		zap.Int("subscribers", delivered))
}
