package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/internal/broadcast"
	"github.com/0xmhha/btcwatcher/pkg/logger"
	"github.com/0xmhha/btcwatcher/pkg/types"
)

// DefaultFeePollInterval is used when a non-positive interval is given.
const DefaultFeePollInterval = 5 * time.Second

// FeePoller fetches fee estimates on a fixed interval and pushes every
// successful result onto an unbounded queue.
type FeePoller struct {
	source   DataSource
	interval time.Duration
	out      *broadcast.Queue[types.FeeEstimate]
	logger   *logger.Logger
	opts     options
}

// NewFeePoller creates a poller pushing onto out.
func NewFeePoller(source DataSource, interval time.Duration, out *broadcast.Queue[types.FeeEstimate], logger *logger.Logger, opts ...Option) *FeePoller {
	if interval <= 0 {
		interval = DefaultFeePollInterval
	}

	return &FeePoller{
		source:   source,
		interval: interval,
		out:      out,
		logger:   logger.With(zap.String("poller", StreamFees)),
		opts:     newOptions(opts),
	}
}

// Run polls until ctx is cancelled.
func (p *FeePoller) Run(ctx context.Context) {
	ticker := p.opts.newTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("fee poller started", zap.Duration("interval", p.interval))
	defer p.logger.Info("fee poller stopped")

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C():
			p.poll(context.WithoutCancel(ctx))
		}
	}
}

func (p *FeePoller) poll(ctx context.Context) {
	start := time.Now()
	fee, err := p.source.FetchFeeEstimate(ctx)
	p.opts.observer.ObserveFetch(StreamFees, time.Since(start), err)
	if err != nil {
		p.logger.Warn("failed to fetch fee estimate, skipping tick", zap.Error(err))
		return
	}

	if err := p.out.Push(fee); err != nil {
		p.logger.Warn("fee queue closed, dropping estimate", zap.Error(err))
		return
	}

	queued := p.out.Len()
	p.opts.observer.ObservePublish(StreamFees)
	p.opts.observer.ObserveFee(fee, queued)
	p.logger.Debug("queued fee estimate",
		zap.Uint64("fastest", fee.FastestFee),
		zap.Int("queue_length", queued))
}
