package consumer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/internal/broadcast"
	"github.com/0xmhha/btcwatcher/pkg/logger"
	"github.com/0xmhha/btcwatcher/pkg/types"
)

// Sink drains the watcher streams, logging every value and recording it
// in an optional Store.
type Sink struct {
	store  *Store
	logger *logger.Logger
}

// NewSink creates a Sink. store may be nil.
func NewSink(store *Store, logger *logger.Logger) *Sink {
	return &Sink{
		store:  store,
		logger: logger.Named("consumer"),
	}
}

// ConsumeChainStates reads sub until ctx ends or the stream closes, then
// unsubscribes.
func (s *Sink) ConsumeChainStates(ctx context.Context, sub *broadcast.Subscription[types.ChainState]) {
	defer sub.Unsubscribe()
	lag := lagTracker{stream: TopicChainState, logger: s.logger}

	for {
		state, err := sub.Recv(ctx)
		if err != nil {
			s.logExit(TopicChainState, err)
			return
		}
		lag.check(sub.Dropped())

		s.logger.Info("received new block",
			zap.String("chain", state.Chain),
			zap.Uint64("height", state.Height),
			zap.String("hash", state.BestBlockHash),
			zap.Uint64("headers", state.Headers),
			zap.Bool("syncing", state.Syncing()))
		if s.store != nil {
			s.store.SetChainState(state)
		}
	}
}

// ConsumeBlockStats reads sub until ctx ends or the stream closes, then
// unsubscribes.
func (s *Sink) ConsumeBlockStats(ctx context.Context, sub *broadcast.Subscription[types.BlockStats]) {
	defer sub.Unsubscribe()
	lag := lagTracker{stream: TopicBlockStats, logger: s.logger}

	for {
		stats, err := sub.Recv(ctx)
		if err != nil {
			s.logExit(TopicBlockStats, err)
			return
		}
		lag.check(sub.Dropped())

		s.logger.Info("received block stats",
			zap.Uint64("height", stats.Height),
			zap.Uint64("txs", stats.Txs),
			zap.Uint64("total_fee", stats.TotalFee),
			zap.Uint64("avg_fee_rate", stats.AvgFeeRate),
			zap.Uint64("median_fee", stats.MedianFee))
		if s.store != nil {
			s.store.SetBlockStats(stats)
		}
	}
}

// ConsumeFees takes estimates off q until ctx ends or q closes.
func (s *Sink) ConsumeFees(ctx context.Context, q *broadcast.Queue[types.FeeEstimate]) {
	for {
		fee, err := q.Recv(ctx)
		if err != nil {
			s.logExit(TopicFees, err)
			return
		}

		fields := make([]zap.Field, 0, 5)
		for _, tier := range fee.Tiers() {
			fields = append(fields, zap.Uint64(tier.Name, tier.Rate))
		}
		s.logger.Info("received fee estimate", fields...)
		if s.store != nil {
			s.store.SetFeeEstimate(fee)
		}
	}
}

func (s *Sink) logExit(stream string, err error) {
	if errors.Is(err, broadcast.ErrClosed) {
		s.logger.Debug("stream closed", zap.String("stream", stream))
		return
	}
	s.logger.Debug("consumer stopped", zap.String("stream", stream), zap.Error(err))
}

// lagTracker warns when a subscription has lost values since the last check.
type lagTracker struct {
	stream string
	seen   uint64
	logger *logger.Logger
}

func (l *lagTracker) check(dropped uint64) {
	if dropped == l.seen {
		return
	}
	l.logger.Warn("consumer lagging, values skipped",
		zap.String("stream", l.stream),
		zap.Uint64("skipped", dropped-l.seen),
		zap.Uint64("total_skipped", dropped))
	l.seen = dropped
}
