package watcher

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/internal/broadcast"
	"github.com/0xmhha/btcwatcher/internal/config"
	"github.com/0xmhha/btcwatcher/internal/shutdown"
	"github.com/0xmhha/btcwatcher/pkg/logger"
	"github.com/0xmhha/btcwatcher/pkg/types"
)

var (
	// ErrAlreadyStarted is returned by Start on a Watcher that is running.
	ErrAlreadyStarted = errors.New("watcher already started")
	// ErrClosed is returned by Start on a Watcher that has been closed.
	ErrClosed = errors.New("watcher closed")
)

// Watcher wires the three pollers to their output streams.
//
// The chain state and block stats streams are bounded broadcasts; the fee
// stream is an unbounded queue with a single logical consumer. Consumers
// should subscribe before Start, since a broadcast never replays values
// published before the subscription existed.
//
// Thread-safety: all public methods are thread-safe.
type Watcher struct {
	logger *logger.Logger

	chainStates *broadcast.Broadcaster[types.ChainState]
	blockStats  *broadcast.Broadcaster[types.BlockStats]
	fees        *broadcast.Queue[types.FeeEstimate]

	chainPoller *ChainStatePoller
	statsPoller *BlockStatsPoller
	feePoller   *FeePoller

	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a Watcher polling source at the intervals configured in cfg.
func New(source DataSource, cfg *config.Config, logger *logger.Logger, opts ...Option) *Watcher {
	o := newOptions(opts)

	chainStates := broadcast.New[types.ChainState](cfg.BroadcastCapacity,
		broadcast.WithDropHook(o.observer.DropHook(StreamChainState)))
	blockStats := broadcast.New[types.BlockStats](cfg.BroadcastCapacity,
		broadcast.WithDropHook(o.observer.DropHook(StreamBlockStats)))
	fees := broadcast.NewQueue[types.FeeEstimate]()

	// The stats poller subscribes here so it cannot miss the baseline.
	heights := chainStates.Subscribe()

	return &Watcher{
		logger:      logger,
		chainStates: chainStates,
		blockStats:  blockStats,
		fees:        fees,
		chainPoller: NewChainStatePoller(source, cfg.ChainPollInterval, chainStates, logger, opts...),
		statsPoller: NewBlockStatsPoller(source, cfg.BlockStatsPollInterval, heights, blockStats, logger, opts...),
		feePoller:   NewFeePoller(source, cfg.FeePollInterval, fees, logger, opts...),
	}
}

// ChainStates is the broadcast of newly observed chain states.
func (w *Watcher) ChainStates() *broadcast.Broadcaster[types.ChainState] {
	return w.chainStates
}

// BlockStats is the broadcast of block statistics.
func (w *Watcher) BlockStats() *broadcast.Broadcaster[types.BlockStats] {
	return w.blockStats
}

// Fees is the queue of fee estimates.
func (w *Watcher) Fees() *broadcast.Queue[types.FeeEstimate] {
	return w.fees
}

// Start spawns the three polling loops under sd. They stop once sd is
// triggered; use sd.Join to wait for them.
func (w *Watcher) Start(sd *shutdown.Coordinator) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}
	if w.closed {
		return ErrClosed
	}
	w.started = true

	sd.Go(StreamChainState, w.chainPoller.Run)
	sd.Go(StreamBlockStats, w.statsPoller.Run)
	sd.Go(StreamFees, w.feePoller.Run)

	w.logger.Info("watcher started",
		zap.Duration("chain_interval", w.chainPoller.interval),
		zap.Duration("stats_interval", w.statsPoller.interval),
		zap.Duration("fee_interval", w.feePoller.interval))
	return nil
}

// Close closes the output streams so consumers drain and exit. Call it
// after the polling loops have been joined.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true

	w.chainStates.Close()
	w.blockStats.Close()
	w.fees.Close()
}
