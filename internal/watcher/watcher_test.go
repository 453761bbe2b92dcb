package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/btcwatcher/internal/broadcast"
	"github.com/0xmhha/btcwatcher/internal/config"
	"github.com/0xmhha/btcwatcher/internal/shutdown"
	"github.com/0xmhha/btcwatcher/pkg/logger"
	"github.com/0xmhha/btcwatcher/pkg/types"
)

type watcherFixture struct {
	chainTicker *ManualTicker
	statsTicker *ManualTicker
	feeTicker   *ManualTicker
	source      *MockDataSource
	obs         *MockObserver
	watcher     *Watcher
}

func newWatcherFixture(t *testing.T, heights ...heightResult) *watcherFixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.ChainPollInterval = 1 * time.Second
	cfg.BlockStatsPollInterval = 2 * time.Second
	cfg.FeePollInterval = 3 * time.Second

	f := &watcherFixture{
		chainTicker: NewManualTicker(),
		statsTicker: NewManualTicker(),
		feeTicker:   NewManualTicker(),
		source:      NewMockDataSource(heights...),
		obs:         NewMockObserver(),
	}

	tickers := map[time.Duration]*ManualTicker{
		cfg.ChainPollInterval:      f.chainTicker,
		cfg.BlockStatsPollInterval: f.statsTicker,
		cfg.FeePollInterval:        f.feeTicker,
	}
	factory := func(d time.Duration) Ticker {
		tk, ok := tickers[d]
		if !assert.True(t, ok, "unexpected interval %s", d) {
			return NewManualTicker()
		}
		return tk
	}

	f.watcher = New(f.source, cfg, logger.NewTestLoggerWithT(t),
		WithTickerFactory(factory), WithObserver(f.obs))
	return f
}

func TestWatcher_EndToEnd(t *testing.T) {
	// Arrange
	f := newWatcherFixture(t, heightResult{height: 800000}, heightResult{height: 800001})
	chainSub := f.watcher.ChainStates().Subscribe()
	statsSub := f.watcher.BlockStats().Subscribe()
	sd := shutdown.New(context.Background(), logger.NewTestLogger())
	require.NoError(t, f.watcher.Start(sd))

	// Act
	f.chainTicker.Tick()
	f.chainTicker.Tick()
	require.Eventually(t, func() bool {
		return f.obs.Publishes(StreamChainState) == 2 && len(f.watcher.statsPoller.in.C()) == 0
	}, time.Second, time.Millisecond)
	f.statsTicker.Tick()
	f.feeTicker.TickN(2)

	sd.Trigger()
	joinWithin(t, sd, time.Second)

	// Assert
	assert.Equal(t, []uint64{800000, 800001}, drainHeights(chainSub))
	assert.Equal(t, []uint64{800001}, drainStats(statsSub))
	assert.Equal(t, 2, f.watcher.Fees().Len())
}

func TestWatcher_StartTwice(t *testing.T) {
	// Arrange
	f := newWatcherFixture(t)
	sd := shutdown.New(context.Background(), logger.NewTestLogger())

	// Act
	require.NoError(t, f.watcher.Start(sd))
	err := f.watcher.Start(sd)

	// Assert
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	sd.Trigger()
	joinWithin(t, sd, time.Second)
}

func TestWatcher_ShutdownStopsAllLoops(t *testing.T) {
	// Arrange
	f := newWatcherFixture(t)
	sd := shutdown.New(context.Background(), logger.NewTestLogger())
	require.NoError(t, f.watcher.Start(sd))

	// Act
	assert.True(t, sd.Trigger())
	assert.False(t, sd.Trigger())

	// Assert
	joinWithin(t, sd, time.Second)
	assert.Equal(t, 0, f.source.ChainCalls())
	assert.Equal(t, 0, f.source.FeeCalls())
}

func TestWatcher_CloseEndsStreams(t *testing.T) {
	// Arrange
	f := newWatcherFixture(t)
	chainSub := f.watcher.ChainStates().Subscribe()
	statsSub := f.watcher.BlockStats().Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Act
	f.watcher.Close()
	f.watcher.Close()

	// Assert
	_, err := chainSub.Recv(ctx)
	assert.ErrorIs(t, err, broadcast.ErrClosed)
	_, err = statsSub.Recv(ctx)
	assert.ErrorIs(t, err, broadcast.ErrClosed)
	_, err = f.watcher.Fees().Recv(ctx)
	assert.ErrorIs(t, err, broadcast.ErrClosed)

	sd := shutdown.New(context.Background(), logger.NewTestLogger())
	assert.ErrorIs(t, f.watcher.Start(sd), ErrClosed)
}

func TestWatcher_LaggingSubscribersReportDrops(t *testing.T) {
	// Arrange
	f := newWatcherFixture(t)
	sub := f.watcher.ChainStates().Subscribe()

	// Act
	for h := uint64(1); h <= 7; h++ {
		f.watcher.ChainStates().Publish(types.ChainState{Height: h})
	}

	// Assert: the internal stats subscription and sub each lost two values.
	assert.Equal(t, uint64(2), sub.Dropped())
	assert.Equal(t, 4, f.obs.drops[StreamChainState])
	assert.Equal(t, []uint64{3, 4, 5, 6, 7}, drainHeights(sub))
}
