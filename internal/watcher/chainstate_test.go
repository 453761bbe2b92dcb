package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/btcwatcher/internal/broadcast"
	"github.com/0xmhha/btcwatcher/internal/shutdown"
	"github.com/0xmhha/btcwatcher/pkg/logger"
	"github.com/0xmhha/btcwatcher/pkg/types"
)

func drainHeights(sub *broadcast.Subscription[types.ChainState]) []uint64 {
	var heights []uint64
	for {
		select {
		case state, ok := <-sub.C():
			if !ok {
				return heights
			}
			heights = append(heights, state.Height)
		default:
			return heights
		}
	}
}

func joinWithin(t *testing.T, sd *shutdown.Coordinator, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, sd.Join(ctx))
}

func TestHeightMark(t *testing.T) {
	t.Run("first height is always accepted", func(t *testing.T) {
		var m heightMark
		_, ok := m.get()
		assert.False(t, ok)

		assert.True(t, m.advance(500))
		h, ok := m.get()
		assert.True(t, ok)
		assert.Equal(t, uint64(500), h)
	})

	t.Run("zero is a real height", func(t *testing.T) {
		var m heightMark
		assert.True(t, m.advance(0))
		assert.False(t, m.advance(0))
		assert.True(t, m.advance(1))
	})

	t.Run("only strictly greater heights advance", func(t *testing.T) {
		var m heightMark
		m.advance(100)
		assert.False(t, m.advance(100))
		assert.False(t, m.advance(99))
		assert.True(t, m.advance(101))

		h, _ := m.get()
		assert.Equal(t, uint64(101), h)
	})

	t.Run("set overwrites in either direction", func(t *testing.T) {
		var m heightMark
		m.set(200)
		m.set(150)
		h, ok := m.get()
		assert.True(t, ok)
		assert.Equal(t, uint64(150), h)
	})
}

func TestChainStatePoller_PublishesOnlyNewHeights(t *testing.T) {
	// Arrange
	ticker := NewManualTicker()
	source := NewMockDataSource(
		heightResult{height: 100},
		heightResult{height: 100},
		heightResult{height: 101},
		heightResult{err: errFetch},
		heightResult{height: 103},
	)
	out := broadcast.New[types.ChainState](10)
	sub := out.Subscribe()
	obs := NewMockObserver()

	poller := NewChainStatePoller(source, time.Second, out, logger.NewTestLoggerWithT(t),
		WithTickerFactory(ticker.Factory()), WithObserver(obs))
	sd := shutdown.New(context.Background(), logger.NewTestLogger())
	sd.Go(StreamChainState, poller.Run)

	// Act
	ticker.TickN(5)
	sd.Trigger()
	joinWithin(t, sd, time.Second)

	// Assert
	assert.Equal(t, []uint64{100, 101, 103}, drainHeights(sub))
	assert.Equal(t, 5, source.ChainCalls())
	assert.Equal(t, 5, obs.fetches[StreamChainState])
	assert.Equal(t, 1, obs.failures[StreamChainState])
	assert.Equal(t, 3, obs.publishes[StreamChainState])
	assert.Equal(t, 1, obs.staleDiscards)
	assert.Equal(t, uint64(103), obs.lastHeight)
}

func TestChainStatePoller_NeverPublishesLowerHeight(t *testing.T) {
	// Arrange
	ticker := NewManualTicker()
	source := NewMockDataSource(
		heightResult{height: 105},
		heightResult{height: 104},
		heightResult{height: 106},
	)
	out := broadcast.New[types.ChainState](10)
	sub := out.Subscribe()

	poller := NewChainStatePoller(source, time.Second, out, logger.NewTestLogger(),
		WithTickerFactory(ticker.Factory()))
	sd := shutdown.New(context.Background(), logger.NewTestLogger())
	sd.Go(StreamChainState, poller.Run)

	// Act
	ticker.TickN(3)
	sd.Trigger()
	joinWithin(t, sd, time.Second)

	// Assert
	assert.Equal(t, []uint64{105, 106}, drainHeights(sub))
}

func TestChainStatePoller_BaselineAtHeightZero(t *testing.T) {
	// Arrange
	ticker := NewManualTicker()
	source := NewMockDataSource(
		heightResult{height: 0},
		heightResult{height: 0},
		heightResult{height: 1},
	)
	out := broadcast.New[types.ChainState](10)
	sub := out.Subscribe()

	poller := NewChainStatePoller(source, time.Second, out, logger.NewTestLogger(),
		WithTickerFactory(ticker.Factory()))
	sd := shutdown.New(context.Background(), logger.NewTestLogger())
	sd.Go(StreamChainState, poller.Run)

	// Act
	ticker.TickN(3)
	sd.Trigger()
	joinWithin(t, sd, time.Second)

	// Assert
	assert.Equal(t, []uint64{0, 1}, drainHeights(sub))
}

func TestChainStatePoller_FailuresOnlyPublishNothing(t *testing.T) {
	// Arrange
	ticker := NewManualTicker()
	source := NewMockDataSource()
	out := broadcast.New[types.ChainState](10)
	sub := out.Subscribe()

	poller := NewChainStatePoller(source, time.Second, out, logger.NewTestLogger(),
		WithTickerFactory(ticker.Factory()))
	sd := shutdown.New(context.Background(), logger.NewTestLogger())
	sd.Go(StreamChainState, poller.Run)

	// Act
	ticker.TickN(4)
	sd.Trigger()
	joinWithin(t, sd, time.Second)

	// Assert
	assert.Empty(t, drainHeights(sub))
	assert.Equal(t, 4, source.ChainCalls())
}

func TestChainStatePoller_StopsWithoutTicks(t *testing.T) {
	// Arrange
	out := broadcast.New[types.ChainState](0)
	poller := NewChainStatePoller(NewMockDataSource(), time.Hour, out, logger.NewTestLogger())
	sd := shutdown.New(context.Background(), logger.NewTestLogger())
	sd.Go(StreamChainState, poller.Run)

	// Act
	sd.Trigger()

	// Assert
	joinWithin(t, sd, time.Second)
}

func TestNewChainStatePoller_DefaultInterval(t *testing.T) {
	poller := NewChainStatePoller(NewMockDataSource(), 0, broadcast.New[types.ChainState](0), logger.NewTestLogger())
	assert.Equal(t, DefaultChainPollInterval, poller.interval)
}
