package cli

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/0xmhha/btcwatcher/internal/bitcoin"
	"github.com/0xmhha/btcwatcher/internal/config"
	"github.com/0xmhha/btcwatcher/pkg/logger"
	"github.com/0xmhha/btcwatcher/pkg/types"
)

// MockDataSource reports a rising chain height.
type MockDataSource struct {
	height atomic.Uint64
	stats  atomic.Int64
	fees   atomic.Int64
}

func (m *MockDataSource) FetchChainState(ctx context.Context) (types.ChainState, error) {
	return types.ChainState{Chain: "regtest", Height: m.height.Add(1)}, nil
}

func (m *MockDataSource) FetchBlockStats(ctx context.Context, height uint64) (types.BlockStats, error) {
	m.stats.Add(1)
	return types.BlockStats{Height: height}, nil
}

func (m *MockDataSource) FetchFeeEstimate(ctx context.Context) (types.FeeEstimate, error) {
	m.fees.Add(1)
	return types.FeeEstimate{FastestFee: 12}, nil
}

func runConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.RPCURL = "http://127.0.0.1:18443"
	cfg.ChainPollInterval = 5 * time.Millisecond
	cfg.BlockStatsPollInterval = 5 * time.Millisecond
	cfg.FeePollInterval = 5 * time.Millisecond
	cfg.ShutdownGrace = 2 * time.Second
	cfg.MetricsEnabled = false
	cfg.APIEnabled = false
	return cfg
}

func TestRunWatcher_RunsUntilCancelled(t *testing.T) {
	// Arrange
	source := &MockDataSource{}
	log, logs := logger.NewObservedLogger(zapcore.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runWatcher(ctx, runConfig(), source, nil, log) }()

	// Act
	require.Eventually(t, func() bool {
		return source.stats.Load() > 0 && source.fees.Load() > 0
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	// Assert
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runWatcher did not return after cancel")
	}
	assert.NotEmpty(t, logs.FilterMessage("received new block").All())
	assert.NotEmpty(t, logs.FilterMessage("received fee estimate").All())
	assert.Len(t, logs.FilterMessage("shutdown triggered").All(), 1)
}

func TestRunWatcher_AppliesReloadedLogLevel(t *testing.T) {
	// Arrange
	log := logger.NewTestLogger()
	require.NoError(t, log.SetLevel("info"))
	reloads := make(chan *config.Config, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runWatcher(ctx, runConfig(), &MockDataSource{}, reloads, log) }()

	// Act
	next := runConfig()
	next.LogLevel = "debug"
	reloads <- next

	// Assert
	require.Eventually(t, func() bool { return log.Level() == zapcore.DebugLevel }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRunWatcher_MetricsPortInUse(t *testing.T) {
	// Arrange
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := runConfig()
	cfg.MetricsEnabled = true
	cfg.MetricsPort = ln.Addr().(*net.TCPAddr).Port

	// Act
	err = runWatcher(context.Background(), cfg, &MockDataSource{}, nil, logger.NewTestLogger())

	// Assert
	assert.ErrorContains(t, err, "failed to start metrics exporter")
}

func TestApplyReload(t *testing.T) {
	log := logger.NewTestLogger()
	current := config.DefaultConfig()

	next := config.DefaultConfig()
	next.LogLevel = "warn"
	applyReload(log, current, next)
	assert.Equal(t, zapcore.WarnLevel, log.Level())
	assert.Equal(t, "warn", current.LogLevel)

	bad := config.DefaultConfig()
	bad.LogLevel = "loud"
	applyReload(log, current, bad)
	assert.Equal(t, zapcore.WarnLevel, log.Level())
	assert.Equal(t, "warn", current.LogLevel)
}

func TestNewDataSource(t *testing.T) {
	cfg := runConfig()

	guarded := newDataSource(cfg, logger.NewTestLogger())
	assert.IsType(t, &bitcoin.Guard{}, guarded)

	cfg.RateLimitRPS = 0
	cfg.BreakerEnabled = false
	plain := newDataSource(cfg, logger.NewTestLogger())
	assert.IsType(t, &bitcoin.Client{}, plain)
}
