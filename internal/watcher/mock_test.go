package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/0xmhha/btcwatcher/pkg/types"
)

var errFetch = errors.New("node unreachable")

// ManualTicker fires only when the test calls Tick. Tick returns as soon as
// the loop has taken the tick, before that tick's poll has run. Two Tick
// calls in a row are ordered (the loop takes the second only after the first
// poll finished), but anything the test does between them races the poll.
type ManualTicker struct {
	ch chan time.Time
}

func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time)}
}

func (m *ManualTicker) C() <-chan time.Time { return m.ch }
func (m *ManualTicker) Stop()               {}

func (m *ManualTicker) Tick() {
	m.ch <- time.Now()
}

func (m *ManualTicker) TickN(n int) {
	for i := 0; i < n; i++ {
		m.Tick()
	}
}

// Factory always hands out the same ticker.
func (m *ManualTicker) Factory() TickerFactory {
	return func(time.Duration) Ticker { return m }
}

// heightResult is one scripted chain state fetch.
type heightResult struct {
	height uint64
	err    error
}

// MockDataSource replays scripted chain heights and records every call.
type MockDataSource struct {
	mu         sync.Mutex
	heights    []heightResult
	statsErrs  map[int]error
	feeErrs    map[int]error
	chainCalls int
	statsCalls []uint64
	feeCalls   int
}

func NewMockDataSource(heights ...heightResult) *MockDataSource {
	return &MockDataSource{
		heights:   heights,
		statsErrs: make(map[int]error),
		feeErrs:   make(map[int]error),
	}
}

func (m *MockDataSource) FetchChainState(ctx context.Context) (types.ChainState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chainCalls++
	if len(m.heights) == 0 {
		return types.ChainState{}, errFetch
	}
	next := m.heights[0]
	m.heights = m.heights[1:]
	if next.err != nil {
		return types.ChainState{}, next.err
	}
	return types.ChainState{Chain: "main", Height: next.height}, nil
}

func (m *MockDataSource) FetchBlockStats(ctx context.Context, height uint64) (types.BlockStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statsCalls = append(m.statsCalls, height)
	if err := m.statsErrs[len(m.statsCalls)]; err != nil {
		return types.BlockStats{}, err
	}
	return types.BlockStats{Height: height, Txs: 2500}, nil
}

func (m *MockDataSource) FetchFeeEstimate(ctx context.Context) (types.FeeEstimate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.feeCalls++
	if err := m.feeErrs[m.feeCalls]; err != nil {
		return types.FeeEstimate{}, err
	}
	return types.FeeEstimate{FastestFee: uint64(m.feeCalls), MinimumFee: 1}, nil
}

// FailFeeCall makes the n-th fee fetch (1-based) fail.
func (m *MockDataSource) FailFeeCall(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeErrs[n] = errFetch
}

// FailStatsCall makes the n-th block stats fetch (1-based) fail.
func (m *MockDataSource) FailStatsCall(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsErrs[n] = errFetch
}

func (m *MockDataSource) ChainCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainCalls
}

func (m *MockDataSource) StatsCalls() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.statsCalls...)
}

func (m *MockDataSource) FeeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feeCalls
}

// MockObserver counts observer callbacks.
type MockObserver struct {
	mu            sync.Mutex
	fetches       map[string]int
	failures      map[string]int
	publishes     map[string]int
	staleDiscards int
	lastHeight    uint64
	queueLengths  []int
	drops         map[string]int
}

func NewMockObserver() *MockObserver {
	return &MockObserver{
		fetches:   make(map[string]int),
		failures:  make(map[string]int),
		publishes: make(map[string]int),
		drops:     make(map[string]int),
	}
}

func (o *MockObserver) ObserveFetch(source string, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetches[source]++
	if err != nil {
		o.failures[source]++
	}
}

func (o *MockObserver) ObservePublish(stream string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.publishes[stream]++
}

func (o *MockObserver) Publishes(stream string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.publishes[stream]
}

func (o *MockObserver) ObserveStaleDiscard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.staleDiscards++
}

func (o *MockObserver) ObserveHeight(height uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastHeight = height
}

func (o *MockObserver) ObserveFee(fee types.FeeEstimate, queueLength int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queueLengths = append(o.queueLengths, queueLength)
}

func (o *MockObserver) DropHook(stream string) func() {
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.drops[stream]++
	}
}
