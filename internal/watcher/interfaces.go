package watcher

import (
	"context"
	"time"

	"github.com/0xmhha/btcwatcher/pkg/types"
)

// Stream names, used as log fields and metric labels.
const (
	StreamChainState = "chain_state"
	StreamBlockStats = "block_stats"
	StreamFees       = "fee_estimate"
)

// DataSource is the capability the pollers fetch from.
//
// Thread-safety: implementations MUST be safe for concurrent use. The three
// pollers share one DataSource and call it from independent goroutines.
//
// Any request timeout is the implementation's responsibility; the pollers
// impose none.
type DataSource interface {
	FetchChainState(ctx context.Context) (types.ChainState, error)
	FetchBlockStats(ctx context.Context, height uint64) (types.BlockStats, error)
	FetchFeeEstimate(ctx context.Context) (types.FeeEstimate, error)
}

// Observer receives poller activity for diagnostics.
type Observer interface {
	ObserveFetch(source string, d time.Duration, err error)
	ObservePublish(stream string)
	ObserveStaleDiscard()
	ObserveHeight(height uint64)
	ObserveFee(fee types.FeeEstimate, queueLength int)
	DropHook(stream string) func()
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(string, time.Duration, error) {}
func (nopObserver) ObservePublish(string)                     {}
func (nopObserver) ObserveStaleDiscard()                      {}
func (nopObserver) ObserveHeight(uint64)                      {}
func (nopObserver) ObserveFee(types.FeeEstimate, int)         {}
func (nopObserver) DropHook(string) func()                    { return nil }
