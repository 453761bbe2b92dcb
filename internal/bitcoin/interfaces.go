package bitcoin

import (
	"context"

	"github.com/0xmhha/btcwatcher/pkg/types"
)

// Source fetches chain state, block statistics and fee estimates.
//
// Thread-safety: implementations must be safe for concurrent use, as the
// chain, block stats and fee pollers call them from separate goroutines.
//
// Every method returns a *FetchError on failure.
type Source interface {
	FetchChainState(ctx context.Context) (types.ChainState, error)
	FetchBlockStats(ctx context.Context, height uint64) (types.BlockStats, error)
	FetchFeeEstimate(ctx context.Context) (types.FeeEstimate, error)
}
