package bitcoin

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/btcwatcher/internal/config"
	"github.com/0xmhha/btcwatcher/pkg/logger"
	"github.com/0xmhha/btcwatcher/pkg/types"
)

// Guard wraps a Source with a shared request rate limit and a circuit
// breaker per operation. A rejected call is reported as an ordinary
// *FetchError, so callers need no special handling.
type Guard struct {
	source  Source
	limiter *rate.Limiter
	logger  *logger.Logger

	chainCB *gobreaker.CircuitBreaker[types.ChainState]
	statsCB *gobreaker.CircuitBreaker[types.BlockStats]
	feeCB   *gobreaker.CircuitBreaker[types.FeeEstimate]
}

// NewGuard creates a Guard around source. A zero RateLimitRPS disables the
// limiter; BreakerEnabled=false disables the breakers.
func NewGuard(source Source, cfg *config.Config, logger *logger.Logger) *Guard {
	g := &Guard{
		source: source,
		logger: logger,
	}

	if cfg.RateLimitRPS > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	if cfg.BreakerEnabled {
		g.chainCB = gobreaker.NewCircuitBreaker[types.ChainState](g.breakerSettings(OpChainState, cfg))
		g.statsCB = gobreaker.NewCircuitBreaker[types.BlockStats](g.breakerSettings(OpBlockStats, cfg))
		g.feeCB = gobreaker.NewCircuitBreaker[types.FeeEstimate](g.breakerSettings(OpFeeEstimate, cfg))
	}

	return g
}

func (g *Guard) breakerSettings(name string, cfg *config.Config) gobreaker.Settings {
	failures := cfg.BreakerFailures
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Shutdown cancellations say nothing about the remote side.
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Info("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
}

// FetchChainState implements Source.
func (g *Guard) FetchChainState(ctx context.Context) (types.ChainState, error) {
	return guarded(ctx, g, OpChainState, g.chainCB, func() (types.ChainState, error) {
		return g.source.FetchChainState(ctx)
	})
}

// FetchBlockStats implements Source.
func (g *Guard) FetchBlockStats(ctx context.Context, height uint64) (types.BlockStats, error) {
	return guarded(ctx, g, OpBlockStats, g.statsCB, func() (types.BlockStats, error) {
		return g.source.FetchBlockStats(ctx, height)
	})
}

// FetchFeeEstimate implements Source.
func (g *Guard) FetchFeeEstimate(ctx context.Context) (types.FeeEstimate, error) {
	return guarded(ctx, g, OpFeeEstimate, g.feeCB, func() (types.FeeEstimate, error) {
		return g.source.FetchFeeEstimate(ctx)
	})
}

func guarded[T any](ctx context.Context, g *Guard, op string, cb *gobreaker.CircuitBreaker[T], fetch func() (T, error)) (T, error) {
	var zero T

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, fetchErr(op, err)
		}
	}

	if cb == nil {
		return fetch()
	}

	v, err := cb.Execute(fetch)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return zero, err
		}
		// Breaker rejection (open or half-open saturation).
		return zero, fetchErr(op, err)
	}
	return v, nil
}
