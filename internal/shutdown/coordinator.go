// Package shutdown provides the one-shot cancellation signal shared by every
// polling loop, plus a join barrier for the loops spawned under it.
package shutdown

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/pkg/logger"
)

// Coordinator is a one-shot, multi-waiter cancellation signal.
//
// It starts armed. Trigger flips it to triggered exactly once; later calls
// are no-ops. Any number of goroutines may wait on Done concurrently and
// all of them are released by the same trigger.
//
// A Coordinator is created per process (or per test) and passed explicitly
// to each loop at spawn time.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     conc.WaitGroup
	logger *logger.Logger
}

// New creates an armed Coordinator. Cancelling parent also triggers it.
func New(parent context.Context, logger *logger.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Trigger fires the shutdown signal and wakes every waiter. It reports
// whether this call was the one that fired it.
func (c *Coordinator) Trigger() bool {
	fired := false
	c.once.Do(func() {
		fired = true
		c.logger.Info("shutdown triggered")
		c.cancel()
	})
	return fired
}

// Done returns a channel that is closed once shutdown has been triggered.
func (c *Coordinator) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Wait blocks until shutdown has been triggered.
func (c *Coordinator) Wait() {
	<-c.ctx.Done()
}

// Triggered reports whether shutdown has been triggered.
func (c *Coordinator) Triggered() bool {
	return c.ctx.Err() != nil
}

// Context returns a context that is cancelled when shutdown is triggered.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Go runs fn in a new goroutine tracked by the join barrier. fn receives
// the shutdown context and is expected to return once it is cancelled.
// All calls to Go must happen before Join.
func (c *Coordinator) Go(name string, fn func(ctx context.Context)) {
	c.wg.Go(func() {
		defer c.logger.Debug("loop exited", zap.String("loop", name))
		fn(c.ctx)
	})
}

// Join waits for every goroutine started with Go to return, or for ctx to
// end first. A panic inside one of them is returned as an error.
func (c *Coordinator) Join(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		if r := c.wg.WaitAndRecover(); r != nil {
			done <- fmt.Errorf("loop panicked: %w", r.AsError())
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("failed to join loops: %w", ctx.Err())
	}
}
