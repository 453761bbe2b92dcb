// Package consumer holds the built-in consumers of the watcher streams: log
// sinks and a store that keeps the latest value of each stream.
package consumer

import (
	"sync"
	"time"

	"github.com/0xmhha/btcwatcher/internal/broadcast"
	"github.com/0xmhha/btcwatcher/pkg/types"
)

// Event topics.
const (
	TopicChainState = "chain_state"
	TopicBlockStats = "block_stats"
	TopicFees       = "fee_estimate"
)

// Event is a store update as pushed to live listeners.
type Event struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
	Time  time.Time   `json:"timestamp"`
}

// Entry is the latest value of a stream and when it was received.
type Entry[T any] struct {
	Value      T         `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// Store keeps the most recent chain state, block stats and fee estimate,
// and republishes every update as an Event.
//
// Thread-safety: all methods may be called concurrently.
type Store struct {
	mu         sync.RWMutex
	chainState *Entry[types.ChainState]
	blockStats *Entry[types.BlockStats]
	fees       *Entry[types.FeeEstimate]

	events *broadcast.Broadcaster[Event]
	now    func() time.Time
}

// NewStore creates an empty Store whose event subscribers buffer up to
// capacity events each.
func NewStore(capacity int, opts ...broadcast.Option) *Store {
	return &Store{
		events: broadcast.New[Event](capacity, opts...),
		now:    time.Now,
	}
}

// SetChainState records the latest chain state.
func (s *Store) SetChainState(v types.ChainState) {
	at := s.now()
	s.mu.Lock()
	s.chainState = &Entry[types.ChainState]{Value: v, ReceivedAt: at}
	s.mu.Unlock()

	s.events.Publish(Event{Topic: TopicChainState, Data: v, Time: at})
}

// SetBlockStats records the latest block stats.
func (s *Store) SetBlockStats(v types.BlockStats) {
	at := s.now()
	s.mu.Lock()
	s.blockStats = &Entry[types.BlockStats]{Value: v, ReceivedAt: at}
	s.mu.Unlock()

	s.events.Publish(Event{Topic: TopicBlockStats, Data: v, Time: at})
}

// SetFeeEstimate records the latest fee estimate.
func (s *Store) SetFeeEstimate(v types.FeeEstimate) {
	at := s.now()
	s.mu.Lock()
	s.fees = &Entry[types.FeeEstimate]{Value: v, ReceivedAt: at}
	s.mu.Unlock()

	s.events.Publish(Event{Topic: TopicFees, Data: v, Time: at})
}

// ChainState returns the latest chain state, if any has been recorded.
func (s *Store) ChainState() (Entry[types.ChainState], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chainState == nil {
		return Entry[types.ChainState]{}, false
	}
	return *s.chainState, true
}

// BlockStats returns the latest block stats, if any have been recorded.
func (s *Store) BlockStats() (Entry[types.BlockStats], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.blockStats == nil {
		return Entry[types.BlockStats]{}, false
	}
	return *s.blockStats, true
}

// FeeEstimate returns the latest fee estimate, if any has been recorded.
func (s *Store) FeeEstimate() (Entry[types.FeeEstimate], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fees == nil {
		return Entry[types.FeeEstimate]{}, false
	}
	return *s.fees, true
}

// Subscribe returns a subscription to future update events.
func (s *Store) Subscribe() *broadcast.Subscription[Event] {
	return s.events.Subscribe()
}

// Close ends every event subscription.
func (s *Store) Close() {
	s.events.Close()
}
