package store

import (
	"sort"
	"sync"

	"streamdash/internal/model"
)

// symbolBuffer is a fixed-capacity FIFO of observations. Appending to a full
// buffer evicts the oldest entry.
type symbolBuffer struct {
	obs      []model.Observation
	capacity int
}

func newSymbolBuffer(capacity int) *symbolBuffer {
	return &symbolBuffer{
		obs:      make([]model.Observation, 0, capacity),
		capacity: capacity,
	}
}

func (b *symbolBuffer) append(o model.Observation) {
	b.obs = append(b.obs, o)
	if len(b.obs) > b.capacity {
		b.obs = b.obs[1:]
	}
}

// Store owns one bounded buffer per symbol plus the set of symbols whose
// buffers have been seeded with historical data. All access goes through a
// single mutex so readers never observe a buffer mid-eviction.
type Store struct {
	mu         sync.Mutex
	capacity   int
	buffers    map[string]*symbolBuffer
	backfilled map[string]bool
}

// NewStore creates a Store whose per-symbol buffers hold at most capacity
// observations.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity:   capacity,
		buffers:    make(map[string]*symbolBuffer),
		backfilled: make(map[string]bool),
	}
}

// Append adds one observation to the symbol's buffer, creating the buffer on
// first sight and evicting the oldest entry when full.
func (s *Store) Append(o model.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[o.Symbol]
	if !ok {
		buf = newSymbolBuffer(s.capacity)
		s.buffers[o.Symbol] = buf
	}
	buf.append(o)
}

// BackfillIfNeeded seeds the symbol's buffer with historical observations the
// first time it is called for that symbol, then marks the symbol complete.
// Subsequent calls are no-ops. When the history exceeds capacity only the most
// recent entries are kept. Returns whether the seed happened.
func (s *Store) BackfillIfNeeded(symbol string, hist []model.Observation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backfilled[symbol] {
		return false
	}

	buf, ok := s.buffers[symbol]
	if !ok {
		buf = newSymbolBuffer(s.capacity)
		s.buffers[symbol] = buf
	}
	if len(hist) > s.capacity {
		hist = hist[len(hist)-s.capacity:]
	}
	for _, o := range hist {
		o.Symbol = symbol
		o.Historical = true
		buf.append(o)
	}
	s.backfilled[symbol] = true
	return true
}

// Backfilled reports whether the symbol has completed historical backfill.
func (s *Store) Backfilled(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backfilled[symbol]
}

// Snapshot returns a consistent copy of all buffered observations across all
// symbols, ordered by symbol and, within a symbol, by arrival.
func (s *Store) Snapshot() []model.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, len(s.buffers))
	total := 0
	for sym, buf := range s.buffers {
		symbols = append(symbols, sym)
		total += len(buf.obs)
	}
	sort.Strings(symbols)

	out := make([]model.Observation, 0, total)
	for _, sym := range symbols {
		out = append(out, s.buffers[sym].obs...)
	}
	return out
}

// SymbolSnapshot returns a copy of one symbol's buffer in arrival order.
func (s *Store) SymbolSnapshot(symbol string) []model.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[symbol]
	if !ok {
		return nil
	}
	out := make([]model.Observation, len(buf.obs))
	copy(out, buf.obs)
	return out
}

// Reset drops a symbol's buffer and its backfill flag, forcing a fresh
// historical backfill the next time the symbol is refreshed.
func (s *Store) Reset(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, symbol)
	delete(s.backfilled, symbol)
}

// Symbols returns the sorted list of symbols currently buffered.
func (s *Store) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.buffers))
	for sym := range s.buffers {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of buffered observations for a symbol.
func (s *Store) Len(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.buffers[symbol]; ok {
		return len(buf.obs)
	}
	return 0
}
