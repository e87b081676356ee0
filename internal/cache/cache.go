// Package cache memoizes best-move searches by position hash in a
// fixed-capacity, direct-mapped table.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"chessroom/internal/chess"
	"chessroom/internal/engine"
)

// DefaultCapacity is the table size used when none is configured.
const DefaultCapacity = 40_000

var ErrInvalidPolicy = errors.New("invalid replacement policy")

// Searcher is the part of the engine the cache needs.
type Searcher interface {
	Hash(pos *chess.Position) uint64
	SearchBestMove(ctx context.Context, pos chess.Position, depth int) (engine.SearchResult, error)
}

// Policy decides whether a new result may overwrite an occupied slot.
type Policy uint8

const (
	// PolicyDepthPreferred never replaces a deeper entry with a shallower one.
	PolicyDepthPreferred Policy = iota
	// PolicyAlways is last-write-wins for every slot.
	PolicyAlways
)

func (p Policy) String() string {
	if p == PolicyAlways {
		return "always"
	}
	return "depth"
}

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "depth", "depth-preferred", "":
		return PolicyDepthPreferred, nil
	case "always":
		return PolicyAlways, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// Entry is one memoized search result.
type Entry struct {
	Key        uint64
	BestMove   chess.Move
	Score      int32
	StaticEval int16
	Depth      int16
	Bound      engine.Bound

	used bool
}

// Lookup is the outcome of GetOrCompute.
type Lookup struct {
	Entry
	Hit bool
}

type Stats struct {
	Capacity     int    `json:"capacity"`
	Len          int    `json:"len"`
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
	Stores       uint64 `json:"stores"`
	Replacements uint64 `json:"replacements"`
	Rejected     uint64 `json:"rejected"`
	Collisions   uint64 `json:"collisions"`
}

type Cache struct {
	searcher Searcher
	policy   Policy

	mu    sync.Mutex
	slots []Entry
	count int

	flight singleflight.Group

	hits         atomic.Uint64
	misses       atomic.Uint64
	stores       atomic.Uint64
	replacements atomic.Uint64
	rejected     atomic.Uint64
	collisions   atomic.Uint64
}

type Option func(*Cache)

func WithPolicy(p Policy) Option {
	return func(c *Cache) { c.policy = p }
}

// New builds a cache of the given capacity. The table is allocated once and
// never resized.
func New(s Searcher, capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		searcher: s,
		slots:    make([]Entry, capacity),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) Capacity() int { return len(c.slots) }

func (c *Cache) Policy() Policy { return c.policy }

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *Cache) index(key uint64) int {
	return int(key % uint64(len(c.slots)))
}

// Probe returns the entry stored for key if it was searched at least as deep
// as depth.
func (c *Cache) Probe(key uint64, depth int) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.slots[c.index(key)]
	if !e.used || e.Key != key || int(e.Depth) < depth {
		return Entry{}, false
	}
	return e, true
}

// Store files e under e.Key, subject to the replacement policy. It reports
// whether the slot was written.
func (c *Cache) Store(e Entry) bool {
	e.used = true
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(e.Key)
	old := c.slots[i]
	if old.used && !c.replaces(old, e) {
		c.rejected.Add(1)
		return false
	}
	switch {
	case !old.used:
		c.count++
	case old.Key != e.Key:
		c.collisions.Add(1)
		c.replacements.Add(1)
	default:
		c.replacements.Add(1)
	}
	c.slots[i] = e
	c.stores.Add(1)
	return true
}

func (c *Cache) replaces(old, e Entry) bool {
	if c.policy == PolicyAlways {
		return true
	}
	if old.Key == e.Key && e.Bound == engine.Exact && old.Bound != engine.Exact {
		return true
	}
	return e.Depth >= old.Depth
}

// Clear empties every slot. Statistics are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.slots)
	c.count = 0
}

func (c *Cache) Stats() Stats {
	return Stats{
		Capacity:     len(c.slots),
		Len:          c.Len(),
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Stores:       c.stores.Load(),
		Replacements: c.replacements.Load(),
		Rejected:     c.rejected.Load(),
		Collisions:   c.collisions.Load(),
	}
}

// GetOrCompute returns the best move for pos at depth, searching only when
// no stored entry is deep enough. A stored move that is not legal in pos is
// a hash collision and counts as a miss. Concurrent misses for the same key
// and depth share one search. The cache lock is not held while searching.
//
// The shared search is detached from any single caller's ctx and is bounded
// by the searcher's own time limit; each caller stops waiting when its ctx
// is done.
func (c *Cache) GetOrCompute(ctx context.Context, pos chess.Position, depth int) (Lookup, error) {
	key := c.searcher.Hash(&pos)
	if e, ok := c.Probe(key, depth); ok && pos.IsLegal(e.BestMove) {
		c.hits.Add(1)
		return Lookup{Entry: e, Hit: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return Lookup{}, err
	}
	c.misses.Add(1)

	flightKey := strconv.FormatUint(key, 16) + "/" + strconv.Itoa(depth)
	searchCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(flightKey, func() (any, error) {
		res, err := c.searcher.SearchBestMove(searchCtx, pos, depth)
		if err != nil {
			return Entry{}, err
		}
		e := Entry{
			Key:        key,
			BestMove:   res.BestMove,
			Score:      int32(res.Score),
			StaticEval: clamp16(res.StaticEval),
			Depth:      int16(depth),
			Bound:      res.Bound,
		}
		// a search cut short by the time limit reports the depth it completed
		// and is not memoized
		if res.Interrupted {
			e.Depth = int16(res.Depth)
			return e, nil
		}
		c.Store(e)
		return e, nil
	})

	select {
	case <-ctx.Done():
		return Lookup{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Lookup{}, r.Err
		}
		return Lookup{Entry: r.Val.(Entry)}, nil
	}
}

func clamp16(v int) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}
