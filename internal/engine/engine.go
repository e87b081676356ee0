package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"chessroom/internal/chess"
)

var ErrNoLegalMoves = errors.New("no legal moves")

// Bound classifies a search score.
type Bound uint8

const (
	Exact Bound = iota
	LowerBound
	UpperBound
)

func (b Bound) String() string {
	switch b {
	case LowerBound:
		return "lower"
	case UpperBound:
		return "upper"
	default:
		return "exact"
	}
}

const rootTTCap = 1 << 16

type Engine struct {
	// root TT is shared by concurrent Search calls; child searches keep their own
	mu sync.Mutex
	tt map[uint64]ttEntry

	nodes     int64
	timeLimit time.Duration
	workers   int
}

type Option func(*Engine)

// WithTimeLimit bounds every SearchBestMove call. Zero means no limit.
func WithTimeLimit(d time.Duration) Option {
	return func(e *Engine) { e.timeLimit = d }
}

// WithWorkers caps the number of root moves searched in parallel.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tt: make(map[uint64]ttEntry, 1<<12),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Hash returns the key the search cache files results under.
func (e *Engine) Hash(pos *chess.Position) uint64 {
	return pos.Hash()
}

// Nodes is the running total of nodes visited by this engine.
func (e *Engine) Nodes() int64 {
	return atomic.LoadInt64(&e.nodes)
}

// SearchBestMove searches pos to the given depth. pos is taken by value so
// the caller's board is never touched.
func (e *Engine) SearchBestMove(ctx context.Context, pos chess.Position, depth int) (SearchResult, error) {
	if pos.IsTerminal() {
		return SearchResult{}, ErrNoLegalMoves
	}
	res := e.Search(ctx, &pos, SearchConfig{
		MaxDepth:  depth,
		TimeLimit: e.timeLimit,
	})
	if res.BestMove.IsZero() {
		return res, ErrNoLegalMoves
	}
	return res, nil
}

func (e *Engine) rootEntry(key uint64) (ttEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.tt[key]
	return en, ok
}

func (e *Engine) storeRoot(key uint64, depth, score int, mv chess.Move) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.tt) > rootTTCap {
		e.tt = make(map[uint64]ttEntry, 1<<12)
	}
	storeTT(e.tt, ttEntry{Key: key, Depth: depth, Score: score, Move: mv, Bound: Exact})
}
