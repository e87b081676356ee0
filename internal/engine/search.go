package engine

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"chessroom/internal/chess"
)

const (
	scoreInf  = 1_000_000
	mateScore = 100_000

	quiesceDepth = 6
	defaultDepth = 4
)

// SearchConfig bounds a single search.
type SearchConfig struct {
	MaxDepth  int           // plies
	TimeLimit time.Duration // 0 means no limit
}

type SearchResult struct {
	BestMove   chess.Move
	Score      int // side to move's view
	StaticEval int // side to move's view
	Depth      int // last fully completed iteration
	Bound      Bound
	Nodes      int64
	TimeUsed   time.Duration

	// Interrupted is set when the deadline or ctx cut the search short of MaxDepth.
	Interrupted bool
}

// searcher holds the state of one goroutine's subtree search.
type searcher struct {
	ctx      context.Context
	deadline time.Time
	tt       map[uint64]ttEntry
	nodes    int64
	stopped  bool
}

func newSearcher(ctx context.Context, deadline time.Time) *searcher {
	return &searcher{
		ctx:      ctx,
		deadline: deadline,
		tt:       make(map[uint64]ttEntry, 1<<14),
	}
}

// Search runs iterative deepening on pos. A result from an iteration that
// was interrupted by the deadline or ctx is discarded; if not even depth 1
// completes, the first ordered legal move is returned.
func (e *Engine) Search(ctx context.Context, pos *chess.Position, cfg SearchConfig) SearchResult {
	start := time.Now()
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultDepth
	}
	deadline := time.Time{}
	if cfg.TimeLimit > 0 {
		deadline = start.Add(cfg.TimeLimit)
	}

	res := SearchResult{StaticEval: evalFor(pos), Bound: Exact}
	moves := pos.LegalMoves()
	if len(moves) == 0 {
		res.TimeUsed = time.Since(start)
		return res
	}

	key := pos.Hash()
	var ttMove chess.Move
	if en, ok := e.rootEntry(key); ok {
		ttMove = en.Move
	}
	orderMoves(pos, moves, ttMove)
	res.BestMove = moves[0]

	// one searcher per root move, reused across iterations so its TT keeps warming up
	children := make([]*searcher, len(moves))
	for i := range children {
		children[i] = newSearcher(ctx, deadline)
	}

	for depth := 1; depth <= cfg.MaxDepth; depth++ {
		score, best, ok := e.searchRoot(pos, moves, children, depth)
		if !ok {
			res.Interrupted = true
			break
		}
		res.BestMove = best
		res.Score = score
		res.Depth = depth
		e.storeRoot(key, depth, score, best)

		// next iteration starts from the best move found so far
		orderMoves(pos, moves, best)
		if score >= mateScore-depth {
			break
		}
	}

	var nodes int64
	for _, c := range children {
		nodes += c.nodes
	}
	atomic.AddInt64(&e.nodes, nodes)
	res.Nodes = nodes
	res.TimeUsed = time.Since(start)
	return res
}

// searchRoot scores every root move at depth in parallel. Ties go to the
// earlier move so the result does not depend on goroutine scheduling.
func (e *Engine) searchRoot(pos *chess.Position, moves []chess.Move, children []*searcher, depth int) (int, chess.Move, bool) {
	scores := make([]int, len(moves))

	var g errgroup.Group
	workers := e.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)

	for i := range moves {
		s := children[i]
		child := *pos
		child.Apply(moves[i])
		g.Go(func() error {
			s.stopped = false
			scores[i] = -s.negamax(&child, depth-1, 1, -scoreInf, scoreInf)
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range children {
		if s.stopped {
			return 0, chess.Move{}, false
		}
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return scores[best], moves[best], true
}

func (s *searcher) expired() bool {
	if s.ctx != nil && s.ctx.Err() != nil {
		return true
	}
	return !s.deadline.IsZero() && time.Now().After(s.deadline)
}

func (s *searcher) negamax(pos *chess.Position, depth, ply, alpha, beta int) int {
	s.nodes++
	if s.nodes&1023 == 0 && s.expired() {
		s.stopped = true
	}
	if s.stopped {
		return 0
	}

	moves := pos.LegalMoves()
	if len(moves) == 0 {
		if pos.InCheck() {
			return -mateScore + ply
		}
		return 0
	}
	if depth <= 0 {
		return s.quiesce(pos, moves, ply, alpha, beta, quiesceDepth)
	}

	key := pos.Hash()
	alphaOrig := alpha
	var ttMove chess.Move
	if en, ok := s.tt[key]; ok {
		ttMove = en.Move
		if en.Depth >= depth {
			switch en.Bound {
			case Exact:
				return en.Score
			case LowerBound:
				alpha = max(alpha, en.Score)
			case UpperBound:
				beta = min(beta, en.Score)
			}
			if alpha >= beta {
				return en.Score
			}
		}
	}

	orderMoves(pos, moves, ttMove)

	best := -scoreInf
	var bestMove chess.Move
	for _, mv := range moves {
		child := *pos
		child.Apply(mv)
		score := -s.negamax(&child, depth-1, ply+1, -beta, -alpha)
		if s.stopped {
			return 0
		}
		if score > best {
			best = score
			bestMove = mv
		}
		if score > alpha {
			alpha = score
		}
		if alpha >= beta {
			break
		}
	}

	bound := Exact
	switch {
	case best <= alphaOrig:
		bound = UpperBound
	case best >= beta:
		bound = LowerBound
	}
	s.storeTT(key, depth, best, bestMove, bound)
	return best
}

// quiesce resolves captures only. moves are the legal moves of pos, already
// known to be non-empty.
func (s *searcher) quiesce(pos *chess.Position, moves []chess.Move, ply, alpha, beta, depth int) int {
	s.nodes++
	standPat := evalFor(pos)
	if depth == 0 || standPat >= beta {
		return standPat
	}
	if standPat > alpha {
		alpha = standPat
	}

	captures := moves[:0:0]
	for _, mv := range moves {
		if pos.IsCapture(mv) {
			captures = append(captures, mv)
		}
	}
	orderMoves(pos, captures, chess.Move{})

	for _, mv := range captures {
		child := *pos
		child.Apply(mv)
		var score int
		replies := child.LegalMoves()
		switch {
		case len(replies) == 0 && child.InCheck():
			score = mateScore - ply - 1
		case len(replies) == 0:
			score = 0
		default:
			score = -s.quiesce(&child, replies, ply+1, -beta, -alpha, depth-1)
		}
		if score >= beta {
			return score
		}
		if score > alpha {
			alpha = score
		}
	}
	return alpha
}

// orderMoves puts first the hint move, then captures by most valuable
// victim / least valuable attacker, then everything else in generator order.
func orderMoves(pos *chess.Position, moves []chess.Move, hint chess.Move) {
	keys := make([]int, len(moves))
	for i, mv := range moves {
		switch {
		case !hint.IsZero() && mv == hint:
			keys[i] = 1 << 20
		case pos.IsCapture(mv):
			victim, _, ok := pos.PieceAt(mv.To())
			v := pawnValue // en passant
			if ok {
				v = pieceValue[victim]
			}
			attacker, _, _ := pos.PieceAt(mv.From())
			keys[i] = 10*v - pieceValue[attacker] + 1<<16
		case mv.IsPromotion():
			keys[i] = 1 << 15
		}
	}
	idx := make([]int, len(moves))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] > keys[idx[b]] })
	sorted := make([]chess.Move, len(moves))
	for i, j := range idx {
		sorted[i] = moves[j]
	}
	copy(moves, sorted)
}
