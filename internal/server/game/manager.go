package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"lukechampine.com/frand"

	"chessroom/internal/cache"
	"chessroom/internal/chess"
	"chessroom/internal/engine"
)

const (
	DefaultRandomSpread   = 10
	DefaultRandomAttempts = 64
)

// Manager owns the single shared position. Every operation holds mu for a
// short critical section only; searches and random walks run outside it.
type Manager struct {
	mu        sync.Mutex
	pos       chess.Position
	history   []chess.Position
	gen       uint64 // bumped on every mutation
	updatedAt time.Time

	cache *cache.Cache
	log   zerolog.Logger
	obs   Observer

	randomSpread   int
	randomAttempts int
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.obs = o
		}
	}
}

// WithRandomSampling sets how far past the minimum a random walk may go and
// how many walks SampleRandom tries before giving up.
func WithRandomSampling(spread, attempts int) Option {
	return func(m *Manager) {
		m.randomSpread = max(spread, 0)
		m.randomAttempts = max(attempts, 0)
	}
}

func NewManager(c *cache.Cache, opts ...Option) *Manager {
	m := &Manager{
		pos:            chess.StartPosition(),
		updatedAt:      time.Now(),
		cache:          c,
		log:            zerolog.Nop(),
		obs:            nopObserver{},
		randomSpread:   DefaultRandomSpread,
		randomAttempts: DefaultRandomAttempts,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// replaceLocked installs pos and forgets the history. mu must be held.
func (m *Manager) replaceLocked(op string, pos chess.Position) {
	m.pos = pos
	m.history = m.history[:0]
	m.touchLocked(op)
}

func (m *Manager) touchLocked(op string) {
	m.gen++
	m.updatedAt = time.Now()
	m.obs.Mutation(op)
	if ev := m.log.Debug(); ev.Enabled() {
		ev.Str("op", op).Str("fen", m.pos.Text()).Int("history", len(m.history)).Msg("position updated")
	}
}

// Reset installs the standard starting position and returns its FEN.
func (m *Manager) Reset() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceLocked("reset", chess.StartPosition())
	return m.pos.Text()
}

// SetFromText replaces the position with the parsed FEN and returns the
// FEN of the installed position. On error the current position is kept.
func (m *Manager) SetFromText(text string) (string, error) {
	pos, err := chess.ParsePosition(text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPositionFormat, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceLocked("set", pos)
	return m.pos.Text(), nil
}

// ApplyMove plays a UCI move if it is legal in the current position and
// returns the resulting FEN.
func (m *Manager) ApplyMove(moveText string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mv, err := m.pos.FindMove(moveText)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrIllegalMove, moveText, err)
	}
	m.applyLocked("move", mv)
	return m.pos.Text(), nil
}

func (m *Manager) applyLocked(op string, mv chess.Move) {
	m.history = append(m.history, m.pos)
	m.pos.Apply(mv)
	m.touchLocked(op)
}

// Undo restores the position before the last applied move and returns its
// FEN.
func (m *Manager) Undo() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.history)
	if n == 0 {
		return "", ErrNoHistory
	}
	m.pos = m.history[n-1]
	m.history = m.history[:n-1]
	m.touchLocked("undo")
	return m.pos.Text(), nil
}

// CurrentText returns the FEN of the shared position.
func (m *Manager) CurrentText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos.Text()
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return statusOf(&m.pos)
}

// LegalMoves lists the legal moves in UCI form; empty, never nil, when the
// game is over.
func (m *Manager) LegalMoves() []string {
	m.mu.Lock()
	moves := m.pos.LegalMoves()
	m.mu.Unlock()
	return uciStrings(moves)
}

// LegalMovesDetailed pairs every legal move with its SAN.
func (m *Manager) LegalMovesDetailed() []MoveInfo {
	m.mu.Lock()
	pos := m.pos
	m.mu.Unlock()

	moves := pos.LegalMoves()
	san := pos.SAN(moves)
	out := make([]MoveInfo, len(moves))
	for i, mv := range moves {
		out[i] = MoveInfo{UCI: mv.String(), SAN: san[i]}
	}
	return out
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	moves := m.pos.LegalMoves()
	return State{
		Text:       m.pos.Text(),
		Status:     statusOf(&m.pos),
		Outcome:    m.pos.Status(),
		SideToMove: m.pos.SideToMove(),
		InCheck:    m.pos.InCheck(),
		History:    len(m.history),
		LegalMoves: uciStrings(moves),
		UpdatedAt:  m.updatedAt,
	}
}

// UpdatedAt is the time of the last mutation.
func (m *Manager) UpdatedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatedAt
}

// SampleRandom replaces the position with one reached by a random legal
// walk of at least minMoves plies from the start, not in check and not
// terminal. At most randomAttempts walks are tried.
func (m *Manager) SampleRandom(ctx context.Context, minMoves int) (RandomResult, error) {
	minMoves = max(minMoves, 0)
	for attempt := 0; attempt < m.randomAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return RandomResult{}, fmt.Errorf("%w: %w", ErrRandomSampleExhausted, err)
		}
		plies := minMoves
		if m.randomSpread > 0 {
			plies += frand.Intn(m.randomSpread + 1)
		}
		pos, ok := randomWalk(plies)
		if !ok {
			continue
		}

		m.mu.Lock()
		m.replaceLocked("random", pos)
		text := m.pos.Text()
		m.mu.Unlock()

		m.log.Debug().Int("plies", plies).Int("attempt", attempt+1).Msg("random position sampled")
		return RandomResult{Text: text, Plies: plies}, nil
	}
	return RandomResult{}, fmt.Errorf("%w after %d attempts", ErrRandomSampleExhausted, m.randomAttempts)
}

func randomWalk(plies int) (chess.Position, bool) {
	pos := chess.StartPosition()
	for i := 0; i < plies; i++ {
		moves := pos.LegalMoves()
		if len(moves) == 0 {
			return chess.Position{}, false
		}
		pos.Apply(moves[frand.Intn(len(moves))])
	}
	if pos.InCheck() || pos.IsTerminal() {
		return chess.Position{}, false
	}
	return pos, true
}

// RequestBestMove asks the search cache for a move in the current position
// and plays it. The board is snapshotted and the lock released while the
// cache searches; the move is applied only if nothing else changed the
// position meanwhile.
func (m *Manager) RequestBestMove(ctx context.Context, depth int) (BestMove, error) {
	m.mu.Lock()
	snap := m.pos
	gen := m.gen
	m.mu.Unlock()

	if snap.IsTerminal() {
		return BestMove{Text: snap.Text()}, ErrGameOver
	}

	start := time.Now()
	l, err := m.cache.GetOrCompute(ctx, snap, depth)
	if err != nil {
		if errors.Is(err, engine.ErrNoLegalMoves) {
			return BestMove{Text: snap.Text()}, ErrGameOver
		}
		return BestMove{}, err
	}
	m.obs.BestMove(l.Hit, time.Since(start))
	// the caller is gone; a cut-short search must not move the board
	if err := ctx.Err(); err != nil {
		return BestMove{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return BestMove{}, ErrPositionChanged
	}
	if !m.pos.IsLegal(l.BestMove) {
		return BestMove{}, fmt.Errorf("%w: %s", ErrIllegalMove, l.BestMove)
	}
	m.applyLocked("best", l.BestMove)
	m.log.Debug().
		Str("move", l.BestMove.String()).
		Bool("cache_hit", l.Hit).
		Int32("score", l.Score).
		Int16("depth", l.Depth).
		Msg("best move applied")

	return BestMove{
		Move:     l.BestMove.String(),
		Text:     m.pos.Text(),
		CacheHit: l.Hit,
		Score:    l.Score,
		Depth:    l.Depth,
	}, nil
}

// PlayMove applies the client's move and answers with the best reply. Once
// the client's move is applied it stays applied: if the reply fails, the
// result carries ClientApplied and the FEN after the client's move.
func (m *Manager) PlayMove(ctx context.Context, moveText string, depth int) (BestMove, error) {
	text, err := m.ApplyMove(moveText)
	if err != nil {
		return BestMove{}, err
	}
	res, err := m.RequestBestMove(ctx, depth)
	res.ClientApplied = true
	if err != nil && res.Text == "" {
		res.Text = text
	}
	return res, err
}

func uciStrings(moves []chess.Move) []string {
	out := make([]string, len(moves))
	for i, mv := range moves {
		out[i] = mv.String()
	}
	return out
}
