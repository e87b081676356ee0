package game

import (
	"errors"
	"time"

	"chessroom/internal/chess"
)

var (
	ErrInvalidPositionFormat = errors.New("invalid position format")
	ErrIllegalMove           = errors.New("illegal move")
	ErrNoHistory             = errors.New("no move to undo")
	ErrRandomSampleExhausted = errors.New("random position sampling exhausted")
	// ErrGameOver is informational: the position is checkmate or stalemate.
	ErrGameOver = errors.New("game over")
	// ErrPositionChanged means another request moved the board while a best
	// move was being searched; nothing was applied.
	ErrPositionChanged = errors.New("position changed during search")
)

// Status is the meta-state of the shared position.
type Status int

const (
	Playable Status = iota
	Terminal
)

func (s Status) String() string {
	if s == Terminal {
		return "terminal"
	}
	return "playable"
}

// State is a consistent view of the board taken under one lock.
type State struct {
	Text       string
	Status     Status
	Outcome    chess.Status
	SideToMove chess.Side
	InCheck    bool
	History    int
	LegalMoves []string
	UpdatedAt  time.Time
}

type MoveInfo struct {
	UCI string
	SAN string
}

type RandomResult struct {
	Text  string
	Plies int
}

type BestMove struct {
	Move     string
	Text     string // position after the move
	CacheHit bool
	Score    int32
	Depth    int16

	// ClientApplied is set by PlayMove: the client's move is on the board
	// even when the reply failed.
	ClientApplied bool
}

// Observer receives manager events; metrics plug in here.
type Observer interface {
	Mutation(op string)
	BestMove(hit bool, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) Mutation(string)              {}
func (nopObserver) BestMove(bool, time.Duration) {}

func statusOf(pos *chess.Position) Status {
	if pos.IsTerminal() {
		return Terminal
	}
	return Playable
}
