package chess

import "github.com/dylhunn/dragontoothmg"

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type Side int8

const (
	White Side = 0
	Black Side = 1
)

func (s Side) String() string {
	if s == White {
		return "white"
	}
	return "black"
}

// Move is a single ply in long algebraic (UCI) form. The zero value means "no move".
type Move struct {
	m dragontoothmg.Move
}

func (m Move) IsZero() bool { return m.m == 0 }

// From returns the origin square, a1 = 0 .. h8 = 63.
func (m Move) From() uint8 {
	mv := m.m
	return mv.From()
}

// To returns the destination square.
func (m Move) To() uint8 {
	mv := m.m
	return mv.To()
}

// IsPromotion reports whether the move promotes a pawn.
func (m Move) IsPromotion() bool {
	mv := m.m
	return mv.Promote() != 0
}

func (m Move) String() string {
	if m.m == 0 {
		return "0000"
	}
	mv := m.m
	return mv.String()
}

// Status classifies a position by its legal continuations.
type Status int

const (
	Ongoing Status = iota
	Checkmate
	Stalemate
)

func (s Status) String() string {
	switch s {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	default:
		return "ongoing"
	}
}
