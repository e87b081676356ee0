package chess

import (
	"github.com/dylhunn/dragontoothmg"
)

// Position is a full game state. It is a plain value: copying a Position
// yields an independent board, so snapshots need no extra cloning.
//
// The zero value is not a valid position; use StartPosition or ParsePosition.
type Position struct {
	board dragontoothmg.Board
}

func StartPosition() Position {
	return Position{board: dragontoothmg.ParseFen(StartFEN)}
}

// Text serializes the position as FEN.
func (p *Position) Text() string {
	return p.board.ToFen()
}

// Hash returns the Zobrist key of the position.
func (p *Position) Hash() uint64 {
	return p.board.Hash()
}

func (p *Position) SideToMove() Side {
	if p.board.Wtomove {
		return White
	}
	return Black
}

func (p *Position) FullmoveNumber() int {
	return int(p.board.Fullmoveno)
}

func (p *Position) HalfmoveClock() int {
	return int(p.board.Halfmoveclock)
}

// LegalMoves returns the legal moves in generator order. A new slice is
// returned on every call.
func (p *Position) LegalMoves() []Move {
	b := p.board
	raw := b.GenerateLegalMoves()
	out := make([]Move, len(raw))
	for i, m := range raw {
		out[i] = Move{m: m}
	}
	return out
}

// HasLegalMoves reports whether the side to move can move at all.
func (p *Position) HasLegalMoves() bool {
	b := p.board
	return len(b.GenerateLegalMoves()) > 0
}

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool {
	b := p.board
	return b.OurKingInCheck()
}

func (p *Position) Status() Status {
	if p.HasLegalMoves() {
		return Ongoing
	}
	if p.InCheck() {
		return Checkmate
	}
	return Stalemate
}

func (p *Position) IsCheckmate() bool { return p.Status() == Checkmate }

// IsTerminal reports checkmate or stalemate.
func (p *Position) IsTerminal() bool { return !p.HasLegalMoves() }

// IsCapture reports whether m takes a piece, en passant included.
func (p *Position) IsCapture(m Move) bool {
	return dragontoothmg.IsCapture(m.m, &p.board)
}

// Apply plays m in place. m must be legal in p; use FindMove to validate
// client input first.
func (p *Position) Apply(m Move) {
	p.board.Apply(m.m)
}

// IsLegal reports whether m is among the legal moves of p.
func (p *Position) IsLegal(m Move) bool {
	if m.IsZero() {
		return false
	}
	for _, lm := range p.LegalMoves() {
		if lm.m == m.m {
			return true
		}
	}
	return false
}

// FindMove parses moveText and returns the matching legal move.
func (p *Position) FindMove(moveText string) (Move, error) {
	want, err := ParseMove(moveText)
	if err != nil {
		return Move{}, err
	}
	s := want.String()
	for _, lm := range p.LegalMoves() {
		if lm.String() == s {
			return lm, nil
		}
	}
	return Move{}, ErrIllegalMove
}

// PieceAt returns the piece type on sq (0..63, a1 = 0) and whether it is white.
func (p *Position) PieceAt(sq uint8) (dragontoothmg.Piece, Side, bool) {
	if pt, ok := pieceOn(sq, &p.board.White); ok {
		return pt, White, true
	}
	if pt, ok := pieceOn(sq, &p.board.Black); ok {
		return pt, Black, true
	}
	return 0, White, false
}

// Bitboards exposes the piece sets of one side for evaluation.
func (p *Position) Bitboards(s Side) dragontoothmg.Bitboards {
	if s == White {
		return p.board.White
	}
	return p.board.Black
}

func pieceOn(sq uint8, bb *dragontoothmg.Bitboards) (dragontoothmg.Piece, bool) {
	mask := uint64(1) << sq
	switch {
	case bb.Pawns&mask != 0:
		return dragontoothmg.Pawn, true
	case bb.Knights&mask != 0:
		return dragontoothmg.Knight, true
	case bb.Bishops&mask != 0:
		return dragontoothmg.Bishop, true
	case bb.Rooks&mask != 0:
		return dragontoothmg.Rook, true
	case bb.Queens&mask != 0:
		return dragontoothmg.Queen, true
	case bb.Kings&mask != 0:
		return dragontoothmg.King, true
	}
	return 0, false
}
