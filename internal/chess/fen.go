package chess

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/dylhunn/dragontoothmg"
	chesslib "github.com/notnil/chess"
)

var (
	ErrInvalidFEN  = errors.New("invalid FEN")
	ErrInvalidMove = errors.New("invalid move text")
	ErrIllegalMove = errors.New("illegal move")
)

const (
	rank1 = uint64(0x00000000000000FF)
	rank8 = uint64(0xFF00000000000000)
)

// ParsePosition decodes a six-field FEN string. Besides syntax it rejects
// boards the move generator cannot work with: a missing or extra king,
// pawns on the back ranks, or the side not to move standing in check.
func ParsePosition(text string) (pos Position, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Position{}, fmt.Errorf("%w: empty", ErrInvalidFEN)
	}
	if _, err := chesslib.FEN(text); err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	if err := checkCounters(strings.Fields(text)); err != nil {
		return Position{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			pos = Position{}
			err = fmt.Errorf("%w: %v", ErrInvalidFEN, r)
		}
	}()
	b := dragontoothmg.ParseFen(text)

	if bits.OnesCount64(b.White.Kings) != 1 || bits.OnesCount64(b.Black.Kings) != 1 {
		return Position{}, fmt.Errorf("%w: each side needs exactly one king", ErrInvalidFEN)
	}
	if (b.White.Pawns|b.Black.Pawns)&(rank1|rank8) != 0 {
		return Position{}, fmt.Errorf("%w: pawn on back rank", ErrInvalidFEN)
	}
	other := b
	other.Wtomove = !other.Wtomove
	if other.OurKingInCheck() {
		return Position{}, fmt.Errorf("%w: side not to move is in check", ErrInvalidFEN)
	}
	return Position{board: b}, nil
}

// checkCounters rejects move counters the board cannot hold: the halfmove
// clock is stored in 8 bits and the fullmove number in 16.
func checkCounters(fields []string) error {
	if len(fields) != 6 {
		return fmt.Errorf("%w: want 6 fields, got %d", ErrInvalidFEN, len(fields))
	}
	half, err := strconv.Atoi(fields[4])
	if err != nil || half < 0 || half > math.MaxUint8 {
		return fmt.Errorf("%w: halfmove clock %q out of range 0..%d", ErrInvalidFEN, fields[4], math.MaxUint8)
	}
	full, err := strconv.Atoi(fields[5])
	if err != nil || full < 0 || full > math.MaxUint16 {
		return fmt.Errorf("%w: fullmove number %q out of range 0..%d", ErrInvalidFEN, fields[5], math.MaxUint16)
	}
	return nil
}

// ParseMove decodes UCI move text such as "e2e4" or "e7e8q". It does not
// check legality.
func ParseMove(text string) (Move, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if len(text) < 4 || len(text) > 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrInvalidMove, text)
	}
	m, err := dragontoothmg.ParseMove(text)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %q: %v", ErrInvalidMove, text, err)
	}
	return Move{m: m}, nil
}

// SAN renders each move in standard algebraic notation. Moves that are not
// legal in p are rendered as their UCI text.
func (p *Position) SAN(moves []Move) []string {
	out := make([]string, len(moves))
	opt, err := chesslib.FEN(p.Text())
	if err != nil {
		for i, m := range moves {
			out[i] = m.String()
		}
		return out
	}
	game := chesslib.NewGame(opt)
	lp := game.Position()
	valid := make(map[string]*chesslib.Move)
	for _, vm := range lp.ValidMoves() {
		valid[vm.String()] = vm
	}
	var notation chesslib.AlgebraicNotation
	for i, m := range moves {
		s := m.String()
		if vm, ok := valid[s]; ok {
			out[i] = notation.Encode(lp, vm)
		} else {
			out[i] = s
		}
	}
	return out
}
