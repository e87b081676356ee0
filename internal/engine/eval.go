package engine

import (
	"math/bits"

	"github.com/dylhunn/dragontoothmg"

	"chessroom/internal/chess"
)

const (
	pawnValue   = 100
	knightValue = 320
	bishopValue = 330
	rookValue   = 500
	queenValue  = 900

	tempoBonus = 10

	// non-pawn material per side below which kings switch to the endgame table
	endgameMaterial = rookValue + bishopValue + knightValue
)

var pieceValue = [7]int{
	dragontoothmg.Pawn:   pawnValue,
	dragontoothmg.Knight: knightValue,
	dragontoothmg.Bishop: bishopValue,
	dragontoothmg.Rook:   rookValue,
	dragontoothmg.Queen:  queenValue,
	dragontoothmg.King:   0,
}

// Piece-square tables, white's view, a8 first.
var pawnTable = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	50, 50, 50, 50, 50, 50, 50, 50,
	10, 10, 20, 30, 30, 20, 10, 10,
	5, 5, 10, 25, 25, 10, 5, 5,
	0, 0, 0, 20, 20, 0, 0, 0,
	5, -5, -10, 0, 0, -10, -5, 5,
	5, 10, 10, -20, -20, 10, 10, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var knightTable = [64]int{
	-50, -40, -30, -30, -30, -30, -40, -50,
	-40, -20, 0, 0, 0, 0, -20, -40,
	-30, 0, 10, 15, 15, 10, 0, -30,
	-30, 5, 15, 20, 20, 15, 5, -30,
	-30, 0, 15, 20, 20, 15, 0, -30,
	-30, 5, 10, 15, 15, 10, 5, -30,
	-40, -20, 0, 5, 5, 0, -20, -40,
	-50, -40, -30, -30, -30, -30, -40, -50,
}

var bishopTable = [64]int{
	-20, -10, -10, -10, -10, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 10, 10, 5, 0, -10,
	-10, 5, 5, 10, 10, 5, 5, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 10, 10, 10, 10, 10, 10, -10,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-20, -10, -10, -10, -10, -10, -10, -20,
}

var rookTable = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	5, 10, 10, 10, 10, 10, 10, 5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	0, 0, 0, 5, 5, 0, 0, 0,
}

var queenTable = [64]int{
	-20, -10, -10, -5, -5, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 5, 5, 5, 0, -10,
	-5, 0, 5, 5, 5, 5, 0, -5,
	0, 0, 5, 5, 5, 5, 0, -5,
	-10, 5, 5, 5, 5, 5, 0, -10,
	-10, 0, 5, 0, 0, 0, 0, -10,
	-20, -10, -10, -5, -5, -10, -10, -20,
}

var kingMidgameTable = [64]int{
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-20, -30, -30, -40, -40, -30, -30, -20,
	-10, -20, -20, -20, -20, -20, -20, -10,
	20, 20, 0, 0, 0, 0, 20, 20,
	20, 30, 10, 0, 0, 10, 30, 20,
}

var kingEndgameTable = [64]int{
	-50, -40, -30, -20, -20, -30, -40, -50,
	-30, -20, -10, 0, 0, -10, -20, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -30, 0, 0, 0, 0, -30, -30,
	-50, -30, -30, -30, -30, -30, -30, -50,
}

// Evaluate scores pos from white's point of view: positive is good for white.
func Evaluate(pos *chess.Position) int {
	white := pos.Bitboards(chess.White)
	black := pos.Bitboards(chess.Black)
	endgame := nonPawnMaterial(&white) <= endgameMaterial && nonPawnMaterial(&black) <= endgameMaterial

	score := sideScore(&white, chess.White, endgame) - sideScore(&black, chess.Black, endgame)
	if pos.SideToMove() == chess.White {
		score += tempoBonus
	} else {
		score -= tempoBonus
	}
	return score
}

// evalFor is Evaluate seen from the side to move, as negamax wants it.
func evalFor(pos *chess.Position) int {
	s := Evaluate(pos)
	if pos.SideToMove() == chess.Black {
		return -s
	}
	return s
}

func nonPawnMaterial(bb *dragontoothmg.Bitboards) int {
	return bits.OnesCount64(bb.Knights)*knightValue +
		bits.OnesCount64(bb.Bishops)*bishopValue +
		bits.OnesCount64(bb.Rooks)*rookValue +
		bits.OnesCount64(bb.Queens)*queenValue
}

func sideScore(bb *dragontoothmg.Bitboards, side chess.Side, endgame bool) int {
	kingTable := &kingMidgameTable
	if endgame {
		kingTable = &kingEndgameTable
	}
	return setScore(bb.Pawns, pawnValue, &pawnTable, side) +
		setScore(bb.Knights, knightValue, &knightTable, side) +
		setScore(bb.Bishops, bishopValue, &bishopTable, side) +
		setScore(bb.Rooks, rookValue, &rookTable, side) +
		setScore(bb.Queens, queenValue, &queenTable, side) +
		setScore(bb.Kings, 0, kingTable, side)
}

func setScore(set uint64, value int, table *[64]int, side chess.Side) int {
	score := 0
	for set != 0 {
		sq := bits.TrailingZeros64(set)
		set &= set - 1
		score += value + table[tableIndex(sq, side)]
	}
	return score
}

// tableIndex maps a board square (a1 = 0) onto the a8-first tables.
func tableIndex(sq int, side chess.Side) int {
	if side == chess.White {
		return (7-sq/8)*8 + sq%8
	}
	return sq
}
