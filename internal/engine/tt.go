package engine

import "chessroom/internal/chess"

const childTTCap = 1 << 20

type ttEntry struct {
	Key   uint64
	Depth int
	Score int
	Move  chess.Move
	Bound Bound
}

// storeTT keeps the deeper result for a key. An exact score replaces a
// bound of the same depth.
func storeTT(tt map[uint64]ttEntry, en ttEntry) {
	old, ok := tt[en.Key]
	if !ok || en.Depth > old.Depth || (en.Depth == old.Depth && (en.Bound == Exact || old.Bound != Exact)) {
		tt[en.Key] = en
	}
}

func (s *searcher) storeTT(key uint64, depth, score int, mv chess.Move, b Bound) {
	if len(s.tt) > childTTCap {
		s.tt = make(map[uint64]ttEntry, 1<<14)
	}
	storeTT(s.tt, ttEntry{Key: key, Depth: depth, Score: score, Move: mv, Bound: b})
}
