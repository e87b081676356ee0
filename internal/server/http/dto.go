package httpserver

import (
	"time"

	"chessroom/internal/cache"
	"chessroom/internal/server/game"
)

// ClientMove is the body of /game/move and /game/play/move.
type ClientMove struct {
	UCI string `json:"uci"`
}

// ClientFEN is the body of /game/set.
type ClientFEN struct {
	FEN string `json:"fen"`
}

const (
	statusOK       = "ok"
	statusGameOver = "game_over"
)

// BestMoveResponse answers /game/best and /game/play/move. Move is empty
// when the game was already over.
type BestMoveResponse struct {
	Status   string `json:"status"`
	FEN      string `json:"fen"`
	Move     string `json:"move,omitempty"`
	CacheHit bool   `json:"cache_hit"`
	Score    int32  `json:"score"`
	Depth    int16  `json:"depth"`
}

type MoveDTO struct {
	UCI string `json:"uci"`
	SAN string `json:"san"`
}

type StateResponse struct {
	FEN        string    `json:"fen"`
	Status     string    `json:"status"`
	Outcome    string    `json:"outcome"`
	SideToMove string    `json:"side_to_move"`
	InCheck    bool      `json:"in_check"`
	History    int       `json:"history"`
	LegalMoves []string  `json:"legal_moves"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CacheStatsResponse struct {
	cache.Stats
	Policy string `json:"policy"`
}

// ErrorResponse is the body of every non-2xx API answer. FEN and MoveApplied
// are set when /game/play/move applied the client's move but the reply failed.
type ErrorResponse struct {
	Error       string `json:"error"`
	RequestID   string `json:"request_id,omitempty"`
	FEN         string `json:"fen,omitempty"`
	MoveApplied bool   `json:"move_applied,omitempty"`
}

func bestMoveToDTO(b game.BestMove) BestMoveResponse {
	return BestMoveResponse{
		Status:   statusOK,
		FEN:      b.Text,
		Move:     b.Move,
		CacheHit: b.CacheHit,
		Score:    b.Score,
		Depth:    b.Depth,
	}
}

func movesToDTO(ms []game.MoveInfo) []MoveDTO {
	out := make([]MoveDTO, len(ms))
	for i, m := range ms {
		out[i] = MoveDTO{UCI: m.UCI, SAN: m.SAN}
	}
	return out
}

func stateToDTO(s game.State) StateResponse {
	return StateResponse{
		FEN:        s.Text,
		Status:     s.Status.String(),
		Outcome:    s.Outcome.String(),
		SideToMove: s.SideToMove.String(),
		InCheck:    s.InCheck,
		History:    s.History,
		LegalMoves: s.LegalMoves,
		UpdatedAt:  s.UpdatedAt,
	}
}
