package main

import (
	"context"
	"errors"
	"fmt"

	"chessroom/internal/chess"
	"chessroom/internal/server/game"
)

type PlayerConfig struct {
	Name  string
	Depth int
}

type Result int

const (
	Draw Result = iota
	WhiteWins
	BlackWins
)

func (r Result) String() string {
	switch r {
	case WhiteWins:
		return "1-0"
	case BlackWins:
		return "0-1"
	}
	return "1/2-1/2"
}

// playGame lets white and black take turns on m until the game ends, the
// fifty-move rule applies or maxPlies is reached.
func playGame(ctx context.Context, m *game.Manager, white, black PlayerConfig, maxPlies int) (Result, int, error) {
	for ply := 0; ply < maxPlies; ply++ {
		pos, err := chess.ParsePosition(m.CurrentText())
		if err != nil {
			return Draw, ply, err
		}
		if pos.HalfmoveClock() >= 100 {
			return Draw, ply, nil
		}

		player := white
		if pos.SideToMove() == chess.Black {
			player = black
		}
		_, err = m.RequestBestMove(ctx, player.Depth)
		if errors.Is(err, game.ErrGameOver) {
			return outcome(pos), ply, nil
		}
		if err != nil {
			return Draw, ply, fmt.Errorf("ply %d (%s): %w", ply+1, player.Name, err)
		}
	}
	return Draw, maxPlies, nil
}

// outcome scores a terminal position; the side to move is the one mated.
func outcome(pos chess.Position) Result {
	if !pos.IsCheckmate() {
		return Draw
	}
	if pos.SideToMove() == chess.White {
		return BlackWins
	}
	return WhiteWins
}
