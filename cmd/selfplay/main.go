package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"chessroom/internal/cache"
	"chessroom/internal/engine"
	"chessroom/internal/server/game"
)

func main() {
	totalGames := flag.Int("games", 4, "number of games to play")
	depthA := flag.Int("depth-a", 2, "search depth of player A")
	depthB := flag.Int("depth-b", 3, "search depth of player B")
	maxPlies := flag.Int("maxplies", 300, "plies before a game is adjudicated a draw")
	randomMin := flag.Int("random", 0, "start each game from a random position at least this many plies deep")
	entries := flag.Int("cache-entries", cache.DefaultCapacity, "search cache slots")
	timeLimit := flag.Duration("move-time", 5*time.Second, "time limit per search")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := cache.New(engine.NewEngine(engine.WithTimeLimit(*timeLimit)), *entries)
	m := game.NewManager(c)

	playerA := PlayerConfig{Name: fmt.Sprintf("depth %d", *depthA), Depth: *depthA}
	playerB := PlayerConfig{Name: fmt.Sprintf("depth %d", *depthB), Depth: *depthB}

	aWins, bWins, draws := 0, 0, 0
	for g := 0; g < *totalGames && ctx.Err() == nil; g++ {
		white, black := playerA, playerB
		if g%2 == 1 {
			white, black = playerB, playerA
		}

		m.Reset()
		if *randomMin > 0 {
			if _, err := m.SampleRandom(ctx, *randomMin); err != nil {
				log.Fatal().Err(err).Msg("random start position")
			}
		}
		start := m.CurrentText()

		began := time.Now()
		res, plies, err := playGame(ctx, m, white, black, *maxPlies)
		if err != nil {
			log.Error().Err(err).Int("game", g+1).Msg("game aborted")
			continue
		}

		aWhite := g%2 == 0
		switch {
		case res == Draw:
			draws++
		case (res == WhiteWins) == aWhite:
			aWins++
		default:
			bWins++
		}

		st := c.Stats()
		log.Info().
			Int("game", g+1).
			Str("white", white.Name).
			Str("black", black.Name).
			Str("start", start).
			Str("result", res.String()).
			Int("plies", plies).
			Dur("took", time.Since(began)).
			Uint64("cache_hits", st.Hits).
			Uint64("cache_misses", st.Misses).
			Msg("game finished")
	}

	fmt.Printf("\n=== Final Score ===\n")
	fmt.Printf("%s: %d\n", playerA.Name, aWins)
	fmt.Printf("%s: %d\n", playerB.Name, bWins)
	fmt.Printf("Draws: %d\n", draws)
}
