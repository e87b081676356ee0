package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chessroom/internal/cache"
	"chessroom/internal/config"
	"chessroom/internal/engine"
	"chessroom/internal/metrics"
	"chessroom/internal/server/game"
	httpserver "chessroom/internal/server/http"
)

func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default: // linux / bsd
		cmd = exec.Command("xdg-open", url)
	}

	_ = cmd.Start() // headless machines have no browser
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("chessroom stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	eng := engine.NewEngine(engine.WithTimeLimit(cfg.SearchTimeout))
	c := cache.New(eng, cfg.CacheEntries, cache.WithPolicy(cfg.Policy()))

	met := metrics.New()
	met.RegisterCache(c)

	games := game.NewManager(c,
		game.WithLogger(log.With().Str("component", "game").Logger()),
		game.WithObserver(met),
		game.WithRandomSampling(cfg.RandomSpread, cfg.RandomAttempts),
	)
	h := httpserver.NewHandler(games, c, httpserver.Options{
		Depth:          cfg.Depth,
		RandomMinMoves: cfg.RandomMinMoves,
		BestMoveRate:   cfg.BestMoveRate,
		BestMoveBurst:  cfg.BestMoveBurst,
		Logger:         log.With().Str("component", "http").Logger(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.NewRouter(log, h, cfg.WebDir, met),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	log.Info().
		Str("addr", ln.Addr().String()).
		Str("web", cfg.WebDir).
		Int("depth", cfg.Depth).
		Int("cache_entries", c.Capacity()).
		Str("cache_policy", c.Policy().String()).
		Msg("listening")

	if cfg.Open {
		go func() {
			time.Sleep(100 * time.Millisecond)
			openBrowser("http://" + ln.Addr().String())
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
