// Package config parses the chessroom command line.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chessroom/internal/cache"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Addr   string
	WebDir string
	Open   bool

	Depth         int
	SearchTimeout time.Duration
	CacheEntries  int
	CachePolicy   string

	RandomMinMoves int
	RandomSpread   int
	RandomAttempts int

	BestMoveRate  float64 // requests per second; 0 disables the limiter
	BestMoveBurst int

	LogLevel  string
	LogFormat string
}

// Default mirrors the flag defaults.
func Default() Config {
	return Config{
		Addr:           "127.0.0.1:8080",
		WebDir:         "./public",
		Depth:          5,
		SearchTimeout:  10 * time.Second,
		CacheEntries:   cache.DefaultCapacity,
		CachePolicy:    "depth",
		RandomMinMoves: 15,
		RandomSpread:   10,
		RandomAttempts: 64,
		BestMoveRate:   4,
		BestMoveBurst:  8,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load parses args (without the program name) on top of Default.
func Load(args []string) (Config, error) {
	c := Default()
	fs := flag.NewFlagSet("chessroom", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.StringVar(&c.WebDir, "web", c.WebDir, "directory with index.html and assets")
	fs.BoolVar(&c.Open, "open", c.Open, "open the default browser once listening")
	fs.IntVar(&c.Depth, "depth", c.Depth, "best-move search depth in plies")
	fs.DurationVar(&c.SearchTimeout, "search-timeout", c.SearchTimeout, "upper bound for one search, 0 for none")
	fs.IntVar(&c.CacheEntries, "cache-entries", c.CacheEntries, "number of search cache slots")
	fs.StringVar(&c.CachePolicy, "cache-policy", c.CachePolicy, "cache replacement policy: depth or always")
	fs.IntVar(&c.RandomMinMoves, "random-min-moves", c.RandomMinMoves, "minimum plies for /game/rand")
	fs.IntVar(&c.RandomSpread, "random-spread", c.RandomSpread, "extra plies a random walk may take")
	fs.IntVar(&c.RandomAttempts, "random-attempts", c.RandomAttempts, "random walks tried before giving up")
	fs.Float64Var(&c.BestMoveRate, "best-move-rate", c.BestMoveRate, "best-move requests per second, 0 for unlimited")
	fs.IntVar(&c.BestMoveBurst, "best-move-burst", c.BestMoveBurst, "best-move request burst")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "trace, debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "json or console")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("%w: unexpected arguments %q", ErrInvalidConfig, fs.Args())
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	if c.Depth < 1 || c.Depth > 12 {
		errs = append(errs, fmt.Errorf("depth %d out of range [1, 12]", c.Depth))
	}
	if c.SearchTimeout < 0 {
		errs = append(errs, errors.New("search-timeout is negative"))
	}
	if c.CacheEntries < 1 {
		errs = append(errs, fmt.Errorf("cache-entries %d must be positive", c.CacheEntries))
	}
	if _, err := cache.ParsePolicy(c.CachePolicy); err != nil {
		errs = append(errs, err)
	}
	if c.RandomMinMoves < 0 || c.RandomSpread < 0 {
		errs = append(errs, errors.New("random-min-moves and random-spread must not be negative"))
	}
	if c.RandomAttempts < 1 {
		errs = append(errs, fmt.Errorf("random-attempts %d must be positive", c.RandomAttempts))
	}
	if c.BestMoveRate < 0 {
		errs = append(errs, errors.New("best-move-rate is negative"))
	}
	if c.BestMoveRate > 0 && c.BestMoveBurst < 1 {
		errs = append(errs, errors.New("best-move-burst must be positive when rate limiting"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log-format %q is not json or console", c.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Policy returns the parsed cache policy. Validate must have passed.
func (c Config) Policy() cache.Policy {
	p, _ := cache.ParsePolicy(c.CachePolicy)
	return p
}

// Logger builds the process logger writing to w, or stderr when w is nil.
func (c Config) Logger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if c.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
