package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chessroom/internal/cache"
	"chessroom/internal/server/game"
)

const (
	maxBodyBytes = 1 << 14
	maxDepth     = 12
)

var (
	errBadRequest  = errors.New("bad request")
	errRateLimited = errors.New("too many best-move requests")
)

type Options struct {
	Depth          int // default search depth for /game/best and /game/play/move
	RandomMinMoves int
	BestMoveRate   float64 // per second; 0 means unlimited
	BestMoveBurst  int
	Logger         zerolog.Logger
}

// Handler serves the /game, /cache and /routes API on top of one Manager.
type Handler struct {
	games   *game.Manager
	cache   *cache.Cache
	log     zerolog.Logger
	limiter *rate.Limiter

	depth     int
	randomMin int

	routes []Route
	byPath map[string]Route
}

func NewHandler(m *game.Manager, c *cache.Cache, opts Options) *Handler {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.BestMoveRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.BestMoveRate), max(opts.BestMoveBurst, 1))
	}
	depth := opts.Depth
	if depth <= 0 {
		depth = 5
	}
	h := &Handler{
		games:     m,
		cache:     c,
		log:       opts.Logger,
		limiter:   limiter,
		depth:     min(depth, maxDepth),
		randomMin: max(opts.RandomMinMoves, 0),
		routes:    apiRoutes(),
	}
	h.byPath = make(map[string]Route, len(h.routes))
	for _, rt := range h.routes {
		h.byPath[rt.Path] = rt
	}
	return h
}

// Routes returns the API route table in registration order.
func (h *Handler) Routes() []Route {
	return append([]Route(nil), h.routes...)
}

// RouteName labels path for metrics; unknown paths are "static".
func (h *Handler) RouteName(path string) string {
	if rt, ok := h.byPath[path]; ok {
		return rt.Name
	}
	if path == "/metrics" {
		return "metrics"
	}
	return "static"
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.byPath[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method != rt.Method {
		w.Header().Set("Allow", rt.Method)
		h.writeError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	switch rt.Name {
	case "reset":
		writeText(w, http.StatusOK, h.games.Reset())

	case "position":
		w.Header().Set("Last-Modified", h.games.UpdatedAt().UTC().Format(http.TimeFormat))
		writeText(w, http.StatusOK, h.games.CurrentText())

	case "state":
		writeJSON(w, stateToDTO(h.games.Snapshot()))

	case "set":
		h.handleSet(w, r)

	case "random":
		h.handleRandom(w, r)

	case "previous":
		fen, err := h.games.Undo()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSONStatus(w, http.StatusAccepted, fen)

	case "uci":
		h.handleMove(w, r)

	case "uci_play":
		h.handlePlay(w, r)

	case "best":
		h.handleBest(w, r)

	case "moves":
		if r.URL.Query().Get("detail") == "1" {
			writeJSON(w, movesToDTO(h.games.LegalMovesDetailed()))
			return
		}
		writeJSON(w, h.games.LegalMoves())

	case "cache":
		writeJSON(w, CacheStatsResponse{Stats: h.cache.Stats(), Policy: h.cache.Policy().String()})

	case "routes":
		writeJSON(w, h.routes)

	case "healthz":
		writeText(w, http.StatusOK, "ok")

	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleSet(w http.ResponseWriter, r *http.Request) {
	var req ClientFEN
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	fen, err := h.games.SetFromText(req.FEN)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeText(w, http.StatusOK, fen)
}

func (h *Handler) handleRandom(w http.ResponseWriter, r *http.Request) {
	minMoves := h.randomMin
	if v := r.URL.Query().Get("min"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 500 {
			h.fail(w, r, fmt.Errorf("%w: min=%q", errBadRequest, v))
			return
		}
		minMoves = n
	}
	res, err := h.games.SampleRandom(r.Context(), minMoves)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("X-Random-Plies", strconv.Itoa(res.Plies))
	writeText(w, http.StatusOK, res.Text)
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request) {
	var req ClientMove
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	fen, err := h.games.ApplyMove(req.UCI)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, fen)
}

func (h *Handler) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req ClientMove
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	depth, err := h.depthParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.limiter.Allow() {
		h.fail(w, r, errRateLimited)
		return
	}
	res, err := h.games.PlayMove(r.Context(), req.UCI, depth)
	h.writeBestMove(w, r, res, err)
}

func (h *Handler) handleBest(w http.ResponseWriter, r *http.Request) {
	depth, err := h.depthParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.limiter.Allow() {
		h.fail(w, r, errRateLimited)
		return
	}
	res, err := h.games.RequestBestMove(r.Context(), depth)
	h.writeBestMove(w, r, res, err)
}

func (h *Handler) writeBestMove(w http.ResponseWriter, r *http.Request, res game.BestMove, err error) {
	switch {
	case errors.Is(err, game.ErrGameOver):
		fen := res.Text
		if fen == "" {
			fen = h.games.CurrentText()
		}
		writeJSON(w, BestMoveResponse{Status: statusGameOver, FEN: fen})
	case err != nil && res.ClientApplied:
		// the client's move stays on the board; say so alongside the error
		h.failWith(w, r, err, ErrorResponse{FEN: res.Text, MoveApplied: true})
	case err != nil:
		h.fail(w, r, err)
	default:
		writeJSONStatus(w, http.StatusAccepted, bestMoveToDTO(res))
	}
}

func (h *Handler) depthParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("depth")
	if v == "" {
		return h.depth, nil
	}
	d, err := strconv.Atoi(v)
	if err != nil || d < 1 || d > maxDepth {
		return 0, fmt.Errorf("%w: depth must be 1..%d", errBadRequest, maxDepth)
	}
	return d, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: bad json: %w", errBadRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, game.ErrInvalidPositionFormat),
		errors.Is(err, game.ErrIllegalMove):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrNoHistory), errors.Is(err, game.ErrPositionChanged):
		return http.StatusConflict
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, game.ErrRandomSampleExhausted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.failWith(w, r, err, ErrorResponse{})
}

// failWith is fail with extra fields in the error body.
func (h *Handler) failWith(w http.ResponseWriter, r *http.Request, err error, body ErrorResponse) {
	code := statusFor(err)
	if code == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	h.writeErrorBody(w, r, code, err, body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	h.writeErrorBody(w, r, code, err, ErrorResponse{})
}

func (h *Handler) writeErrorBody(w http.ResponseWriter, r *http.Request, code int, err error, body ErrorResponse) {
	rid := GetRequestID(r.Context())
	if code >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("rid", rid).Str("path", r.URL.Path).Msg("request failed")
	} else {
		h.log.Debug().Err(err).Str("rid", rid).Int("status", code).Msg("request rejected")
	}
	body.Error = err.Error()
	body.RequestID = rid
	writeJSONStatus(w, code, body)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, code int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, s)
}
