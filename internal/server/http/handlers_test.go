package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chessroom/internal/cache"
	"chessroom/internal/chess"
	"chessroom/internal/engine"
	"chessroom/internal/metrics"
	"chessroom/internal/server/game"
)

const foolsMateFEN = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"

type testServer struct {
	router  http.Handler
	games   *game.Manager
	cache   *cache.Cache
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	c := cache.New(engine.NewEngine(), 1024)
	met := metrics.New()
	met.RegisterCache(c)
	m := game.NewManager(c, game.WithObserver(met))
	if opts.Depth == 0 {
		opts.Depth = 2
	}
	opts.Logger = zerolog.Nop()
	h := NewHandler(m, c, opts)
	return &testServer{
		router:  NewRouter(zerolog.Nop(), h, t.TempDir(), met),
		games:   m,
		cache:   c,
		metrics: met,
	}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRoutesTable(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := s.do(http.MethodGet, "/routes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	routes := decode[[]Route](t, rec)
	require.Len(t, routes, len(apiRoutes()))
	assert.Equal(t, Route{Name: "reset", ResponseType: "text", Method: "GET", Path: "/game/restart"}, routes[0])

	names := make(map[string]bool)
	for _, rt := range routes {
		names[rt.Name] = true
	}
	for _, n := range []string{"position", "set", "random", "previous", "uci", "uci_play", "moves", "routes"} {
		assert.True(t, names[n], n)
	}
}

func TestMoveUndoFlow(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(http.MethodGet, "/game/pos", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, chess.StartFEN, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))

	rec = s.do(http.MethodPost, "/game/move", `{"uci":"e2e4"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	fen := decode[string](t, rec)
	assert.Contains(t, fen, " b ")
	assert.Equal(t, fen, s.games.CurrentText())

	rec = s.do(http.MethodGet, "/game/prev", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, chess.StartFEN, decode[string](t, rec))

	rec = s.do(http.MethodGet, "/game/prev", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, chess.StartFEN, s.games.CurrentText())
}

func TestRejectedRequestsLeavePosition(t *testing.T) {
	s := newTestServer(t, Options{})

	cases := []struct {
		name, method, target, body string
		code                       int
	}{
		{"illegal move", http.MethodPost, "/game/move", `{"uci":"e2e5"}`, http.StatusBadRequest},
		{"garbage move", http.MethodPost, "/game/move", `{"uci":"zz"}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/game/move", `{"uci":`, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/game/move", "", http.StatusBadRequest},
		{"bad fen", http.MethodPut, "/game/set", `{"fen":"not a fen"}`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/game/move", "", http.StatusMethodNotAllowed},
		{"bad depth", http.MethodPost, "/game/best?depth=99", "", http.StatusBadRequest},
		{"bad min", http.MethodGet, "/game/rand?min=x", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(tc.method, tc.target, tc.body)
			assert.Equal(t, tc.code, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, rec.Header().Get(requestIDHeader), resp.RequestID)
			assert.Equal(t, chess.StartFEN, s.games.CurrentText())
		})
	}
}

func TestSetAndReset(t *testing.T) {
	s := newTestServer(t, Options{})
	fen := "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"

	rec := s.do(http.MethodPut, "/game/set", `{"fen":"`+fen+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fen, rec.Body.String())

	rec = s.do(http.MethodGet, "/game/restart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, chess.StartFEN, rec.Body.String())
}

func TestLegalMoves(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(http.MethodGet, "/game/moves", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]string](t, rec), 20)

	rec = s.do(http.MethodGet, "/game/moves?detail=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detailed := decode[[]MoveDTO](t, rec)
	require.Len(t, detailed, 20)
	assert.Contains(t, detailed, MoveDTO{UCI: "g1f3", SAN: "Nf3"})

	_, err := s.games.SetFromText(foolsMateFEN)
	require.NoError(t, err)
	rec = s.do(http.MethodGet, "/game/moves", "")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestBestMoveAndCacheStats(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(http.MethodPost, "/game/best", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	first := decode[BestMoveResponse](t, rec)
	assert.Equal(t, statusOK, first.Status)
	assert.False(t, first.CacheHit)
	assert.NotEmpty(t, first.Move)
	assert.Equal(t, first.FEN, s.games.CurrentText())

	s.do(http.MethodGet, "/game/prev", "")
	rec = s.do(http.MethodPost, "/game/best", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	second := decode[BestMoveResponse](t, rec)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Move, second.Move)

	rec = s.do(http.MethodGet, "/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[CacheStatsResponse](t, rec)
	assert.Equal(t, 1024, stats.Capacity)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, "depth", stats.Policy)
}

func TestBestMoveGameOver(t *testing.T) {
	s := newTestServer(t, Options{})
	_, err := s.games.SetFromText(foolsMateFEN)
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/game/best", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[BestMoveResponse](t, rec)
	assert.Equal(t, statusGameOver, resp.Status)
	assert.Empty(t, resp.Move)
	assert.Equal(t, foolsMateFEN, resp.FEN)
	assert.Equal(t, foolsMateFEN, s.games.CurrentText())
}

func TestPlayMove(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(http.MethodPost, "/game/play/move", `{"uci":"e2e4"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[BestMoveResponse](t, rec)
	assert.Equal(t, statusOK, resp.Status)
	assert.Contains(t, resp.FEN, " w ")

	_, err := s.games.SetFromText("6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1")
	require.NoError(t, err)
	rec = s.do(http.MethodPost, "/game/play/move", `{"uci":"a1a8"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[BestMoveResponse](t, rec)
	assert.Equal(t, statusGameOver, resp.Status)
	assert.Equal(t, s.games.CurrentText(), resp.FEN)
}

func TestPlayMoveReplyFailureReportsAppliedMove(t *testing.T) {
	s := newTestServer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/game/play/move", strings.NewReader(`{"uci":"e2e4"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.True(t, resp.MoveApplied)
	assert.Equal(t, s.games.CurrentText(), resp.FEN)
	assert.Contains(t, resp.FEN, " b ")
	assert.Equal(t, 1, s.games.Snapshot().History)

	rec = s.do(http.MethodPost, "/game/play/move", `{"uci":"a2a5"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	bad := decode[ErrorResponse](t, rec)
	assert.False(t, bad.MoveApplied)
	assert.Empty(t, bad.FEN)
}

func TestCancelledBestMoveLeavesPosition(t *testing.T) {
	s := newTestServer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/game/best", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, chess.StartFEN, s.games.CurrentText())
}

func TestBestMoveRateLimited(t *testing.T) {
	s := newTestServer(t, Options{BestMoveRate: 0.001, BestMoveBurst: 1})

	rec := s.do(http.MethodPost, "/game/best", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	before := s.games.CurrentText()
	rec = s.do(http.MethodPost, "/game/best", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, before, s.games.CurrentText())

	rec = s.do(http.MethodPost, "/game/play/move", `{"uci":"a7a6"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, before, s.games.CurrentText())
}

func TestRandomPosition(t *testing.T) {
	s := newTestServer(t, Options{RandomMinMoves: 15})

	rec := s.do(http.MethodGet, "/game/rand", "")
	require.Equal(t, http.StatusOK, rec.Code)
	plies, err := strconv.Atoi(rec.Header().Get("X-Random-Plies"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, plies, 15)
	assert.Equal(t, s.games.CurrentText(), rec.Body.String())

	rec = s.do(http.MethodGet, "/game/rand?min=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	plies, err = strconv.Atoi(rec.Header().Get("X-Random-Plies"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, plies, 2)
}

func TestStateEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})
	_, err := s.games.ApplyMove("e2e4")
	require.NoError(t, err)

	rec := s.do(http.MethodGet, "/game/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StateResponse](t, rec)
	assert.Equal(t, s.games.CurrentText(), st.FEN)
	assert.Equal(t, "playable", st.Status)
	assert.Equal(t, "ongoing", st.Outcome)
	assert.Equal(t, "black", st.SideToMove)
	assert.Equal(t, 1, st.History)
	assert.Len(t, st.LegalMoves, 20)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodOptions, "/game/set", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "client-42")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "client-42", rec.Header().Get(requestIDHeader))

	rec = s.do(http.MethodGet, "/healthz", "")
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})
	s.do(http.MethodPost, "/game/move", `{"uci":"e2e4"}`)
	s.do(http.MethodPost, "/game/move", `{"uci":"e2e4"}`)

	rec := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `chessroom_http_requests_total{code="202",route="uci"} 1`)
	assert.Contains(t, body, `chessroom_http_requests_total{code="400",route="uci"} 1`)
	assert.Contains(t, body, `chessroom_position_mutations_total{op="move"} 1`)
	assert.Contains(t, body, "chessroom_cache_capacity 1024")
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	mux := http.NewServeMux()
	RegisterStaticRoutes(mux, dir)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/routes")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>board</h1>"), 0o644))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>board</h1>")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecoverWritesJSON500(t *testing.T) {
	h := RequestID(Recover(zerolog.Nop(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "internal error", resp.Error)
	assert.Equal(t, rec.Header().Get(requestIDHeader), resp.RequestID)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(game.ErrIllegalMove))
	assert.Equal(t, http.StatusBadRequest, statusFor(game.ErrInvalidPositionFormat))
	assert.Equal(t, http.StatusConflict, statusFor(game.ErrNoHistory))
	assert.Equal(t, http.StatusConflict, statusFor(game.ErrPositionChanged))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(game.ErrRandomSampleExhausted))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(errRateLimited))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
