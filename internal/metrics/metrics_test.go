package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chessroom/internal/cache"
	"chessroom/internal/chess"
	"chessroom/internal/engine"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserverCounters(t *testing.T) {
	m := New()
	m.Mutation("move")
	m.Mutation("move")
	m.Mutation("undo")
	m.BestMove(true, time.Millisecond)
	m.BestMove(false, 20*time.Millisecond)
	m.ObserveRequest("best", 202, 5*time.Millisecond)

	out := scrape(t, m)
	assert.Contains(t, out, `chessroom_position_mutations_total{op="move"} 2`)
	assert.Contains(t, out, `chessroom_position_mutations_total{op="undo"} 1`)
	assert.Contains(t, out, `chessroom_search_duration_seconds_count{cache="hit"} 1`)
	assert.Contains(t, out, `chessroom_search_duration_seconds_count{cache="miss"} 1`)
	assert.Contains(t, out, `chessroom_http_requests_total{code="202",route="best"} 1`)
	assert.Contains(t, out, `chessroom_http_request_duration_seconds_count{route="best"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestCacheCollectors(t *testing.T) {
	m := New()
	c := cache.New(engine.NewEngine(), 16)
	m.RegisterCache(c)

	_, err := c.GetOrCompute(context.Background(), chess.StartPosition(), 1)
	require.NoError(t, err)
	_, err = c.GetOrCompute(context.Background(), chess.StartPosition(), 1)
	require.NoError(t, err)

	out := scrape(t, m)
	assert.Contains(t, out, "chessroom_cache_capacity 16")
	assert.Contains(t, out, "chessroom_cache_entries 1")
	assert.Contains(t, out, "chessroom_cache_hits_total 1")
	assert.Contains(t, out, "chessroom_cache_misses_total 1")
	assert.Contains(t, out, "chessroom_cache_stores_total 1")
}
