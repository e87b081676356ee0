package httpserver

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
)

// Route describes one API endpoint; /routes serves the table so clients can
// discover paths and how to read the response.
type Route struct {
	Name         string `json:"name"`
	ResponseType string `json:"response_type"`
	Method       string `json:"method"`
	Path         string `json:"path"`
}

func apiRoutes() []Route {
	return []Route{
		{"reset", "text", http.MethodGet, "/game/restart"},
		{"position", "text", http.MethodGet, "/game/pos"},
		{"state", "json", http.MethodGet, "/game/state"},
		{"set", "text", http.MethodPut, "/game/set"},
		{"random", "text", http.MethodGet, "/game/rand"},
		{"previous", "json", http.MethodGet, "/game/prev"},
		{"uci", "json", http.MethodPost, "/game/move"},
		{"uci_play", "json", http.MethodPost, "/game/play/move"},
		{"best", "json", http.MethodPost, "/game/best"},
		{"moves", "json", http.MethodGet, "/game/moves"},
		{"cache", "json", http.MethodGet, "/cache/stats"},
		{"routes", "json", http.MethodGet, "/routes"},
		{"healthz", "text", http.MethodGet, "/healthz"},
	}
}

// MetricsSource is what the router needs from the metrics package.
type MetricsSource interface {
	RequestObserver
	Handler() http.Handler
}

// NewRouter mounts the API, /metrics and the static web directory behind
// the middleware chain. m may be nil.
func NewRouter(log zerolog.Logger, h *Handler, webDir string, m MetricsSource) http.Handler {
	mux := http.NewServeMux()
	for _, rt := range h.routes {
		mux.Handle(rt.Path, h)
	}
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	RegisterStaticRoutes(mux, webDir)

	var handler http.Handler = mux
	if m != nil {
		handler = Instrument(m, h.RouteName, handler)
	}
	handler = Recover(log, handler)
	handler = AccessLog(log, handler)
	handler = RequestID(handler)
	handler = CORS(handler)
	return gzhttp.GzipHandler(handler)
}
