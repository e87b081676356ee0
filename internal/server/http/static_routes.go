package httpserver

import (
	"net/http"
	"os"
	"path/filepath"
)

// RegisterStaticRoutes serves webDir at /. Without an index.html, / answers
// with a short pointer to the route table instead of a directory listing.
func RegisterStaticRoutes(mux *http.ServeMux, webDir string) {
	if mux == nil {
		return
	}
	if webDir == "" {
		webDir = "."
	}
	files := http.FileServer(http.Dir(webDir))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path == "/" && !hasIndex(webDir) {
			writeText(w, http.StatusOK, "chessroom: see /routes for the API\n")
			return
		}
		files.ServeHTTP(w, r)
	})
}

func hasIndex(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, "index.html"))
	return err == nil && !st.IsDir()
}
