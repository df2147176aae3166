package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yegors/co-rwsl/pkg/logger"
)

// StaticFileHandler serves the dashboard from a directory. Paths that do not name a
// file fall back to index.html so client-side routes load the dashboard.
type StaticFileHandler struct {
	root   string
	logger *logger.Logger
}

// NewStaticFileHandler creates a new static file handler
func NewStaticFileHandler(staticDir string, log *logger.Logger) *StaticFileHandler {
	root, err := filepath.Abs(staticDir)
	if err != nil {
		root = filepath.Clean(staticDir)
	}
	return &StaticFileHandler{
		root:   root,
		logger: log.Named("static-handler"),
	}
}

// ServeHTTP serves one file below the root
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(filepath.Clean("/"+r.URL.Path), "/")
	full := filepath.Join(h.root, rel)

	if full != h.root && !strings.HasPrefix(full, h.root+string(filepath.Separator)) {
		h.logger.Warn("Rejected path outside static root", logger.String("path", r.URL.Path))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(full)
	switch {
	case err == nil && info.IsDir():
		full = filepath.Join(full, "index.html")
	case os.IsNotExist(err) && filepath.Ext(rel) == "":
		full = filepath.Join(h.root, "index.html")
	case err != nil && !os.IsNotExist(err):
		h.logger.Error("Failed to stat file", logger.Error(err), logger.String("path", full))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if _, err := os.Stat(full); err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	http.ServeFile(w, r, full)
}
