package stream

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"mediasrv/internal/platform/logger"
	"mediasrv/internal/platform/metrics"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// NewFileServer returns the handler for one embedded segmented-delivery
// server, rooted at an asset's packaging directory. "/" resolves to the
// master manifest; "/status" is a plain-text liveness line; every other
// path is served relative to the root, with paths that canonicalize outside
// the root rejected as forbidden. m may be nil to disable metric recording.
func NewFileServer(root string, log *slog.Logger, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	if m != nil {
		r.Use(metrics.RequestMiddleware(m))
	}

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "OK: serving %s\n", filepath.Base(root))
	})

	serve := func(w http.ResponseWriter, req *http.Request) {
		reqPath := req.URL.Path
		if reqPath == "/" || reqPath == "" {
			reqPath = "/master.m3u8"
		}

		resolved := filepath.Join(root, filepath.FromSlash(reqPath))
		rel, err := filepath.Rel(root, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			// Directory traversal attempt.
			w.WriteHeader(http.StatusForbidden)
			return
		}

		f, err := os.Open(resolved)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", contentTypeFor(resolved))
		w.Header().Set("Access-Control-Allow-Origin", "*")
		// ServeContent rather than ServeFile: the request path may contain
		// ".." elements that canonicalize inside the root, which ServeFile
		// rejects outright.
		http.ServeContent(w, req, filepath.Base(resolved), info.ModTime(), f)
	}

	r.Get("/", serve)
	r.Get("/*", serve)

	return r
}

// contentTypeFor maps manifest and segment extensions to their media types.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return playlistContentType
	case ".ts":
		return "video/mp2t"
	default:
		if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
