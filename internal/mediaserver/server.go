// Package mediaserver serves staged media files with the byte-range
// semantics a browser media element needs for seekable playback.
package mediaserver

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".ogg":  "video/ogg",
}

// Handler serves GET /media/{name} from one local directory.
type Handler struct {
	dir string
	log zerolog.Logger
}

// NewHandler creates a handler rooted at dir.
func NewHandler(dir string, log zerolog.Logger) *Handler {
	return &Handler{dir: dir, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" {
		name = strings.TrimPrefix(r.URL.Path, "/media/")
	}

	// Names are flat; anything trying to climb out of the directory is a
	// miss, not an error worth distinguishing.
	if name != filepath.Base(name) || name == "." || name == "" {
		http.Error(w, "media not found", http.StatusNotFound)
		return
	}

	path := filepath.Join(h.dir, name)
	f, err := os.Open(path)
	if err != nil {
		h.log.Warn().Str("name", name).Msg("media not found")
		http.Error(w, "media not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.Error(w, "media not found", http.StatusNotFound)
		return
	}
	size := stat.Size()

	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.Copy(w, f)
		}
		return
	}

	start, end, err := parseRange(rangeHeader, size)
	if err != nil {
		h.log.Warn().Str("range", rangeHeader).Err(err).Msg("rejecting range request")
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
		return
	}

	chunk := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(chunk, 10))
	w.WriteHeader(http.StatusPartialContent)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return
	}
	io.CopyN(w, f, chunk)
}

// parseRange parses a single "bytes=start-end" range against the file
// size. end is optional and defaults to size-1. Non-numeric, inverted, or
// out-of-bounds ranges are rejected outright rather than clamped into a
// span the client never asked for.
func parseRange(header string, size int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("unsupported range unit in %q", header)
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}

	start, err = strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("invalid range start in %q", header)
	}

	end = size - 1
	if s := strings.TrimSpace(endStr); s != "" {
		end, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range end in %q", header)
		}
	}
	if end >= size {
		end = size - 1
	}
	if start > end || start >= size {
		return 0, 0, fmt.Errorf("unsatisfiable range %q for size %d", header, size)
	}
	return start, end, nil
}

func contentTypeFor(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
