package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/l0p7/imageserve/internal/cache"
)

// Derivatives and originals are addressed by value (the cache key encodes
// every rendering parameter), so responses are immutable for a year.
const cacheControlImmutable = "public, max-age=31536000, immutable"

const (
	cacheStatusHit  = "HIT"
	cacheStatusMiss = "MISS"
)

// writeDerivative emits an encoded derivative with the optimization
// diagnostics the storefront relies on.
func writeDerivative(w http.ResponseWriter, entry cache.Entry, status string) {
	h := w.Header()
	h.Set("Content-Type", entry.ContentType)
	h.Set("Cache-Control", cacheControlImmutable)
	h.Set("Content-Length", strconv.Itoa(len(entry.Data)))
	h.Set("X-Image-Optimized", "true")
	h.Set("X-Original-Size", strconv.FormatInt(entry.OriginalSize, 10))
	h.Set("X-Optimized-Size", strconv.Itoa(len(entry.Data)))
	h.Set("X-Cache", status)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Data)
}

// streamOriginal copies the source file to the response untouched. No
// optimization markers are set; the only promise is the cache directive.
// Errors before the first body byte are returned so callers can still
// write a status; copy errors after that are unrecoverable and dropped.
func (s *Service) streamOriginal(w http.ResponseWriter, sourcePath string) error {
	rc, err := s.assets.Open(sourcePath)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	h := w.Header()
	h.Set("Cache-Control", cacheControlImmutable)
	if ct := mime.TypeByExtension(filepath.Ext(sourcePath)); ct != "" {
		h.Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
