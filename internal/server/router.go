package server

import (
	"net/http"
	"strings"
)

// ImageHTTP defines the minimal surface the router needs from the image
// service to serve HTTP requests.
type ImageHTTP interface {
	ServeImage(w http.ResponseWriter, r *http.Request, sourcePath string)
	ServeClearCache(http.ResponseWriter, *http.Request)
	ServeHealth(http.ResponseWriter, *http.Request)
	WriteError(w http.ResponseWriter, status int, message string)
}

// imagesPrefix is the route under which source assets are addressed.
const imagesPrefix = "/images/"

// NewImageHandler wires the HTTP routing facade to the image service so the
// lifecycle server owns URL dispatch without embedding routing logic into
// the service itself.
func NewImageHandler(svc ImageHTTP) http.Handler {
	if svc == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "image service unavailable", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, imagesPrefix):
			if r.Method != http.MethodGet {
				svc.WriteError(w, http.StatusMethodNotAllowed, "images are read-only")
				return
			}
			sourcePath := strings.Trim(strings.TrimPrefix(r.URL.Path, imagesPrefix), "/")
			if sourcePath == "" {
				http.NotFound(w, r)
				return
			}
			svc.ServeImage(w, r, sourcePath)
		case r.URL.Path == "/clear-cache":
			if r.Method != http.MethodPost {
				svc.WriteError(w, http.StatusMethodNotAllowed, "clear-cache requires POST")
				return
			}
			svc.ServeClearCache(w, r)
		case r.URL.Path == "/health", r.URL.Path == "/healthz":
			svc.ServeHealth(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
