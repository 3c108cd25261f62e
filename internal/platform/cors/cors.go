// Package cors holds the cross-origin policy browsers need to fetch HLS
// playlists and segments from another origin.
package cors

import (
	"net/http"

	chicors "github.com/go-chi/cors"
)

// MediaOptions is the policy for the /hls tree: any origin, read-only.
var MediaOptions = chicors.Options{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	AllowedHeaders: []string{"Content-Type", "Accept", "Range"},
	ExposedHeaders: []string{"Content-Length", "Content-Range"},
	MaxAge:         300,
}

// Media returns chi middleware applying MediaOptions. Preflight requests
// are answered directly and not passed on.
func Media() func(http.Handler) http.Handler {
	return chicors.Handler(MediaOptions)
}
