package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// PixelCORS returns middleware for the browser-facing pixel endpoint. The
// pixel posts from storefront origins, so the allowed set comes from config
// rather than a fixed list.
func PixelCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Pixel-Token"},
		MaxAge:         300,
	}).Handler
}
