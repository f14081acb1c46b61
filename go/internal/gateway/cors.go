package gateway

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSMiddleware lets browser clients on other LAN hosts reach the HTTP endpoints.
func CORSMiddleware(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:         86400, // 24 hours
	}).Handler(next)
}
