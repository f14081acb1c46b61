package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/ergsync/go/internal/gateway"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// /ws, /ws/stats and /health
	services.Hub.RegisterRoutes(mux)

	// Wrap with CORS
	handler := gateway.CORSMiddleware(mux)

	// Setup HTTP/2 server; WebSocket upgrades stay on HTTP/1.1
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
