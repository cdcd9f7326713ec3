// Package server wires the storage consumers to HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/l3viathan/apy4i/internal/config"
	"github.com/l3viathan/apy4i/internal/jsonldb"
	"github.com/l3viathan/apy4i/internal/krank"
	"github.com/l3viathan/apy4i/internal/server/handlers"
	"github.com/l3viathan/apy4i/internal/server/ratelimit"
)

// NewRouter creates and configures the HTTP router.
//
// metrics is served at /metrics when non-nil. The returned limiter must be
// closed by the caller.
func NewRouter(db *jsonldb.DB, cfg *config.ServerConfig, metrics http.Handler) (http.Handler, *ratelimit.Limiter) {
	mux := http.NewServeMux()
	writes := ratelimit.NewLimiter(cfg.RateLimits.WriteRatePerMin, time.Minute, cfg.RateLimits.WriteBurst)
	limited := func(h http.Handler) http.Handler {
		return ratelimit.Middleware(writes, "write", h)
	}

	krankHandler := handlers.NewKrankHandler(krank.NewService(db, cfg.Krank.K), cfg.Krank.DefaultLast)
	blobHandler := handlers.NewBlobHandler(db, cfg.MaxBlobBytes)

	mux.Handle("GET /api/health", Wrap(handlers.Health))

	mux.Handle("GET /api/krank/table", Wrap(krankHandler.Table))
	mux.Handle("GET /api/krank/log", byFormat(Wrap(krankHandler.Matches), map[string]http.Handler{
		"html": http.HandlerFunc(krankHandler.MatchesHTML),
	}))
	mux.Handle("POST /api/krank/submit", limited(Wrap(krankHandler.Submit)))
	mux.Handle("POST /api/krank/players/{player}/hidden", limited(Wrap(krankHandler.Hide)))

	mux.Handle("POST /api/blobs", limited(http.HandlerFunc(blobHandler.Upload)))
	mux.HandleFunc("GET /api/blobs/{id}", blobHandler.Download)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return LoggingMiddleware(mux), writes
}

// byFormat dispatches on the "format" query parameter, falling back to def.
func byFormat(def http.Handler, alt map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := alt[r.URL.Query().Get("format")]; ok {
			h.ServeHTTP(w, r)
			return
		}
		def.ServeHTTP(w, r)
	})
}
