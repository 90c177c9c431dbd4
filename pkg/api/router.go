// pkg/api/router.go

package api

import (
    "net/http"

    "AveWorld/pkg/cache"
    "AveWorld/pkg/utils"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = utils.GetLogger("aveworld")

// NewRouter exposes p over HTTP. Metrics are served from g when it is not nil.
func NewRouter(p *cache.ChunkProvider, g prometheus.Gatherer) http.Handler {
    h := &handler{p: p}
    r := chi.NewRouter()
    r.Use(middleware.RequestID)
    r.Use(AccessLog)
    r.Use(middleware.Recoverer)

    r.Get("/health", healthHandler)
    r.Get("/chunks/{x}/{y}/{z}", h.getChunk)
    r.Head("/chunks/{x}/{y}/{z}", h.headChunk)
    r.Post("/flush", h.flush)
    r.Get("/stats", h.stats)
    r.Get("/accesslog", streamAccessLog)
    if g != nil {
        r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
    }
    return r
}
