// Package metrics holds the Prometheus collectors shared by the loader and its collaborators.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// PagesTotal counts observed page results by outcome.
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klinepager_pages_total",
			Help: "Pages observed by the loader",
		},
		[]string{"outcome"}, // "ok", "error", "stale"
	)

	// SamplesTotal counts merged samples.
	SamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "klinepager_samples_total",
			Help: "Samples appended to running buffers",
		},
	)

	// LoadsTotal counts loads by terminal state.
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klinepager_loads_total",
			Help: "Loads reaching a terminal state",
		},
		[]string{"outcome"}, // "complete", "failed"
	)

	// FetchDuration tracks upstream kline request latency.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "klinepager_fetch_duration_seconds",
			Help:    "Duration of kline page requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "status"},
	)

	// CacheLookups counts page cache lookups.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klinepager_cache_lookups_total",
			Help: "Page cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)
)

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr disables the endpoint.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) {
	if addr == "" {
		return
	}
	log := logger.With().Str("component", "metrics").Logger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}
