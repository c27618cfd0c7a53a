// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wneessen/place/internal/logger"
)

const namespace = "place"

// Metrics holds the Prometheus collectors of location queries, geocoding and the location bus.
type Metrics struct {
	registry prometheus.Gatherer

	Queries       *prometheus.CounterVec   // labels: status, source
	QueryDuration *prometheus.HistogramVec // labels: status
	Geocodes      *prometheus.CounterVec   // labels: result={ok,not_found,error,unavailable}
	GeocodeCache  *prometheus.CounterVec   // labels: result={hit,miss}
	Fixes         *prometheus.CounterVec   // labels: source
}

// New creates all collectors and registers them with a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Location queries by result status and fix source.",
		}, []string{"status", "source"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of location queries in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		Geocodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_total",
			Help:      "Reverse geocoding attempts by result.",
		}, []string{"result"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		Fixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixes_total",
			Help:      "Position fixes published on the location bus by source.",
		}, []string{"source"}),
	}
	registry.MustRegister(m.Queries, m.QueryDuration, m.Geocodes, m.GeocodeCache, m.Fixes)
	return m
}

func (m *Metrics) QueryFinished(status, source string, elapsed time.Duration) {
	if source == "" {
		source = "none"
	}
	m.Queries.WithLabelValues(status, source).Inc()
	m.QueryDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) GeocodeFinished(result string) {
	m.Geocodes.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheResult(result string) {
	m.GeocodeCache.WithLabelValues(result).Inc()
}

func (m *Metrics) FixPublished(source string) {
	m.Fixes.WithLabelValues(source).Inc()
}

// Handler returns the HTTP handler exposing the collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the collectors on addr under /metrics until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down metrics server", logger.Err(err))
		}
	}()

	log.Info("metrics server starting", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
