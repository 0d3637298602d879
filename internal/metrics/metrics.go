package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_provider_searches_total",
			Help: "Search provider calls by outcome (ok, empty, error)",
		},
		[]string{"provider", "outcome"},
	)

	ProviderResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_provider_results_total",
			Help: "URLs returned by each search provider after capping",
		},
		[]string{"provider"},
	)

	ScrapeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_scrape_requests_total",
			Help: "Total number of page fetches executed",
		},
		[]string{"domain", "status", "detection_src"},
	)

	ScrapeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvest_scrape_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	ScrapeBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_scrape_bytes_total",
			Help: "Total bytes downloaded across all page fetches",
		},
		[]string{"domain"},
	)

	DetailsPersistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_details_persisted_total",
			Help: "Link detail rows written, by feature kind",
		},
		[]string{"kind"},
	)

	PersistFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_persist_failures_total",
			Help: "Rows skipped because the store rejected them",
		},
		[]string{"table"},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_downloads_total",
			Help: "Best-effort media and document downloads by outcome",
		},
		[]string{"type", "status"},
	)
)

// RecordScrape updates the fetch metrics for one page. status is the HTTP
// status code as text, or "error" when no response was received.
func RecordScrape(domain, status, detectionSrc string, d time.Duration, bytes int) {
	ScrapeRequestsTotal.WithLabelValues(domain, status, detectionSrc).Inc()
	ScrapeDuration.WithLabelValues(domain).Observe(d.Seconds())
	ScrapeBytesTotal.WithLabelValues(domain).Add(float64(bytes))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv  *http.Server
	addr net.Addr
}

// Start begins listening on the specified port and exposes /metrics. Port 0
// picks a free port; see Addr.
func Start(port int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics: listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv, addr: ln.Addr()}, nil
}

// Addr is the address the server is listening on.
func (s *Server) Addr() net.Addr { return s.addr }

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
