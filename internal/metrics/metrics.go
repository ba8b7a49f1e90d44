// Package metrics defines the process's Prometheus instrumentation. All
// metrics are package-level vars registered at init, matching the corpus's
// collector pattern; they are safe for concurrent use by every worker
// goroutine without additional locking.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DatagramsForwardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "udpproxy_datagrams_forwarded_total",
		Help: "Total datagrams successfully forwarded to a backend.",
	})

	DatagramsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "udpproxy_datagrams_dropped_total",
		Help: "Total datagrams dropped, by reason.",
	}, []string{"reason"})

	BackendProbeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "udpproxy_backend_probe_total",
		Help: "Total health probe outcomes, by backend and verdict.",
	}, []string{"backend", "verdict"})

	RingBackends = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "udpproxy_ring_backends",
		Help: "Number of backends currently present in the ring, per worker.",
	}, []string{"worker"})

	BackendHealthy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "udpproxy_backend_healthy",
		Help: "Whether a backend is currently present in the ring (1) or evicted (0).",
	}, []string{"backend"})
)

func init() {
	prometheus.MustRegister(
		DatagramsForwardedTotal,
		DatagramsDroppedTotal,
		BackendProbeTotal,
		RingBackends,
		BackendHealthy,
	)
}

// Drop reasons, matching SPEC_FULL.md §H.
const (
	ReasonParse     = "parse"
	ReasonNoBackend = "no_backend"
	ReasonSendError = "send_error"
)

// Verdicts for BackendProbeTotal.
const (
	VerdictUp   = "up"
	VerdictDown = "down"
)

// Server optionally serves /metrics over HTTP. It is only started when the
// config sets metrics_bind, matching the corpus's convention of defaulting
// management surfaces off.
type Server struct {
	httpServer *http.Server
}

// NewServer builds (but does not start) a /metrics HTTP server bound to addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Run starts serving until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
