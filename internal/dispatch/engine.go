// Package dispatch implements the single-threaded, event-driven dispatch
// engine: one instance per worker, multiplexing the ingress UDP socket and
// every backend's health connection over one poller, and acting as the sole
// mutator of that worker's consistent-hash ring.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/maralla/udphashproxy/internal/backend"
	"github.com/maralla/udphashproxy/internal/config"
	"github.com/maralla/udphashproxy/internal/health"
	"github.com/maralla/udphashproxy/internal/ioloop"
	"github.com/maralla/udphashproxy/internal/logging"
	"github.com/maralla/udphashproxy/internal/metrics"
	"github.com/maralla/udphashproxy/internal/ring"
	"github.com/maralla/udphashproxy/internal/sock"
)

// coolDownWindow ages out a backend's failure count once it has gone this
// long without a fresh failure, per spec.md's cool-down rule.
const coolDownWindow = 30 * time.Second

// evictionThreshold is the strictly-greater-than failure count that evicts a
// backend from the ring.
const evictionThreshold = 2

// Engine is one worker's dispatch engine. It owns its ring and health
// connections exclusively; the only state it shares with other workers is
// the backend descriptor pool (immutable after construction) and the
// process-wide metrics registry.
type Engine struct {
	id     int
	loop   *ioloop.Loop
	ingest *sock.UDPListener
	ring   *ring.Ring
	conns  map[int]*health.Connection

	checkInterval time.Duration
	scratch       [4096]byte

	logger *logging.Logger

	cancel   context.CancelFunc
	fatalErr error
}

// New builds a worker's dispatch engine: a fresh ring and health-connection
// table over the shared, process-lifetime backend pool, and a listener
// bound to the ingress port (shared across workers via SO_REUSEPORT).
func New(id int, cfg *config.Config, backends []*backend.Backend, logger *logging.Logger) (*Engine, error) {
	loop, err := ioloop.New()
	if err != nil {
		return nil, fmt.Errorf("dispatch: init poller: %w", err)
	}

	ingest, err := sock.ListenUDP("0.0.0.0", cfg.Bind)
	if err != nil {
		_ = loop.Close()
		return nil, fmt.Errorf("dispatch: listen udp: %w", err)
	}

	r := ring.New()
	conns := make(map[int]*health.Connection, len(backends))
	token := 1 // token 0 is reserved for the ingress socket
	for _, b := range backends {
		r.Add(b, ring.Replicas)
		c := health.New(b, token)
		name := b.Name()
		c.OnVerdict = func(success bool) {
			verdict := metrics.VerdictDown
			if success {
				verdict = metrics.VerdictUp
			}
			metrics.BackendProbeTotal.WithLabelValues(name, verdict).Inc()
		}
		conns[token] = c
		token++
	}

	return &Engine{
		id:            id,
		loop:          loop,
		ingest:        ingest,
		ring:          r,
		conns:         conns,
		checkInterval: time.Duration(cfg.CheckInterval) * time.Millisecond,
		logger:        logger,
	}, nil
}

// Run registers the ingress socket and the health tick, then blocks until
// ctx is cancelled or a fatal ingress error occurs. It always tears down its
// sockets and poller before returning.
func (e *Engine) Run(ctx context.Context) error {
	defer e.teardown()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	defer cancel()

	if err := e.loop.RegisterFD(e.ingest.FD, ioloop.EventRead|ioloop.EventError, e.onIngressEvent); err != nil {
		return fmt.Errorf("dispatch: register ingress: %w", err)
	}

	e.loop.ScheduleTick(e.checkInterval, e.onTick)

	if err := e.loop.Run(runCtx); err != nil {
		return err
	}
	if e.fatalErr != nil {
		return e.fatalErr
	}
	return nil
}

func (e *Engine) teardown() {
	_ = e.ingest.Close()
	for _, c := range e.conns {
		c.ForceClose()
	}
	_ = e.loop.Close()
}

func (e *Engine) abort(err error) {
	e.fatalErr = err
	if e.cancel != nil {
		e.cancel()
	}
}

// onIngressEvent handles readiness on the ingress UDP socket, per
// spec.md §4.4 "Ingress handling".
func (e *Engine) onIngressEvent(events ioloop.IOEvents) {
	if events&ioloop.EventError != 0 {
		e.abort(fmt.Errorf("dispatch: ingress socket error"))
		return
	}

	n, err := e.ingest.Recvfrom(e.scratch[:])
	switch {
	case err == sock.ErrNotReady:
		e.rearmIngress()
		return
	case err != nil:
		e.abort(fmt.Errorf("dispatch: ingress recv: %w", err))
		return
	case n == 0:
		e.rearmIngress()
		return
	}

	e.route(e.scratch[:n])
	e.rearmIngress()
}

func (e *Engine) rearmIngress() {
	_ = e.loop.ModifyFD(e.ingest.FD, ioloop.EventRead|ioloop.EventError)
}

func (e *Engine) route(datagram []byte) {
	idx := bytes.IndexByte(datagram, ':')
	if idx < 0 {
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.ReasonParse).Inc()
		e.logger.Debug().Log("dropping datagram with no routing key separator")
		return
	}

	key := datagram[:idx]
	b, err := e.ring.Get(key)
	if err != nil {
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.ReasonNoBackend).Inc()
		return
	}

	target, ok := b.(*backend.Backend)
	if !ok {
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.ReasonNoBackend).Inc()
		return
	}

	if _, err := target.Forward(datagram); err != nil && err != sock.ErrNotReady {
		metrics.DatagramsDroppedTotal.WithLabelValues(metrics.ReasonSendError).Inc()
		e.logger.Debug().Str("backend", target.Name()).Err(err).Log("forward failed")
		return
	}
	metrics.DatagramsForwardedTotal.Inc()
}

// onTick is the periodic health-policy and FSM-advance handler, per
// spec.md §4.4 "Timer tick".
func (e *Engine) onTick() {
	for _, c := range e.conns {
		e.applyEvictionRule(c)
		e.applyCoolDownRule(c)
		e.applyReinstatementRule(c)
		e.advanceConnection(c)
	}

	worker := fmt.Sprintf("%d", e.id)
	metrics.RingBackends.WithLabelValues(worker).Set(float64(e.ring.Len()))
}

func (e *Engine) applyEvictionRule(c *health.Connection) {
	if c.FailureCount <= evictionThreshold {
		return
	}
	if e.ring.Contains(c.Backend) {
		e.ring.Remove(c.Backend)
		e.logger.Warning().Str("backend", c.Backend.Name()).Int("failures", c.FailureCount).Log("evicting backend from ring")
		metrics.BackendHealthy.WithLabelValues(c.Backend.Name()).Set(0)
	}
	c.FailureCount = 0
	c.LastReset = time.Now()
}

func (e *Engine) applyCoolDownRule(c *health.Connection) {
	if time.Since(c.LastReset) <= coolDownWindow {
		return
	}
	c.FailureCount = 0
	c.LastReset = time.Now()
}

func (e *Engine) applyReinstatementRule(c *health.Connection) {
	if c.SuccessCount <= 0 || e.ring.Contains(c.Backend) {
		return
	}
	e.ring.Add(c.Backend, ring.Replicas)
	e.logger.Notice().Str("backend", c.Backend.Name()).Log("reinstating backend to ring")
	metrics.BackendHealthy.WithLabelValues(c.Backend.Name()).Set(1)
	c.SuccessCount = 0
}

func (e *Engine) advanceConnection(c *health.Connection) {
	switch c.State {
	case health.StateClosed:
		if err := c.Reconnect(e.loop); err != nil {
			e.logger.Debug().Str("backend", c.Backend.Name()).Err(err).Log("probe reconnect failed")
		}
	case health.StateWriting:
		c.AdvanceOnTick(e.loop)
	}
}
