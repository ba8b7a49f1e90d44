// Package worker spawns and supervises the N dispatch-engine workers that
// share the ingress port via SO_REUSEPORT.
package worker

import (
	"context"
	"fmt"
	"sort"

	"github.com/maralla/udphashproxy/internal/backend"
	"github.com/maralla/udphashproxy/internal/config"
	"github.com/maralla/udphashproxy/internal/dispatch"
	"github.com/maralla/udphashproxy/internal/logging"
)

// Supervisor owns the process-lifetime backend pool (shared, immutable,
// read concurrently by every worker's ring and health table) and spawns one
// dispatch engine per configured thread.
type Supervisor struct {
	cfg      *config.Config
	backends []*backend.Backend
	logger   *logging.Logger
}

// New constructs the shared backend descriptor pool from cfg and returns a
// Supervisor ready to Run.
func New(cfg *config.Config, logger *logging.Logger) (*Supervisor, error) {
	names := make([]string, 0, len(cfg.Nodes))
	for name := range cfg.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	backends := make([]*backend.Backend, 0, len(names))
	for _, name := range names {
		n := cfg.Nodes[name]
		b, err := backend.New(n.Host, n.Port, n.AdminPort)
		if err != nil {
			for _, existing := range backends {
				_ = existing.Close()
			}
			return nil, fmt.Errorf("worker: construct backend %q: %w", name, err)
		}
		backends = append(backends, b)
	}

	return &Supervisor{cfg: cfg, backends: backends, logger: logger}, nil
}

// Run starts cfg.Threads workers and blocks until ctx is cancelled or any
// worker returns a fatal error, in which case the remaining workers are
// cancelled and the first fatal error is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, s.cfg.Threads)
	for i := 0; i < s.cfg.Threads; i++ {
		id := i
		go func() {
			workerLogger := logging.WithWorker(s.logger, id)
			engine, err := dispatch.New(id, s.cfg, s.backends, workerLogger)
			if err != nil {
				errCh <- fmt.Errorf("worker %d: %w", id, err)
				return
			}
			errCh <- engine.Run(runCtx)
		}()
	}

	var firstErr error
	for i := 0; i < s.cfg.Threads; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for _, b := range s.backends {
		_ = b.Close()
	}

	return firstErr
}
