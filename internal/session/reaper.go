package session

import (
	"context"
	"sync"
	"time"

	"github.com/credgenhq/credgen/pkg/logging"
)

// Reaper sweeps a store on a fixed interval, evicting sessions whose TTL
// lapsed. Eviction is lossy by design; there is no archival.
type Reaper struct {
	store    Store
	interval time.Duration
	logger   *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewReaper creates a reaper for the given store.
func NewReaper(store Store, interval time.Duration, logger *logging.Logger) *Reaper {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reaper{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the background sweep loop.
func (r *Reaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.run(ctx)
}

func (r *Reaper) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := r.store.Sweep(ctx); evicted > 0 {
				r.logger.Info("evicted expired sessions", "count", evicted)
			}
		}
	}
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
	})
}
