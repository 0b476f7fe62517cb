package reputation

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modcore/internal/config"
)

// Sweeper runs the platform-wide reputation decay on a fixed interval. It is
// best effort: a failed or partial sweep is retried wholesale on the next
// tick.
type Sweeper struct {
	reps     *Store
	interval time.Duration
	amount   int64

	mu         sync.Mutex
	started    bool
	runtimeCtx context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewSweeper(reps *Store, cfg config.Decay) *Sweeper {
	return &Sweeper{
		reps:     reps,
		interval: cfg.Interval,
		amount:   int64(cfg.Amount),
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.runtimeCtx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(1)
	go s.run(s.runtimeCtx)
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.getLogEntry().Info("shutting down decay sweeper by cancelled context")
			return
		case <-ticker.C:
			if err := s.reps.DecayAll(ctx, s.amount); err != nil {
				s.getLogEntry().WithField("error", err.Error()).Error("decay sweep failed")
			}
		}
	}
}

func (s *Sweeper) getLogEntry() *log.Entry {
	return log.WithField("object", "DecaySweeper")
}
