package engine

import (
	"context"
	"log"
	"time"
)

const sweepInterval = 10 * time.Minute

// Sweeper hard-deletes sessions flagged for deferred deletion. The flag
// gives players a window to change their mind; the sweeper is the point
// of no return.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(engine *Engine) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: sweepInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the loop after the current sweep.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep deletes every flagged session once, skipping any with a turn in
// flight; those are retried next interval.
func (s *Sweeper) Sweep(ctx context.Context) {
	sessions, err := s.engine.sessions.ListDeleteRequested(ctx)
	if err != nil {
		log.Printf("[Sweeper] list failed: %v", err)
		return
	}
	for _, session := range sessions {
		if s.engine.registry.InFlight(session.ID) {
			continue
		}
		if err := s.engine.PurgeSession(ctx, session.ID); err != nil {
			log.Printf("[Sweeper] purge %s failed: %v", session.ID, err)
			continue
		}
		log.Printf("[Sweeper] deleted session %s", session.ID)
	}
}
