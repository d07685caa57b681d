package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mbd888/callgate/internal/metrics"
)

// Reaper periodically evicts sessions whose TTL has elapsed. The reference
// design never expires sessions, so an abandoned call leaves its entry
// resident until process restart; the reaper bounds that leak. A call whose
// mid-call events arrive after eviction is acknowledged as an unknown
// session, which the platform tolerates.
type Reaper struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewReaper creates a session TTL reaper.
func NewReaper(store Store, ttl time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:    store,
		ttl:      ttl,
		interval: time.Minute,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// WithInterval overrides the sweep interval (for testing).
func (r *Reaper) WithInterval(interval time.Duration) *Reaper {
	r.interval = interval
	return r
}

// Running reports whether the reaper loop is active.
func (r *Reaper) Running() bool {
	return r.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (r *Reaper) Start(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.safeSweep(ctx)
		}
	}
}

// Stop signals the reaper to stop.
func (r *Reaper) Stop() {
	select {
	case r.stop <- struct{}{}:
	default:
	}
}

func (r *Reaper) safeSweep(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in session reaper", "panic", fmt.Sprint(rec))
		}
	}()
	r.Sweep(ctx)
}

// Sweep evicts all sessions idle past the TTL, paginating until none remain.
func (r *Reaper) Sweep(ctx context.Context) {
	const batchSize = 100
	cutoff := time.Now().Add(-r.ttl)

	for {
		expired, err := r.store.ListExpired(ctx, cutoff, batchSize)
		if err != nil {
			r.logger.Error("failed to list expired sessions", "error", err)
			return
		}
		if len(expired) == 0 {
			return
		}

		for _, sess := range expired {
			if err := r.store.Delete(ctx, sess.ID); err != nil {
				r.logger.Warn("failed to evict session", "session_id", sess.ID, "error", err)
				continue
			}
			metrics.SessionsReapedTotal.Inc()
			metrics.ActiveSessions.Dec()
			r.logger.Info("session evicted",
				"session_id", sess.ID,
				"state", string(sess.State),
				"idle", time.Since(sess.UpdatedAt).Round(time.Second).String(),
			)
		}

		if len(expired) < batchSize {
			return
		}
	}
}
