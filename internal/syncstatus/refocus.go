package syncstatus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultRefocusMinInterval = 30 * time.Second
	DefaultRefocusDebounce    = 1500 * time.Millisecond
	refocusTimeout            = 30 * time.Second
)

type RefocusConfig struct {
	// MinInterval is the minimum age of both the last attempt and the last
	// sync before a refocus refreshes again.
	MinInterval time.Duration
	Debounce    time.Duration
	Logger      *zap.SugaredLogger
}

// Refocuser turns bursts of "client became visible" signals into at most one
// throttled refresh of every source.
type Refocuser struct {
	base        context.Context
	agg         *Aggregator
	minInterval time.Duration
	debounce    time.Duration
	logger      *zap.SugaredLogger
	now         func() time.Time

	mu          sync.Mutex
	timer       *time.Timer
	lastAttempt time.Time
	stopped     bool
}

// NewRefocuser builds a Refocuser whose refreshes run under ctx.
func NewRefocuser(ctx context.Context, agg *Aggregator, cfg RefocusConfig) *Refocuser {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultRefocusMinInterval
	}
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Refocuser{
		base:        ctx,
		agg:         agg,
		minInterval: cfg.MinInterval,
		debounce:    cfg.Debounce,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Visible records a refocus. The refresh decision is made once the signals
// have been quiet for the debounce period.
func (r *Refocuser) Visible() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, func() { r.trigger() })
}

// trigger refreshes unless the last attempt or the last sync is too recent.
// It reports whether a refresh was started.
func (r *Refocuser) trigger() bool {
	now := r.now()

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	if !r.lastAttempt.IsZero() && now.Sub(r.lastAttempt) < r.minInterval {
		r.mu.Unlock()
		r.logger.Debugw("refocus skipped, recent attempt", "last_attempt", r.lastAttempt)
		return false
	}
	if last := r.agg.Status().LastSynced; !last.IsZero() && now.Sub(last) < r.minInterval {
		r.mu.Unlock()
		r.logger.Debugw("refocus skipped, recently synced", "last_synced", last)
		return false
	}
	r.lastAttempt = now
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.base, refocusTimeout)
	defer cancel()
	if err := r.agg.RefreshAll(ctx); err != nil {
		r.logger.Warnw("refocus refresh finished with errors", "error", err)
	}
	return true
}

// Stop cancels a pending debounce timer. Later signals are ignored.
func (r *Refocuser) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
}
