package session

import (
	"context"
	"log/slog"
	"time"
)

// FlushFunc receives a claimed session. Implementations must not block the
// sweep; handing the session to a bounded work queue is the expected shape.
type FlushFunc func(sess *Session, reason FlushReason)

// Sweeper drives utterance completion. Instead of arming one timer per
// client, a single ticker re-checks every live session's staleness lazily;
// the claim itself is the atomic check-then-transition on the session, so a
// packet landing between tick and claim simply postpones the flush.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	flush    FlushFunc
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper over the given registry
func NewSweeper(registry *Registry, interval time.Duration, flush FlushFunc, logger *slog.Logger) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		registry: registry,
		interval: interval,
		flush:    flush,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop
func (w *Sweeper) Start() {
	go w.run()

	w.logger.Info("Session sweeper started",
		slog.Duration("interval", w.interval),
		slog.Duration("inactivity_timeout", w.registry.limits.InactivityTimeout),
	)
}

// Stop terminates the sweep loop and waits for it to exit. Sessions still
// buffering at shutdown are discarded, not flushed.
func (w *Sweeper) Stop() {
	w.cancel()
	<-w.done

	w.logger.Info("Session sweeper stopped")
}

func (w *Sweeper) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(time.Now())
		}
	}
}

// Sweep claims every flush-eligible session exactly once and hands it to the
// flush handler. Exported for deterministic use in tests.
func (w *Sweeper) Sweep(now time.Time) {
	for _, sess := range w.registry.Snapshot() {
		reason, ok := w.registry.Claim(sess, now)
		if !ok {
			continue
		}

		w.logger.Debug("Session claimed for flush",
			slog.String("client", sess.Key),
			slog.Uint64("generation", sess.Generation),
			slog.String("reason", string(reason)),
			slog.Int("buffered_bytes", sess.TotalBytes()),
		)

		w.flush(sess, reason)
	}
}
