package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	mirrorQueueSize = 256
	mirrorAttempts  = 3
	mirrorBackoff   = 200 * time.Millisecond
)

// mirrorWriter applies best-effort primary-store writes behind the cache
// write, retrying a few times before giving up. Failures are logged, never
// surfaced: the cache remains authoritative and /media/sync repairs drift.
type mirrorWriter struct {
	log     *zap.SugaredLogger
	ops     chan mirrorOp
	pending sync.WaitGroup
	done    chan struct{}
}

type mirrorOp struct {
	desc string
	fn   func(ctx context.Context) error
}

func newMirrorWriter(log *zap.SugaredLogger) *mirrorWriter {
	w := &mirrorWriter{
		log:  log,
		ops:  make(chan mirrorOp, mirrorQueueSize),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *mirrorWriter) run() {
	for op := range w.ops {
		w.apply(op)
		w.pending.Done()
	}
	close(w.done)
}

func (w *mirrorWriter) apply(op mirrorOp) {
	var err error
	for attempt := 0; attempt < mirrorAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(mirrorBackoff << (attempt - 1))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = op.fn(ctx)
		cancel()
		if err == nil {
			return
		}
	}
	w.log.Warnw("mirror write failed, stores diverged until next sync", "op", op.desc, "error", err)
}

// Enqueue hands the write to the background worker. On overflow the write is
// attempted once inline so a stalled primary cannot pile up goroutines.
func (w *mirrorWriter) Enqueue(desc string, fn func(ctx context.Context) error) {
	w.pending.Add(1)
	select {
	case w.ops <- mirrorOp{desc: desc, fn: fn}:
	default:
		w.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			w.log.Warnw("mirror write failed (queue full)", "op", desc, "error", err)
		}
	}
}

// Flush blocks until every enqueued mirror write has been applied.
func (w *mirrorWriter) Flush() {
	w.pending.Wait()
}

func (w *mirrorWriter) Close() {
	w.pending.Wait()
	close(w.ops)
	<-w.done
}
