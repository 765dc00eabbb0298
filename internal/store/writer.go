package store

import (
	"context"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rooms"
	"go.uber.org/zap"
)

// Writer applies journal and room writes on one background goroutine so
// session actors never wait on Redis. Writes are applied in arrival order;
// when the buffer is full new writes are dropped and logged.
type Writer struct {
	st      *Store
	jobs    chan func(context.Context) error
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewWriter(st *Store, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 256
	}
	w := &Writer{
		st:      st,
		jobs:    make(chan func(context.Context) error, buffer),
		timeout: 2 * time.Second,
		log:     obslog.Named("store"),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Record implements match.Journal.
func (w *Writer) Record(rec match.Record) {
	w.enqueue("match", rec.ID, func(ctx context.Context) error { return w.st.SaveMatch(ctx, rec) })
}

// SaveRoom implements rooms.Mirror.
func (w *Writer) SaveRoom(r rooms.Room) {
	w.enqueue("room", r.Code, func(ctx context.Context) error { return w.st.SaveRoom(ctx, r) })
}

func (w *Writer) enqueue(kind, key string, job func(context.Context) error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.jobs <- job:
	default:
		w.log.Warn("store_write_dropped", zap.String("kind", kind), zap.String("key", key))
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for job := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := job(ctx); err != nil {
			w.log.Warn("store_write_failed", zap.Error(err))
		}
		cancel()
	}
}

// Close flushes pending writes and stops the writer.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}
