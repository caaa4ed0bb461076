// Package index maintains the supertype reference index of a workspace.
//
// Every mutation (insert, remove, reconcile, move) runs as a job on a
// single worker goroutine, so mutations apply in submission order and two
// reconciles of one document never interleave. Each job commits in one
// SQLite transaction; a query therefore observes a document either before
// or after a reconcile, never in between.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jward/arbor/internal/store"
)

var (
	// ErrNotReady is returned by queries using CancelIfNotReady while
	// mutations are still queued.
	ErrNotReady = errors.New("index: not ready")
	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("index: closed")
)

// queueSize bounds the number of submitted jobs not yet picked up by the
// worker. Submitters block beyond it.
const queueSize = 256

type job struct {
	ctx  context.Context
	op   string
	path string
	run  func(*store.Store) error
	done chan error
}

// Index serializes mutations of a store.Store and answers supertype
// queries against it.
type Index struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics

	mu      sync.RWMutex // guards closed against concurrent submits
	closed  bool
	jobs    chan *job
	pending atomic.Int64
	stopped chan struct{}
}

// Option configures an Index.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	registry prometheus.Registerer
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetricsRegistry registers the index metrics on reg.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// Open opens (creating if needed) the index database at path and starts
// its worker.
func Open(path string, opts ...Option) (*Index, error) {
	s, err := store.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("open index: migrate: %w", err)
	}
	return newIndex(s, opts...), nil
}

func newIndex(s *store.Store, opts ...Option) *Index {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	idx := &Index{
		store:   s,
		logger:  o.logger,
		metrics: newMetrics(o.registry),
		jobs:    make(chan *job, queueSize),
		stopped: make(chan struct{}),
	}
	go idx.work()
	return idx
}

// Store exposes the underlying store for read-only reporting queries.
func (idx *Index) Store() *store.Store {
	return idx.store
}

func (idx *Index) work() {
	defer close(idx.stopped)
	for j := range idx.jobs {
		var err error
		if err = j.ctx.Err(); err == nil {
			start := time.Now()
			err = j.run(idx.store)
			if j.op != "barrier" {
				idx.logger.Debug("index job", "op", j.op, "path", j.path, "duration", time.Since(start), "error", err)
			}
		}
		if j.op != "barrier" {
			idx.metrics.observeMutation(j.op, err)
		}
		idx.metrics.queueDepth.Set(float64(idx.pending.Add(-1)))
		j.done <- err
	}
}

// submit queues fn and waits for it to finish or for ctx to end. A job
// whose context ends before it is picked up is skipped.
func (idx *Index) submit(ctx context.Context, op, path string, fn func(*store.Store) error) error {
	j := &job{ctx: ctx, op: op, path: path, run: fn, done: make(chan error, 1)}

	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return ErrClosed
	}
	idx.metrics.queueDepth.Set(float64(idx.pending.Add(1)))
	select {
	case idx.jobs <- j:
	case <-ctx.Done():
		idx.metrics.queueDepth.Set(float64(idx.pending.Add(-1)))
		idx.mu.RUnlock()
		return ctx.Err()
	}
	idx.mu.RUnlock()

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InsertDocument adds the batch's facts to the index without removing
// anything previously stored for its path. Indexing is best effort: on a
// closed index the call logs a warning and returns nil.
func (idx *Index) InsertDocument(ctx context.Context, batch *store.Batch) error {
	path := batch.Document.Path
	err := idx.submit(ctx, "insert", path, func(s *store.Store) error {
		return s.AppendBatch(batch)
	})
	if errors.Is(err, ErrClosed) {
		idx.logger.Warn("index unavailable, document not indexed", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert document %s: %w", path, err)
	}
	return nil
}

// RemoveDocument deletes every fact attributed to path. It reports whether
// the path was indexed. Removing an unknown path is not an error.
func (idx *Index) RemoveDocument(ctx context.Context, path string) (bool, error) {
	var removed bool
	err := idx.submit(ctx, "remove", path, func(s *store.Store) error {
		var err error
		removed, err = s.DeleteDocument(path)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("remove document %s: %w", path, err)
	}
	return removed, nil
}

// Reconcile replaces the facts stored for the batch's path with the
// batch's facts as one job. Like InsertDocument it is best effort on a
// closed index.
func (idx *Index) Reconcile(ctx context.Context, batch *store.Batch) error {
	path := batch.Document.Path
	err := idx.submit(ctx, "reconcile", path, func(s *store.Store) error {
		return s.CommitBatch(batch)
	})
	if errors.Is(err, ErrClosed) {
		idx.logger.Warn("index unavailable, document not reconciled", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", path, err)
	}
	return nil
}

// MoveDocument removes the facts of oldPath and stores the batch's facts
// under the batch's path, as one job.
func (idx *Index) MoveDocument(ctx context.Context, oldPath string, batch *store.Batch) error {
	err := idx.submit(ctx, "move", oldPath, func(s *store.Store) error {
		if _, err := s.DeleteDocument(oldPath); err != nil {
			return err
		}
		return s.CommitBatch(batch)
	})
	if err != nil {
		return fmt.Errorf("move document %s: %w", oldPath, err)
	}
	return nil
}

// Rename re-keys the facts stored for from to the path to without
// re-extracting them. It reports whether from was indexed.
func (idx *Index) Rename(ctx context.Context, from, to string) (bool, error) {
	var moved bool
	err := idx.submit(ctx, "rename", from, func(s *store.Store) error {
		var err error
		moved, err = s.MoveDocument(from, to)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("rename document %s: %w", from, err)
	}
	return moved, nil
}

// Pending returns the number of queued jobs not yet completed.
func (idx *Index) Pending() int {
	return int(idx.pending.Load())
}

// WaitIdle blocks until every job submitted before the call has completed.
func (idx *Index) WaitIdle(ctx context.Context) error {
	return idx.submit(ctx, "barrier", "", func(*store.Store) error { return nil })
}

// Close drains queued jobs, stops the worker and closes the store.
func (idx *Index) Close() error {
	idx.mu.Lock()
	if idx.closed {
		idx.mu.Unlock()
		return nil
	}
	idx.closed = true
	close(idx.jobs)
	idx.mu.Unlock()

	<-idx.stopped
	return idx.store.Close()
}
