package arbor

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// indexFilesParallel indexes files using a three-phase pipeline:
//
//	Phase A (serial):   locate, read and hash-check each file.
//	Phase B (parallel): extract on a worker pool bounded by NumCPU.
//	Phase C (serial):   reconcile each batch through the index queue.
func (e *Engine) indexFilesParallel(ctx context.Context, paths []string, force bool) error {
	var errs []error

	// ---- Phase A: Serial file preparation ----
	var items []*workItem
	for _, path := range paths {
		item, err := e.prepareFile(ctx, path, force)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		if item != nil {
			items = append(items, item)
		}
	}

	// ---- Phase B: Parallel extraction ----
	extractErrs := make([]error, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(runtime.NumCPU(), 1))
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// A failing file must not stop its siblings.
			extractErrs[i] = e.extractFile(gctx, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("parallel indexing: %w", err)
	}

	// ---- Phase C: Serial commit ----
	for i, item := range items {
		if extractErrs[i] != nil {
			errs = append(errs, fmt.Errorf("extract %s: %w", item.path, extractErrs[i]))
			continue
		}
		if err := e.index.Reconcile(ctx, item.batch); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", item.path, err))
		}
	}

	e.logger.Debug("indexed files", "requested", len(paths), "extracted", len(items), "errors", len(errs))
	if len(errs) > 0 {
		return fmt.Errorf("parallel indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}
