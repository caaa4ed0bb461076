package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jward/arbor"
	"github.com/spf13/cobra"
)

// --- Watch Command ---

func (a *app) watchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index current while files change",
		Long:  "Indexes the workspace, then reconciles every changed, created or deleted file until interrupted. Each batch of changes is printed as it is applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()

			ctx := cmd.Context()
			if err := e.IndexWorkspace(ctx); err != nil {
				return a.outputError(cmd, err)
			}
			w, err := newWatcher(e, a.logger, debounce)
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer w.Close()
			w.onBatch = func(results []*arbor.ReconcileResult) {
				if err := a.outputResult(cmd, CLIResult{Command: "watch", Results: results, TotalCount: countOf(len(results))}); err != nil {
					a.logger.Warn("cannot write watch results", "error", err)
				}
			}
			a.logger.Info("watching", "root", e.Workspace().Root)
			err = w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "quiet period before a batch of changes is applied")
	return cmd
}

// watcher reconciles files of an engine's workspace as they change on
// disk. Events are collected until debounce passes without new ones.
type watcher struct {
	fw       *fsnotify.Watcher
	engine   *arbor.Engine
	logger   *slog.Logger
	debounce time.Duration

	// onBatch receives the non-trivial results of each applied batch.
	onBatch func([]*arbor.ReconcileResult)

	pending map[string]bool
}

func newWatcher(e *arbor.Engine, logger *slog.Logger, debounce time.Duration) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		fw:       fw,
		engine:   e,
		logger:   logger,
		debounce: debounce,
		pending:  map[string]bool{},
	}
	for _, p := range e.Workspace().Projects {
		for _, frag := range p.Fragments {
			if err := w.addTree(frag.Dir); err != nil {
				fw.Close()
				return nil, err
			}
		}
	}
	return w, nil
}

func (w *watcher) Close() error {
	return w.fw.Close()
}

// addTree watches dir and every directory below it, skipping hidden ones.
func (w *watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// Run processes events until ctx is done.
func (w *watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.event(ev)
			timer.Reset(w.debounce)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			w.flush(ctx)
		}
	}
}

func (w *watcher) event(ev fsnotify.Event) {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("cannot watch directory", "path", ev.Name, "error", err)
			}
			// Files may have landed before the watch was added.
			_ = filepath.WalkDir(ev.Name, func(path string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() {
					w.pending[path] = true
				}
				return nil
			})
			return
		}
	}
	w.pending[ev.Name] = true
}

// flush reconciles every pending path. A path that no longer exists may
// have been a directory, so everything indexed below it is removed too.
func (w *watcher) flush(ctx context.Context) {
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	sort.Strings(paths)

	var results []*arbor.ReconcileResult
	for _, p := range paths {
		var rs []*arbor.ReconcileResult
		var err error
		if _, statErr := os.Stat(p); errors.Is(statErr, fs.ErrNotExist) {
			rs, err = w.engine.RemoveTree(ctx, p)
		} else {
			var res *arbor.ReconcileResult
			res, err = w.engine.Reconcile(ctx, p)
			rs = []*arbor.ReconcileResult{res}
		}
		if err != nil {
			w.logger.Warn("reconcile failed", "path", p, "error", err)
			continue
		}
		for _, res := range rs {
			if !res.Unchanged {
				results = append(results, res)
			}
		}
	}
	if len(results) > 0 && w.onBatch != nil {
		w.onBatch(results)
	}
}
