package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jward/arbor"
	"github.com/spf13/cobra"
)

// --- Index Maintenance Commands ---

func (a *app) indexCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "index [file...]",
		Short: "Index the workspace, or only the given files",
		Long:  "Extracts supertype facts from every supported file of the workspace and stores them in the SQLite index. Unchanged files are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			ws, err := a.loadWorkspace()
			if err != nil {
				return a.outputError(cmd, err)
			}
			dbPath := resolveDBPath(a.flagDB, ws)
			if force {
				if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
					return a.outputError(cmd, fmt.Errorf("removing database for --force: %w", err))
				}
				a.logger.Info("cleared database", "path", dbPath)
			}

			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()

			ctx := cmd.Context()
			if len(args) == 0 {
				err = e.IndexWorkspace(ctx)
			} else {
				var paths []string
				for _, arg := range args {
					p, perr := resolveFilePath(arg)
					if perr != nil {
						return a.outputError(cmd, perr)
					}
					paths = append(paths, p)
				}
				err = e.IndexFiles(ctx, paths)
			}
			if err != nil {
				return a.outputError(cmd, fmt.Errorf("indexing: %w", err))
			}

			st, err := e.Query().Stats()
			if err != nil {
				return a.outputError(cmd, err)
			}
			return a.outputResult(cmd, CLIResult{
				Command: "index",
				Results: CLIIndexSummary{
					Root:       ws.Root,
					Database:   dbPath,
					Documents:  st.Documents,
					DurationMS: time.Since(start).Milliseconds(),
				},
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "delete database and reindex from scratch")
	return cmd
}

func (a *app) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <file...>",
		Short: "Re-extract files and report how their supertype facts changed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.eachFile(cmd, args, func(ctx context.Context, e *arbor.Engine, path string) (*arbor.ReconcileResult, error) {
				return e.Reconcile(ctx, path)
			})
		},
	}
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <file...>",
		Short: "Drop files from the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.eachFile(cmd, args, func(ctx context.Context, e *arbor.Engine, path string) (*arbor.ReconcileResult, error) {
				return e.Remove(ctx, path)
			})
		},
	}
}

// eachFile opens the engine and applies fn to every file argument.
func (a *app) eachFile(cmd *cobra.Command, args []string, fn func(context.Context, *arbor.Engine, string) (*arbor.ReconcileResult, error)) error {
	e, err := a.openEngine()
	if err != nil {
		return a.outputError(cmd, err)
	}
	defer e.Close()

	results := make([]*arbor.ReconcileResult, 0, len(args))
	for _, arg := range args {
		path, err := resolveFilePath(arg)
		if err != nil {
			return a.outputError(cmd, err)
		}
		res, err := fn(cmd.Context(), e, path)
		if err != nil {
			return a.outputError(cmd, err)
		}
		results = append(results, res)
	}
	return a.outputResult(cmd, CLIResult{Command: cmd.Name(), Results: results, TotalCount: countOf(len(results))})
}

func (a *app) moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <from> <to>",
		Short: "Record that an indexed file was renamed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := resolveFilePath(args[0])
			if err != nil {
				return a.outputError(cmd, err)
			}
			to, err := resolveFilePath(args[1])
			if err != nil {
				return a.outputError(cmd, err)
			}
			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()
			if err := e.Move(cmd.Context(), from, to); err != nil {
				return a.outputError(cmd, err)
			}
			return a.outputResult(cmd, CLIResult{Command: "move", Results: CLIMove{From: from, To: to}})
		},
	}
}

func (a *app) pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove indexed files that are gone or no longer in the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()
			removed, err := e.Prune(cmd.Context())
			if err != nil {
				return a.outputError(cmd, err)
			}
			if removed == nil {
				removed = []string{}
			}
			return a.outputResult(cmd, CLIResult{Command: "prune", Results: removed, TotalCount: countOf(len(removed))})
		},
	}
}
