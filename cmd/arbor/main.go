package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jward/arbor"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout, os.Stderr)
	err := a.root.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !a.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// app holds the flag state of one command tree so tests can run commands
// in-process.
type app struct {
	root *cobra.Command

	flagDB        string
	flagFormat    string
	flagConfig    string
	flagVerbose   bool
	flagLanguages string
	flagSerial    bool

	// errorHandled is set by outputError so main() doesn't double-print.
	errorHandled bool

	logger *slog.Logger
}

func newApp(stdout, stderr io.Writer) *app {
	a := &app{}
	a.root = &cobra.Command{
		Use:           "arbor",
		Short:         "Index-based type hierarchies",
		Long:          "Arbor indexes declared supertypes with tree-sitter and Risor scripts into SQLite, and builds type hierarchies from the index.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if a.flagVerbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return validateFormat(a.flagFormat)
		},
	}
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)

	pf := a.root.PersistentFlags()
	pf.StringVar(&a.flagDB, "db", "", "database path (default: workspace db or .arbor/index.db under the workspace root)")
	pf.StringVar(&a.flagFormat, "format", "json", "output format: json|text")
	pf.StringVar(&a.flagConfig, "config", "", "workspace file (default: discover arbor.toml from the current directory)")
	pf.BoolVarP(&a.flagVerbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&a.flagLanguages, "languages", "", "comma-separated language filter (e.g. java,python)")
	pf.BoolVar(&a.flagSerial, "serial", false, "index files one at a time")

	a.root.AddCommand(
		a.indexCmd(),
		a.reconcileCmd(),
		a.removeCmd(),
		a.moveCmd(),
		a.pruneCmd(),
		a.hierarchyCmd(),
		a.candidatesCmd(),
		a.typesCmd(),
		a.outlineCmd(),
		a.statsCmd(),
		a.watchCmd(),
	)
	return a
}

// loadWorkspace reads --config, or discovers the workspace governing the
// current directory.
func (a *app) loadWorkspace() (*arbor.Workspace, error) {
	if a.flagConfig != "" {
		return arbor.LoadWorkspace(a.flagConfig)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	return arbor.DiscoverWorkspace(cwd)
}

// openEngine loads the workspace and opens its index.
func (a *app) openEngine() (*arbor.Engine, error) {
	ws, err := a.loadWorkspace()
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(a.flagDB, ws)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	opts := []arbor.Option{arbor.WithLogger(a.logger), arbor.WithParallel(!a.flagSerial)}
	if langs := splitList(a.flagLanguages); len(langs) > 0 {
		opts = append(opts, arbor.WithLanguages(langs...))
	}
	e, err := arbor.New(dbPath, ws, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

// resolveDBPath returns the --db path, else the workspace's configured
// database, else .arbor/index.db under the workspace root.
func resolveDBPath(flag string, ws *arbor.Workspace) string {
	p := flag
	if p == "" {
		p = ws.DB
	}
	if p == "" {
		return filepath.Join(ws.Root, ".arbor", "index.db")
	}
	if filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolveFilePath converts a file argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	if file == "" {
		return "", errors.New("empty file path")
	}
	if filepath.IsAbs(file) {
		return filepath.Clean(file), nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}
