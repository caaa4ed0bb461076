package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jward/arbor"
	"github.com/spf13/cobra"
)

// --- Hierarchy Commands ---

// focusFlags are shared by the commands that build around a focus type.
type focusFlags struct {
	file      string
	line      int
	qualifier string
	language  string
	overlays  []string
	policy    string
	timeout   time.Duration
}

func (f *focusFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.file, "file", "", "file declaring the focus type")
	fs.IntVar(&f.line, "line", 0, "1-based line of the focus declaration (with --file)")
	fs.StringVar(&f.qualifier, "qualifier", "", "package or namespace of the focus type")
	fs.StringVar(&f.language, "language", "", "language whose root type the focus names (e.g. java for Object)")
	fs.StringArrayVar(&f.overlays, "overlay", nil, "unsaved content as path=file; file replaces path for this build (repeatable)")
	fs.StringVar(&f.policy, "policy", "wait", "index waiting policy: wait|immediate|cancel")
	fs.DurationVar(&f.timeout, "timeout", 0, "cancel the build after this long; the partial result is still printed")
}

// focus builds the Focus from the optional name argument and flags.
func (f *focusFlags) focus(args []string) (arbor.Focus, error) {
	var fc arbor.Focus
	if len(args) > 0 {
		fc.Name = args[0]
	}
	if f.file != "" {
		p, err := resolveFilePath(f.file)
		if err != nil {
			return fc, err
		}
		fc.Path = p
	}
	if fc.Name == "" && fc.Path == "" {
		return fc, errors.New("a type name or --file is required")
	}
	if f.line < 0 {
		return fc, fmt.Errorf("invalid --line %d", f.line)
	}
	fc.Line = f.line
	fc.Qualifier = f.qualifier
	fc.Language = f.language
	return fc, nil
}

func (f *focusFlags) options(logger *slog.Logger) (arbor.BuildOptions, error) {
	var opts arbor.BuildOptions
	policy, err := arbor.ParsePolicy(f.policy)
	if err != nil {
		return opts, err
	}
	opts.Policy = policy
	for _, o := range f.overlays {
		path, src, err := parseOverlay(o)
		if err != nil {
			return opts, err
		}
		wc, err := arbor.ReadWorkingCopy(path, src)
		if err != nil {
			return opts, err
		}
		opts.WorkingCopies = append(opts.WorkingCopies, wc)
	}
	opts.Monitor = &logMonitor{logger: logger}
	return opts, nil
}

// context applies --timeout to ctx.
func (f *focusFlags) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout > 0 {
		return context.WithTimeout(ctx, f.timeout)
	}
	return context.WithCancel(ctx)
}

// parseOverlay splits a path=file overlay flag.
func parseOverlay(s string) (path, src string, err error) {
	path, src, ok := strings.Cut(s, "=")
	if !ok || path == "" || src == "" {
		return "", "", fmt.Errorf("invalid --overlay %q: want path=file", s)
	}
	return path, src, nil
}

func (a *app) hierarchyCmd() *cobra.Command {
	var ff focusFlags
	var supertypesOnly bool
	cmd := &cobra.Command{
		Use:   "hierarchy [<type>]",
		Short: "Build the type hierarchy of a type",
		Long:  "Finds every supertype and every subtype of the focus type across the visible projects.\nThe focus is named by <type>, by --file and --line, or both.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := ff.focus(args)
			if err != nil {
				return a.outputError(cmd, err)
			}
			opts, err := ff.options(a.logger)
			if err != nil {
				return a.outputError(cmd, err)
			}
			opts.SupertypesOnly = supertypesOnly
			opts.OnState = func(st arbor.BuildState) {
				a.logger.Debug("build state", "state", st)
			}

			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()

			ctx, cancel := ff.context(cmd.Context())
			defer cancel()
			h, err := e.Hierarchy(ctx, fc, opts)
			if err != nil {
				return a.outputError(cmd, err)
			}
			if h.Cancelled() {
				a.logger.Warn("hierarchy build cancelled; result is partial")
			}
			return a.outputResult(cmd, CLIResult{Command: "hierarchy", Results: toCLIHierarchy(h)})
		},
	}
	ff.register(cmd)
	cmd.Flags().BoolVar(&supertypesOnly, "supertypes-only", false, "walk supertypes and skip the subtype search")
	return cmd
}

// toCLIHierarchy lays the hierarchy out around its focus.
func toCLIHierarchy(h *arbor.Hierarchy) CLIHierarchy {
	out := CLIHierarchy{
		Focus:      h.Focus,
		Supertypes: h.AllSupertypes(h.Focus),
		Candidates: h.Candidates(),
		Cancelled:  h.Cancelled(),
	}
	if out.Supertypes == nil {
		out.Supertypes = []arbor.TypeHandle{}
	}
	visited := map[string]bool{h.Focus.Key(): true}
	out.Subtypes = subtypeNodes(h, h.Focus, visited)
	if out.Subtypes == nil {
		out.Subtypes = []CLITypeNode{}
	}
	out.Edges = []CLIEdge{}
	for _, e := range h.Edges() {
		out.Edges = append(out.Edges, CLIEdge{Sub: e.Sub.Key(), Super: e.Super.Key()})
	}
	return out
}

// subtypeNodes expands t's subtypes depth-first. A type reached twice
// through multiple inheritance is listed under its first parent only.
func subtypeNodes(h *arbor.Hierarchy, t arbor.TypeHandle, visited map[string]bool) []CLITypeNode {
	var nodes []CLITypeNode
	for _, sub := range h.Subtypes(t) {
		if visited[sub.Key()] {
			continue
		}
		visited[sub.Key()] = true
		nodes = append(nodes, CLITypeNode{Type: sub, Subtypes: subtypeNodes(h, sub, visited)})
	}
	return nodes
}

func (a *app) candidatesCmd() *cobra.Command {
	var ff focusFlags
	cmd := &cobra.Command{
		Use:   "candidates [<type>]",
		Short: "List the files that may declare subtypes of a type",
		Long:  "Runs only the index search of a hierarchy build and lists the candidate documents without resolving them.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := ff.focus(args)
			if err != nil {
				return a.outputError(cmd, err)
			}
			opts, err := ff.options(a.logger)
			if err != nil {
				return a.outputError(cmd, err)
			}
			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()

			ctx, cancel := ff.context(cmd.Context())
			defer cancel()
			cs, err := e.Candidates(ctx, fc, opts)
			if err != nil {
				return a.outputError(cmd, err)
			}
			if cs.Candidates == nil {
				cs.Candidates = []arbor.Candidate{}
			}
			return a.outputResult(cmd, CLIResult{Command: "candidates", Results: cs, TotalCount: countOf(len(cs.Candidates))})
		},
	}
	ff.register(cmd)
	return cmd
}

// logMonitor reports build progress to the debug log.
type logMonitor struct {
	logger *slog.Logger
	task   string
	total  int
	worked int
}

func (m *logMonitor) BeginTask(name string, total int) {
	m.task, m.total = name, total
	m.logger.Debug("begin", "task", name, "total", total)
}

func (m *logMonitor) Worked(n int) { m.worked += n }

func (m *logMonitor) Done() {
	m.logger.Debug("done", "task", m.task, "worked", m.worked, "total", m.total)
}

func (m *logMonitor) IsCancelled() bool { return false }
