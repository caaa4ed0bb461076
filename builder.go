package arbor

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/jward/arbor/internal/extract"
	"github.com/jward/arbor/internal/index"
	"github.com/jward/arbor/internal/workspace"
)

// BuildState is a phase of a hierarchy build.
type BuildState int

const (
	StateIdle BuildState = iota
	StateSearchingCandidates
	StateBuildingSupertypes
	StateResolvingProjects
	StateFinalizing
	StateDone
)

func (s BuildState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearchingCandidates:
		return "searching-candidates"
	case StateBuildingSupertypes:
		return "building-supertypes"
	case StateResolvingProjects:
		return "resolving-projects"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Share of the build's progress given to the subtype search.
const (
	searchShareRoot  = 5
	searchShareOther = 80
	totalWork        = 100
)

// BuildOptions controls one hierarchy build.
type BuildOptions struct {
	// SupertypesOnly walks the declared supertype chain of the focus and
	// skips the subtype search.
	SupertypesOnly bool
	// WorkingCopies shadow indexed and on-disk content for this build.
	WorkingCopies []WorkingCopy
	Policy        index.Policy
	Monitor       Monitor
	// OnState, when set, observes every state transition.
	OnState func(BuildState)
}

type loaded struct {
	unit *extract.Unit
	err  error
}

// session owns every cache of a single build. Nothing in it outlives the
// build, so concurrent builds share nothing but the index.
type session struct {
	ws     *workspace.Workspace
	idx    factIndex
	reg    *extract.Registry
	policy index.Policy
	logger *slog.Logger

	focus     TypeHandle
	focusUnit *extract.Unit

	overlay      map[string]*extract.Unit
	overlayOrder []string
	units        map[string]loaded
	envs         map[string]*nameEnv
	projects     map[string]string
}

func newSession(ws *workspace.Workspace, idx factIndex, reg *extract.Registry, policy index.Policy, logger *slog.Logger) *session {
	return &session{
		ws:       ws,
		idx:      idx,
		reg:      reg,
		policy:   policy,
		logger:   logger.With("build", uuid.NewString()),
		overlay:  map[string]*extract.Unit{},
		units:    map[string]loaded{},
		envs:     map[string]*nameEnv{},
		projects: map[string]string{},
	}
}

// project returns the name of the project owning path, or "" when the
// path is outside the workspace.
func (s *session) project(path string) string {
	if p, ok := s.projects[path]; ok {
		return p
	}
	var name string
	if loc, err := s.ws.Locate(path); err == nil {
		name = loc.Project.Name
	}
	s.projects[path] = name
	return name
}

type builder struct {
	*session
	opts  BuildOptions
	state BuildState
}

func (b *builder) setState(st BuildState) {
	b.logger.Debug("build state", "from", b.state, "to", st, "focus", b.focus.Name)
	b.state = st
	if b.opts.OnState != nil {
		b.opts.OnState(st)
	}
}

// build computes the hierarchy of the session's focus. It never fails:
// cancellation and index unavailability produce a partial hierarchy.
func (b *builder) build(ctx context.Context) *Hierarchy {
	mon := NewContextMonitor(ctx, b.opts.Monitor)
	beginTask(mon, "building hierarchy of "+b.focus.Name, totalWork)
	defer done(mon)

	h := newHierarchy(b.focus)
	if b.opts.SupertypesOnly {
		b.setState(StateBuildingSupertypes)
		if b.walkSupertypes(ctx, h, b.focus, NewSubMonitor(mon, totalWork)) {
			h.cancelled = true
		}
		b.finalize(ctx, h)
		return h
	}

	b.setState(StateSearchingCandidates)
	share := searchShareOther
	if b.reg.IsRoot(b.focus.Language, b.focus.Name) {
		share = searchShareRoot
	}
	var cands *candidateSet
	var cancelled bool
	if b.focus.Local {
		// Local types cannot be named outside their unit.
		cands = newCandidateSet()
		worked(mon, share)
	} else {
		cands, cancelled = b.searchSubtypes(ctx, b.focus, NewSubMonitor(mon, share))
	}
	if cancelled {
		h.cancelled = true
	}

	paths := b.candidatePaths(cands)
	h.candidates = paths

	// Discovered candidates are resolved to completion; a cancellation
	// arriving from here on only marks the result.
	b.setState(StateResolvingProjects)
	rctx := context.WithoutCancel(ctx)
	order, groups := b.groupByProject(paths)
	remaining := totalWork - share
	for _, project := range order {
		if ctx.Err() != nil || isCancelled(mon) {
			h.cancelled = true
		}
		batch := groups[project]
		if b.focus.Local {
			if project != b.focus.Project {
				continue
			}
			batch = []string{b.focus.Path}
		}
		sub := NewSubMonitor(mon, remaining*len(groups[project])/max(len(paths), 1))
		b.resolveProject(rctx, h, project, batch, sub)
	}
	if ctx.Err() != nil {
		h.cancelled = true
	}

	b.finalize(rctx, h)
	return h
}

// finalize runs to completion even when the build was cancelled.
func (b *builder) finalize(ctx context.Context, h *Hierarchy) {
	b.setState(StateFinalizing)
	ctx = context.WithoutCancel(ctx)
	if !h.Contains(b.focus) && b.focus.Path != "" {
		b.resolveProject(ctx, h, b.focus.Project, []string{b.focus.Path}, nil)
	}
	if !b.opts.SupertypesOnly {
		b.walkSupertypes(ctx, h, b.focus, nil)
	}
	if !h.Contains(b.focus) {
		h.addType(b.focus)
	}
	h.prune()
	b.setState(StateDone)
}

// candidatePaths merges the searched candidates with the working copies
// and the focus document, sorted and without duplicates.
func (b *builder) candidatePaths(cands *candidateSet) []string {
	paths := append([]string(nil), cands.order...)
	paths = append(paths, b.overlayPaths()...)
	if b.focus.Path != "" {
		paths = append(paths, b.focus.Path)
	}
	sort.Strings(paths)
	out := paths[:0]
	for i, p := range paths {
		if i > 0 && paths[i-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}

// groupByProject partitions sorted paths by owning project, keeping the
// order in which projects first appear. Paths outside the workspace are
// dropped.
func (b *builder) groupByProject(paths []string) ([]string, map[string][]string) {
	var order []string
	groups := map[string][]string{}
	for _, p := range paths {
		project := b.project(p)
		if project == "" {
			b.logger.Debug("candidate outside workspace", "path", p)
			continue
		}
		if _, ok := groups[project]; !ok {
			order = append(order, project)
		}
		groups[project] = append(groups[project], p)
	}
	return order, groups
}
