package arbor

import (
	"context"
	"errors"
	"sort"

	"github.com/jward/arbor/internal/index"
)

// MaxTicks bounds the progress reported by the subtype search so that
// deep hierarchies do not exhaust their share of the progress monitor.
const MaxTicks = 800

// factIndex is the part of *index.Index a build reads.
type factIndex interface {
	Query(ctx context.Context, pattern index.Pattern, scope []string, policy index.Policy, visit func(index.Match) bool) error
	Declarations(ctx context.Context, simpleName string, scope []string, policy index.Policy) ([]index.Match, error)
}

// Candidate is a document that may declare a subtype of the focus type.
type Candidate struct {
	Path    string `json:"path"`
	Project string `json:"project,omitempty"`
	// LocalOrAnonymous is set when a matching declaration in the document
	// is local or anonymous.
	LocalOrAnonymous bool `json:"local_or_anonymous,omitempty"`
}

// candidateSet only grows.
type candidateSet struct {
	order  []string
	byPath map[string]*Candidate
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byPath: map[string]*Candidate{}}
}

func (c *candidateSet) add(path, project string, local bool) {
	if cand, ok := c.byPath[path]; ok {
		cand.LocalOrAnonymous = cand.LocalOrAnonymous || local
		return
	}
	c.byPath[path] = &Candidate{Path: path, Project: project, LocalOrAnonymous: local}
	c.order = append(c.order, path)
}

func (c *candidateSet) contains(path string) bool {
	_, ok := c.byPath[path]
	return ok
}

func (c *candidateSet) list() []Candidate {
	out := make([]Candidate, 0, len(c.order))
	for _, p := range c.order {
		out = append(out, *c.byPath[p])
	}
	return out
}

// searchSubtypes collects the documents that may declare a direct or
// transitive subtype of focus, using index facts and the working copy
// overlay only. It reports whether the search was cancelled; an index
// failure ends the search early but is not a cancellation.
func (s *session) searchSubtypes(ctx context.Context, focus TypeHandle, mon Monitor) (*candidateSet, bool) {
	cands := newCandidateSet()
	beginTask(mon, "searching subtypes of "+focus.Name, MaxTicks)
	defer done(mon)

	scope := s.searchScope(focus.Project)
	queue := []string{focus.Name}
	queued := map[string]bool{focus.Name: true}
	overlayPaths := s.overlayPaths()
	ticks := 0

	for len(queue) > 0 {
		if ctx.Err() != nil || isCancelled(mon) {
			s.logger.Debug("subtype search cancelled", "pending", len(queue), "candidates", len(cands.order))
			return cands, true
		}
		name := queue[0]
		queue = queue[1:]

		root := s.reg.IsRoot(focus.Language, name)
		pattern := index.SuperType(name)
		if root {
			pattern = index.All
		}
		accept := func(path, project string, local bool, simple string) {
			cands.add(path, project, local)
			if local || root || queued[simple] {
				return
			}
			queued[simple] = true
			queue = append(queue, simple)
		}

		err := s.idx.Query(ctx, pattern, scope, s.policy, func(m index.Match) bool {
			if _, shadowed := s.overlay[m.Path]; !shadowed {
				accept(m.Path, m.Project, m.LocalOrAnonymous, m.Ref.SimpleName)
			}
			return true
		})
		for _, path := range overlayPaths {
			project := s.project(path)
			if !inScope(scope, project) {
				continue
			}
			for _, ref := range s.overlay[path].TypeRefs() {
				if root || ref.SuperName == name {
					accept(path, project, ref.IsLocal(), ref.SimpleName)
				}
			}
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return cands, true
			}
			s.logger.Warn("index unavailable, subtype search stopped", "name", name, "error", err)
			return cands, false
		}

		if ticks < MaxTicks {
			worked(mon, 1)
			ticks++
		}
		if root {
			break
		}
	}
	return cands, false
}

// searchScope is the set of projects that can see project, or nil (every
// project) for types outside the workspace.
func (s *session) searchScope(project string) []string {
	if project == "" || s.ws.Project(project) == nil {
		return nil
	}
	return s.ws.Dependents(project)
}

func inScope(scope []string, project string) bool {
	if scope == nil {
		return true
	}
	i := sort.SearchStrings(scope, project)
	return i < len(scope) && scope[i] == project
}
