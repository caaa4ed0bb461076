// Package workspace models the projects a hierarchy is computed over.
//
// A workspace is a set of named projects. Each project owns one or more
// source fragments (source roots) whose declaration order is the fragment
// position used to order resolution, and may require other projects. A
// type declared in project P is visible from project Q when Q is P or Q
// transitively requires P.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrOutsideWorkspace is returned by Locate for paths that no project
// fragment contains.
var ErrOutsideWorkspace = errors.New("workspace: path is outside every project fragment")

// Fragment is a source root inside a project.
type Fragment struct {
	Dir      string
	Position int
}

// Project is a named set of source fragments that may require other
// projects. A project sees its own types and those of its requirements.
type Project struct {
	Name      string
	Dir       string
	Fragments []Fragment
	Requires  []string
	Exclude   []string
}

// Script binds file extensions to a Risor extraction script.
type Script struct {
	Language   string
	Extensions []string
	Path       string
	Roots      []string
}

// Workspace is the set of projects, extraction scripts and settings a
// hierarchy is computed over.
type Workspace struct {
	Root     string
	Projects []*Project
	Scripts  []Script

	// DB is the index database path from the configuration file, if any.
	DB string

	byName map[string]*Project
}

// Location is the result of Locate.
type Location struct {
	Project  *Project
	Fragment Fragment
	// Element is the file name without extension.
	Element string
}

// Single returns a workspace with one project rooted at root whose only
// fragment is root itself.
func Single(root string) *Workspace {
	root = filepath.Clean(root)
	ws := &Workspace{
		Root: root,
		Projects: []*Project{{
			Name:      filepath.Base(root),
			Dir:       root,
			Fragments: []Fragment{{Dir: root, Position: 0}},
		}},
	}
	ws.index()
	return ws
}

func (w *Workspace) index() {
	w.byName = make(map[string]*Project, len(w.Projects))
	for _, p := range w.Projects {
		w.byName[p.Name] = p
	}
}

// Project returns the project called name, or nil.
func (w *Workspace) Project(name string) *Project {
	return w.byName[name]
}

// ProjectNames returns every project name in declaration order.
func (w *Workspace) ProjectNames() []string {
	names := make([]string, len(w.Projects))
	for i, p := range w.Projects {
		names[i] = p.Name
	}
	return names
}

// Locate finds the project and fragment containing path. The deepest
// matching fragment wins, so nested source roots resolve to the inner one.
func (w *Workspace) Locate(path string) (*Location, error) {
	path = filepath.Clean(path)
	var best *Location
	bestLen := -1
	for _, p := range w.Projects {
		for _, f := range p.Fragments {
			if !within(f.Dir, path) || len(f.Dir) <= bestLen {
				continue
			}
			best = &Location{Project: p, Fragment: f}
			bestLen = len(f.Dir)
		}
	}
	if best == nil {
		return nil, fmt.Errorf("locate %s: %w", path, ErrOutsideWorkspace)
	}
	if best.Project.Excluded(path) {
		return nil, fmt.Errorf("locate %s: excluded by project %s: %w", path, best.Project.Name, ErrOutsideWorkspace)
	}
	base := filepath.Base(path)
	best.Element = strings.TrimSuffix(base, filepath.Ext(base))
	return best, nil
}

func within(dir, path string) bool {
	if dir == path {
		return true
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Visible reports whether types declared in project to can be referenced
// from project from.
func (w *Workspace) Visible(from, to string) bool {
	if from == to {
		return true
	}
	_, ok := w.closure(from)[to]
	return ok
}

// VisibleFrom returns the sorted names of the projects whose types can be
// referenced from project name, including name itself.
func (w *Workspace) VisibleFrom(name string) []string {
	return sortedKeys(w.closure(name))
}

// Dependents returns the sorted names of the projects that can see the
// types of project name, including name itself. Subtypes of a type
// declared in name can only live in these projects.
func (w *Workspace) Dependents(name string) []string {
	out := map[string]struct{}{}
	for _, p := range w.Projects {
		if _, ok := w.closure(p.Name)[name]; ok {
			out[p.Name] = struct{}{}
		}
	}
	return sortedKeys(out)
}

// closure returns the transitive Requires closure of name, including name.
// Unknown names yield an empty set.
func (w *Workspace) closure(name string) map[string]struct{} {
	seen := map[string]struct{}{}
	if w.byName[name] == nil {
		return seen
	}
	stack := []string{name}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		if p := w.byName[n]; p != nil {
			stack = append(stack, p.Requires...)
		}
	}
	return seen
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
