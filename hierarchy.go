package arbor

import (
	"fmt"
	"strconv"

	"github.com/jward/arbor/internal/extract"
	"github.com/jward/arbor/internal/store"
)

// TypeHandle identifies a resolved type declaration.
type TypeHandle struct {
	Path      string `json:"path"`
	Project   string `json:"project,omitempty"`
	Language  string `json:"language,omitempty"`
	Name      string `json:"name"`
	Qualifier string `json:"qualifier,omitempty"`
	Enclosing string `json:"enclosing,omitempty"`
	Category  string `json:"category,omitempty"`
	Local     bool   `json:"local,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`
	Line      int    `json:"line"`
}

// Key identifies the declaration independently of where the handle was
// built from. Local types are only unique per line.
func (h TypeHandle) Key() string {
	if h.Local || h.Anonymous {
		return h.Path + "#" + h.Name + "@" + strconv.Itoa(h.Line)
	}
	return h.Path + "#" + h.QualifiedName()
}

// QualifiedName is the name including enclosing types.
func (h TypeHandle) QualifiedName() string {
	if h.Enclosing == "" {
		return h.Name
	}
	return h.Enclosing + "." + h.Name
}

func (h TypeHandle) String() string {
	name := h.QualifiedName()
	if h.Anonymous {
		name = "<anonymous>"
	}
	if h.Qualifier != "" {
		name = h.Qualifier + "." + name
	}
	return fmt.Sprintf("%s (%s:%d)", name, h.Path, h.Line)
}

func handleForDecl(u *extract.Unit, project string, td *extract.TypeDecl) TypeHandle {
	return TypeHandle{
		Path:      u.Path,
		Project:   project,
		Language:  u.Language,
		Name:      td.Name,
		Qualifier: td.Qualifier,
		Enclosing: td.Enclosing,
		Category:  td.Category,
		Local:     td.Local,
		Anonymous: td.Anonymous,
		Line:      td.Line,
	}
}

func handleForMatch(m *store.TypeRefMatch) TypeHandle {
	h := TypeHandle{
		Path:      m.Path,
		Project:   m.Project,
		Language:  m.Language,
		Name:      m.SimpleName,
		Qualifier: m.Qualifier,
		Enclosing: m.EnclosingType,
		Line:      m.Line,
	}
	if m.IsLocal() {
		h.Local = true
		h.Enclosing = ""
		h.Anonymous = m.SimpleName == ""
	}
	return h
}

// Edge records that Sub declares Super as a direct supertype.
type Edge struct {
	Sub   TypeHandle `json:"sub"`
	Super TypeHandle `json:"super"`
}

// Hierarchy is a directed graph of resolved types around a focus type. It
// holds the focus, its transitive supertypes and subtypes, and the direct
// supertypes of every subtype, so a subtype's other parents stay visible.
type Hierarchy struct {
	Focus TypeHandle

	order      []string
	types      map[string]TypeHandle
	supers     map[string][]string
	subs       map[string][]string
	cancelled  bool
	candidates []string
}

func newHierarchy(focus TypeHandle) *Hierarchy {
	return &Hierarchy{
		Focus:  focus,
		types:  map[string]TypeHandle{},
		supers: map[string][]string{},
		subs:   map[string][]string{},
	}
}

func (h *Hierarchy) addType(t TypeHandle) {
	k := t.Key()
	old, ok := h.types[k]
	if !ok {
		h.order = append(h.order, k)
		h.types[k] = t
		return
	}
	// Handles built from parsed units carry more detail than index facts.
	if old.Category == "" && t.Category != "" {
		h.types[k] = t
	}
}

func (h *Hierarchy) addEdge(sub, super TypeHandle) {
	h.addType(sub)
	h.addType(super)
	sk, pk := sub.Key(), super.Key()
	if sk == pk {
		return
	}
	for _, s := range h.supers[sk] {
		if s == pk {
			return
		}
	}
	h.supers[sk] = append(h.supers[sk], pk)
	h.subs[pk] = append(h.subs[pk], sk)
}

func (h *Hierarchy) handles(keys []string) []TypeHandle {
	out := make([]TypeHandle, 0, len(keys))
	for _, k := range keys {
		out = append(out, h.types[k])
	}
	return out
}

// Contains reports whether t is a node of the hierarchy.
func (h *Hierarchy) Contains(t TypeHandle) bool {
	_, ok := h.types[t.Key()]
	return ok
}

// Types returns every node in insertion order.
func (h *Hierarchy) Types() []TypeHandle {
	return h.handles(h.order)
}

// Lookup returns the nodes whose simple name is name.
func (h *Hierarchy) Lookup(name string) []TypeHandle {
	var out []TypeHandle
	for _, k := range h.order {
		if t := h.types[k]; t.Name == name {
			out = append(out, t)
		}
	}
	return out
}

// Supertypes returns the direct supertypes of t.
func (h *Hierarchy) Supertypes(t TypeHandle) []TypeHandle {
	return h.handles(h.supers[t.Key()])
}

// Subtypes returns the direct subtypes of t.
func (h *Hierarchy) Subtypes(t TypeHandle) []TypeHandle {
	return h.handles(h.subs[t.Key()])
}

// AllSubtypes returns the transitive subtypes of t, nearest first.
func (h *Hierarchy) AllSubtypes(t TypeHandle) []TypeHandle {
	return h.handles(h.reach(t.Key(), h.subs))
}

// AllSupertypes returns the transitive supertypes of t, nearest first.
func (h *Hierarchy) AllSupertypes(t TypeHandle) []TypeHandle {
	return h.handles(h.reach(t.Key(), h.supers))
}

func (h *Hierarchy) reach(from string, adj map[string][]string) []string {
	seen := map[string]bool{from: true}
	queue := []string{from}
	var out []string
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		for _, n := range adj[k] {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
				queue = append(queue, n)
			}
		}
	}
	return out
}

// Edges returns every sub→super edge, ordered by sub then super insertion.
func (h *Hierarchy) Edges() []Edge {
	var out []Edge
	for _, sk := range h.order {
		for _, pk := range h.supers[sk] {
			out = append(out, Edge{Sub: h.types[sk], Super: h.types[pk]})
		}
	}
	return out
}

// Roots returns the nodes without supertypes.
func (h *Hierarchy) Roots() []TypeHandle {
	var keys []string
	for _, k := range h.order {
		if len(h.supers[k]) == 0 {
			keys = append(keys, k)
		}
	}
	return h.handles(keys)
}

// Cancelled reports whether the build was interrupted. A cancelled
// hierarchy holds what was confirmed before the interruption.
func (h *Hierarchy) Cancelled() bool {
	return h.cancelled
}

// Candidates returns the sorted document paths that were resolved.
func (h *Hierarchy) Candidates() []string {
	return h.candidates
}

// prune drops every node that is not the focus, one of its supertypes,
// one of its subtypes, or a direct supertype of one of its subtypes.
func (h *Hierarchy) prune() {
	fk := h.Focus.Key()
	if _, ok := h.types[fk]; !ok {
		return
	}
	keep := map[string]bool{fk: true}
	subs := h.reach(fk, h.subs)
	for _, k := range subs {
		keep[k] = true
	}
	for _, k := range h.reach(fk, h.supers) {
		keep[k] = true
	}
	for _, k := range subs {
		for _, p := range h.supers[k] {
			keep[p] = true
		}
	}
	var order []string
	for _, k := range h.order {
		if keep[k] {
			order = append(order, k)
		} else {
			delete(h.types, k)
		}
	}
	h.order = order
	filter := func(adj map[string][]string) {
		for k, vs := range adj {
			if !keep[k] {
				delete(adj, k)
				continue
			}
			out := vs[:0]
			for _, v := range vs {
				if keep[v] {
					out = append(out, v)
				}
			}
			adj[k] = out
		}
	}
	filter(h.supers)
	filter(h.subs)
}
