package arbor

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jward/arbor/internal/extract"
)

// nameEnv answers "which type does this name refer to" for references made
// from one project. Sources are consulted in order: lookup roots (the focus
// unit and working copies), candidate units, then index declarations from
// visible projects. A unit-backed declaration shadows index facts for the
// same path.
type nameEnv struct {
	s       *session
	project string
	visible []string
	units   []*extract.Unit
	known   map[string]bool
	cache   map[string][]TypeHandle
}

func (s *session) env(project string) *nameEnv {
	if e, ok := s.envs[project]; ok {
		return e
	}
	e := &nameEnv{
		s:       s,
		project: project,
		known:   map[string]bool{},
		cache:   map[string][]TypeHandle{},
	}
	if project != "" && s.ws.Project(project) != nil {
		e.visible = s.ws.VisibleFrom(project)
	}
	if s.focusUnit != nil && s.project(s.focusUnit.Path) == project {
		e.add(s.focusUnit)
	}
	for _, path := range s.overlayPaths() {
		if e.sees(s.project(path)) {
			e.add(s.overlay[path])
		}
	}
	s.envs[project] = e
	return e
}

func (e *nameEnv) sees(project string) bool {
	return e.visible == nil || inScope(e.visible, project)
}

func (e *nameEnv) add(u *extract.Unit) {
	if e.known[u.Path] {
		return
	}
	e.known[u.Path] = true
	e.units = append(e.units, u)
	clear(e.cache)
}

// declarations returns the non-local types called simple that code in the
// environment's project can see.
func (e *nameEnv) declarations(ctx context.Context, simple string) []TypeHandle {
	if hs, ok := e.cache[simple]; ok {
		return hs
	}
	var out []TypeHandle
	seen := map[string]bool{}
	for _, u := range e.units {
		for _, td := range u.Lookup(simple) {
			h := handleForDecl(u, e.s.project(u.Path), td)
			if !seen[h.Key()] {
				seen[h.Key()] = true
				out = append(out, h)
			}
		}
	}
	matches, err := e.s.idx.Declarations(ctx, simple, e.visible, e.s.policy)
	if err != nil {
		e.s.logger.Debug("declaration lookup failed", "name", simple, "project", e.project, "error", err)
		if ctx.Err() != nil {
			// Not cached: the walk that asked is reported as cancelled.
			return out
		}
	}
	for _, m := range matches {
		if m.LocalOrAnonymous || e.known[m.Path] {
			continue
		}
		if _, shadowed := e.s.overlay[m.Path]; shadowed {
			continue
		}
		h := handleForMatch(&m.Ref)
		if !seen[h.Key()] {
			seen[h.Key()] = true
			out = append(out, h)
		}
	}
	e.cache[simple] = out
	return out
}

// resolve maps a supertype reference written on owner, a type of unit
// from, to the declarations it can denote. Unresolvable references yield
// nothing.
func (e *nameEnv) resolve(ctx context.Context, from *extract.Unit, owner *extract.TypeDecl, ref extract.TypeName) []TypeHandle {
	if ref.Simple == "" {
		return nil
	}
	project := e.s.project(from.Path)

	// Types of the same unit that are in scope at owner win for bare names.
	if ref.Qualifier == "" {
		var same []TypeHandle
		for _, td := range from.Types() {
			if td.Name == ref.Simple && scopeSees(owner, td) {
				same = append(same, handleForDecl(from, project, td))
			}
		}
		if len(same) > 0 {
			return dedupe(same)
		}
	}

	all := e.declarations(ctx, ref.Simple)
	if len(all) == 0 {
		return nil
	}
	if ref.Qualifier != "" {
		return filterHandles(all, func(h TypeHandle) bool { return qualifierMatches(ref.Qualifier, h) })
	}

	explicit := false
	var imported []TypeHandle
	for _, imp := range from.Imports() {
		if !imp.Binds(ref.Simple) {
			continue
		}
		explicit = explicit || imp.Name != "*"
		imported = append(imported, filterHandles(all, func(h TypeHandle) bool { return sourceMatches(imp.Source, h) })...)
	}
	if len(imported) > 0 {
		return dedupe(imported)
	}
	if explicit {
		// Imported by name from outside the visible workspace.
		return nil
	}

	pkg := from.Package()
	dir := filepath.Dir(from.Path)
	if local := filterHandles(all, func(h TypeHandle) bool {
		if pkg != "" {
			return h.Qualifier == pkg
		}
		return filepath.Dir(h.Path) == dir
	}); len(local) > 0 {
		return local
	}
	if own := filterHandles(all, func(h TypeHandle) bool { return h.Project == project }); len(own) > 0 {
		return own
	}
	return all
}

// scopeSees reports whether a reference written on owner can name td
// without qualification. Local types are only visible to local types
// declared in the same or a nested enclosing type.
func scopeSees(owner, td *extract.TypeDecl) bool {
	if !td.Local {
		return true
	}
	if owner == nil || !owner.Local {
		return false
	}
	return owner.Enclosing == td.Enclosing || strings.HasPrefix(owner.Enclosing, td.Enclosing+".")
}

func filterHandles(hs []TypeHandle, keep func(TypeHandle) bool) []TypeHandle {
	var out []TypeHandle
	for _, h := range hs {
		if keep(h) {
			out = append(out, h)
		}
	}
	return out
}

func dedupe(hs []TypeHandle) []TypeHandle {
	seen := map[string]bool{}
	out := hs[:0]
	for _, h := range hs {
		if !seen[h.Key()] {
			seen[h.Key()] = true
			out = append(out, h)
		}
	}
	return out
}

// normalizeQualifier maps the namespace separators of the supported
// languages onto ".".
func normalizeQualifier(q string) string {
	q = strings.ReplaceAll(q, "::", ".")
	q = strings.ReplaceAll(q, `\`, ".")
	return strings.Trim(q, ".")
}

func qualifierMatches(q string, h TypeHandle) bool {
	q = normalizeQualifier(q)
	for _, have := range []string{normalizeQualifier(h.Qualifier), h.Enclosing} {
		if have != "" && (have == q || strings.HasSuffix(have, "."+q)) {
			return true
		}
	}
	return sourceMatchesPath(q, h.Path)
}

func sourceMatches(source string, h TypeHandle) bool {
	if source == "" {
		return false
	}
	if h.Qualifier != "" && normalizeQualifier(h.Qualifier) == normalizeQualifier(source) {
		return true
	}
	return sourceMatchesPath(source, h.Path)
}

// sourceMatchesPath reports whether an import source such as "./base",
// "pkg.mod" or "App\Models" plausibly names the document at path or the
// directory holding it.
func sourceMatchesPath(source, path string) bool {
	src := strings.Trim(source, `"'`)
	if strings.Contains(src, "/") {
		for strings.HasPrefix(src, "./") || strings.HasPrefix(src, "../") {
			src = src[strings.Index(src, "/")+1:]
		}
		src = strings.TrimSuffix(src, filepath.Ext(src))
	} else {
		src = strings.ReplaceAll(normalizeQualifier(src), ".", "/")
	}
	src = strings.Trim(src, "/")
	if src == "" {
		return false
	}
	p := filepath.ToSlash(path)
	stem := strings.TrimSuffix(p, filepath.Ext(p))
	dir := filepath.ToSlash(filepath.Dir(path))
	for _, s := range []string{stem, dir, strings.TrimSuffix(stem, "/__init__"), strings.TrimSuffix(stem, "/index")} {
		if s == src || strings.HasSuffix(s, "/"+src) {
			return true
		}
	}
	return false
}

// mergedType is one type of a unit with the supertypes of all its
// declarations. Languages such as Rust spread one type's supertypes over
// several declarations.
type mergedType struct {
	decl   *extract.TypeDecl
	supers []extract.TypeName
}

func mergeTypes(u *extract.Unit, project string) []*mergedType {
	var order []*mergedType
	byKey := map[string]*mergedType{}
	for _, td := range u.Types() {
		k := handleForDecl(u, project, td).Key()
		mt, ok := byKey[k]
		if !ok {
			mt = &mergedType{decl: td}
			byKey[k] = mt
			order = append(order, mt)
		} else if mt.decl.Category == "impl" && td.Category != "impl" {
			mt.decl = td
		}
		mt.supers = append(mt.supers, td.Supers...)
	}
	return order
}

// implicitRoot reports whether a type with no declared supertypes
// descends from the root type of its language.
func implicitRoot(td *extract.TypeDecl) bool {
	switch td.Category {
	case "interface", "trait", "module", "impl", "enum":
		return false
	}
	return true
}

// resolveUnit adds the confirmed supertype edges of every type in u.
func (s *session) resolveUnit(ctx context.Context, h *Hierarchy, env *nameEnv, u *extract.Unit) {
	project := s.project(u.Path)
	focusKey := s.focus.Key()
	focusIsRoot := s.reg.IsRoot(s.focus.Language, s.focus.Name)
	for _, mt := range mergeTypes(u, project) {
		sub := handleForDecl(u, project, mt.decl)
		if sub.Key() == focusKey {
			h.addType(sub)
		}
		for _, ref := range mt.supers {
			for _, super := range env.resolve(ctx, u, mt.decl, ref) {
				h.addEdge(sub, super)
			}
		}
		if len(mt.supers) == 0 && focusIsRoot && sub.Key() != focusKey &&
			u.Language == s.focus.Language && implicitRoot(mt.decl) {
			h.addEdge(sub, s.focus)
		}
	}
}

// resolveProject resolves the candidate documents of one project in
// (fragment position, reverse element name) order. Documents that fail to
// load are skipped.
func (s *session) resolveProject(ctx context.Context, h *Hierarchy, project string, paths []string, mon Monitor) {
	sorted := s.sortForResolution(paths)
	beginTask(mon, "resolving "+project, len(sorted))
	defer done(mon)

	env := s.env(project)
	var units []*extract.Unit
	for _, p := range sorted {
		u, err := s.load(ctx, p)
		if err != nil {
			s.logger.Debug("skipping candidate", "path", p, "error", err)
			worked(mon, 1)
			continue
		}
		env.add(u)
		units = append(units, u)
	}
	for _, u := range units {
		s.resolveUnit(ctx, h, env, u)
		worked(mon, 1)
	}
}

func (s *session) sortForResolution(paths []string) []string {
	type keyed struct {
		path     string
		position int
		element  string
	}
	ks := make([]keyed, 0, len(paths))
	for _, p := range paths {
		k := keyed{path: p, position: int(^uint(0) >> 1), element: filepath.Base(p)}
		if loc, err := s.ws.Locate(p); err == nil {
			k.position = loc.Fragment.Position
			k.element = loc.Element
		}
		ks = append(ks, k)
	}
	sort.SliceStable(ks, func(i, j int) bool {
		if ks[i].position != ks[j].position {
			return ks[i].position < ks[j].position
		}
		return ks[i].element > ks[j].element
	})
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = k.path
	}
	return out
}

// walkSupertypes follows the declared supertype chain upwards from t
// until types without supertypes or a root type are reached. It reports
// whether it stopped early because ctx or mon was cancelled.
func (s *session) walkSupertypes(ctx context.Context, h *Hierarchy, t TypeHandle, mon Monitor) bool {
	queue := []TypeHandle{t}
	seen := map[string]bool{}
	for len(queue) > 0 {
		if ctx.Err() != nil || isCancelled(mon) {
			return true
		}
		cur := queue[0]
		queue = queue[1:]
		if seen[cur.Key()] {
			continue
		}
		seen[cur.Key()] = true
		worked(mon, 1)
		if s.reg.IsRoot(cur.Language, cur.Name) {
			continue
		}
		u, err := s.load(ctx, cur.Path)
		if err != nil {
			s.logger.Debug("cannot load supertype", "type", cur.Name, "path", cur.Path, "error", err)
			continue
		}
		env := s.env(cur.Project)
		for _, mt := range mergeTypes(u, cur.Project) {
			sub := handleForDecl(u, cur.Project, mt.decl)
			if sub.Key() != cur.Key() {
				continue
			}
			h.addType(sub)
			for _, ref := range mt.supers {
				for _, super := range env.resolve(ctx, u, mt.decl, ref) {
					h.addEdge(sub, super)
					queue = append(queue, super)
				}
			}
		}
	}
	return ctx.Err() != nil
}
