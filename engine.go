package arbor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jward/arbor/internal/extract"
	"github.com/jward/arbor/internal/index"
	arborrt "github.com/jward/arbor/internal/runtime"
	"github.com/jward/arbor/internal/store"
	"github.com/jward/arbor/internal/workspace"
)

// Engine ties a workspace to its supertype index: it keeps the index in
// step with the files on disk and builds type hierarchies from it.
type Engine struct {
	ws        *workspace.Workspace
	index     *index.Index
	registry  *extract.Registry
	runtime   *arborrt.Runtime
	scriptsFS fs.FS
	languages []string
	logger    *slog.Logger
	metrics   prometheus.Registerer

	// useParallel enables the parallel extraction pipeline.
	useParallel bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine will process.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = languages
	}
}

// WithParallel controls parallel extraction. When true (default),
// IndexFiles extracts files on a bounded worker pool and commits them one
// by one through the index queue. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithLogger sets the structured logger used by the Engine, its index and
// extraction scripts.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetricsRegistry registers index metrics on reg.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = reg
	}
}

// WithScriptsFS loads the workspace's extraction scripts from fsys instead
// of from disk. Script paths are then taken relative to the workspace
// root.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithRegistry replaces the built-in extractors. Script extractors from
// the workspace are still added on top.
func WithRegistry(reg *extract.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// New creates an Engine for ws backed by an index database at dbPath. An
// empty dbPath falls back to the database named by the workspace file.
func New(dbPath string, ws *workspace.Workspace, opts ...Option) (*Engine, error) {
	if ws == nil {
		return nil, errors.New("arbor: nil workspace")
	}
	e := &Engine{
		ws:          ws,
		logger:      slog.Default(),
		useParallel: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if dbPath == "" {
		dbPath = ws.DB
	}
	if dbPath == "" {
		return nil, errors.New("arbor: no database path")
	}

	idx, err := index.Open(dbPath, index.WithLogger(e.logger), index.WithMetricsRegistry(e.metrics))
	if err != nil {
		return nil, fmt.Errorf("arbor: %w", err)
	}
	e.index = idx

	if e.registry == nil {
		e.registry = extract.DefaultRegistry()
	}
	rtOpts := []arborrt.RuntimeOption{arborrt.WithRuntimeLogger(e.logger)}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, arborrt.WithRuntimeFS(e.scriptsFS))
	}
	e.runtime = arborrt.NewRuntime(ws.Root, rtOpts...)
	for _, s := range ws.Scripts {
		if e.scriptsFS != nil {
			if rel, err := filepath.Rel(ws.Root, s.Path); err == nil {
				s.Path = filepath.ToSlash(rel)
			}
		}
		e.registry.Register(arborrt.NewScriptExtractor(e.runtime, s))
	}
	if e.languages != nil {
		e.registry = e.registry.Restrict(e.languages)
	}
	return e, nil
}

// Close drains pending index work and releases the database.
func (e *Engine) Close() error {
	return e.index.Close()
}

// Workspace returns the Engine's workspace.
func (e *Engine) Workspace() *Workspace {
	return e.ws
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.index.Store()
}

// Query returns a new QueryBuilder over the index.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.index.Store()}
}

// Languages lists the languages the Engine extracts.
func (e *Engine) Languages() []string {
	return e.registry.Languages()
}

// fingerprint identifies the extractor configuration. A change forces
// every file to be re-extracted.
func (e *Engine) fingerprint() string {
	var b strings.Builder
	for _, lang := range e.registry.Languages() {
		b.WriteString(lang)
		b.WriteByte(0)
	}
	scripts := append([]workspace.Script(nil), e.ws.Scripts...)
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Path < scripts[j].Path })
	for _, s := range scripts {
		path := s.Path
		if e.scriptsFS != nil {
			if rel, err := filepath.Rel(e.ws.Root, s.Path); err == nil {
				path = filepath.ToSlash(rel)
			}
		}
		src, err := e.runtime.LoadScript(path)
		if err != nil {
			continue
		}
		b.WriteString(path)
		b.WriteString(src)
	}
	return store.ContentHash([]byte(b.String()))
}

// ExtractorsChanged reports whether the extractor configuration differs
// from the one that built the current index.
func (e *Engine) ExtractorsChanged() bool {
	stored, err := e.index.Store().GetMetadata("extractors")
	if err != nil || stored == "" {
		return true
	}
	return stored != e.fingerprint()
}

// IndexWorkspace indexes every supported file of every project.
func (e *Engine) IndexWorkspace(ctx context.Context) error {
	paths, err := e.ws.AllFiles(e.registry.Supports)
	if err != nil {
		return fmt.Errorf("arbor: list workspace files: %w", err)
	}
	return e.IndexFiles(ctx, paths)
}

// IndexFiles brings the index up to date for paths. Unchanged files (same
// content hash) are skipped unless the extractor configuration changed.
// Files outside the workspace or in unsupported languages are ignored.
// Errors on individual files are collected; processing continues.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	force := e.ExtractorsChanged()
	var err error
	if e.useParallel {
		err = e.indexFilesParallel(ctx, paths, force)
	} else {
		err = e.indexFilesSerial(ctx, paths, force)
	}
	if err == nil && force {
		if serr := e.index.Store().SetMetadata("extractors", e.fingerprint()); serr != nil {
			e.logger.Warn("cannot record extractor fingerprint", "error", serr)
		}
	}
	return err
}

func (e *Engine) indexFilesSerial(ctx context.Context, paths []string, force bool) error {
	var errs []error
	for _, path := range paths {
		item, err := e.prepareFile(ctx, path, force)
		if err == nil && item != nil {
			err = e.extractFile(ctx, item)
			if err == nil {
				err = e.index.Reconcile(ctx, item.batch)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// workItem holds what extraction of one file needs.
type workItem struct {
	path      string
	src       []byte
	doc       store.Document
	extractor extract.Extractor
	unit      *extract.Unit
	batch     *store.Batch
}

// prepareFile locates, reads and hash-checks path. It returns nil when the
// file needs no extraction.
func (e *Engine) prepareFile(ctx context.Context, path string, force bool) (*workItem, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	ext, err := e.registry.ForPath(path)
	if errors.Is(err, extract.ErrUnsupportedLanguage) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	loc, err := e.ws.Locate(path)
	if errors.Is(err, workspace.ErrOutsideWorkspace) {
		e.logger.Debug("skipping file outside workspace", "path", path)
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	hash := store.ContentHash(content)
	if !force {
		existing, err := e.index.Document(ctx, path)
		if err == nil && existing.Hash == hash && existing.Project == loc.Project.Name {
			return nil, nil
		}
	}
	return &workItem{
		path: path,
		src:  content,
		doc: store.Document{
			Path:        path,
			Project:     loc.Project.Name,
			Fragment:    loc.Fragment.Dir,
			Language:    ext.Language(),
			Hash:        hash,
			LastIndexed: time.Now(),
		},
		extractor: ext,
	}, nil
}

func (e *Engine) extractFile(ctx context.Context, item *workItem) error {
	u, err := item.extractor.Extract(ctx, item.path, item.src)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	batch, err := u.Batch(item.doc)
	if err != nil {
		return err
	}
	item.unit = u
	item.batch = batch
	return nil
}

// ReconcileResult describes how one document's facts changed. Names are
// simple type names; Affected lists other documents declaring a subtype of
// an added, removed or changed type.
type ReconcileResult struct {
	Path      string   `json:"path"`
	Unchanged bool     `json:"unchanged,omitempty"`
	Added     []string `json:"added,omitempty"`
	Removed   []string `json:"removed,omitempty"`
	Changed   []string `json:"changed,omitempty"`
	Affected  []string `json:"affected,omitempty"`
}

// Reconcile re-extracts path and replaces its facts in the index in one
// step. A path that no longer exists, left the workspace or is no longer
// supported is removed instead.
func (e *Engine) Reconcile(ctx context.Context, path string) (*ReconcileResult, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", path, err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return e.Remove(ctx, path)
	}
	item, err := e.prepareFile(ctx, path, false)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", path, err)
	}
	if item == nil {
		if !e.registry.Supports(path) || !e.located(path) {
			return e.Remove(ctx, path)
		}
		return &ReconcileResult{Path: path, Unchanged: true}, nil
	}

	old, err := e.storedRefs(path)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", path, err)
	}
	if err := e.extractFile(ctx, item); err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", path, err)
	}
	if err := e.index.Reconcile(ctx, item.batch); err != nil {
		return nil, err
	}
	res := diffFacts(path, old, item.unit.TypeRefs())
	if err := e.affected(res); err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", path, err)
	}
	e.logger.Debug("reconciled", "path", path, "added", len(res.Added), "removed", len(res.Removed), "changed", len(res.Changed), "affected", len(res.Affected))
	return res, nil
}

// Remove drops every fact of path from the index.
func (e *Engine) Remove(ctx context.Context, path string) (*ReconcileResult, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("remove %s: %w", path, err)
	}
	old, err := e.storedRefs(path)
	if err != nil {
		return nil, fmt.Errorf("remove %s: %w", path, err)
	}
	removed, err := e.index.RemoveDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	if !removed {
		return &ReconcileResult{Path: path, Unchanged: true}, nil
	}
	res := diffFacts(path, old, nil)
	if err := e.affected(res); err != nil {
		return nil, fmt.Errorf("remove %s: %w", path, err)
	}
	return res, nil
}

// Move records that the document at from now lives at to. The new file is
// re-extracted since its project or package may differ.
func (e *Engine) Move(ctx context.Context, from, to string) error {
	from, err := filepath.Abs(from)
	if err != nil {
		return fmt.Errorf("move %s: %w", from, err)
	}
	item, err := e.prepareFile(ctx, to, true)
	if err != nil {
		return fmt.Errorf("move %s: %w", from, err)
	}
	if item == nil {
		_, err := e.index.RemoveDocument(ctx, from)
		return err
	}
	if err := e.extractFile(ctx, item); err != nil {
		return fmt.Errorf("move %s: %w", from, err)
	}
	return e.index.MoveDocument(ctx, from, item.batch)
}

// Prune removes indexed documents whose files are gone, fall outside the
// workspace, or are no longer supported. It returns the removed paths.
func (e *Engine) Prune(ctx context.Context) ([]string, error) {
	docs, err := e.index.Store().Documents()
	if err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}
	var removed []string
	for _, d := range docs {
		_, statErr := os.Stat(d.Path)
		if statErr == nil && e.registry.Supports(d.Path) && e.located(d.Path) {
			continue
		}
		if _, err := e.index.RemoveDocument(ctx, d.Path); err != nil {
			return removed, fmt.Errorf("prune: %w", err)
		}
		removed = append(removed, d.Path)
	}
	return removed, nil
}

// RemoveTree drops every indexed document at or below path. It serves
// directories that were deleted or renamed as a whole, which leave no
// per-file trace to reconcile.
func (e *Engine) RemoveTree(ctx context.Context, path string) ([]*ReconcileResult, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("remove tree %s: %w", path, err)
	}
	docs, err := e.index.Store().Documents()
	if err != nil {
		return nil, fmt.Errorf("remove tree %s: %w", path, err)
	}
	prefix := path + string(filepath.Separator)
	var out []*ReconcileResult
	for _, d := range docs {
		if d.Path != path && !strings.HasPrefix(d.Path, prefix) {
			continue
		}
		res, err := e.Remove(ctx, d.Path)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (e *Engine) located(path string) bool {
	_, err := e.ws.Locate(path)
	return err == nil
}

func (e *Engine) storedRefs(path string) ([]store.TypeRef, error) {
	doc, err := e.index.Store().DocumentByPath(path)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	refs, err := e.index.Store().TypeRefsByDocument(doc.ID)
	if err != nil {
		return nil, err
	}
	out := make([]store.TypeRef, len(refs))
	for i, r := range refs {
		out[i] = *r
	}
	return out, nil
}

func (e *Engine) affected(res *ReconcileResult) error {
	names := append(append(append([]string(nil), res.Added...), res.Removed...), res.Changed...)
	if len(names) == 0 {
		return nil
	}
	paths, err := e.index.Store().DocumentsExtending(names, res.Path)
	if err != nil {
		return err
	}
	res.Affected = paths
	return nil
}

// diffFacts compares the named (non-local) types of two fact sets.
func diffFacts(path string, old, cur []store.TypeRef) *ReconcileResult {
	supers := func(refs []store.TypeRef) map[string]string {
		m := map[string][]string{}
		for _, r := range refs {
			if r.IsLocal() || r.SimpleName == "" {
				continue
			}
			m[r.SimpleName] = append(m[r.SimpleName], r.SuperQualifier+"."+r.SuperName)
		}
		out := make(map[string]string, len(m))
		for name, ss := range m {
			sort.Strings(ss)
			out[name] = strings.Join(ss, ",")
		}
		return out
	}
	before, after := supers(old), supers(cur)
	res := &ReconcileResult{Path: path}
	for name, s := range after {
		prev, ok := before[name]
		switch {
		case !ok:
			res.Added = append(res.Added, name)
		case prev != s:
			res.Changed = append(res.Changed, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			res.Removed = append(res.Removed, name)
		}
	}
	sort.Strings(res.Added)
	sort.Strings(res.Removed)
	sort.Strings(res.Changed)
	res.Unchanged = len(res.Added)+len(res.Removed)+len(res.Changed) == 0
	return res
}

// Focus names the type a hierarchy is built for. Path and Line narrow the
// lookup to one declaration; without Path the type is looked up in the
// index by name (and Qualifier, when set). Language lets a root type such
// as "Object" be used as focus even when no document declares it.
type Focus struct {
	Name      string
	Qualifier string
	Path      string
	Line      int
	Language  string
}

func (e *Engine) newSession(ctx context.Context, opts BuildOptions) *session {
	s := newSession(e.ws, e.index, e.registry, opts.Policy, e.logger)
	s.snapshot(ctx, opts.WorkingCopies)
	return s
}

// Hierarchy builds the type hierarchy of focus. The result always contains
// the focus type. A cancelled build is not an error: the returned
// hierarchy is partial and reports Cancelled.
func (e *Engine) Hierarchy(ctx context.Context, focus Focus, opts BuildOptions) (*Hierarchy, error) {
	s := e.newSession(ctx, opts)
	if err := s.resolveFocus(ctx, focus); err != nil {
		return nil, err
	}
	b := &builder{session: s, opts: opts}
	return b.build(ctx), nil
}

// CandidateSearch is the outcome of the subtype search alone.
type CandidateSearch struct {
	Focus      TypeHandle  `json:"focus"`
	Candidates []Candidate `json:"candidates"`
	Cancelled  bool        `json:"cancelled,omitempty"`
}

// Candidates runs only the subtype search for focus and returns the
// documents that may declare subtypes, before any resolution.
func (e *Engine) Candidates(ctx context.Context, focus Focus, opts BuildOptions) (*CandidateSearch, error) {
	s := e.newSession(ctx, opts)
	if err := s.resolveFocus(ctx, focus); err != nil {
		return nil, err
	}
	cands, cancelled := s.searchSubtypes(ctx, s.focus, opts.Monitor)
	return &CandidateSearch{Focus: s.focus, Candidates: cands.list(), Cancelled: cancelled}, nil
}

// FindTypes returns the indexed non-local types called name.
func (e *Engine) FindTypes(ctx context.Context, name string) ([]TypeHandle, error) {
	ms, err := e.index.Declarations(ctx, name, nil, index.WaitUntilReady)
	if err != nil {
		return nil, fmt.Errorf("find types %s: %w", name, err)
	}
	var out []TypeHandle
	seen := map[string]bool{}
	for _, m := range ms {
		if m.LocalOrAnonymous {
			continue
		}
		h := handleForMatch(&m.Ref)
		if !seen[h.Key()] {
			seen[h.Key()] = true
			out = append(out, h)
		}
	}
	return out, nil
}

// Outline extracts the declarations of the file at path without touching
// the index.
func (e *Engine) Outline(ctx context.Context, path string) (*Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("outline %s: %w", path, err)
	}
	u, err := e.registry.ExtractFile(ctx, path, src)
	if err != nil {
		return nil, fmt.Errorf("outline %s: %w", path, err)
	}
	return u, nil
}

// resolveFocus finds the declaration focus denotes and records it, with
// its unit, on the session.
func (s *session) resolveFocus(ctx context.Context, f Focus) error {
	matches := func(td *extract.TypeDecl) bool {
		return (f.Name == "" || td.Name == f.Name) &&
			(f.Line == 0 || td.Line == f.Line) &&
			(f.Qualifier == "" || td.Qualifier == f.Qualifier)
	}
	pick := func(u *extract.Unit, key string) bool {
		project := s.project(u.Path)
		for _, mt := range mergeTypes(u, project) {
			h := handleForDecl(u, project, mt.decl)
			if (key != "" && h.Key() == key) || (key == "" && matches(mt.decl)) {
				s.focus, s.focusUnit = h, u
				return true
			}
		}
		return false
	}

	if f.Path != "" {
		path, err := filepath.Abs(f.Path)
		if err != nil {
			return err
		}
		u, err := s.load(ctx, path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrTypeNotFound, f.Name, err)
		}
		if !pick(u, "") {
			return fmt.Errorf("%w: %s in %s", ErrTypeNotFound, f.Name, path)
		}
		return nil
	}
	if f.Name == "" {
		return fmt.Errorf("%w: empty focus", ErrTypeNotFound)
	}

	for _, path := range s.overlayPaths() {
		if pick(s.overlay[path], "") {
			return nil
		}
	}
	ms, err := s.idx.Declarations(ctx, f.Name, nil, s.policy)
	if err != nil {
		s.logger.Warn("focus lookup failed", "name", f.Name, "error", err)
	}
	var found []TypeHandle
	for _, m := range ms {
		if m.LocalOrAnonymous || (f.Qualifier != "" && m.Ref.Qualifier != f.Qualifier) {
			continue
		}
		if _, shadowed := s.overlay[m.Path]; shadowed {
			continue
		}
		found = append(found, handleForMatch(&m.Ref))
	}
	if len(found) > 0 {
		found = dedupe(found)
		if len(found) > 1 {
			s.logger.Debug("ambiguous focus, using first declaration", "name", f.Name, "declarations", len(found))
		}
		h := found[0]
		if u, err := s.load(ctx, h.Path); err == nil && pick(u, h.Key()) {
			return nil
		}
		s.focus = h
		return nil
	}
	if f.Language != "" && s.reg.IsRoot(f.Language, f.Name) {
		s.focus = TypeHandle{Name: f.Name, Qualifier: f.Qualifier, Language: f.Language}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTypeNotFound, f.Name)
}
