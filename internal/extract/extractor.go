package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupportedLanguage is returned for files whose extension no
// extractor is registered for. Callers treat such files as not part of
// the model and skip them.
var ErrUnsupportedLanguage = errors.New("extract: unsupported language")

// Extractor parses source units of one language.
type Extractor interface {
	Language() string
	// Extensions lists the file extensions handled, with leading dot.
	Extensions() []string
	// RootTypes names the types every type implicitly descends from.
	RootTypes() []string
	Extract(ctx context.Context, path string, src []byte) (*Unit, error)
}

// Registry maps file extensions and language names to extractors.
type Registry struct {
	mu     sync.RWMutex
	byExt  map[string]Extractor
	byLang map[string]Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byExt: map[string]Extractor{}, byLang: map[string]Extractor{}}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// DefaultRegistry returns a registry holding every built-in extractor.
func DefaultRegistry() *Registry {
	return NewRegistry(Builtins()...)
}

// Register adds e, replacing any extractor previously registered for the
// same language or extensions.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLang[e.Language()] = e
	for _, ext := range e.Extensions() {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// ForPath returns the extractor for path's extension.
func (r *Registry) ForPath(path string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	r.mu.RLock()
	e, ok := r.byExt[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedLanguage)
	}
	return e, nil
}

// Supports reports whether some extractor handles path.
func (r *Registry) Supports(path string) bool {
	_, err := r.ForPath(path)
	return err == nil
}

func (r *Registry) ForLanguage(lang string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byLang[lang]
	return e, ok
}

// Languages returns the registered language names, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byLang))
	for l := range r.byLang {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Restrict returns a registry holding only the named languages. Unknown
// names are ignored.
func (r *Registry) Restrict(langs []string) *Registry {
	out := NewRegistry()
	for _, l := range langs {
		if e, ok := r.ForLanguage(l); ok {
			out.Register(e)
		}
	}
	return out
}

// IsRoot reports whether name is a root type of lang.
func (r *Registry) IsRoot(lang, name string) bool {
	e, ok := r.ForLanguage(lang)
	if !ok {
		return false
	}
	for _, root := range e.RootTypes() {
		if root == name {
			return true
		}
	}
	return false
}

// ExtractFile picks the extractor for path and runs it.
func (r *Registry) ExtractFile(ctx context.Context, path string, src []byte) (*Unit, error) {
	e, err := r.ForPath(path)
	if err != nil {
		return nil, err
	}
	return e.Extract(ctx, path, src)
}
