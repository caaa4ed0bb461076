package workspace

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// Excluded reports whether path matches one of the project's exclude
// globs. Patterns are matched against the path relative to the project
// directory using doublestar syntax.
func (p *Project) Excluded(path string) bool {
	if len(p.Exclude) == 0 {
		return false
	}
	rel, err := filepath.Rel(p.Dir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range p.Exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// Files walks the project's fragments and returns every regular file that
// accept admits and no exclude glob matches. Hidden directories and
// dependency directories are skipped. A missing fragment is skipped.
func (w *Workspace) Files(p *Project, accept func(path string) bool) ([]string, error) {
	seen := map[string]bool{}
	var paths []string
	for _, f := range p.Fragments {
		err := filepath.WalkDir(f.Dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == f.Dir {
					return fs.SkipAll
				}
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != f.Dir && (strings.HasPrefix(name, ".") || skipDirs[name]) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || seen[path] || p.Excluded(path) {
				return nil
			}
			if accept == nil || accept(path) {
				seen[path] = true
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk fragment %s: %w", f.Dir, err)
		}
	}
	return paths, nil
}

// AllFiles returns Files for every project in declaration order.
func (w *Workspace) AllFiles(accept func(path string) bool) ([]string, error) {
	var all []string
	for _, p := range w.Projects {
		paths, err := w.Files(p, accept)
		if err != nil {
			return nil, err
		}
		all = append(all, paths...)
	}
	return all, nil
}
