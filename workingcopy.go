package arbor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jward/arbor/internal/extract"
)

// WorkingCopy is the unsaved content of a document. During a build it
// shadows both the indexed facts and the on-disk content of Path.
type WorkingCopy struct {
	Path   string
	Source []byte
}

// ReadWorkingCopy reads a working copy of path from the file at src, for
// callers that keep editor buffers in temporary files.
func ReadWorkingCopy(path, src string) (WorkingCopy, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return WorkingCopy{}, fmt.Errorf("read working copy for %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return WorkingCopy{}, fmt.Errorf("read working copy for %s: %w", path, err)
	}
	return WorkingCopy{Path: abs, Source: data}, nil
}

// snapshot extracts every working copy once, at build start, keyed by
// absolute path like the index. Copies that fail to extract are dropped
// from the overlay and logged.
func (s *session) snapshot(ctx context.Context, wcs []WorkingCopy) {
	for _, wc := range wcs {
		path, err := filepath.Abs(wc.Path)
		if err != nil {
			path = filepath.Clean(wc.Path)
		}
		u, err := s.reg.ExtractFile(ctx, path, wc.Source)
		if err != nil {
			s.logger.Warn("ignoring working copy", "path", path, "error", err)
			continue
		}
		s.overlay[path] = u
	}
	s.overlayOrder = make([]string, 0, len(s.overlay))
	for p := range s.overlay {
		s.overlayOrder = append(s.overlayOrder, p)
	}
	sort.Strings(s.overlayOrder)
}

func (s *session) overlayPaths() []string {
	return s.overlayOrder
}

// load returns the unit at path: the working copy when there is one,
// otherwise the file on disk. Results are cached for the session.
func (s *session) load(ctx context.Context, path string) (*extract.Unit, error) {
	if u, ok := s.overlay[path]; ok {
		return u, nil
	}
	if l, ok := s.units[path]; ok {
		return l.unit, l.err
	}
	src, err := os.ReadFile(path)
	var u *extract.Unit
	if err == nil {
		u, err = s.reg.ExtractFile(ctx, path, src)
	}
	if err != nil {
		err = fmt.Errorf("load %s: %w", path, err)
	}
	s.units[path] = loaded{unit: u, err: err}
	return u, err
}
