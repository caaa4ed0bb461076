package arbor

import (
	"errors"
	"fmt"

	"github.com/jward/arbor/internal/store"
)

// QueryBuilder provides read-only reporting queries over the index. It
// reads the committed state directly and does not wait for pending
// index updates.
type QueryBuilder struct {
	store *store.Store
}

// Document returns the indexed document at path.
// Returns nil with no error if the path is not indexed.
func (q *QueryBuilder) Document(path string) (*Document, error) {
	d, err := q.store.DocumentByPath(path)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	return d, nil
}

// Documents returns every indexed document ordered by path. A non-empty
// project restricts the result to that project.
func (q *QueryBuilder) Documents(project string) ([]*Document, error) {
	var (
		docs []*Document
		err  error
	)
	if project == "" {
		docs, err = q.store.Documents()
	} else {
		docs, err = q.store.DocumentsByProject(project)
	}
	if err != nil {
		return nil, fmt.Errorf("documents: %w", err)
	}
	return docs, nil
}

// Stats summarizes the index contents.
func (q *QueryBuilder) Stats() (*Stats, error) {
	st, err := q.store.Stats()
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Declarations returns the facts declaring a type called name, in every
// project.
func (q *QueryBuilder) Declarations(name string) ([]*TypeRefMatch, error) {
	refs, err := q.store.TypeRefsBySimpleName(name, nil)
	if err != nil {
		return nil, fmt.Errorf("declarations: %w", err)
	}
	return refs, nil
}

// DirectSubtypes returns the facts naming superName as a direct
// supertype. Matching is by simple name only, so the result may include
// types extending an unrelated type of the same name.
func (q *QueryBuilder) DirectSubtypes(superName string) ([]*TypeRefMatch, error) {
	var out []*TypeRefMatch
	err := q.store.VisitSuperTypeRefs(superName, false, nil, func(m *store.TypeRefMatch) bool {
		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("direct subtypes: %w", err)
	}
	return out, nil
}

// Facts returns the supertype facts recorded for the document at path.
// Returns nil with no error if the path is not indexed.
func (q *QueryBuilder) Facts(path string) ([]*TypeRef, error) {
	d, err := q.Document(path)
	if err != nil || d == nil {
		return nil, err
	}
	refs, err := q.store.TypeRefsByDocument(d.ID)
	if err != nil {
		return nil, fmt.Errorf("facts: %w", err)
	}
	return refs, nil
}

// Imports returns the imports recorded for the document at path.
func (q *QueryBuilder) Imports(path string) ([]*Import, error) {
	d, err := q.Document(path)
	if err != nil || d == nil {
		return nil, err
	}
	imps, err := q.store.ImportsByDocument(d.ID)
	if err != nil {
		return nil, fmt.Errorf("imports: %w", err)
	}
	return imps, nil
}
