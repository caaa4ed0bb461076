package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const documentColumns = "id, path, project, fragment, language, hash, last_indexed"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*Document, error) {
	var d Document
	var hash sql.NullString
	var indexed sql.NullTime
	if err := r.Scan(&d.ID, &d.Path, &d.Project, &d.Fragment, &d.Language, &hash, &indexed); err != nil {
		return nil, err
	}
	d.Hash = hash.String
	d.LastIndexed = indexed.Time
	return &d, nil
}

// DocumentByPath returns the document stored for path, or ErrNotFound.
func (s *Store) DocumentByPath(path string) (*Document, error) {
	row := s.db.QueryRow("SELECT "+documentColumns+" FROM documents WHERE path = ?", path)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", path, err)
	}
	return d, nil
}

// Documents returns every document ordered by path.
func (s *Store) Documents() ([]*Document, error) {
	return s.queryDocuments("SELECT " + documentColumns + " FROM documents ORDER BY path")
}

// DocumentsByProject returns the documents of one project ordered by path.
func (s *Store) DocumentsByProject(project string) ([]*Document, error) {
	return s.queryDocuments("SELECT "+documentColumns+" FROM documents WHERE project = ? ORDER BY path", project)
}

func (s *Store) queryDocuments(q string, args ...any) ([]*Document, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const typeRefColumns = "t.id, t.document_id, t.enclosing_type, t.simple_name, t.qualifier, t.super_name, t.super_qualifier, t.line"

func scanTypeRef(r rowScanner, extra ...any) (*TypeRef, error) {
	var t TypeRef
	var line sql.NullInt64
	dest := append([]any{&t.ID, &t.DocumentID, &t.EnclosingType, &t.SimpleName, &t.Qualifier, &t.SuperName, &t.SuperQualifier, &line}, extra...)
	if err := r.Scan(dest...); err != nil {
		return nil, err
	}
	t.Line = int(line.Int64)
	return &t, nil
}

// TypeRefsByDocument returns the facts of one document in insertion order.
func (s *Store) TypeRefsByDocument(documentID int64) ([]*TypeRef, error) {
	rows, err := s.db.Query("SELECT "+typeRefColumns+" FROM type_refs t WHERE t.document_id = ? ORDER BY t.id", documentID)
	if err != nil {
		return nil, fmt.Errorf("type refs for document %d: %w", documentID, err)
	}
	defer rows.Close()
	var out []*TypeRef
	for rows.Next() {
		t, err := scanTypeRef(rows)
		if err != nil {
			return nil, fmt.Errorf("scan type ref: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// VisitSuperTypeRefs streams every fact whose supertype is superName, or
// every fact when matchAll is set, restricted to projects (nil means all).
// Rows arrive ordered by document path then line. Returning false from fn
// stops the scan.
func (s *Store) VisitSuperTypeRefs(superName string, matchAll bool, projects []string, fn func(*TypeRefMatch) bool) error {
	if emptyScope(projects) {
		return nil
	}
	q := "SELECT " + typeRefColumns + ", d.path, d.project, d.language FROM type_refs t JOIN documents d ON d.id = t.document_id WHERE 1=1"
	var args []any
	if !matchAll {
		q += " AND t.super_name = ?"
		args = append(args, superName)
	}
	filter, fargs := projectFilter(projects)
	q += filter + " ORDER BY d.path, t.line, t.id"
	args = append(args, fargs...)
	return s.visitMatches(q, args, fn)
}

// TypeRefsBySimpleName returns every fact declaring a type called name,
// restricted to projects (nil means all).
func (s *Store) TypeRefsBySimpleName(name string, projects []string) ([]*TypeRefMatch, error) {
	if emptyScope(projects) {
		return nil, nil
	}
	q := "SELECT " + typeRefColumns + ", d.path, d.project, d.language FROM type_refs t JOIN documents d ON d.id = t.document_id WHERE t.simple_name = ?"
	args := []any{name}
	filter, fargs := projectFilter(projects)
	q += filter + " ORDER BY d.path, t.line, t.id"
	args = append(args, fargs...)
	var out []*TypeRefMatch
	err := s.visitMatches(q, args, func(m *TypeRefMatch) bool {
		out = append(out, m)
		return true
	})
	return out, err
}

func (s *Store) visitMatches(q string, args []any, fn func(*TypeRefMatch) bool) error {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return fmt.Errorf("query type refs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m TypeRefMatch
		t, err := scanTypeRef(rows, &m.Path, &m.Project, &m.Language)
		if err != nil {
			return fmt.Errorf("scan type ref: %w", err)
		}
		m.TypeRef = *t
		if !fn(&m) {
			return nil
		}
	}
	return rows.Err()
}

func (s *Store) ImportsByDocument(documentID int64) ([]*Import, error) {
	rows, err := s.db.Query("SELECT id, document_id, source, imported_name, alias FROM imports WHERE document_id = ? ORDER BY id", documentID)
	if err != nil {
		return nil, fmt.Errorf("imports for document %d: %w", documentID, err)
	}
	defer rows.Close()
	var out []*Import
	for rows.Next() {
		var imp Import
		var name, alias sql.NullString
		if err := rows.Scan(&imp.ID, &imp.DocumentID, &imp.Source, &name, &alias); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		imp.ImportedName = name.String
		imp.Alias = alias.String
		out = append(out, &imp)
	}
	return out, rows.Err()
}

func (s *Store) PackagesByDocument(documentID int64) ([]*Package, error) {
	rows, err := s.db.Query("SELECT id, document_id, name FROM packages WHERE document_id = ? ORDER BY id", documentID)
	if err != nil {
		return nil, fmt.Errorf("packages for document %d: %w", documentID, err)
	}
	defer rows.Close()
	var out []*Package
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Stats counts documents and facts, broken down by project and language.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{Projects: map[string]int{}, Languages: map[string]int{}}
	for _, c := range []struct {
		q   string
		dst *int
	}{
		{"SELECT COUNT(*) FROM documents", &st.Documents},
		{"SELECT COUNT(*) FROM type_refs", &st.TypeRefs},
		{"SELECT COUNT(*) FROM imports", &st.Imports},
	} {
		if err := s.db.QueryRow(c.q).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}
	for _, g := range []struct {
		col string
		dst map[string]int
	}{
		{"project", st.Projects},
		{"language", st.Languages},
	} {
		rows, err := s.db.Query("SELECT " + g.col + ", COUNT(*) FROM documents GROUP BY " + g.col)
		if err != nil {
			return nil, fmt.Errorf("stats by %s: %w", g.col, err)
		}
		for rows.Next() {
			var k string
			var n int
			if err := rows.Scan(&k, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan stats: %w", err)
			}
			g.dst[k] = n
		}
		rows.Close()
	}
	return st, nil
}
