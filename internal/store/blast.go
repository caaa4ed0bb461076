package store

import "fmt"

// DocumentsExtending returns the paths of documents, other than exclude,
// holding a fact whose supertype is one of names. These are the documents
// whose place in a hierarchy may change when a type called one of names is
// added, removed, or changes its own supertypes.
func (s *Store) DocumentsExtending(names []string, exclude string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT d.path
		FROM type_refs t
		JOIN documents d ON d.id = t.document_id
		WHERE t.super_name IN (` + placeholderList(len(names)) + `) AND d.path <> ?
		ORDER BY d.path`
	args := append(stringsToArgs(names), exclude)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("documents extending: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan document path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// DeclaredNames returns the distinct simple names of the types declared in
// the document at path.
func (s *Store) DeclaredNames(path string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT t.simple_name FROM type_refs t
		 JOIN documents d ON d.id = t.document_id
		 WHERE d.path = ? ORDER BY t.simple_name`, path)
	if err != nil {
		return nil, fmt.Errorf("declared names %s: %w", path, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
