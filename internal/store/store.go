package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// Store is the SQLite data access layer for the supertype reference index.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  project         TEXT NOT NULL,
  fragment        TEXT NOT NULL DEFAULT '',
  language        TEXT NOT NULL,
  hash            TEXT,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS type_refs (
  id              INTEGER PRIMARY KEY,
  document_id     INTEGER NOT NULL REFERENCES documents(id),
  enclosing_type  TEXT NOT NULL DEFAULT '',
  simple_name     TEXT NOT NULL,
  qualifier       TEXT NOT NULL DEFAULT '',
  super_name      TEXT NOT NULL DEFAULT '',
  super_qualifier TEXT NOT NULL DEFAULT '',
  line            INTEGER
);

CREATE TABLE IF NOT EXISTS imports (
  id              INTEGER PRIMARY KEY,
  document_id     INTEGER NOT NULL REFERENCES documents(id),
  source          TEXT NOT NULL,
  imported_name   TEXT,
  alias           TEXT
);

CREATE TABLE IF NOT EXISTS packages (
  id              INTEGER PRIMARY KEY,
  document_id     INTEGER NOT NULL REFERENCES documents(id),
  name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project);
CREATE INDEX IF NOT EXISTS idx_type_refs_super ON type_refs(super_name);
CREATE INDEX IF NOT EXISTS idx_type_refs_simple ON type_refs(simple_name);
CREATE INDEX IF NOT EXISTS idx_type_refs_document ON type_refs(document_id);
CREATE INDEX IF NOT EXISTS idx_imports_document ON imports(document_id);
CREATE INDEX IF NOT EXISTS idx_packages_document ON packages(document_id);
`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// UpsertDocument inserts the document row or refreshes its metadata if the
// path is already present, and returns the row ID. Facts are untouched.
func (s *Store) UpsertDocument(doc *Document) (int64, error) {
	id, err := upsertDocumentTx(s.db, doc)
	if err != nil {
		return 0, err
	}
	doc.ID = id
	return id, nil
}

func upsertDocumentTx(ex execer, doc *Document) (int64, error) {
	if doc.LastIndexed.IsZero() {
		doc.LastIndexed = time.Now()
	}
	var id int64
	err := ex.QueryRow(
		`INSERT INTO documents (path, project, fragment, language, hash, last_indexed)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   project = excluded.project,
		   fragment = excluded.fragment,
		   language = excluded.language,
		   hash = excluded.hash,
		   last_indexed = excluded.last_indexed
		 RETURNING id`,
		doc.Path, doc.Project, doc.Fragment, doc.Language, doc.Hash, doc.LastIndexed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert document %s: %w", doc.Path, err)
	}
	return id, nil
}

// DeleteDocument removes the document at path and every fact it produced.
// It reports whether a document was removed.
func (s *Store) DeleteDocument(path string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	removed, err := deleteDocumentTx(tx, path)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return removed, nil
}

func deleteDocumentTx(tx *sql.Tx, path string) (bool, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM documents WHERE path = ?", path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup document %s: %w", path, err)
	}
	for _, q := range []string{
		"DELETE FROM type_refs WHERE document_id = ?",
		"DELETE FROM imports WHERE document_id = ?",
		"DELETE FROM packages WHERE document_id = ?",
		"DELETE FROM documents WHERE id = ?",
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return false, fmt.Errorf("delete document %s: %w", path, err)
		}
	}
	return true, nil
}

// InsertTypeRef appends a fact to an existing document.
func (s *Store) InsertTypeRef(ref *TypeRef) (int64, error) {
	return insertTypeRefTx(s.db, ref)
}

func insertTypeRefTx(ex execer, ref *TypeRef) (int64, error) {
	res, err := ex.Exec(
		`INSERT INTO type_refs (document_id, enclosing_type, simple_name, qualifier, super_name, super_qualifier, line)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref.DocumentID, ref.EnclosingType, ref.SimpleName, ref.Qualifier, ref.SuperName, ref.SuperQualifier, ref.Line,
	)
	if err != nil {
		return 0, fmt.Errorf("insert type ref %s: %w", ref.SimpleName, err)
	}
	return res.LastInsertId()
}

func (s *Store) InsertImport(imp *Import) (int64, error) {
	return insertImportTx(s.db, imp)
}

func insertImportTx(ex execer, imp *Import) (int64, error) {
	res, err := ex.Exec(
		"INSERT INTO imports (document_id, source, imported_name, alias) VALUES (?, ?, ?, ?)",
		imp.DocumentID, imp.Source, imp.ImportedName, imp.Alias,
	)
	if err != nil {
		return 0, fmt.Errorf("insert import %s: %w", imp.Source, err)
	}
	return res.LastInsertId()
}

func (s *Store) InsertPackage(pkg *Package) (int64, error) {
	return insertPackageTx(s.db, pkg)
}

func insertPackageTx(ex execer, pkg *Package) (int64, error) {
	res, err := ex.Exec("INSERT INTO packages (document_id, name) VALUES (?, ?)", pkg.DocumentID, pkg.Name)
	if err != nil {
		return 0, fmt.Errorf("insert package %s: %w", pkg.Name, err)
	}
	return res.LastInsertId()
}

// GetMetadata returns the value stored under key, or "" when absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v.String, nil
}

func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
