package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// commitTestDocument replaces path with one fact per (name, super) pair.
func commitTestDocument(t *testing.T, s *Store, path, project string, pairs ...[2]string) *Batch {
	t.Helper()
	b := NewBatch(Document{Path: path, Project: project, Language: "java", Hash: "h"})
	for i, p := range pairs {
		_, err := b.InsertTypeRef(&TypeRef{SimpleName: p[0], SuperName: p[1], Line: i + 1})
		require.NoError(t, err)
	}
	require.NoError(t, s.CommitBatch(b))
	return b
}

func superNamesOf(t *testing.T, s *Store, superName string, projects []string) []string {
	t.Helper()
	var names []string
	err := s.VisitSuperTypeRefs(superName, false, projects, func(m *TypeRefMatch) bool {
		names = append(names, m.SimpleName)
		return true
	})
	require.NoError(t, err)
	return names
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"documents", "type_refs", "imports", "packages", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Documents
// =============================================================================

func TestDocument_UpsertAndRetrieve(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	doc := &Document{Path: "/p/src/A.java", Project: "p", Fragment: "src", Language: "java", Hash: "abc", LastIndexed: now}
	id, err := s.UpsertDocument(doc)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := s.DocumentByPath("/p/src/A.java")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "p", got.Project)
	assert.Equal(t, "src", got.Fragment)
	assert.Equal(t, "abc", got.Hash)

	doc2 := &Document{Path: "/p/src/A.java", Project: "p", Language: "java", Hash: "def"}
	id2, err := s.UpsertDocument(doc2)
	require.NoError(t, err)
	assert.Equal(t, id, id2, "upsert keeps the row")

	got, err = s.DocumentByPath("/p/src/A.java")
	require.NoError(t, err)
	assert.Equal(t, "def", got.Hash)
}

func TestDocument_ByPathNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.DocumentByPath("/nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocument_ByProject(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestDocument(t, s, "/a/B.java", "a")
	commitTestDocument(t, s, "/a/A.java", "a")
	commitTestDocument(t, s, "/b/C.java", "b")

	docs, err := s.DocumentsByProject("a")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "/a/A.java", docs[0].Path)
	assert.Equal(t, "/a/B.java", docs[1].Path)

	all, err := s.Documents()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteDocument(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := commitTestDocument(t, s, "/p/A.java", "p", [2]string{"A", "Base"})

	removed, err := s.DeleteDocument("/p/A.java")
	require.NoError(t, err)
	assert.True(t, removed)

	refs, err := s.TypeRefsByDocument(b.Document.ID)
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Empty(t, superNamesOf(t, s, "Base", nil))

	removed, err = s.DeleteDocument("/p/A.java")
	require.NoError(t, err)
	assert.False(t, removed, "deleting an absent path is a no-op")
}

// =============================================================================
// Facts
// =============================================================================

func TestVisitSuperTypeRefs_ByName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestDocument(t, s, "/p/Derived.java", "p", [2]string{"Derived", "Base"})
	commitTestDocument(t, s, "/p/Other.java", "p", [2]string{"Other", "Thing"})

	assert.Equal(t, []string{"Derived"}, superNamesOf(t, s, "Base", nil))
	assert.Empty(t, superNamesOf(t, s, "Missing", nil))
}

func TestVisitSuperTypeRefs_MatchAll(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestDocument(t, s, "/p/A.java", "p", [2]string{"A", ""})
	commitTestDocument(t, s, "/p/B.java", "p", [2]string{"B", "A"})

	var n int
	err := s.VisitSuperTypeRefs("", true, nil, func(*TypeRefMatch) bool {
		n++
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVisitSuperTypeRefs_Scope(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestDocument(t, s, "/a/X.java", "a", [2]string{"X", "Base"})
	commitTestDocument(t, s, "/b/Y.java", "b", [2]string{"Y", "Base"})

	assert.Equal(t, []string{"X"}, superNamesOf(t, s, "Base", []string{"a"}))
	assert.ElementsMatch(t, []string{"X", "Y"}, superNamesOf(t, s, "Base", []string{"a", "b"}))
	assert.Empty(t, superNamesOf(t, s, "Base", []string{}), "empty scope matches nothing")
	assert.Empty(t, superNamesOf(t, s, "Base", []string{"nope"}))
}

func TestVisitSuperTypeRefs_StopEarly(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestDocument(t, s, "/p/A.java", "p", [2]string{"A", "Base"}, [2]string{"B", "Base"}, [2]string{"C", "Base"})

	var n int
	err := s.VisitSuperTypeRefs("Base", false, nil, func(*TypeRefMatch) bool {
		n++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTypeRefsBySimpleName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestDocument(t, s, "/a/Base.java", "a", [2]string{"Base", ""})
	commitTestDocument(t, s, "/b/Base.java", "b", [2]string{"Base", "Object"})

	got, err := s.TypeRefsBySimpleName("Base", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/a/Base.java", got[0].Path)
	assert.Equal(t, "b", got[1].Project)

	got, err = s.TypeRefsBySimpleName("Base", []string{"b"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Object", got[0].SuperName)
}

func TestImportsAndPackages(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := NewBatch(Document{Path: "/p/A.java", Project: "p", Language: "java"})
	_, err := b.InsertImport(&Import{Source: "com.example.Base", ImportedName: "Base"})
	require.NoError(t, err)
	_, err = b.InsertPackage(&Package{Name: "com.example.app"})
	require.NoError(t, err)
	require.NoError(t, s.CommitBatch(b))

	imps, err := s.ImportsByDocument(b.Document.ID)
	require.NoError(t, err)
	require.Len(t, imps, 1)
	assert.Equal(t, "Base", imps[0].ImportedName)
	assert.Empty(t, imps[0].Alias)

	pkgs, err := s.PackagesByDocument(b.Document.ID)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "com.example.app", pkgs[0].Name)
}

func TestLocalTypeRef(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := NewBatch(Document{Path: "/p/A.java", Project: "p", Language: "java"})
	_, err := b.InsertTypeRef(&TypeRef{EnclosingType: LocalMarker, SimpleName: "", SuperName: "Runnable"})
	require.NoError(t, err)
	require.NoError(t, s.CommitBatch(b))

	err = s.VisitSuperTypeRefs("Runnable", false, nil, func(m *TypeRefMatch) bool {
		assert.True(t, m.IsLocal())
		return true
	})
	require.NoError(t, err)
}

// =============================================================================
// Commit
// =============================================================================

func TestCommitBatch_ReplacesFacts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestDocument(t, s, "/p/A.java", "p", [2]string{"A", "Base"})
	commitTestDocument(t, s, "/p/A.java", "p", [2]string{"A", "Other"})

	assert.Empty(t, superNamesOf(t, s, "Base", nil))
	assert.Equal(t, []string{"A"}, superNamesOf(t, s, "Other", nil))

	docs, err := s.Documents()
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestCommitBatch_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	for range 3 {
		commitTestDocument(t, s, "/p/A.java", "p", [2]string{"A", "Base"})
	}
	assert.Equal(t, []string{"A"}, superNamesOf(t, s, "Base", nil))
}

func TestAppendBatch_Duplicates(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := NewBatch(Document{Path: "/p/A.java", Project: "p", Language: "java"})
	_, err := b.InsertTypeRef(&TypeRef{SimpleName: "A", SuperName: "Base"})
	require.NoError(t, err)

	require.NoError(t, s.AppendBatch(b))
	require.NoError(t, s.AppendBatch(b))
	assert.Equal(t, []string{"A", "A"}, superNamesOf(t, s, "Base", nil))
}

func TestMoveDocument(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestDocument(t, s, "/p/A.java", "p", [2]string{"A", "Base"})
	commitTestDocument(t, s, "/p/B.java", "p", [2]string{"B", "Base"})

	moved, err := s.MoveDocument("/p/A.java", "/p/B.java")
	require.NoError(t, err)
	assert.True(t, moved)

	var paths []string
	err = s.VisitSuperTypeRefs("Base", false, nil, func(m *TypeRefMatch) bool {
		paths = append(paths, m.Path+":"+m.SimpleName)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/B.java:A"}, paths)

	moved, err = s.MoveDocument("/p/missing.java", "/p/C.java")
	require.NoError(t, err)
	assert.False(t, moved)
}

// =============================================================================
// Blast radius, hashing, metadata, stats
// =============================================================================

func TestDocumentsExtending(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestDocument(t, s, "/p/Base.java", "p", [2]string{"Base", ""})
	commitTestDocument(t, s, "/p/D1.java", "p", [2]string{"D1", "Base"})
	commitTestDocument(t, s, "/p/D2.java", "p", [2]string{"D2", "Base"})
	commitTestDocument(t, s, "/p/E.java", "p", [2]string{"E", "D1"})

	paths, err := s.DocumentsExtending([]string{"Base"}, "/p/D2.java")
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/D1.java"}, paths)

	paths, err = s.DocumentsExtending(nil, "")
	require.NoError(t, err)
	assert.Empty(t, paths)

	names, err := s.DeclaredNames("/p/Base.java")
	require.NoError(t, err)
	assert.Equal(t, []string{"Base"}, names)
}

func TestFactsHash_IgnoresOrderAndLines(t *testing.T) {
	t.Parallel()
	a := []TypeRef{{SimpleName: "A", SuperName: "Base", Line: 1}, {SimpleName: "B", SuperName: "A", Line: 5}}
	b := []TypeRef{{SimpleName: "B", SuperName: "A", Line: 9}, {SimpleName: "A", SuperName: "Base", Line: 2}}
	assert.Equal(t, FactsHash(a), FactsHash(b))

	c := []TypeRef{{SimpleName: "A", SuperName: "Other"}, {SimpleName: "B", SuperName: "A"}}
	assert.NotEqual(t, FactsHash(a), FactsHash(c))
}

func TestContentHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContentHash([]byte("class A {}")), ContentHash([]byte("class A {}")))
	assert.NotEqual(t, ContentHash([]byte("class A {}")), ContentHash([]byte("class B {}")))
	assert.Len(t, ContentHash(nil), 16)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	v, err := s.GetMetadata("workspace")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("workspace", "/root"))
	require.NoError(t, s.SetMetadata("workspace", "/other"))
	v, err = s.GetMetadata("workspace")
	require.NoError(t, err)
	assert.Equal(t, "/other", v)
}

func TestStats(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestDocument(t, s, "/a/A.java", "a", [2]string{"A", "Base"}, [2]string{"A", "Iface"})
	commitTestDocument(t, s, "/b/B.java", "b", [2]string{"B", ""})

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Documents)
	assert.Equal(t, 3, st.TypeRefs)
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, st.Projects)
	assert.Equal(t, map[string]int{"java": 2}, st.Languages)
}
