package store

import "sync"

// Batch buffers the facts of one document in memory using fake (negative)
// IDs. It implements DataStore so extractors can write to it without
// knowing whether they are hitting SQLite or an in-memory buffer.
//
// A Batch is the payload of every index mutation: CommitBatch replaces the
// document's facts with the buffered ones, AppendBatch adds them.
type Batch struct {
	Document Document

	mu       sync.Mutex
	TypeRefs []TypeRef
	Imports  []Import
	Packages []Package

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *Batch satisfies DataStore.
var _ DataStore = (*Batch)(nil)

// NewBatch creates an empty batch for doc.
func NewBatch(doc Document) *Batch {
	return &Batch{Document: doc, nextFakeID: -1}
}

func (b *Batch) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *Batch) InsertTypeRef(ref *TypeRef) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ref.ID = b.allocFakeID()
	b.TypeRefs = append(b.TypeRefs, *ref)
	return ref.ID, nil
}

func (b *Batch) InsertImport(imp *Import) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	imp.ID = b.allocFakeID()
	b.Imports = append(b.Imports, *imp)
	return imp.ID, nil
}

func (b *Batch) InsertPackage(pkg *Package) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pkg.ID = b.allocFakeID()
	b.Packages = append(b.Packages, *pkg)
	return pkg.ID, nil
}

// TypeRefsByDocument returns the buffered facts. The document ID is
// ignored because a batch only ever holds one document.
func (b *Batch) TypeRefsByDocument(int64) ([]*TypeRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*TypeRef, len(b.TypeRefs))
	for i := range b.TypeRefs {
		r := b.TypeRefs[i]
		out[i] = &r
	}
	return out, nil
}

// Matches returns the buffered facts joined with the batch's document, as
// an index query would return them after commit.
func (b *Batch) Matches() []*TypeRefMatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*TypeRefMatch, len(b.TypeRefs))
	for i, r := range b.TypeRefs {
		out[i] = &TypeRefMatch{
			TypeRef:  r,
			Path:     b.Document.Path,
			Project:  b.Document.Project,
			Language: b.Document.Language,
		}
	}
	return out
}

// Len returns the number of buffered facts of all kinds.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.TypeRefs) + len(b.Imports) + len(b.Packages)
}
