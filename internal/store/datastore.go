package store

// DataStore is the interface extraction writes facts through. Both Store
// (direct SQLite) and Batch (in-memory buffering for the index queue)
// implement it.
type DataStore interface {
	InsertTypeRef(ref *TypeRef) (int64, error)
	InsertImport(imp *Import) (int64, error)
	InsertPackage(pkg *Package) (int64, error)

	TypeRefsByDocument(documentID int64) ([]*TypeRef, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
