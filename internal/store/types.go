package store

import "time"

// LocalMarker is stored as the enclosing type of local and anonymous type
// declarations. Such types cannot be named from outside their document.
const LocalMarker = "<local>"

type Document struct {
	ID          int64
	Path        string
	Project     string
	Fragment    string
	Language    string
	Hash        string
	LastIndexed time.Time
}

// TypeRef is a supertype reference fact: SimpleName (declared in
// EnclosingType, or local when EnclosingType is LocalMarker) names
// SuperName as a direct supertype. A declaration without supertypes is
// stored with an empty SuperName so that it can still be found by name.
type TypeRef struct {
	ID             int64
	DocumentID     int64
	EnclosingType  string
	SimpleName     string
	Qualifier      string
	SuperName      string
	SuperQualifier string
	Line           int
}

// IsLocal reports whether the fact belongs to a local or anonymous type.
func (r *TypeRef) IsLocal() bool {
	return r.EnclosingType == LocalMarker
}

type Import struct {
	ID           int64
	DocumentID   int64
	Source       string
	ImportedName string
	Alias        string
}

type Package struct {
	ID         int64
	DocumentID int64
	Name       string
}

// TypeRefMatch is a TypeRef joined with the document that produced it.
type TypeRefMatch struct {
	TypeRef
	Path     string
	Project  string
	Language string
}

// Stats summarizes the store contents.
type Stats struct {
	Documents int
	TypeRefs  int
	Imports   int
	Projects  map[string]int
	Languages map[string]int
}
