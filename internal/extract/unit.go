package extract

import (
	"fmt"

	"github.com/jward/arbor/internal/store"
)

// Unit is the parsed form of one source document.
type Unit struct {
	Path     string
	Language string
	Decls    []Decl
}

// Types returns the type declarations in source order.
func (u *Unit) Types() []*TypeDecl {
	var out []*TypeDecl
	for _, d := range u.Decls {
		if td, ok := d.(*TypeDecl); ok {
			out = append(out, td)
		}
	}
	return out
}

func (u *Unit) Imports() []*ImportDecl {
	var out []*ImportDecl
	for _, d := range u.Decls {
		if imp, ok := d.(*ImportDecl); ok {
			out = append(out, imp)
		}
	}
	return out
}

// Package returns the first package declaration's name, or "".
func (u *Unit) Package() string {
	for _, d := range u.Decls {
		if p, ok := d.(*PackageDecl); ok {
			return p.Name
		}
	}
	return ""
}

// Lookup returns the non-local types declared in the unit called simple.
func (u *Unit) Lookup(simple string) []*TypeDecl {
	var out []*TypeDecl
	for _, td := range u.Types() {
		if td.Name == simple && !td.Local {
			out = append(out, td)
		}
	}
	return out
}

// Unalias rewrites supertype references that use an import alias to the
// imported name, so the index is keyed by the name the type was declared
// with.
func (u *Unit) Unalias() {
	aliases := map[string]*ImportDecl{}
	for _, imp := range u.Imports() {
		if imp.Alias != "" && imp.Name != "*" && imp.Alias != imp.Name {
			aliases[imp.Alias] = imp
		}
	}
	if len(aliases) == 0 {
		return
	}
	for _, td := range u.Types() {
		for i, s := range td.Supers {
			if imp, ok := aliases[s.Simple]; ok && s.Qualifier == "" {
				td.Supers[i] = TypeName{Simple: imp.Name, Qualifier: imp.Source}
			}
		}
	}
}

// TypeRefs converts the unit's type declarations into index facts: one per
// (type, supertype) pair, or a single fact with an empty supertype for a
// type without supertypes. Local and anonymous types carry
// store.LocalMarker as their enclosing type.
func (u *Unit) TypeRefs() []store.TypeRef {
	var refs []store.TypeRef
	for _, td := range u.Types() {
		enclosing := td.Enclosing
		if td.Local {
			enclosing = store.LocalMarker
		}
		base := store.TypeRef{
			EnclosingType: enclosing,
			SimpleName:    td.Name,
			Qualifier:     td.Qualifier,
			Line:          td.Line,
		}
		if len(td.Supers) == 0 {
			refs = append(refs, base)
			continue
		}
		for _, s := range td.Supers {
			r := base
			r.SuperName = s.Simple
			r.SuperQualifier = s.Qualifier
			refs = append(refs, r)
		}
	}
	return refs
}

// WriteTo writes the unit's facts for documentID through ds.
func (u *Unit) WriteTo(ds store.DataStore, documentID int64) error {
	for _, ref := range u.TypeRefs() {
		ref.DocumentID = documentID
		if _, err := ds.InsertTypeRef(&ref); err != nil {
			return fmt.Errorf("write facts %s: %w", u.Path, err)
		}
	}
	for _, d := range u.Decls {
		var err error
		switch d := d.(type) {
		case *ImportDecl:
			_, err = ds.InsertImport(&store.Import{DocumentID: documentID, Source: d.Source, ImportedName: d.Name, Alias: d.Alias})
		case *PackageDecl:
			_, err = ds.InsertPackage(&store.Package{DocumentID: documentID, Name: d.Name})
		}
		if err != nil {
			return fmt.Errorf("write facts %s: %w", u.Path, err)
		}
	}
	return nil
}

// Batch buffers the unit's facts for doc.
func (u *Unit) Batch(doc store.Document) (*store.Batch, error) {
	b := store.NewBatch(doc)
	if err := u.WriteTo(b, 0); err != nil {
		return nil, err
	}
	return b, nil
}

// FactsHash hashes the unit's supertype facts.
func (u *Unit) FactsHash() string {
	return store.FactsHash(u.TypeRefs())
}
