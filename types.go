package arbor

import (
	"github.com/jward/arbor/internal/extract"
	"github.com/jward/arbor/internal/index"
	"github.com/jward/arbor/internal/store"
	"github.com/jward/arbor/internal/workspace"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder APIs. These are Go type aliases (=), identical to the
// internal types at compile time. External consumers use these names; no
// conversion is needed.

type Store = store.Store
type Document = store.Document
type TypeRef = store.TypeRef
type TypeRefMatch = store.TypeRefMatch
type Import = store.Import
type Stats = store.Stats

type Unit = extract.Unit
type Decl = extract.Decl
type TypeName = extract.TypeName
type TypeDecl = extract.TypeDecl
type MethodDecl = extract.MethodDecl
type FieldDecl = extract.FieldDecl
type ImportDecl = extract.ImportDecl
type PackageDecl = extract.PackageDecl

type Policy = index.Policy

type Workspace = workspace.Workspace
type Project = workspace.Project
