// Package extract turns source units into declarations and index facts.
//
// Declarations form a closed sum type: every Decl is one of TypeDecl,
// MethodDecl, FieldDecl, ImportDecl or PackageDecl. Extraction is
// pluggable per language through the Extractor interface; the built-in
// extractors walk tree-sitter syntax trees.
package extract

// Decl is a declaration found in a source unit.
type Decl interface {
	// Kind names the declaration variant, e.g. "type" or "import".
	Kind() string
	// DeclLine is the 1-based line the declaration starts on.
	DeclLine() int

	isDecl()
}

// TypeName is a possibly qualified reference to a type.
type TypeName struct {
	Simple    string
	Qualifier string
}

func (n TypeName) String() string {
	if n.Qualifier == "" {
		return n.Simple
	}
	return n.Qualifier + "." + n.Simple
}

// TypeDecl declares a class-like type.
type TypeDecl struct {
	Name string
	// Qualifier is the package or namespace the type is declared in.
	Qualifier string
	// Enclosing is the dotted chain of enclosing type names.
	Enclosing string
	// Category is the language keyword, e.g. "class", "interface", "module".
	Category  string
	Local     bool
	Anonymous bool
	Supers    []TypeName
	Line      int
}

type MethodDecl struct {
	Name      string
	Enclosing string
	Line      int
}

type FieldDecl struct {
	Name      string
	Enclosing string
	Line      int
}

type ImportDecl struct {
	// Source is the package, module or namespace imported from.
	Source string
	// Name is the simple name the import makes available, or "*".
	Name  string
	Alias string
	Line  int
}

type PackageDecl struct {
	Name string
	Line int
}

func (*TypeDecl) Kind() string    { return "type" }
func (*MethodDecl) Kind() string  { return "method" }
func (*FieldDecl) Kind() string   { return "field" }
func (*ImportDecl) Kind() string  { return "import" }
func (*PackageDecl) Kind() string { return "package" }

func (d *TypeDecl) DeclLine() int    { return d.Line }
func (d *MethodDecl) DeclLine() int  { return d.Line }
func (d *FieldDecl) DeclLine() int   { return d.Line }
func (d *ImportDecl) DeclLine() int  { return d.Line }
func (d *PackageDecl) DeclLine() int { return d.Line }

func (*TypeDecl) isDecl()    {}
func (*MethodDecl) isDecl()  {}
func (*FieldDecl) isDecl()   {}
func (*ImportDecl) isDecl()  {}
func (*PackageDecl) isDecl() {}

// QualifiedName returns the name including enclosing types, e.g. "Outer.Inner".
func (d *TypeDecl) QualifiedName() string {
	if d.Enclosing == "" {
		return d.Name
	}
	return d.Enclosing + "." + d.Name
}

// DisplayName is QualifiedName with a placeholder for anonymous types.
func (d *TypeDecl) DisplayName() string {
	if d.Anonymous {
		return "<anonymous>"
	}
	return d.QualifiedName()
}

// Imported reports whether the import makes simple available.
func (d *ImportDecl) Imported(simple string) bool {
	if d.Alias != "" {
		return d.Alias == simple
	}
	return d.Name == simple
}

// Binds reports whether the import brings simple into scope, either by
// name or as a wildcard.
func (d *ImportDecl) Binds(simple string) bool {
	return d.Name == "*" || d.Imported(simple)
}
