package extract

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// typeRule describes a node kind that declares a named type.
type typeRule struct {
	category string
	// name is the field holding the type name.
	name string
	// body, when set, is a field that must be present; declarations
	// without it are forward references.
	body   string
	supers func(n *sitter.Node, src []byte) []TypeName
}

// langSpec drives the generic tree-sitter walker for one language.
type langSpec struct {
	language   string
	extensions []string
	roots      []string
	grammar    func() *sitter.Language

	types map[string]typeRule
	// anonymous recognises anonymous type expressions and returns their
	// supertypes.
	anonymous func(n *sitter.Node, src []byte) ([]TypeName, bool)
	// scopes are node kinds whose bodies make nested types local.
	scopes map[string]bool

	packages map[string]func(n *sitter.Node, src []byte) string
	imports  map[string]func(n *sitter.Node, src []byte) []*ImportDecl
	methods  map[string]bool
	fields   map[string]func(n *sitter.Node, src []byte) []string
	// mixins adds supertypes to the enclosing type from statements in its
	// body, such as Ruby's include.
	mixins func(n *sitter.Node, src []byte) []TypeName
}

// treeSitterExtractor is the built-in Extractor over a langSpec.
type treeSitterExtractor struct {
	spec *langSpec
}

func (e *treeSitterExtractor) Language() string     { return e.spec.language }
func (e *treeSitterExtractor) Extensions() []string { return e.spec.extensions }
func (e *treeSitterExtractor) RootTypes() []string  { return e.spec.roots }

// Grammar returns the tree-sitter language used by the extractor.
func (e *treeSitterExtractor) Grammar() *sitter.Language { return e.spec.grammar() }

func (e *treeSitterExtractor) Extract(ctx context.Context, path string, src []byte) (*Unit, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(e.spec.grammar())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	w := &walker{spec: e.spec, src: src, unit: &Unit{Path: path, Language: e.spec.language}}
	w.walk(tree.RootNode())
	w.unit.Unalias()
	return w.unit, nil
}

type walker struct {
	spec  *langSpec
	src   []byte
	unit  *Unit
	pkg   string
	stack []*TypeDecl
	local int
}

func (w *walker) enclosing() string {
	names := make([]string, 0, len(w.stack))
	for _, td := range w.stack {
		if td.Anonymous {
			names = append(names, "")
			continue
		}
		names = append(names, td.Name)
	}
	return strings.Join(names, ".")
}

func (w *walker) walk(n *sitter.Node) {
	kind := n.Type()
	line := int(n.StartPoint().Row) + 1

	if fn, ok := w.spec.packages[kind]; ok {
		if name := fn(n, w.src); name != "" {
			w.pkg = name
			w.unit.Decls = append(w.unit.Decls, &PackageDecl{Name: name, Line: line})
		}
	}
	if fn, ok := w.spec.imports[kind]; ok {
		if imps := fn(n, w.src); len(imps) > 0 {
			for _, imp := range imps {
				imp.Line = line
				w.unit.Decls = append(w.unit.Decls, imp)
			}
			return
		}
	}
	if rule, ok := w.spec.types[kind]; ok {
		if td := w.typeDecl(n, rule); td != nil {
			w.push(n, td)
			return
		}
	}
	if w.spec.anonymous != nil {
		if supers, ok := w.spec.anonymous(n, w.src); ok {
			w.push(n, &TypeDecl{
				Qualifier: w.pkg,
				Enclosing: w.enclosing(),
				Category:  "class",
				Local:     true,
				Anonymous: true,
				Supers:    supers,
				Line:      line,
			})
			return
		}
	}
	if len(w.stack) > 0 {
		owner := w.stack[len(w.stack)-1]
		if w.spec.methods[kind] {
			if name := fieldText(n, "name", w.src); name != "" {
				w.unit.Decls = append(w.unit.Decls, &MethodDecl{Name: name, Enclosing: owner.QualifiedName(), Line: line})
			}
		}
		if fn, ok := w.spec.fields[kind]; ok {
			for _, name := range fn(n, w.src) {
				w.unit.Decls = append(w.unit.Decls, &FieldDecl{Name: name, Enclosing: owner.QualifiedName(), Line: line})
			}
		}
		if w.spec.mixins != nil {
			owner.Supers = append(owner.Supers, w.spec.mixins(n, w.src)...)
		}
	}

	scope := w.spec.scopes[kind]
	if scope {
		w.local++
	}
	w.children(n)
	if scope {
		w.local--
	}
}

func (w *walker) children(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil {
			w.walk(c)
		}
	}
}

// push records td and walks n's children with td as the innermost
// enclosing type.
func (w *walker) push(n *sitter.Node, td *TypeDecl) {
	w.unit.Decls = append(w.unit.Decls, td)
	w.stack = append(w.stack, td)
	if td.Local {
		w.local++
	}
	w.children(n)
	if td.Local {
		w.local--
	}
	w.stack = w.stack[:len(w.stack)-1]
}

func (w *walker) typeDecl(n *sitter.Node, rule typeRule) *TypeDecl {
	if rule.body != "" && n.ChildByFieldName(rule.body) == nil {
		return nil
	}
	nameNode := n.ChildByFieldName(rule.name)
	if nameNode == nil {
		return nil
	}
	names := typeNames(nameNode, w.src)
	if len(names) == 0 {
		return nil
	}
	td := &TypeDecl{
		Name:      names[0].Simple,
		Qualifier: w.pkg,
		Enclosing: w.enclosing(),
		Category:  rule.category,
		Local:     w.local > 0,
		Line:      int(n.StartPoint().Row) + 1,
	}
	if names[0].Qualifier != "" {
		td.Qualifier = names[0].Qualifier
	}
	if rule.supers != nil {
		td.Supers = rule.supers(n, w.src)
	}
	return td
}

// heritage returns a supers function collecting type names from the
// children of n whose kind is one of kinds.
func heritage(kinds ...string) func(n *sitter.Node, src []byte) []TypeName {
	set := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(n *sitter.Node, src []byte) []TypeName {
		var out []TypeName
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c != nil && set[c.Type()] {
				out = append(out, typeNames(c, src)...)
			}
		}
		return out
	}
}

var leafNameKinds = map[string]bool{
	"identifier":         true,
	"type_identifier":    true,
	"constant":           true,
	"name":               true,
	"package_identifier": true,
}

var qualifiedNameKinds = map[string]bool{
	"scoped_type_identifier": true,
	"scoped_identifier":      true,
	"attribute":              true,
	"member_expression":      true,
	"nested_type_identifier": true,
	"qualified_name":         true,
	"qualified_type":         true,
	"qualified_identifier":   true,
	"scope_resolution":       true,
	"dotted_name":            true,
}

// skipNameKinds never contribute supertype names.
var skipNameKinds = map[string]bool{
	"type_arguments":         true,
	"type_parameters":        true,
	"template_argument_list": true,
	"keyword_argument":       true,
	"comment":                true,
	"call_expression":        true,
	"call":                   true,
	"string":                 true,
	"access_specifier":       true,
	"lifetime":               true,
}

// typeNames collects the type references under n. Generic arguments are
// ignored; qualified names are split into simple name and qualifier.
func typeNames(n *sitter.Node, src []byte) []TypeName {
	kind := n.Type()
	switch {
	case skipNameKinds[kind]:
		return nil
	case leafNameKinds[kind]:
		return []TypeName{{Simple: n.Content(src)}}
	case qualifiedNameKinds[kind]:
		return []TypeName{ParseTypeName(n.Content(src))}
	case kind == "generic_type" || kind == "template_type" || kind == "subscript":
		for _, field := range []string{"name", "value"} {
			if c := n.ChildByFieldName(field); c != nil {
				return typeNames(c, src)
			}
		}
		if n.NamedChildCount() > 0 {
			return typeNames(n.NamedChild(0), src)
		}
		return nil
	}
	var out []TypeName
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, typeNames(c, src)...)
		}
	}
	return out
}

// ParseTypeName splits "a.b.C", "A::B::C" or "\A\B\C" into its last
// segment and the dotted qualifier before it.
func ParseTypeName(text string) TypeName {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "<[("); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	text = strings.TrimLeft(text, "\\:")
	text = strings.NewReplacer("::", ".", "\\", ".").Replace(text)
	if i := strings.LastIndex(text, "."); i >= 0 {
		return TypeName{Simple: text[i+1:], Qualifier: text[:i]}
	}
	return TypeName{Simple: text}
}

func fieldText(n *sitter.Node, field string, src []byte) string {
	c := n.ChildByFieldName(field)
	if c == nil {
		return ""
	}
	return c.Content(src)
}

func childOfKind(n *sitter.Node, kinds ...string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		for _, k := range kinds {
			if c.Type() == k {
				return c
			}
		}
	}
	return nil
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`<>")
}
