package extract

import (
	"path"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Grammars are lazily initialized on first use via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"go":         golang.GetLanguage(),
			"typescript": ts.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"python":     python.GetLanguage(),
			"rust":       rust.GetLanguage(),
			"cpp":        cpp.GetLanguage(),
			"java":       java.GetLanguage(),
			"php":        php.GetLanguage(),
			"ruby":       ruby.GetLanguage(),
		}
	})
}

// GrammarForLanguage returns the tree-sitter grammar for a built-in
// language name.
func GrammarForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}

func grammar(lang string) func() *sitter.Language {
	return func() *sitter.Language {
		l, _ := GrammarForLanguage(lang)
		return l
	}
}

// Builtins returns the built-in tree-sitter extractors.
func Builtins() []Extractor {
	specs := []*langSpec{
		javaSpec(), pythonSpec(), rubySpec(), phpSpec(),
		javascriptSpec(), typescriptSpec(), goSpec(), cppSpec(), rustSpec(),
	}
	out := make([]Extractor, len(specs))
	for i, s := range specs {
		out[i] = &treeSitterExtractor{spec: s}
	}
	return out
}

func set(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// importOf builds an ImportDecl from a qualified name such as
// "com.example.Base".
func importOf(qualified, alias string) *ImportDecl {
	tn := ParseTypeName(qualified)
	return &ImportDecl{Source: tn.Qualifier, Name: tn.Simple, Alias: alias}
}

// =============================================================================
// Java
// =============================================================================

func javaSpec() *langSpec {
	javaTypes := heritage("superclass", "super_interfaces", "extends_interfaces")
	return &langSpec{
		language:   "java",
		extensions: []string{".java"},
		roots:      []string{"Object"},
		grammar:    grammar("java"),
		types: map[string]typeRule{
			"class_declaration":           {category: "class", name: "name", supers: javaTypes},
			"interface_declaration":       {category: "interface", name: "name", supers: javaTypes},
			"enum_declaration":            {category: "enum", name: "name", supers: javaTypes},
			"record_declaration":          {category: "record", name: "name", supers: javaTypes},
			"annotation_type_declaration": {category: "annotation", name: "name"},
		},
		anonymous: func(n *sitter.Node, src []byte) ([]TypeName, bool) {
			if n.Type() != "object_creation_expression" || childOfKind(n, "class_body") == nil {
				return nil, false
			}
			if t := n.ChildByFieldName("type"); t != nil {
				return typeNames(t, src), true
			}
			return nil, true
		},
		scopes: set("method_declaration", "constructor_declaration", "compact_constructor_declaration",
			"lambda_expression", "static_initializer"),
		packages: map[string]func(*sitter.Node, []byte) string{
			"package_declaration": func(n *sitter.Node, src []byte) string {
				if c := childOfKind(n, "scoped_identifier", "identifier"); c != nil {
					return c.Content(src)
				}
				return ""
			},
		},
		imports: map[string]func(*sitter.Node, []byte) []*ImportDecl{
			"import_declaration": func(n *sitter.Node, src []byte) []*ImportDecl {
				c := childOfKind(n, "scoped_identifier", "identifier")
				if c == nil {
					return nil
				}
				if childOfKind(n, "asterisk") != nil {
					return []*ImportDecl{{Source: c.Content(src), Name: "*"}}
				}
				return []*ImportDecl{importOf(c.Content(src), "")}
			},
		},
		methods: set("method_declaration", "constructor_declaration"),
		fields: map[string]func(*sitter.Node, []byte) []string{
			"field_declaration": declaratorNames("variable_declarator"),
		},
	}
}

// declaratorNames returns the "name" field of every child of the given kind.
func declaratorNames(kind string) func(n *sitter.Node, src []byte) []string {
	return func(n *sitter.Node, src []byte) []string {
		var out []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c != nil && c.Type() == kind {
				if name := fieldText(c, "name", src); name != "" {
					out = append(out, name)
				}
			}
		}
		return out
	}
}

// =============================================================================
// Python
// =============================================================================

func pythonSpec() *langSpec {
	return &langSpec{
		language:   "python",
		extensions: []string{".py", ".pyi"},
		roots:      []string{"object"},
		grammar:    grammar("python"),
		types: map[string]typeRule{
			"class_definition": {category: "class", name: "name", supers: func(n *sitter.Node, src []byte) []TypeName {
				if c := n.ChildByFieldName("superclasses"); c != nil {
					return typeNames(c, src)
				}
				return nil
			}},
		},
		scopes: set("function_definition", "lambda"),
		imports: map[string]func(*sitter.Node, []byte) []*ImportDecl{
			"import_statement":      pythonImport,
			"import_from_statement": pythonImportFrom,
		},
		methods: set("function_definition"),
	}
}

func pythonImport(n *sitter.Node, src []byte) []*ImportDecl {
	var out []*ImportDecl
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "dotted_name":
			out = append(out, importOf(c.Content(src), ""))
		case "aliased_import":
			out = append(out, importOf(fieldText(c, "name", src), fieldText(c, "alias", src)))
		}
	}
	return out
}

func pythonImportFrom(n *sitter.Node, src []byte) []*ImportDecl {
	module := n.ChildByFieldName("module_name")
	if module == nil {
		return nil
	}
	source := module.Content(src)
	var out []*ImportDecl
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || c.StartByte() == module.StartByte() {
			continue
		}
		switch c.Type() {
		case "dotted_name":
			out = append(out, &ImportDecl{Source: source, Name: c.Content(src)})
		case "aliased_import":
			out = append(out, &ImportDecl{Source: source, Name: fieldText(c, "name", src), Alias: fieldText(c, "alias", src)})
		case "wildcard_import":
			out = append(out, &ImportDecl{Source: source, Name: "*"})
		}
	}
	return out
}

// =============================================================================
// Ruby
// =============================================================================

func rubySpec() *langSpec {
	return &langSpec{
		language:   "ruby",
		extensions: []string{".rb"},
		roots:      []string{"Object", "BasicObject"},
		grammar:    grammar("ruby"),
		types: map[string]typeRule{
			"class":  {category: "class", name: "name", supers: heritage("superclass")},
			"module": {category: "module", name: "name"},
		},
		anonymous: func(n *sitter.Node, src []byte) ([]TypeName, bool) {
			if n.Type() != "call" || fieldText(n, "receiver", src) != "Class" || fieldText(n, "method", src) != "new" {
				return nil, false
			}
			if args := n.ChildByFieldName("arguments"); args != nil {
				return typeNames(args, src), true
			}
			return nil, true
		},
		scopes: set("method", "singleton_method", "block", "do_block", "lambda"),
		imports: map[string]func(*sitter.Node, []byte) []*ImportDecl{
			"call": func(n *sitter.Node, src []byte) []*ImportDecl {
				if n.ChildByFieldName("receiver") != nil {
					return nil
				}
				switch fieldText(n, "method", src) {
				case "require", "require_relative":
				default:
					return nil
				}
				args := n.ChildByFieldName("arguments")
				if args == nil {
					return nil
				}
				s := childOfKind(args, "string")
				if s == nil {
					return nil
				}
				source := unquote(s.Content(src))
				return []*ImportDecl{{Source: source, Name: path.Base(source)}}
			},
		},
		methods: set("method", "singleton_method"),
		mixins: func(n *sitter.Node, src []byte) []TypeName {
			if n.Type() != "call" || n.ChildByFieldName("receiver") != nil {
				return nil
			}
			switch fieldText(n, "method", src) {
			case "include", "prepend":
			default:
				return nil
			}
			if args := n.ChildByFieldName("arguments"); args != nil {
				return typeNames(args, src)
			}
			return nil
		},
	}
}

// =============================================================================
// PHP
// =============================================================================

func phpSpec() *langSpec {
	phpTypes := heritage("base_clause", "class_interface_clause")
	return &langSpec{
		language:   "php",
		extensions: []string{".php"},
		grammar:    grammar("php"),
		types: map[string]typeRule{
			"class_declaration":     {category: "class", name: "name", supers: phpTypes},
			"interface_declaration": {category: "interface", name: "name", supers: phpTypes},
			"trait_declaration":     {category: "trait", name: "name"},
			"enum_declaration":      {category: "enum", name: "name", supers: phpTypes},
		},
		anonymous: func(n *sitter.Node, src []byte) ([]TypeName, bool) {
			switch n.Type() {
			case "anonymous_class":
			case "object_creation_expression":
				if childOfKind(n, "declaration_list") == nil {
					return nil, false
				}
			default:
				return nil, false
			}
			return phpTypes(n, src), true
		},
		scopes: set("function_definition", "method_declaration", "anonymous_function_creation_expression",
			"anonymous_function", "arrow_function"),
		packages: map[string]func(*sitter.Node, []byte) string{
			"namespace_definition": func(n *sitter.Node, src []byte) string {
				return strings.TrimLeft(strings.ReplaceAll(fieldText(n, "name", src), "\\", "."), ".")
			},
		},
		imports: map[string]func(*sitter.Node, []byte) []*ImportDecl{
			"namespace_use_declaration": func(n *sitter.Node, src []byte) []*ImportDecl {
				var out []*ImportDecl
				for i := 0; i < int(n.NamedChildCount()); i++ {
					clause := n.NamedChild(i)
					if clause == nil || clause.Type() != "namespace_use_clause" {
						continue
					}
					target := childOfKind(clause, "qualified_name", "name")
					if target == nil {
						continue
					}
					alias := fieldText(clause, "alias", src)
					if a := childOfKind(clause, "namespace_aliasing_clause"); a != nil && alias == "" {
						if an := childOfKind(a, "name"); an != nil {
							alias = an.Content(src)
						}
					}
					if alias == target.Content(src) {
						alias = ""
					}
					out = append(out, importOf(target.Content(src), alias))
				}
				return out
			},
		},
		methods: set("method_declaration"),
		fields: map[string]func(*sitter.Node, []byte) []string{
			"property_declaration": func(n *sitter.Node, src []byte) []string {
				var out []string
				for i := 0; i < int(n.NamedChildCount()); i++ {
					c := n.NamedChild(i)
					if c == nil || c.Type() != "property_element" {
						continue
					}
					if v := childOfKind(c, "variable_name"); v != nil {
						out = append(out, strings.TrimPrefix(v.Content(src), "$"))
					}
				}
				return out
			},
		},
	}
}

// =============================================================================
// JavaScript and TypeScript
// =============================================================================

func ecmaImport(n *sitter.Node, src []byte) []*ImportDecl {
	source := unquote(fieldText(n, "source", src))
	if source == "" {
		return nil
	}
	clause := childOfKind(n, "import_clause")
	if clause == nil {
		return []*ImportDecl{{Source: source, Name: "*"}}
	}
	var out []*ImportDecl
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		c := clause.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "identifier":
			out = append(out, &ImportDecl{Source: source, Name: c.Content(src)})
		case "namespace_import":
			if id := childOfKind(c, "identifier"); id != nil {
				out = append(out, &ImportDecl{Source: source, Name: "*", Alias: id.Content(src)})
			}
		case "named_imports":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				spec := c.NamedChild(j)
				if spec == nil || spec.Type() != "import_specifier" {
					continue
				}
				out = append(out, &ImportDecl{Source: source, Name: fieldText(spec, "name", src), Alias: fieldText(spec, "alias", src)})
			}
		}
	}
	return out
}

func ecmaAnonymous(n *sitter.Node, src []byte) ([]TypeName, bool) {
	if n.Type() != "class" {
		return nil, false
	}
	return heritage("class_heritage")(n, src), true
}

var ecmaScopes = []string{"function_declaration", "function_expression", "function", "arrow_function",
	"method_definition", "generator_function_declaration", "generator_function"}

func javascriptSpec() *langSpec {
	return &langSpec{
		language:   "javascript",
		extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		roots:      []string{"Object"},
		grammar:    grammar("javascript"),
		types: map[string]typeRule{
			"class_declaration": {category: "class", name: "name", supers: heritage("class_heritage")},
		},
		anonymous: ecmaAnonymous,
		scopes:    set(ecmaScopes...),
		imports:   map[string]func(*sitter.Node, []byte) []*ImportDecl{"import_statement": ecmaImport},
		methods:   set("method_definition"),
		fields: map[string]func(*sitter.Node, []byte) []string{
			"field_definition": func(n *sitter.Node, src []byte) []string {
				if p := fieldText(n, "property", src); p != "" {
					return []string{p}
				}
				return nil
			},
		},
	}
}

func typescriptSpec() *langSpec {
	classSupers := heritage("class_heritage")
	return &langSpec{
		language:   "typescript",
		extensions: []string{".ts", ".tsx", ".mts", ".cts"},
		roots:      []string{"Object"},
		grammar:    grammar("typescript"),
		types: map[string]typeRule{
			"class_declaration":          {category: "class", name: "name", supers: classSupers},
			"abstract_class_declaration": {category: "class", name: "name", supers: classSupers},
			"interface_declaration":      {category: "interface", name: "name", supers: heritage("extends_type_clause", "extends_clause")},
			"enum_declaration":           {category: "enum", name: "name"},
		},
		anonymous: ecmaAnonymous,
		scopes:    set(ecmaScopes...),
		imports:   map[string]func(*sitter.Node, []byte) []*ImportDecl{"import_statement": ecmaImport},
		methods:   set("method_definition", "method_signature", "abstract_method_signature"),
		fields: map[string]func(*sitter.Node, []byte) []string{
			"public_field_definition": func(n *sitter.Node, src []byte) []string {
				if p := fieldText(n, "name", src); p != "" {
					return []string{p}
				}
				return nil
			},
		},
	}
}

// =============================================================================
// Go: embedded struct fields and embedded interfaces act as supertypes.
// =============================================================================

func goSpec() *langSpec {
	return &langSpec{
		language:   "go",
		extensions: []string{".go"},
		grammar:    grammar("go"),
		types: map[string]typeRule{
			"type_spec": {category: "type", name: "name", supers: goEmbedded},
		},
		scopes: set("function_declaration", "method_declaration", "func_literal"),
		packages: map[string]func(*sitter.Node, []byte) string{
			"package_clause": func(n *sitter.Node, src []byte) string {
				if c := childOfKind(n, "package_identifier"); c != nil {
					return c.Content(src)
				}
				return ""
			},
		},
		imports: map[string]func(*sitter.Node, []byte) []*ImportDecl{
			"import_spec": func(n *sitter.Node, src []byte) []*ImportDecl {
				p := unquote(fieldText(n, "path", src))
				if p == "" {
					return nil
				}
				return []*ImportDecl{{Source: p, Name: path.Base(p), Alias: fieldText(n, "name", src)}}
			},
		},
		fields: map[string]func(*sitter.Node, []byte) []string{
			"field_declaration": func(n *sitter.Node, src []byte) []string {
				var out []string
				for i := 0; i < int(n.NamedChildCount()); i++ {
					c := n.NamedChild(i)
					if c != nil && c.Type() == "field_identifier" {
						out = append(out, c.Content(src))
					}
				}
				return out
			},
		},
	}
}

func goEmbedded(n *sitter.Node, src []byte) []TypeName {
	t := n.ChildByFieldName("type")
	if t == nil {
		return nil
	}
	var out []TypeName
	switch t.Type() {
	case "struct_type":
		list := childOfKind(t, "field_declaration_list")
		if list == nil {
			return nil
		}
		for i := 0; i < int(list.NamedChildCount()); i++ {
			f := list.NamedChild(i)
			if f == nil || f.Type() != "field_declaration" || f.ChildByFieldName("name") != nil {
				continue
			}
			if ft := f.ChildByFieldName("type"); ft != nil {
				out = append(out, typeNames(ft, src)...)
			}
		}
	case "interface_type":
		for i := 0; i < int(t.NamedChildCount()); i++ {
			c := t.NamedChild(i)
			if c == nil {
				continue
			}
			switch c.Type() {
			case "method_spec", "method_elem", "comment":
				continue
			}
			out = append(out, typeNames(c, src)...)
		}
	}
	return out
}

// =============================================================================
// C++ and Rust
// =============================================================================

func cppSpec() *langSpec {
	bases := heritage("base_class_clause")
	return &langSpec{
		language:   "cpp",
		extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx"},
		grammar:    grammar("cpp"),
		types: map[string]typeRule{
			"class_specifier":  {category: "class", name: "name", body: "body", supers: bases},
			"struct_specifier": {category: "struct", name: "name", body: "body", supers: bases},
		},
		scopes: set("function_definition", "lambda_expression"),
		imports: map[string]func(*sitter.Node, []byte) []*ImportDecl{
			"preproc_include": func(n *sitter.Node, src []byte) []*ImportDecl {
				p := unquote(fieldText(n, "path", src))
				if p == "" {
					return nil
				}
				return []*ImportDecl{{Source: p, Name: "*"}}
			},
		},
	}
}

func rustSpec() *langSpec {
	return &langSpec{
		language:   "rust",
		extensions: []string{".rs"},
		grammar:    grammar("rust"),
		types: map[string]typeRule{
			"struct_item": {category: "struct", name: "name"},
			"enum_item":   {category: "enum", name: "name"},
			"trait_item": {category: "trait", name: "name", supers: func(n *sitter.Node, src []byte) []TypeName {
				if b := n.ChildByFieldName("bounds"); b != nil {
					return typeNames(b, src)
				}
				return nil
			}},
			// An impl of a trait records the trait as a supertype of the
			// implementing type.
			"impl_item": {category: "impl", name: "type", body: "trait", supers: func(n *sitter.Node, src []byte) []TypeName {
				return typeNames(n.ChildByFieldName("trait"), src)
			}},
		},
		scopes: set("function_item", "closure_expression"),
		imports: map[string]func(*sitter.Node, []byte) []*ImportDecl{
			"use_declaration": func(n *sitter.Node, src []byte) []*ImportDecl {
				arg := n.ChildByFieldName("argument")
				if arg == nil || arg.Type() != "scoped_identifier" {
					return nil
				}
				return []*ImportDecl{importOf(arg.Content(src), "")}
			},
		},
		methods: set("function_item", "function_signature_item"),
	}
}
