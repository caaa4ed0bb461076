package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/risor-io/risor/object"

	"github.com/jward/arbor/internal/extract"
)

// collector accumulates the declarations a script emits. Risor scripts
// cannot construct Go struct pointers, so the emit functions accept Risor
// maps with primitive values and build the declarations Go-side.
type collector struct {
	mu   sync.Mutex
	unit *extract.Unit
}

func (c *collector) add(d extract.Decl) {
	c.mu.Lock()
	c.unit.Decls = append(c.unit.Decls, d)
	c.mu.Unlock()
}

func (c *collector) globals() map[string]any {
	return map[string]any{
		"emit_type":    c.makeEmitTypeFn(),
		"emit_method":  c.makeEmitMemberFn("emit_method"),
		"emit_field":   c.makeEmitMemberFn("emit_field"),
		"emit_import":  c.makeEmitImportFn(),
		"emit_package": c.makeEmitPackageFn(),
	}
}

// emit_type({name, qualifier, enclosing, category, local, anonymous, line, supers})
//
// supers is a list of possibly qualified names such as "a.b.Base".
func (c *collector) makeEmitTypeFn() *object.Builtin {
	return object.NewBuiltin("emit_type", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit_type", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("emit_type: %v", err)
		}
		td := &extract.TypeDecl{
			Name:      getString(m, "name"),
			Qualifier: getString(m, "qualifier"),
			Enclosing: getString(m, "enclosing"),
			Category:  getStringDefault(m, "category", "class"),
			Local:     getBool(m, "local"),
			Anonymous: getBool(m, "anonymous"),
			Line:      getInt(m, "line"),
		}
		if td.Anonymous {
			td.Local = true
		}
		if td.Name == "" && !td.Anonymous {
			return object.Errorf("emit_type: name is required for a named type")
		}
		supers, err := getStringList(m, "supers")
		if err != nil {
			return object.Errorf("emit_type: %v", err)
		}
		for _, s := range supers {
			td.Supers = append(td.Supers, extract.ParseTypeName(s))
		}
		c.add(td)
		return object.Nil
	})
}

// emit_method({name, enclosing, line}) and emit_field({name, enclosing, line})
func (c *collector) makeEmitMemberFn(fn string) *object.Builtin {
	return object.NewBuiltin(fn, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(fn, 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("%s: %v", fn, err)
		}
		name, enclosing, line := getString(m, "name"), getString(m, "enclosing"), getInt(m, "line")
		if name == "" {
			return object.Errorf("%s: name is required", fn)
		}
		if fn == "emit_method" {
			c.add(&extract.MethodDecl{Name: name, Enclosing: enclosing, Line: line})
		} else {
			c.add(&extract.FieldDecl{Name: name, Enclosing: enclosing, Line: line})
		}
		return object.Nil
	})
}

// emit_import({source, name, alias, line})
func (c *collector) makeEmitImportFn() *object.Builtin {
	return object.NewBuiltin("emit_import", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit_import", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("emit_import: %v", err)
		}
		c.add(&extract.ImportDecl{
			Source: getString(m, "source"),
			Name:   getStringDefault(m, "name", "*"),
			Alias:  getString(m, "alias"),
			Line:   getInt(m, "line"),
		})
		return object.Nil
	})
}

// emit_package(name) or emit_package({name, line})
func (c *collector) makeEmitPackageFn() *object.Builtin {
	return object.NewBuiltin("emit_package", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit_package", 1, len(args))
		}
		if s, err := toString(args[0]); err == nil {
			c.add(&extract.PackageDecl{Name: s})
			return object.Nil
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("emit_package: expected string or map, got %s", args[0].Type())
		}
		c.add(&extract.PackageDecl{Name: getString(m, "name"), Line: getInt(m, "line")})
		return object.Nil
	})
}

// --- Map extraction helpers ---

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	v := getString(m, key)
	if v == "" {
		return def
	}
	return v
}

func getInt(m map[string]object.Object, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	if i, ok := v.(*object.Int); ok {
		return int(i.Value())
	}
	if f, ok := v.(*object.Float); ok {
		return int(f.Value())
	}
	return 0
}

func getBool(m map[string]object.Object, key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	if b, ok := v.(*object.Bool); ok {
		return b.Value()
	}
	return false
}

// getStringList reads a list of strings. A missing key yields nil.
func getStringList(m map[string]object.Object, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == object.Nil {
		return nil, nil
	}
	l, ok := v.(*object.List)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %s", key, v.Type())
	}
	var out []string
	for _, item := range l.Value() {
		s, err := toString(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
