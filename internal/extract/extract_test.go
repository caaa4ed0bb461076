package extract

import (
	"context"
	"testing"

	"github.com/jward/arbor/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractSource(t *testing.T, path, src string) *Unit {
	t.Helper()
	u, err := DefaultRegistry().ExtractFile(context.Background(), path, []byte(src))
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func typeByName(t *testing.T, u *Unit, name string) *TypeDecl {
	t.Helper()
	for _, td := range u.Types() {
		if td.Name == name {
			return td
		}
	}
	t.Fatalf("type %q not found in %s", name, u.Path)
	return nil
}

func superNames(td *TypeDecl) []string {
	out := make([]string, len(td.Supers))
	for i, s := range td.Supers {
		out[i] = s.Simple
	}
	return out
}

// =============================================================================
// Registry
// =============================================================================

func TestRegistry_ForPath(t *testing.T) {
	t.Parallel()
	r := DefaultRegistry()

	e, err := r.ForPath("/src/A.java")
	require.NoError(t, err)
	assert.Equal(t, "java", e.Language())

	e, err = r.ForPath("/src/a.TS")
	require.NoError(t, err)
	assert.Equal(t, "typescript", e.Language())

	_, err = r.ForPath("/src/notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	assert.False(t, r.Supports("/src/Makefile"))
}

func TestRegistry_Restrict(t *testing.T) {
	t.Parallel()
	r := DefaultRegistry().Restrict([]string{"java", "python", "cobol"})
	assert.Equal(t, []string{"java", "python"}, r.Languages())
	assert.False(t, r.Supports("/a.rb"))
}

func TestRegistry_IsRoot(t *testing.T) {
	t.Parallel()
	r := DefaultRegistry()
	assert.True(t, r.IsRoot("java", "Object"))
	assert.True(t, r.IsRoot("python", "object"))
	assert.True(t, r.IsRoot("ruby", "BasicObject"))
	assert.False(t, r.IsRoot("php", "stdClass"))
	assert.False(t, r.IsRoot("java", "Base"))
	assert.False(t, r.IsRoot("cobol", "Object"))
}

// =============================================================================
// Java
// =============================================================================

const javaSource = `package com.example.app;

import com.example.core.Base;
import java.util.List;

public class Derived extends Base implements Runnable, Comparable<Derived> {
    private int count, total;

    public void run() {
        class Helper extends Base {}
        Runnable r = new Runnable() {
            public void run() {}
        };
    }

    static class Nested extends java.util.AbstractList<String> {}
}

interface Shape extends Comparable<Shape>, java.io.Serializable {}
`

func TestJava_Types(t *testing.T) {
	t.Parallel()
	u := extractSource(t, "/p/src/Derived.java", javaSource)

	assert.Equal(t, "com.example.app", u.Package())

	d := typeByName(t, u, "Derived")
	assert.Equal(t, []string{"Base", "Runnable", "Comparable"}, superNames(d))
	assert.Equal(t, "com.example.app", d.Qualifier)
	assert.False(t, d.Local)
	assert.Equal(t, 6, d.Line)

	nested := typeByName(t, u, "Nested")
	assert.Equal(t, "Derived", nested.Enclosing)
	assert.Equal(t, "Derived.Nested", nested.QualifiedName())
	require.Len(t, nested.Supers, 1)
	assert.Equal(t, TypeName{Simple: "AbstractList", Qualifier: "java.util"}, nested.Supers[0])

	helper := typeByName(t, u, "Helper")
	assert.True(t, helper.Local)
	assert.False(t, helper.Anonymous)

	var anon *TypeDecl
	for _, td := range u.Types() {
		if td.Anonymous {
			anon = td
		}
	}
	require.NotNil(t, anon)
	assert.True(t, anon.Local)
	assert.Equal(t, []string{"Runnable"}, superNames(anon))

	shape := typeByName(t, u, "Shape")
	assert.Equal(t, "interface", shape.Category)
	assert.Equal(t, []string{"Comparable", "Serializable"}, superNames(shape))
}

func TestJava_ImportsMethodsFields(t *testing.T) {
	t.Parallel()
	u := extractSource(t, "/p/src/Derived.java", javaSource)

	imps := u.Imports()
	require.Len(t, imps, 2)
	assert.Equal(t, "com.example.core", imps[0].Source)
	assert.Equal(t, "Base", imps[0].Name)
	assert.True(t, imps[0].Binds("Base"))
	assert.False(t, imps[1].Binds("Base"))

	var methods, fields []string
	for _, d := range u.Decls {
		switch d := d.(type) {
		case *MethodDecl:
			methods = append(methods, d.Enclosing+"#"+d.Name)
		case *FieldDecl:
			fields = append(fields, d.Enclosing+"#"+d.Name)
		}
	}
	assert.Contains(t, methods, "Derived#run")
	assert.Equal(t, []string{"Derived#count", "Derived#total"}, fields)
}

func TestJava_TypeRefs(t *testing.T) {
	t.Parallel()
	u := extractSource(t, "/p/src/A.java", "class A {}\nclass B extends A {}\n")

	refs := u.TypeRefs()
	require.Len(t, refs, 2)
	assert.Equal(t, store.TypeRef{SimpleName: "A", Line: 1}, refs[0])
	assert.Equal(t, "B", refs[1].SimpleName)
	assert.Equal(t, "A", refs[1].SuperName)
	assert.Empty(t, refs[1].EnclosingType)
}

func TestJava_LocalFactsUseMarker(t *testing.T) {
	t.Parallel()
	u := extractSource(t, "/p/src/A.java", "class A { void f() { Base b = new Base() {}; } }")

	var local []store.TypeRef
	for _, r := range u.TypeRefs() {
		if r.EnclosingType == store.LocalMarker {
			local = append(local, r)
		}
	}
	require.Len(t, local, 1)
	assert.Equal(t, "Base", local[0].SuperName)
}

// =============================================================================
// Python
// =============================================================================

func TestPython(t *testing.T) {
	t.Parallel()
	u := extractSource(t, "/p/shapes.py", `from base import Base as B
import abc

class Shape(B, metaclass=abc.ABCMeta):
    def area(self):
        class Local(Shape):
            pass
        return 0

class Square(Shape, mixins.Printable):
    pass

class Plain:
    pass
`)
	shape := typeByName(t, u, "Shape")
	assert.Equal(t, []TypeName{{Simple: "Base", Qualifier: "base"}}, shape.Supers, "alias resolves to the imported name")

	sq := typeByName(t, u, "Square")
	assert.Equal(t, []TypeName{{Simple: "Shape"}, {Simple: "Printable", Qualifier: "mixins"}}, sq.Supers)

	assert.True(t, typeByName(t, u, "Local").Local)
	assert.Empty(t, typeByName(t, u, "Plain").Supers)

	imps := u.Imports()
	require.Len(t, imps, 2)
	assert.Equal(t, "base", imps[0].Source)
	assert.Equal(t, "B", imps[0].Alias)
	assert.Equal(t, "abc", imps[1].Name)
}

// =============================================================================
// Ruby
// =============================================================================

func TestRuby(t *testing.T) {
	t.Parallel()
	u := extractSource(t, "/p/lib/shapes.rb", `require 'base'

module Shapes
  class Square < Base
    def area
      0
    end
  end
end

Anon = Class.new(Base)
`)
	sq := typeByName(t, u, "Square")
	assert.Equal(t, []string{"Base"}, superNames(sq))
	assert.Equal(t, "Shapes", sq.Enclosing)
	assert.Equal(t, "module", typeByName(t, u, "Shapes").Category)

	var anon *TypeDecl
	for _, td := range u.Types() {
		if td.Anonymous {
			anon = td
		}
	}
	require.NotNil(t, anon)
	assert.True(t, anon.Local)
	assert.Equal(t, []string{"Base"}, superNames(anon))

	imps := u.Imports()
	require.Len(t, imps, 1)
	assert.Equal(t, "base", imps[0].Source)
}

// =============================================================================
// JavaScript / TypeScript
// =============================================================================

func TestJavaScript(t *testing.T) {
	t.Parallel()
	u := extractSource(t, "/p/src/shapes.js", `import { Base as B } from './base';

export class Shape extends B {
  area() { return 0; }
}

const Anon = class extends Shape {};
`)
	shape := typeByName(t, u, "Shape")
	assert.Equal(t, []TypeName{{Simple: "Base", Qualifier: "./base"}}, shape.Supers)

	var anon *TypeDecl
	for _, td := range u.Types() {
		if td.Anonymous {
			anon = td
		}
	}
	require.NotNil(t, anon)
	assert.Equal(t, []string{"Shape"}, superNames(anon))
}

func TestTypeScript(t *testing.T) {
	t.Parallel()
	u := extractSource(t, "/p/src/shapes.ts", `interface Named { name: string }
interface Shape extends Named {}

class Square extends Base<number> implements Shape, Named {
  name = "sq";
}
`)
	assert.Equal(t, []string{"Named"}, superNames(typeByName(t, u, "Shape")))
	assert.Equal(t, []string{"Base", "Shape", "Named"}, superNames(typeByName(t, u, "Square")))
	assert.Equal(t, "interface", typeByName(t, u, "Named").Category)
}

// =============================================================================
// PHP and Go
// =============================================================================

func TestPHP(t *testing.T) {
	t.Parallel()
	u := extractSource(t, "/p/src/Square.php", `<?php
namespace App\Shapes;

use App\Core\Base;

class Square extends Base implements \App\Core\Shape {
}
`)
	assert.Equal(t, "App.Shapes", u.Package())
	sq := typeByName(t, u, "Square")
	assert.Equal(t, "App.Shapes", sq.Qualifier)
	require.Len(t, sq.Supers, 2)
	assert.Equal(t, TypeName{Simple: "Base"}, sq.Supers[0])
	assert.Equal(t, TypeName{Simple: "Shape", Qualifier: "App.Core"}, sq.Supers[1])

	imps := u.Imports()
	require.Len(t, imps, 1)
	assert.Equal(t, "App.Core", imps[0].Source)
	assert.Equal(t, "Base", imps[0].Name)
}

func TestGo_Embedding(t *testing.T) {
	t.Parallel()
	u := extractSource(t, "/p/shape.go", `package shapes

import "io"

type Base struct{ id int }

type Square struct {
	Base
	*io.SectionReader
	side int
}

type Closer interface {
	io.Closer
	Name() string
}
`)
	assert.Equal(t, "shapes", u.Package())
	assert.Empty(t, typeByName(t, u, "Base").Supers)

	sq := typeByName(t, u, "Square")
	assert.Equal(t, []TypeName{{Simple: "Base"}, {Simple: "SectionReader", Qualifier: "io"}}, sq.Supers)

	c := typeByName(t, u, "Closer")
	assert.Equal(t, []TypeName{{Simple: "Closer", Qualifier: "io"}}, c.Supers)
}

// =============================================================================
// Names
// =============================================================================

func TestParseTypeName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want TypeName
	}{
		{"Base", TypeName{Simple: "Base"}},
		{"java.util.List", TypeName{Simple: "List", Qualifier: "java.util"}},
		{"A::B::C", TypeName{Simple: "C", Qualifier: "A.B"}},
		{`\App\Core\Base`, TypeName{Simple: "Base", Qualifier: "App.Core"}},
		{"::Top", TypeName{Simple: "Top"}},
		{"java.util.Map<String, a.B>", TypeName{Simple: "Map", Qualifier: "java.util"}},
		{"Array[Int]", TypeName{Simple: "Array"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTypeName(tt.in), tt.in)
	}
}

func TestTypeDecl_Names(t *testing.T) {
	t.Parallel()
	td := &TypeDecl{Name: "Inner", Enclosing: "Outer"}
	assert.Equal(t, "Outer.Inner", td.QualifiedName())
	assert.Equal(t, "<anonymous>", (&TypeDecl{Anonymous: true}).DisplayName())
	assert.Equal(t, "a.B", TypeName{Simple: "B", Qualifier: "a"}.String())
}
