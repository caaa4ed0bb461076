package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/extract"
)

const javaTestSource = `package demo;

import demo.core.Base;

public class Square extends Base implements Shape {
    void draw() {}
}

class Plain {}
`

// parseTestSource parses src with tree-sitter and registers the tree in a
// fresh Runtime's source store.
func parseTestSource(t *testing.T, src, language string) (*sitter.Tree, *Runtime) {
	t.Helper()

	rt := NewRuntime("")
	lang, ok := extract.GrammarForLanguage(language)
	require.True(t, ok, "grammar %s", language)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	require.NoError(t, err)

	rt.sources.store(nil, tree, []byte(src), lang)
	return tree, rt
}

// =============================================================================
// Source store
// =============================================================================

func TestSourceStore_NodeLookup(t *testing.T) {
	tree, rt := parseTestSource(t, javaTestSource, "java")
	defer tree.Close()

	root := tree.RootNode()
	assert.Equal(t, "program", root.Type())

	var class *sitter.Node
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if c := root.NamedChild(i); c.Type() == "class_declaration" {
			class = c
			break
		}
	}
	require.NotNil(t, class)

	name := class.ChildByFieldName("name")
	require.NotNil(t, name)
	src, ok := rt.sources.sourceForNode(name)
	require.True(t, ok)
	assert.Equal(t, "Square", name.Content(src))

	lang, ok := rt.sources.languageForNode(name)
	require.True(t, ok)
	assert.NotNil(t, lang)
}

func TestSourceStore_Release(t *testing.T) {
	ss := newSourceStore()
	lang, _ := extract.GrammarForLanguage("java")
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, []byte("class A {}"))
	require.NoError(t, err)

	run := &parseRun{}
	ss.store(run, tree, []byte("class A {}"), lang)
	assert.Equal(t, 1, ss.len())

	ss.release(run)
	assert.Equal(t, 0, ss.len())
}

// =============================================================================
// Host functions via RunSource
// =============================================================================

func TestRunSource_ParseSrcAndQuery(t *testing.T) {
	rt := NewRuntime("")
	script := `
tree := parse_src(source, "java")
root := tree.RootNode()
assert(root.Type() == "program", "expected program")

matches := query("(class_declaration name: (identifier) @name)", root)
assert(len(matches) == 2, 'expected 2 classes, got {len(matches)}')
assert(node_text(matches[0]["name"]) == "Square", "expected Square")
assert(node_text(matches[1]["name"]) == "Plain", "expected Plain")
`
	err := rt.RunSource(context.Background(), script, map[string]any{"source": javaTestSource})
	require.NoError(t, err)
	assert.Equal(t, 0, rt.sources.len(), "trees are released after the run")
}

func TestRunSource_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Square.java")
	require.NoError(t, os.WriteFile(path, []byte(javaTestSource), 0o644))

	rt := NewRuntime("")
	script := `
tree := parse(path, "java")
root := tree.RootNode()
first := root.NamedChild(0)
assert(first.Type() == "package_declaration", 'got {first.Type()}')
assert(first.Parent().Type() == "program", "parent should be program")
assert(node_line(first) == 1, 'expected line 1, got {node_line(first)}')
`
	require.NoError(t, rt.RunSource(context.Background(), script, map[string]any{"path": path}))
}

func TestRunSource_NodeChild(t *testing.T) {
	rt := NewRuntime("")
	script := `
root := parse_src(source, "java").RootNode()
matches := query("(class_declaration) @decl", root)
square := matches[0]["decl"]
plain := matches[1]["decl"]
assert(node_text(node_child(square, "superclass")) == "extends Base", "superclass text")
assert(node_child(plain, "superclass") == nil, "Plain has no superclass")
`
	require.NoError(t, rt.RunSource(context.Background(), script, map[string]any{"source": javaTestSource}))
}

func TestRunSource_Errors(t *testing.T) {
	rt := NewRuntime("")
	tests := []struct {
		name   string
		script string
	}{
		{"invalid query", `query("(not_a_real_node_type @x)", parse_src("class A {}", "java").RootNode())`},
		{"unsupported language", `parse_src("x", "cobol")`},
		{"wrong arity", `parse_src("x")`},
		{"missing file", `parse("/nonexistent/file.java", "java")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, rt.RunSource(context.Background(), tt.script, nil))
		})
	}
}

func TestRunSource_Log(t *testing.T) {
	rt := NewRuntime("")
	require.NoError(t, rt.RunSource(context.Background(), `log.Info("hello")`, nil))
}

// =============================================================================
// Script loading
// =============================================================================

func TestRunScript_MissingFile(t *testing.T) {
	rt := NewRuntime(t.TempDir())
	err := rt.RunScript(context.Background(), "nonexistent.risor", nil)
	assert.Error(t, err)
}

func TestLoadScript_FromDisk(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(`z := 7`), 0o644))

	rt := NewRuntime(dir)
	got, err := rt.LoadScript("test.risor")
	require.NoError(t, err)
	assert.Equal(t, `z := 7`, got)

	got, err = rt.LoadScript(filepath.Join(dir, "test.risor"))
	require.NoError(t, err)
	assert.Equal(t, `z := 7`, got)
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"extract/kotlin.risor": &fstest.MapFile{Data: []byte(`x := 42`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("/extract/kotlin.risor")
	require.NoError(t, err)
	assert.Equal(t, `x := 42`, got)

	_, err = rt.LoadScript("missing.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestImport_FSImporter(t *testing.T) {
	mapFS := fstest.MapFS{
		"helpers.risor": &fstest.MapFile{Data: []byte(`
func qualified(pkg, name) {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}
`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))
	script := `
import helpers
assert(helpers.qualified("a.b", "C") == "a.b.C", "qualified")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestImport_LocalImporterSeesGlobals(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.risor"), []byte(`
func do_log(msg) {
	log.Info(msg)
}
`), 0o644))

	rt := NewRuntime(dir)
	script := `
import helper
helper.do_log("test message")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}
