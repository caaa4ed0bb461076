package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
db = ".arbor/index.db"

[[projects]]
name = "core"
path = "core"
roots = ["src/main", "src/test"]
exclude = ["**/generated/**"]

[[projects]]
name = "app"
path = "app"
requires = ["core"]

[[projects]]
name = "cli"
path = "cli"
requires = ["app"]

[[scripts]]
language = "kotlin"
extensions = [".kt"]
path = "scripts/kotlin.risor"
roots = ["Any"]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testWorkspace(t *testing.T) (*Workspace, string) {
	t.Helper()
	root := t.TempDir()
	ws, err := Parse([]byte(testConfig), root)
	require.NoError(t, err)
	return ws, root
}

// =============================================================================
// Configuration
// =============================================================================

func TestParse(t *testing.T) {
	t.Parallel()
	ws, root := testWorkspace(t)

	assert.Equal(t, filepath.Join(root, ".arbor/index.db"), ws.DB)
	assert.Equal(t, []string{"core", "app", "cli"}, ws.ProjectNames())

	core := ws.Project("core")
	require.NotNil(t, core)
	require.Len(t, core.Fragments, 2)
	assert.Equal(t, filepath.Join(root, "core/src/main"), core.Fragments[0].Dir)
	assert.Equal(t, 1, core.Fragments[1].Position)

	app := ws.Project("app")
	require.Len(t, app.Fragments, 1)
	assert.Equal(t, filepath.Join(root, "app"), app.Fragments[0].Dir)

	require.Len(t, ws.Scripts, 1)
	assert.Equal(t, filepath.Join(root, "scripts/kotlin.risor"), ws.Scripts[0].Path)
	assert.Equal(t, []string{"Any"}, ws.Scripts[0].Roots)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  string
	}{
		{"no projects", `db = "x"`},
		{"unnamed", "[[projects]]\npath = \"a\""},
		{"duplicate", "[[projects]]\nname = \"a\"\n[[projects]]\nname = \"a\""},
		{"unknown require", "[[projects]]\nname = \"a\"\nrequires = [\"b\"]"},
		{"bad script", "[[projects]]\nname = \"a\"\n[[scripts]]\nlanguage = \"x\""},
		{"bad toml", "[[projects"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.cfg), t.TempDir())
			assert.Error(t, err)
		})
	}
}

func TestLoadAndDiscover(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConfigFile), testConfig)
	nested := filepath.Join(root, "core", "src", "main")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	ws, err := Discover(nested)
	require.NoError(t, err)
	assert.Len(t, ws.Projects, 3)
	assert.Equal(t, root, ws.Root)
}

func TestDiscover_FallsBackToSingle(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	ws, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, ws.Projects, 1)
	assert.Equal(t, filepath.Base(root), ws.Projects[0].Name)
}

// =============================================================================
// Location and visibility
// =============================================================================

func TestLocate(t *testing.T) {
	t.Parallel()
	ws, root := testWorkspace(t)

	loc, err := ws.Locate(filepath.Join(root, "core/src/test/com/BaseTest.java"))
	require.NoError(t, err)
	assert.Equal(t, "core", loc.Project.Name)
	assert.Equal(t, 1, loc.Fragment.Position)
	assert.Equal(t, "BaseTest", loc.Element)

	loc, err = ws.Locate(filepath.Join(root, "app/Main.java"))
	require.NoError(t, err)
	assert.Equal(t, "app", loc.Project.Name)

	_, err = ws.Locate(filepath.Join(root, "elsewhere/X.java"))
	assert.ErrorIs(t, err, ErrOutsideWorkspace)

	_, err = ws.Locate(filepath.Join(root, "core/src/main/generated/X.java"))
	assert.ErrorIs(t, err, ErrOutsideWorkspace)

	_, err = ws.Locate(filepath.Join(root, "core/README"))
	assert.ErrorIs(t, err, ErrOutsideWorkspace, "project dir outside every fragment")
}

func TestLocate_DeepestFragmentWins(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	ws, err := Parse([]byte("[[projects]]\nname = \"outer\"\n[[projects]]\nname = \"inner\"\npath = \"sub\""), root)
	require.NoError(t, err)

	loc, err := ws.Locate(filepath.Join(root, "sub/A.rb"))
	require.NoError(t, err)
	assert.Equal(t, "inner", loc.Project.Name)
}

func TestVisibility(t *testing.T) {
	t.Parallel()
	ws, _ := testWorkspace(t)

	assert.True(t, ws.Visible("cli", "core"), "requires is transitive")
	assert.True(t, ws.Visible("app", "app"))
	assert.False(t, ws.Visible("core", "app"))
	assert.False(t, ws.Visible("nope", "core"))

	assert.Equal(t, []string{"app", "cli", "core"}, ws.VisibleFrom("cli"))
	assert.Equal(t, []string{"core"}, ws.VisibleFrom("core"))
	assert.Empty(t, ws.VisibleFrom("nope"))

	assert.Equal(t, []string{"app", "cli", "core"}, ws.Dependents("core"))
	assert.Equal(t, []string{"cli"}, ws.Dependents("cli"))
}

func TestVisibility_Cycle(t *testing.T) {
	t.Parallel()
	ws, err := Parse([]byte("[[projects]]\nname = \"a\"\nrequires = [\"b\"]\n[[projects]]\nname = \"b\"\nrequires = [\"a\"]"), t.TempDir())
	require.NoError(t, err)
	assert.True(t, ws.Visible("a", "b"))
	assert.True(t, ws.Visible("b", "a"))
}

// =============================================================================
// Files
// =============================================================================

func TestFiles(t *testing.T) {
	t.Parallel()
	ws, root := testWorkspace(t)
	writeFile(t, filepath.Join(root, "core/src/main/com/Base.java"), "class Base {}")
	writeFile(t, filepath.Join(root, "core/src/main/generated/Gen.java"), "class Gen {}")
	writeFile(t, filepath.Join(root, "core/src/main/.hidden/H.java"), "class H {}")
	writeFile(t, filepath.Join(root, "core/src/main/node_modules/x.js"), "")
	writeFile(t, filepath.Join(root, "core/src/test/com/BaseTest.java"), "class BaseTest {}")
	writeFile(t, filepath.Join(root, "core/src/test/notes.txt"), "")

	java := func(p string) bool { return filepath.Ext(p) == ".java" }
	paths, err := ws.Files(ws.Project("core"), java)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "core/src/main/com/Base.java"),
		filepath.Join(root, "core/src/test/com/BaseTest.java"),
	}, paths)

	paths, err = ws.Files(ws.Project("app"), nil)
	require.NoError(t, err)
	assert.Empty(t, paths, "missing fragment is skipped")

	all, err := ws.AllFiles(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSingle(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	ws := Single(root)
	writeFile(t, filepath.Join(root, "pkg/A.py"), "class A: pass")

	loc, err := ws.Locate(filepath.Join(root, "pkg/A.py"))
	require.NoError(t, err)
	assert.Equal(t, "A", loc.Element)
	assert.Equal(t, 0, loc.Fragment.Position)
	assert.True(t, ws.Visible(ws.Projects[0].Name, ws.Projects[0].Name))
}
