package arbor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden test format. Files are relative to the case's src directory.
type goldenFile struct {
	Focus struct {
		Name string `json:"name"`
		File string `json:"file"`
	} `json:"focus"`
	Edges      []string `json:"edges"`
	Candidates []string `json:"candidates,omitempty"`
	Absent     []string `json:"absent,omitempty"`
}

// TestGolden walks testdata/{language}/ directories, indexes each case's
// src/ tree as its own workspace and compares the focus hierarchy.
func TestGolden(t *testing.T) {
	langDirs, err := os.ReadDir("testdata")
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, langDir := range langDirs {
		if !langDir.IsDir() {
			continue
		}
		lang := langDir.Name()
		langRoot := filepath.Join("testdata", lang)
		cases, err := os.ReadDir(langRoot)
		if err != nil {
			continue
		}

		for _, c := range cases {
			if !c.IsDir() {
				continue
			}
			testDir := filepath.Join(langRoot, c.Name())
			goldenPath := filepath.Join(testDir, "golden.json")
			srcDir := filepath.Join(testDir, "src")

			if _, err := os.Stat(goldenPath); err != nil {
				continue
			}
			if _, err := os.Stat(srcDir); err != nil {
				continue
			}

			t.Run(lang+"/"+c.Name(), func(t *testing.T) {
				t.Parallel()
				runGoldenTest(t, lang, srcDir, goldenPath)
			})
		}
	}
}

func runGoldenTest(t *testing.T, lang, srcDir, goldenPath string) {
	t.Helper()

	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(goldenData, &golden))

	srcDir, err = filepath.Abs(srcDir)
	require.NoError(t, err)
	engine := newTestEngine(t, SingleWorkspace(srcDir), WithLanguages(lang))
	ctx := context.Background()
	require.NoError(t, engine.IndexWorkspace(ctx))

	h, err := engine.Hierarchy(ctx, Focus{
		Name: golden.Focus.Name,
		Path: filepath.Join(srcDir, golden.Focus.File),
	}, BuildOptions{})
	require.NoError(t, err)
	require.False(t, h.Cancelled())

	var edges []string
	for _, e := range h.Edges() {
		edges = append(edges, goldenName(e.Sub)+"->"+goldenName(e.Super))
	}
	sort.Strings(edges)
	assert.Equal(t, golden.Edges, edges, "edges")

	if golden.Candidates != nil {
		var rel []string
		for _, p := range h.Candidates() {
			r, err := filepath.Rel(srcDir, p)
			require.NoError(t, err)
			rel = append(rel, filepath.ToSlash(r))
		}
		assert.Equal(t, golden.Candidates, rel, "candidates")
	}
	for _, name := range golden.Absent {
		assert.Empty(t, h.Lookup(name), "%s should not be in the hierarchy", name)
	}
}

func goldenName(h TypeHandle) string {
	if h.Anonymous {
		return "<anonymous>"
	}
	return h.Name
}
