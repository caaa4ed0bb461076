package arbor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// benchJavaTree writes a type tree of the given depth and fan-out, rooted
// at Base, into dir. It returns the written paths.
func benchJavaTree(b *testing.B, dir string, depth, fanout int) []string {
	b.Helper()
	var paths []string
	write := func(name, super string) {
		src := "package bench;\n\npublic class " + name
		if super != "" {
			src += " extends " + super
		}
		src += " {\n    private int value;\n\n    public int value() { return value; }\n}\n"
		p := filepath.Join(dir, name+".java")
		if err := os.WriteFile(p, []byte(src), 0o644); err != nil {
			b.Fatal(err)
		}
		paths = append(paths, p)
	}
	write("Base", "")
	level := []string{"Base"}
	for d := 1; d <= depth; d++ {
		var next []string
		for _, parent := range level {
			for i := 0; i < fanout; i++ {
				name := fmt.Sprintf("%s_%d", parent, i)
				write(name, parent)
				next = append(next, name)
			}
		}
		level = next
	}
	return paths
}

func setupBenchEngine(b *testing.B, parallel bool) (*Engine, []string) {
	b.Helper()
	root := b.TempDir()
	paths := benchJavaTree(b, root, 3, 4)
	e, err := New(filepath.Join(b.TempDir(), "bench.db"), SingleWorkspace(root), WithParallel(parallel))
	if err != nil {
		b.Fatal(err)
	}
	return e, paths
}

// BenchmarkIndexFiles measures extraction and commit of an 85-file tree.
func BenchmarkIndexFiles(b *testing.B) {
	for _, parallel := range []bool{false, true} {
		b.Run(fmt.Sprintf("parallel=%v", parallel), func(b *testing.B) {
			ctx := context.Background()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				e, paths := setupBenchEngine(b, parallel)
				b.StartTimer()

				if err := e.IndexFiles(ctx, paths); err != nil {
					e.Close()
					b.Fatal(err)
				}

				b.StopTimer()
				e.Close()
				b.StartTimer()
			}
		})
	}
}

// BenchmarkHierarchy measures a full subtype build over a pre-indexed tree.
func BenchmarkHierarchy(b *testing.B) {
	e, paths := setupBenchEngine(b, true)
	defer e.Close()
	ctx := context.Background()
	if err := e.IndexFiles(ctx, paths); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := e.Hierarchy(ctx, Focus{Name: "Base"}, BuildOptions{})
		if err != nil {
			b.Fatal(err)
		}
		if len(h.Types()) != len(paths) {
			b.Fatalf("got %d types, want %d", len(h.Types()), len(paths))
		}
	}
}

// BenchmarkCandidates measures the index-only subtype search.
func BenchmarkCandidates(b *testing.B) {
	e, paths := setupBenchEngine(b, true)
	defer e.Close()
	ctx := context.Background()
	if err := e.IndexFiles(ctx, paths); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Candidates(ctx, Focus{Name: "Base"}, BuildOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}
