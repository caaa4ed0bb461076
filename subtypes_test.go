package arbor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/extract"
	"github.com/jward/arbor/internal/index"
	"github.com/jward/arbor/internal/store"
	"github.com/jward/arbor/internal/workspace"
)

// fakeIndex serves supertype facts from memory.
type fakeIndex struct {
	facts   []index.Match
	failOn  string
	queries []string
}

func (f *fakeIndex) fact(path, name, super string, local bool) {
	ref := store.TypeRefMatch{Path: path, Project: "p", Language: "java"}
	ref.SimpleName, ref.SuperName = name, super
	if local {
		ref.EnclosingType = store.LocalMarker
	}
	f.facts = append(f.facts, index.Match{Path: path, Project: "p", LocalOrAnonymous: local, Ref: ref})
}

func (f *fakeIndex) Query(_ context.Context, p index.Pattern, _ []string, _ index.Policy, visit func(index.Match) bool) error {
	f.queries = append(f.queries, p.SuperName)
	if p.SuperName == f.failOn && f.failOn != "" {
		return errors.New("index offline")
	}
	for _, m := range f.facts {
		if p.MatchAll || m.Ref.SuperName == p.SuperName {
			if !visit(m) {
				return nil
			}
		}
	}
	return nil
}

func (f *fakeIndex) Declarations(context.Context, string, []string, index.Policy) ([]index.Match, error) {
	return nil, nil
}

func newFakeSession(t *testing.T, idx factIndex) *session {
	t.Helper()
	ws := workspace.Single("/src")
	return newSession(ws, idx, extract.DefaultRegistry(), index.WaitUntilReady, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSearchSubtypes_Worklist(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{}
	idx.fact("/src/B.java", "B", "A", false)
	idx.fact("/src/C.java", "C", "B", false)
	idx.fact("/src/C.java", "C2", "B", false)
	idx.fact("/src/D.java", "D", "C", false)
	// Two paths to D must not query it twice.
	idx.fact("/src/D.java", "D", "C2", false)
	idx.fact("/src/L.java", "", "A", true)

	s := newFakeSession(t, idx)
	cands, cancelled := s.searchSubtypes(context.Background(), TypeHandle{Name: "A", Language: "java"}, nil)

	assert.False(t, cancelled)
	assert.Equal(t, []string{"/src/B.java", "/src/L.java", "/src/C.java", "/src/D.java"}, cands.order)
	assert.True(t, cands.byPath["/src/L.java"].LocalOrAnonymous)
	assert.Equal(t, []string{"A", "B", "C", "C2", "D"}, idx.queries)
}

func TestSearchSubtypes_LocalNeverEnqueued(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{}
	idx.fact("/src/U.java", "Helper", "Base", true)
	idx.fact("/src/O.java", "Other", "Helper", false)

	s := newFakeSession(t, idx)
	cands, _ := s.searchSubtypes(context.Background(), TypeHandle{Name: "Base", Language: "java"}, nil)

	assert.Equal(t, []string{"/src/U.java"}, cands.order)
	assert.Equal(t, []string{"Base"}, idx.queries)
}

func TestSearchSubtypes_RootShortCircuit(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{}
	idx.fact("/src/A.java", "A", "", false)
	idx.fact("/src/B.java", "B", "A", false)

	s := newFakeSession(t, idx)
	cands, _ := s.searchSubtypes(context.Background(), TypeHandle{Name: "Object", Language: "java"}, nil)

	assert.Equal(t, []string{"/src/A.java", "/src/B.java"}, cands.order)
	assert.Len(t, idx.queries, 1, "one match-all query and no further expansion")
}

func TestSearchSubtypes_IndexUnavailable(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{failOn: "B"}
	idx.fact("/src/B.java", "B", "A", false)
	idx.fact("/src/C.java", "C", "B", false)

	s := newFakeSession(t, idx)
	cands, cancelled := s.searchSubtypes(context.Background(), TypeHandle{Name: "A", Language: "java"}, nil)

	assert.False(t, cancelled)
	assert.Equal(t, []string{"/src/B.java"}, cands.order)
}

func TestSearchSubtypes_TickCap(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{}
	prev := "T0"
	for i := 1; i <= MaxTicks+50; i++ {
		name := fmt.Sprintf("T%d", i)
		idx.fact(filepath.Join("/src", name+".java"), name, prev, false)
		prev = name
	}

	mon := &recordingMonitor{}
	s := newFakeSession(t, idx)
	cands, _ := s.searchSubtypes(context.Background(), TypeHandle{Name: "T0", Language: "java"}, mon)

	assert.Len(t, cands.order, MaxTicks+50)
	assert.Equal(t, MaxTicks, mon.total)
	assert.Equal(t, MaxTicks, mon.worked)
}

func TestSearchSubtypes_CancelledAfterFirstTick(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{}
	idx.fact("/src/Derived.java", "Derived", "Base", false)
	idx.fact("/src/Derived2.java", "Derived2", "Derived", false)

	mon := &cancelAfterWork{}
	s := newFakeSession(t, idx)
	cands, cancelled := s.searchSubtypes(context.Background(), TypeHandle{Name: "Base", Language: "java"}, mon)

	assert.True(t, cancelled)
	assert.Equal(t, []string{"/src/Derived.java"}, cands.order)
	assert.Equal(t, []string{"Base"}, idx.queries)
}

type cancelAfterWork struct{ recordingMonitor }

func (m *cancelAfterWork) IsCancelled() bool { return m.worked > 0 }

func TestSearchSubtypes_WorkingCopyShadowsIndex(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{}
	idx.fact("/src/Derived.java", "Derived", "Base", false)

	s := newFakeSession(t, idx)
	s.snapshot(context.Background(), []WorkingCopy{
		{Path: "/src/Derived.java", Source: []byte("class Derived extends Shape {}")},
		{Path: "/src/New.java", Source: []byte("class New extends Base {}")},
		{Path: "/src/notes.txt", Source: []byte("ignored")},
	})
	require.Equal(t, []string{"/src/Derived.java", "/src/New.java"}, s.overlayPaths())

	cands, _ := s.searchSubtypes(context.Background(), TypeHandle{Name: "Base", Language: "java"}, nil)
	assert.Equal(t, []string{"/src/New.java"}, cands.order)
}

func TestInScope(t *testing.T) {
	t.Parallel()
	assert.True(t, inScope(nil, "any"))
	assert.True(t, inScope([]string{"app", "core"}, "core"))
	assert.False(t, inScope([]string{"app", "core"}, "other"))
	assert.False(t, inScope([]string{}, "app"))
}
