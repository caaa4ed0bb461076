package index

import (
	"context"
	"fmt"
	"time"

	"github.com/jward/arbor/internal/store"
)

// Policy controls how a query behaves while mutations are queued.
type Policy int

const (
	// WaitUntilReady runs the query after every mutation submitted before
	// it has been applied.
	WaitUntilReady Policy = iota
	// ForceImmediate runs the query now against the committed state.
	ForceImmediate
	// CancelIfNotReady fails with ErrNotReady when mutations are queued.
	CancelIfNotReady
)

func (p Policy) String() string {
	switch p {
	case WaitUntilReady:
		return "wait"
	case ForceImmediate:
		return "immediate"
	case CancelIfNotReady:
		return "cancel"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy maps the names returned by Policy.String back to policies.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "wait", "":
		return WaitUntilReady, nil
	case "immediate":
		return ForceImmediate, nil
	case "cancel":
		return CancelIfNotReady, nil
	}
	return 0, fmt.Errorf("index: unknown waiting policy %q", s)
}

// Pattern selects facts by supertype simple name. MatchAll selects every
// fact regardless of supertype.
type Pattern struct {
	SuperName string
	MatchAll  bool
}

// SuperType returns the pattern matching facts whose supertype is name.
func SuperType(name string) Pattern {
	return Pattern{SuperName: name}
}

// All matches every fact.
var All = Pattern{MatchAll: true}

func (p Pattern) String() string {
	if p.MatchAll {
		return "*"
	}
	return p.SuperName
}

// Match is one fact reported by Query.
type Match struct {
	Path             string
	Project          string
	LocalOrAnonymous bool
	Ref              store.TypeRefMatch
}

func newMatch(m *store.TypeRefMatch) Match {
	return Match{
		Path:             m.Path,
		Project:          m.Project,
		LocalOrAnonymous: m.IsLocal(),
		Ref:              *m,
	}
}

// ready applies policy before a read.
func (idx *Index) ready(ctx context.Context, policy Policy) error {
	idx.mu.RLock()
	closed := idx.closed
	idx.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	switch policy {
	case WaitUntilReady:
		return idx.WaitIdle(ctx)
	case CancelIfNotReady:
		if idx.Pending() > 0 {
			return ErrNotReady
		}
	}
	return ctx.Err()
}

// Query visits every fact matching pattern within scope (project names;
// nil means every project). visit returns false to stop early. A scope
// naming no indexed project yields no matches.
func (idx *Index) Query(ctx context.Context, pattern Pattern, scope []string, policy Policy, visit func(Match) bool) error {
	if err := idx.ready(ctx, policy); err != nil {
		idx.metrics.queries.WithLabelValues(policy.String(), "unavailable").Inc()
		return fmt.Errorf("query %s: %w", pattern, err)
	}
	start := time.Now()
	var n int
	err := idx.store.VisitSuperTypeRefs(pattern.SuperName, pattern.MatchAll, scope, func(m *store.TypeRefMatch) bool {
		n++
		return visit(newMatch(m))
	})
	idx.metrics.observeQuery(policy, n, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("query %s: %w", pattern, err)
	}
	return nil
}

// Declarations returns the facts declaring a type called simpleName
// within scope, one per (declaration, supertype) pair.
func (idx *Index) Declarations(ctx context.Context, simpleName string, scope []string, policy Policy) ([]Match, error) {
	if err := idx.ready(ctx, policy); err != nil {
		return nil, fmt.Errorf("declarations %s: %w", simpleName, err)
	}
	refs, err := idx.store.TypeRefsBySimpleName(simpleName, scope)
	if err != nil {
		return nil, fmt.Errorf("declarations %s: %w", simpleName, err)
	}
	out := make([]Match, 0, len(refs))
	for _, r := range refs {
		out = append(out, newMatch(r))
	}
	return out, nil
}

// Document returns the indexed document at path, or store.ErrNotFound.
func (idx *Index) Document(ctx context.Context, path string) (*store.Document, error) {
	if err := idx.ready(ctx, ForceImmediate); err != nil {
		return nil, err
	}
	return idx.store.DocumentByPath(path)
}
