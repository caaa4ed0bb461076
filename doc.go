// Package arbor answers "which types extend or implement this type,
// transitively, across a multi-project workspace" from an index of
// supertype facts instead of re-parsing every file on each question.
//
// # Pipeline
//
// Arbor works in two phases:
//
//  1. Index: every source file of the workspace is parsed with tree-sitter
//     (or a Risor extraction script configured in arbor.toml) and reduced
//     to facts of the form "type T, declared in this document, names S as
//     a direct supertype". Facts are kept in SQLite, keyed by supertype
//     simple name. Edits are applied with Reconcile, which replaces a
//     document's facts in one step.
//
//  2. Build: a hierarchy request searches the index breadth-first from the
//     focus type's simple name to collect candidate documents, then parses
//     and resolves the candidates project by project to confirm the real
//     edges. The search over-approximates; resolution is precise.
//
// # Usage
//
//	ws, err := arbor.DiscoverWorkspace(".")
//	if err != nil { ... }
//	e, err := arbor.New("arbor.db", ws)
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	err = e.IndexWorkspace(ctx)
//	h, err := e.Hierarchy(ctx, arbor.Focus{Name: "Shape"}, arbor.BuildOptions{})
//	for _, sub := range h.AllSubtypes(h.Focus) { ... }
//
// # Consistency
//
// Index updates run one at a time on a background queue. Queries choose a
// waiting policy: wait for queued updates, read the committed state
// immediately, or fail with ErrNotReady. Working copies passed in
// BuildOptions shadow the indexed content of their paths for one build.
//
// # Cancellation
//
// Builds honor context cancellation and Monitor.IsCancelled. A cancelled
// build returns the hierarchy confirmed so far with Cancelled set; it is
// not an error.
package arbor
