package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/jward/arbor"
)

// typeLabel renders a handle as "pkg.Name (category)  path:line".
func typeLabel(t arbor.TypeHandle) string {
	var b strings.Builder
	if t.Qualifier != "" {
		b.WriteString(t.Qualifier + ".")
	}
	if t.Anonymous {
		b.WriteString("<anonymous>")
	} else {
		b.WriteString(t.QualifiedName())
	}
	if t.Category != "" {
		fmt.Fprintf(&b, " (%s)", t.Category)
	}
	if t.Path != "" {
		fmt.Fprintf(&b, "  %s:%d", t.Path, t.Line)
	}
	return b.String()
}

// formatHierarchyText prints the supertype chain above the focus and the
// subtype tree below it.
func formatHierarchyText(w io.Writer, h CLIHierarchy) {
	if len(h.Supertypes) > 0 {
		fmt.Fprintln(w, "Supertypes:")
		for _, s := range h.Supertypes {
			fmt.Fprintf(w, "  %s\n", typeLabel(s))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, typeLabel(h.Focus))
	var walk func(nodes []CLITypeNode, depth int)
	walk = func(nodes []CLITypeNode, depth int) {
		for _, n := range nodes {
			fmt.Fprintf(w, "%s└─ %s\n", strings.Repeat("   ", depth), typeLabel(n.Type))
			walk(n.Subtypes, depth+1)
		}
	}
	walk(h.Subtypes, 0)
	if h.Cancelled {
		fmt.Fprintln(w, "\n(cancelled: hierarchy is partial)")
	}
}

// formatTypesText formats type handles as aligned columns.
func formatTypesText(w io.Writer, types []arbor.TypeHandle) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tQUALIFIER\tPROJECT\tFILE\tLINE")
	for _, t := range types {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", t.QualifiedName(), t.Qualifier, t.Project, t.Path, t.Line)
	}
	tw.Flush()
}

func formatCandidatesText(w io.Writer, cs *arbor.CandidateSearch) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tPROJECT\tLOCAL")
	for _, c := range cs.Candidates {
		local := ""
		if c.LocalOrAnonymous {
			local = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Path, c.Project, local)
	}
	tw.Flush()
	if cs.Cancelled {
		fmt.Fprintln(w, "\n(cancelled: candidates are partial)")
	}
}

func formatOutlineText(w io.Writer, o CLIOutline) {
	fmt.Fprintf(w, "%s (%s)\n", o.Path, o.Language)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tKIND\tNAME\tIN\tSUPERS")
	for _, d := range o.Decls {
		name := d.Name
		if d.Category != "" {
			name += " (" + d.Category + ")"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", d.Line, d.Kind, name, d.Enclosing, strings.Join(d.Supers, ", "))
	}
	tw.Flush()
}

// formatReconcileText prints one line per file and a line per kind of
// change.
func formatReconcileText(w io.Writer, results []*arbor.ReconcileResult) {
	for _, r := range results {
		if r.Unchanged {
			fmt.Fprintf(w, "%s: unchanged\n", r.Path)
			continue
		}
		fmt.Fprintf(w, "%s:\n", r.Path)
		for _, part := range []struct {
			label string
			names []string
		}{{"added", r.Added}, {"removed", r.Removed}, {"changed", r.Changed}, {"affected", r.Affected}} {
			if len(part.names) > 0 {
				fmt.Fprintf(w, "  %s: %s\n", part.label, strings.Join(part.names, ", "))
			}
		}
	}
}

func formatStatsText(w io.Writer, st CLIStats) {
	fmt.Fprintln(w, "Index Summary")
	fmt.Fprintln(w, "=============")
	fmt.Fprintf(w, "Documents: %d\n", st.Documents)
	fmt.Fprintf(w, "Type facts: %d\n", st.TypeRefs)
	fmt.Fprintf(w, "Imports: %d\n", st.Imports)
	for _, group := range []struct {
		title  string
		counts map[string]int
	}{{"Projects", st.Projects}, {"Languages", st.Languages}} {
		if len(group.counts) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", group.title)
		keys := make([]string, 0, len(group.counts))
		for k := range group.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %d files\n", k, group.counts[k])
		}
	}
}

// outputResultText writes result in text format.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIHierarchy:
		formatHierarchyText(w, v)
	case *arbor.CandidateSearch:
		formatCandidatesText(w, v)
	case []arbor.TypeHandle:
		formatTypesText(w, v)
	case CLIOutline:
		formatOutlineText(w, v)
	case []*arbor.ReconcileResult:
		formatReconcileText(w, v)
	case CLIStats:
		formatStatsText(w, v)
	case CLIIndexSummary:
		fmt.Fprintf(w, "Indexed %d documents under %s in %dms\nDatabase: %s\n", v.Documents, v.Root, v.DurationMS, v.Database)
	case CLIMove:
		fmt.Fprintf(w, "%s -> %s\n", v.From, v.To)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
