package main

import (
	"github.com/jward/arbor"
	"github.com/spf13/cobra"
)

// --- Lookup Commands ---

func (a *app) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types <name>",
		Short: "Find indexed declarations of a type name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()
			hs, err := e.FindTypes(cmd.Context(), args[0])
			if err != nil {
				return a.outputError(cmd, err)
			}
			if hs == nil {
				hs = []arbor.TypeHandle{}
			}
			return a.outputResult(cmd, CLIResult{Command: "types", Results: hs, TotalCount: countOf(len(hs))})
		},
	}
}

func (a *app) outlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outline <file>",
		Short: "Show the declarations extracted from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveFilePath(args[0])
			if err != nil {
				return a.outputError(cmd, err)
			}
			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()
			u, err := e.Outline(cmd.Context(), path)
			if err != nil {
				return a.outputError(cmd, err)
			}
			return a.outputResult(cmd, CLIResult{Command: "outline", Results: toCLIOutline(u)})
		},
	}
}

func toCLIOutline(u *arbor.Unit) CLIOutline {
	out := CLIOutline{Path: u.Path, Language: u.Language, Package: u.Package(), Decls: []CLIDecl{}}
	for _, d := range u.Decls {
		cd := CLIDecl{Kind: d.Kind(), Line: d.DeclLine()}
		switch d := d.(type) {
		case *arbor.TypeDecl:
			cd.Name = d.DisplayName()
			cd.Category = d.Category
			cd.Enclosing = d.Enclosing
			for _, s := range d.Supers {
				cd.Supers = append(cd.Supers, s.String())
			}
		case *arbor.MethodDecl:
			cd.Name, cd.Enclosing = d.Name, d.Enclosing
		case *arbor.FieldDecl:
			cd.Name, cd.Enclosing = d.Name, d.Enclosing
		case *arbor.ImportDecl:
			cd.Name = d.Name
			cd.Enclosing = d.Source
			if d.Alias != "" {
				cd.Name += " as " + d.Alias
			}
		case *arbor.PackageDecl:
			cd.Name = d.Name
		}
		out.Decls = append(out.Decls, cd)
	}
	return out
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, err)
			}
			defer e.Close()
			st, err := e.Query().Stats()
			if err != nil {
				return a.outputError(cmd, err)
			}
			return a.outputResult(cmd, CLIResult{Command: "stats", Results: CLIStats{
				Documents: st.Documents,
				TypeRefs:  st.TypeRefs,
				Imports:   st.Imports,
				Projects:  st.Projects,
				Languages: st.Languages,
			}})
		},
	}
}
