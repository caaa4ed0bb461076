package main

import "github.com/jward/arbor"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIEdge is one declared supertype relation, by type key.
type CLIEdge struct {
	Sub   string `json:"sub"`
	Super string `json:"super"`
}

// CLITypeNode is a type with its direct subtypes, recursively.
type CLITypeNode struct {
	Type     arbor.TypeHandle `json:"type"`
	Subtypes []CLITypeNode    `json:"subtypes,omitempty"`
}

// CLIHierarchy is a JSON-friendly hierarchy rooted at the focus type.
type CLIHierarchy struct {
	Focus      arbor.TypeHandle   `json:"focus"`
	Supertypes []arbor.TypeHandle `json:"supertypes"`
	Subtypes   []CLITypeNode      `json:"subtypes"`
	Edges      []CLIEdge          `json:"edges"`
	Candidates []string           `json:"candidates,omitempty"`
	Cancelled  bool               `json:"cancelled,omitempty"`
}

// CLIDecl is one declaration of an outlined file.
type CLIDecl struct {
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	Category  string   `json:"category,omitempty"`
	Enclosing string   `json:"enclosing,omitempty"`
	Supers    []string `json:"supers,omitempty"`
	Line      int      `json:"line"`
}

// CLIOutline is the extracted structure of one file.
type CLIOutline struct {
	Path     string    `json:"path"`
	Language string    `json:"language"`
	Package  string    `json:"package,omitempty"`
	Decls    []CLIDecl `json:"decls"`
}

// CLIStats summarizes index contents.
type CLIStats struct {
	Documents int            `json:"documents"`
	TypeRefs  int            `json:"type_refs"`
	Imports   int            `json:"imports"`
	Projects  map[string]int `json:"projects"`
	Languages map[string]int `json:"languages"`
}

// CLIIndexSummary reports an index run.
type CLIIndexSummary struct {
	Root       string `json:"root"`
	Database   string `json:"database"`
	Documents  int    `json:"documents"`
	DurationMS int64  `json:"duration_ms"`
}

// CLIMove reports a moved document.
type CLIMove struct {
	From string `json:"from"`
	To   string `json:"to"`
}
