package arbor

import (
	"errors"

	"github.com/jward/arbor/internal/index"
	"github.com/jward/arbor/internal/workspace"
)

var (
	// ErrTypeNotFound is returned when a focus names no known declaration.
	ErrTypeNotFound = errors.New("arbor: type not found")
	// ErrNotReady is returned by index queries under CancelIfNotReady
	// while index updates are pending.
	ErrNotReady = index.ErrNotReady
	// ErrOutsideWorkspace marks paths that belong to no project.
	ErrOutsideWorkspace = workspace.ErrOutsideWorkspace
)

// Waiting policies for index queries.
const (
	WaitUntilReady   = index.WaitUntilReady
	ForceImmediate   = index.ForceImmediate
	CancelIfNotReady = index.CancelIfNotReady
)

// ParsePolicy parses "wait", "immediate" or "cancel".
func ParsePolicy(s string) (Policy, error) {
	return index.ParsePolicy(s)
}

// LoadWorkspace reads a workspace definition file.
func LoadWorkspace(path string) (*Workspace, error) {
	return workspace.Load(path)
}

// DiscoverWorkspace finds the workspace file governing dir, or treats dir
// as a single-project workspace when there is none.
func DiscoverWorkspace(dir string) (*Workspace, error) {
	return workspace.Discover(dir)
}

// SingleWorkspace is a workspace of one project rooted at root.
func SingleWorkspace(root string) *Workspace {
	return workspace.Single(root)
}
