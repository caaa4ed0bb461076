package store

import "strings"

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// stringsToArgs converts []string to []any for use with database/sql.
func stringsToArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// projectFilter returns an SQL fragment restricting d.project to projects.
// A nil slice means every project. The caller must check for a non-nil
// empty slice, which matches nothing.
func projectFilter(projects []string) (string, []any) {
	if projects == nil {
		return "", nil
	}
	return " AND d.project IN (" + placeholderList(len(projects)) + ")", stringsToArgs(projects)
}

// emptyScope reports whether projects is an explicit empty scope.
func emptyScope(projects []string) bool {
	return projects != nil && len(projects) == 0
}
