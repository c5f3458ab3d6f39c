package oauth

import "strings"

// ScopeToList splits a space-delimited scope string into its tokens,
// preserving order. A blank string yields an empty list.
func ScopeToList(scope string) []string {
	return strings.Fields(scope)
}

// ListToScope joins scope tokens with a single space.
func ListToScope(scopes []string) string {
	return strings.Join(scopes, " ")
}
