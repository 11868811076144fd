package model

import "strings"

// ParseList splits comma-joined edit text into identifiers. Tokens are
// trimmed and empty tokens dropped; order and duplicates are preserved.
// The result is never nil.
func ParseList(text string) []string {
	out := []string{}
	for _, tok := range strings.Split(text, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// JoinList renders identifiers as comma-joined edit text.
func JoinList(values []string) string {
	return strings.Join(values, ",")
}
