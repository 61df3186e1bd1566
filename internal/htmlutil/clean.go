package htmlutil

import (
	"strings"

	"github.com/k3a/html2text"
)

// ToText converts HTML to plain text using a proper HTML parser.
// Handles entities, strips tags, and preserves readable text.
func ToText(s string) string {
	return html2text.HTML2Text(s)
}

// Condense converts s to plain text and collapses all runs of whitespace,
// including line breaks, to single spaces. Upstream condition strings and chat
// replies are shown on one line.
func Condense(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		s = ToText(s)
	}
	return strings.Join(strings.Fields(s), " ")
}
