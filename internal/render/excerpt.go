package render

import (
	"strings"

	stripmd "github.com/writeas/go-strip-markdown/v2"
)

// Excerpt returns the first max runes of the plain text of a markdown body,
// cut at a word boundary and suffixed with an ellipsis when shortened.
func Excerpt(markdown string, max int) string {
	plain := strings.Join(strings.Fields(stripmd.Strip(markdown)), " ")
	r := []rune(plain)
	if max <= 0 || len(r) <= max {
		return plain
	}
	cut := string(r[:max])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
