// Public domain.

// Package srcexpand delimits catalogue qualified column names in formula
// and selection strings.
//
// The association engine's expression grammar cannot tell where a column
// reference such as @PUL_EDOTD2 ends when names share prefixes or contain
// operator characters, so each known reference is wrapped in dollar signs:
// "@PUL_EDOTD2 > 5e+33" becomes "$@PUL_EDOTD2$ > 5e+33".
package srcexpand

import "strings"

// Delim is written before and after each expanded name.
const Delim = "$"

// Vocabulary returns the qualified names "@<prefix>_<column>" for a
// catalogue's columns.
func Vocabulary(prefix string, columns []string) []string {
	v := make([]string, len(columns))
	for i, c := range columns {
		v[i] = "@" + prefix + "_" + c
	}
	return v
}

// Expand wraps occurrences of names in text with Delim.
//
// Text is scanned left to right.  At each step the name occurring
// earliest in the remaining text is chosen, the longest name winning
// a tie.  Text preceding the match is copied verbatim, the match is
// written delimited, and scanning resumes after it.  Matches therefore
// never overlap and removing the delimiters gives back the original text.
func Expand(text string, names []string) string {
	var b strings.Builder
	for i := 0; i < len(text); {
		first, match := len(text), ""
		for _, n := range names {
			if n == "" {
				continue
			}
			x := strings.Index(text[i:], n)
			if x < 0 {
				continue
			}
			x += i
			if x < first || x == first && len(n) > len(match) {
				first, match = x, n
			}
		}
		if match == "" {
			b.WriteString(text[i:])
			break
		}
		b.WriteString(text[i:first])
		b.WriteString(Delim)
		b.WriteString(match)
		b.WriteString(Delim)
		i = first + len(match)
	}
	return b.String()
}

// ExpandAll applies Expand to each string of list, in place.
func ExpandAll(list []string, names []string) {
	for i, s := range list {
		list[i] = Expand(s, names)
	}
}
