package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = CleanString(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}

// Plural returns `word` suffixed with "s" unless n == 1.
func Plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
