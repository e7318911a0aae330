package command

import "strings"

// ParseLinks splits raw on newlines and commas, trims each token and drops
// empty ones. Order is preserved and duplicates are kept.
func ParseLinks(raw string) []string {
	links := []string{}
	if raw == "" {
		return links
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == ','
	})
	for _, f := range fields {
		if s := strings.TrimSpace(f); s != "" {
			links = append(links, s)
		}
	}
	return links
}
