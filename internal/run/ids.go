package run

import "strings"

// ParseClientIds splits free-form input on newlines, commas and whitespace. Empty
// tokens are dropped and duplicates keep their first position.
func ParseClientIds(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})

	seen := make(map[string]struct{}, len(fields))
	ids := make([]string, 0, len(fields))
	for _, id := range fields {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
