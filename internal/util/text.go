package util

import "strings"

// SanitizeKey maps an opaque identifier to a string that is safe to use as
// a file name component. Anything outside [A-Za-z0-9._-] becomes '_'.
func SanitizeKey(key string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(key))
	if cleaned == "" {
		return "_"
	}
	return cleaned
}
