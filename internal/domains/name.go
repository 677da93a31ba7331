package domains

import "strings"

const unknownService = "Unknown Service"

// GuessServiceName derives a human-friendly service name from a page title,
// falling back to the capitalized first label of the hostname's base domain.
func GuessServiceName(title, hostname string) string {
	if t := strings.TrimSpace(title); t != "" {
		// Take the first chunk before common title separators.
		chunk := strings.TrimSpace(splitAnyFirst(t, "|-•:"))
		if len(chunk) >= 2 && len(chunk) <= 40 {
			return chunk
		}
	}

	base := BaseDomain(hostname)
	if base == "" {
		return unknownService
	}
	first, _, _ := strings.Cut(base, ".")
	if first == "" {
		return unknownService
	}
	return strings.ToUpper(first[:1]) + first[1:]
}

// splitAnyFirst returns the part of s before the first occurrence of any rune
// in seps, or s itself when none occurs.
func splitAnyFirst(s, seps string) string {
	if i := strings.IndexAny(s, seps); i >= 0 {
		return s[:i]
	}
	return s
}
