package domains

import (
	"regexp"
	"strings"
)

// twoLevelSuffixes is a fixed allow-list of common two-level public suffixes.
// This is deliberately an approximation, not a full public-suffix list:
// hostnames under suffixes missing from this set resolve to their last two
// labels.
var twoLevelSuffixes = map[string]struct{}{
	"co.uk":   {},
	"org.uk":  {},
	"ac.uk":   {},
	"com.au":  {},
	"net.au":  {},
	"org.au":  {},
	"co.jp":   {},
	"ne.jp":   {},
	"com.br":  {},
	"com.mx":  {},
	"co.in":   {},
	"firm.in": {},
	"net.in":  {},
	"org.in":  {},
	"co.za":   {},
	"com.tr":  {},
	"net.tr":  {},
	"org.tr":  {},
}

var ipv4Pattern = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// BaseDomain extracts the registrable portion of a hostname, e.g.
// "www.netflix.com" -> "netflix.com" and "my.sub.example.co.uk" ->
// "example.co.uk". Localhost, IPv4 literals and hostnames with at most two
// labels are returned unchanged. An empty or whitespace-only hostname yields
// an empty string.
func BaseDomain(hostname string) string {
	host := strings.ToLower(strings.TrimSpace(hostname))
	if host == "" {
		return ""
	}

	if host == "localhost" || ipv4Pattern.MatchString(host) {
		return host
	}

	parts := splitLabels(host)
	if len(parts) <= 2 {
		return host
	}

	// my.sub.example.co.uk: the last two labels form the candidate public
	// suffix; if it is a known two-level suffix the base keeps three labels.
	candidate := strings.Join(parts[len(parts)-2:], ".")
	if _, ok := twoLevelSuffixes[candidate]; ok {
		return strings.Join(parts[len(parts)-3:], ".")
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// splitLabels splits a hostname on dots, dropping empty labels.
func splitLabels(host string) []string {
	raw := strings.Split(host, ".")
	labels := make([]string, 0, len(raw))
	for _, l := range raw {
		if l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}
