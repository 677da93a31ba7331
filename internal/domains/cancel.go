package domains

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

//go:embed cancel_links.json
var defaultCancelLinks []byte

// CancelEntry is one known cancellation page for a base domain.
type CancelEntry struct {
	CancelURL string `json:"cancelUrl"`
}

// Links maps base domains to known cancellation pages. The table is
// reference data: loaded once at startup and never mutated.
type Links map[string]CancelEntry

// DefaultLinks returns the cancellation table embedded in the binary.
func DefaultLinks() (Links, error) {
	return parseLinks(defaultCancelLinks)
}

// LoadLinks reads a cancellation table from a JSON file.
func LoadLinks(path string) (Links, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cancel links: %w", err)
	}
	return parseLinks(raw)
}

func parseLinks(raw []byte) (Links, error) {
	var links Links
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, fmt.Errorf("parsing cancel links: %w", err)
	}
	return links, nil
}

// Resolve looks up the cancellation entry for a base domain. On a miss, a
// domain with more than two labels retries with its two-label parent, so a
// record saved under billing.netflix.com still finds the netflix.com entry.
func (l Links) Resolve(baseDomain string) (CancelEntry, bool) {
	if len(l) == 0 || baseDomain == "" {
		return CancelEntry{}, false
	}
	if entry, ok := l[baseDomain]; ok {
		return entry, true
	}
	parts := splitLabels(baseDomain)
	if len(parts) > 2 {
		parent := strings.Join(parts[len(parts)-2:], ".")
		if entry, ok := l[parent]; ok {
			return entry, true
		}
	}
	return CancelEntry{}, false
}

// SearchURL builds the user-triggered web-search fallback for domains with no
// known cancellation page.
func SearchURL(baseDomain string) string {
	q := url.QueryEscape(baseDomain + " cancel subscription")
	return "https://www.google.com/search?q=" + q
}
