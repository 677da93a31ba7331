package scanning

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// sampleLimit caps how much page text one scan may inspect. The truncation
// is a hard cut, never a summarization: it bounds per-scan cost and keeps
// the system from holding full page content.
const sampleLimit = 8000

var whitespaceRun = regexp.MustCompile(`\s+`)

// VisibleTextSample extracts a bounded sample of the rendered text of an
// HTML document. Script, style and similar non-rendered subtrees are
// dropped. Unparseable input yields an empty sample rather than an error.
func VisibleTextSample(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, noscript, template").Remove()

	text := doc.Text()
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	return truncate(text, sampleLimit)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
