package scanning

import "fmt"

// PageType labels what kind of subscription-related page a scan found.
type PageType string

const (
	PageTypeBilling PageType = "billing"
	PageTypeCancel  PageType = "cancel"
	PageTypeAccount PageType = "account"
	PageTypeUnknown PageType = "unknown"
)

// Confidence grades how strong the combined signals were.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

const (
	highThreshold   = 9
	mediumThreshold = 5
)

// Verdict is the structured output of one classification pass over a single
// page. Detected holds exactly when the confidence is above low or a page
// type was identified.
type Verdict struct {
	Detected   bool       `json:"detected"`
	Confidence Confidence `json:"confidence"`
	Score      int        `json:"score"`
	PageType   PageType   `json:"detectedPageType"`
	URL        string     `json:"url"`
	Title      string     `json:"title"`
}

// Classifier scores a page's URL and a bounded sample of its visible text
// against weighted signal tables. Classification never fails: missing text
// simply produces a low-confidence verdict.
type Classifier struct {
	urlSignals     []compiledSignal
	keywordSignals []compiledSignal
}

// NewClassifier compiles a rule set into a ready classifier.
func NewClassifier(signals Signals) (*Classifier, error) {
	urlSignals, err := compileSignals(signals.URL)
	if err != nil {
		return nil, fmt.Errorf("url signals: %w", err)
	}
	keywordSignals, err := compileSignals(signals.Keywords)
	if err != nil {
		return nil, fmt.Errorf("keyword signals: %w", err)
	}
	return &Classifier{urlSignals: urlSignals, keywordSignals: keywordSignals}, nil
}

// Classify produces a verdict for one page. The URL and path are matched
// independently against each URL signal; the text sample is matched against
// the keyword signals. URL signal weights feed both the total score and a
// per-type tally that decides the detected page type.
func (c *Classifier) Classify(rawURL, path, textSample, title string) Verdict {
	score := 0

	// Tally order doubles as the tiebreak order.
	tallyOrder := []PageType{PageTypeBilling, PageTypeCancel, PageTypeAccount}
	tally := map[PageType]int{}

	for _, s := range c.urlSignals {
		if s.re.MatchString(rawURL) || s.re.MatchString(path) {
			score += s.weight
			tally[s.pageType] += s.weight
		}
	}

	for _, s := range c.keywordSignals {
		if s.re.MatchString(textSample) {
			score += s.weight
		}
	}

	pageType := PageTypeUnknown
	best := 0
	for _, t := range tallyOrder {
		if tally[t] > best {
			best = tally[t]
			pageType = t
		}
	}

	confidence := ConfidenceLow
	switch {
	case score >= highThreshold:
		confidence = ConfidenceHigh
	case score >= mediumThreshold:
		confidence = ConfidenceMedium
	}

	return Verdict{
		Detected:   confidence != ConfidenceLow || pageType != PageTypeUnknown,
		Confidence: confidence,
		Score:      score,
		PageType:   pageType,
		URL:        rawURL,
		Title:      title,
	}
}
