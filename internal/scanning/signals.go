package scanning

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// SignalSpec is one declarative scoring rule. URL signals carry a page type
// that feeds the per-type tally; keyword signals only add weight to the
// total score.
type SignalSpec struct {
	Pattern string   `yaml:"pattern"`
	Weight  int      `yaml:"weight"`
	Type    PageType `yaml:"type,omitempty"`
}

// Signals is the full rule set the classifier scores against. Keeping the
// tables as data lets the weights be tuned and tested independently of the
// scoring algorithm.
type Signals struct {
	URL      []SignalSpec `yaml:"url"`
	Keywords []SignalSpec `yaml:"keywords"`
}

// DefaultSignals returns the built-in rule set.
func DefaultSignals() Signals {
	return Signals{
		URL: []SignalSpec{
			{Pattern: `(billing|invoice|payment|plan|pricing|subscription|subscriptions|membership)`, Weight: 3, Type: PageTypeBilling},
			{Pattern: `(cancel|terminate|end-subscription|close-account|unsubscribe)`, Weight: 4, Type: PageTypeCancel},
			{Pattern: `(account|settings|profile)`, Weight: 1, Type: PageTypeAccount},
		},
		Keywords: []SignalSpec{
			{Pattern: `\bsubscription(s)?\b`, Weight: 3},
			{Pattern: `\bbilling\b`, Weight: 3},
			{Pattern: `\bplan\b`, Weight: 2},
			{Pattern: `\bpayment\b`, Weight: 2},
			{Pattern: `\brenew(al)?\b`, Weight: 3},
			{Pattern: `\bnext billing date\b`, Weight: 4},
			{Pattern: `\bcancel\b`, Weight: 4},
			{Pattern: `\bmanage plan\b`, Weight: 3},
			{Pattern: `\bmembership\b`, Weight: 2},
		},
	}
}

// LoadSignals reads a tuned rule set from a YAML file.
func LoadSignals(path string) (Signals, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Signals{}, fmt.Errorf("reading signals file: %w", err)
	}
	var s Signals
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Signals{}, fmt.Errorf("parsing signals file: %w", err)
	}
	if len(s.URL) == 0 && len(s.Keywords) == 0 {
		return Signals{}, fmt.Errorf("signals file %s defines no rules", path)
	}
	return s, nil
}

// compiledSignal pairs a spec with its case-insensitive compiled pattern.
type compiledSignal struct {
	re       *regexp.Regexp
	weight   int
	pageType PageType
}

func compileSignals(specs []SignalSpec) ([]compiledSignal, error) {
	out := make([]compiledSignal, 0, len(specs))
	for _, spec := range specs {
		re, err := regexp.Compile(`(?i)` + spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling signal %q: %w", spec.Pattern, err)
		}
		out = append(out, compiledSignal{re: re, weight: spec.Weight, pageType: spec.Type})
	}
	return out, nil
}
