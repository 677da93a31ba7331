package subscription

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
)

// SortMode selects the ordering of a listed view.
type SortMode string

const (
	// SortRenewalSoon orders dated records by how soon they renew, with
	// undated or already-renewed records after all dated ones. Default.
	SortRenewalSoon SortMode = "renewalSoon"

	// SortNewest orders by creation time, newest first.
	SortNewest SortMode = "newest"
)

// Defaults for the renewing-soon shortlist.
const (
	DefaultUpcomingWindowDays = 30
	DefaultUpcomingLimit      = 8
)

// Filters narrows a record list. Text matches case-insensitively against the
// concatenated service name, base domain, notes, category and price text;
// Category is an exact match; a non-nil WindowDays keeps only records
// renewing within that many days (records without a parseable renewal date
// are excluded while the window is active).
type Filters struct {
	Text       string
	Category   string
	WindowDays *int
}

var strictDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Queries computes filtered and sorted views over a record snapshot. Date
// math runs in the viewer's local calendar through the injected time source.
type Queries struct {
	timeSource TimeSource
}

// NewQueries creates a Queries bound to the wall clock.
func NewQueries() *Queries {
	return NewQueriesWithTime(&defaultTimeSource{})
}

// NewQueriesWithTime creates a Queries with a custom time source for testing.
func NewQueriesWithTime(timeSrc TimeSource) *Queries {
	return &Queries{timeSource: timeSrc}
}

// DaysUntil returns the whole-day count from today to a strict YYYY-MM-DD
// renewal date, both taken at local midnight. Malformed or missing dates
// report ok=false, never an error.
func (q *Queries) DaysUntil(renewalDate string) (int, bool) {
	if !strictDate.MatchString(renewalDate) {
		return 0, false
	}
	now := q.timeSource.Now()
	target, err := time.ParseInLocation("2006-01-02", renewalDate, now.Location())
	if err != nil {
		return 0, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := int(math.Ceil(target.Sub(today).Hours() / 24))
	return days, true
}

// Filter returns the subset of records matching all active filters.
func (q *Queries) Filter(records []Record, filters Filters) []Record {
	text := strings.ToLower(strings.TrimSpace(filters.Text))
	category := strings.TrimSpace(filters.Category)

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if text != "" {
			hay := strings.ToLower(strings.Join([]string{
				r.ServiceName, r.BaseDomain, r.Notes, r.Category, r.PriceText,
			}, " "))
			if !strings.Contains(hay, text) {
				continue
			}
		}

		if category != "" && r.Category != category {
			continue
		}

		if filters.WindowDays != nil {
			days, ok := q.DaysUntil(r.RenewalDate)
			if !ok || days < 0 || days > *filters.WindowDays {
				continue
			}
		}

		out = append(out, r)
	}
	return out
}

// Sort returns the records ordered by the given mode without mutating the
// input.
func (q *Queries) Sort(records []Record, mode SortMode) []Record {
	out := make([]Record, len(records))
	copy(out, records)

	if mode == SortNewest {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
		return out
	}

	// renewalSoon: upcoming renewals first, soonest first; undated or past
	// records after, newest created first.
	sort.SliceStable(out, func(i, j int) bool {
		di, iOK := q.DaysUntil(out[i].RenewalDate)
		dj, jOK := q.DaysUntil(out[j].RenewalDate)
		iHas := iOK && di >= 0
		jHas := jOK && dj >= 0

		switch {
		case iHas && jHas:
			return di < dj
		case iHas:
			return true
		case jHas:
			return false
		default:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
	})
	return out
}

// Upcoming returns at most limit records renewing within windowDays,
// soonest first.
func (q *Queries) Upcoming(records []Record, windowDays, limit int) []Record {
	type dated struct {
		record Record
		days   int
	}

	upcoming := make([]dated, 0, len(records))
	for _, r := range records {
		days, ok := q.DaysUntil(r.RenewalDate)
		if !ok || days < 0 || days > windowDays {
			continue
		}
		upcoming = append(upcoming, dated{record: r, days: days})
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].days < upcoming[j].days
	})

	if len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}

	out := make([]Record, 0, len(upcoming))
	for _, d := range upcoming {
		out = append(out, d.record)
	}
	return out
}
