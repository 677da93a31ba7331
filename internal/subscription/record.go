package subscription

import (
	"time"

	"github.com/zombor/sub-tracker/internal/scanning"
)

// Record represents one tracked subscription. Records are deduplicated by
// BaseDomain: the store holds at most one record per distinct base domain,
// so re-saving a domain merges instead of appending.
type Record struct {
	ID          string              `json:"id"`
	ServiceName string              `json:"serviceName"`
	BaseDomain  string              `json:"baseDomain"`
	CurrentURL  string              `json:"currentUrl"`
	PageType    scanning.PageType   `json:"detectedPageType"`
	Confidence  scanning.Confidence `json:"confidence"`
	RenewalDate string              `json:"renewalDate,omitempty"` // strict YYYY-MM-DD
	Category    string              `json:"category,omitempty"`
	Notes       string              `json:"notes,omitempty"`
	PriceText   string              `json:"priceText,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// UpsertMode reports whether an upsert created a new record or merged into
// an existing one.
type UpsertMode string

const (
	UpsertCreated UpsertMode = "created"
	UpsertUpdated UpsertMode = "updated"
)

// UpsertResult pairs the stored record with how it got there.
type UpsertResult struct {
	Mode   UpsertMode `json:"mode"`
	Record Record     `json:"record"`
}

// EditFields is a partial update for a record. Nil fields are left
// untouched; non-nil fields overwrite, with the empty string clearing an
// optional field.
type EditFields struct {
	ServiceName *string `json:"serviceName"`
	RenewalDate *string `json:"renewalDate"`
	Category    *string `json:"category"`
	PriceText   *string `json:"priceText"`
	Notes       *string `json:"notes"`
}

// merge applies a candidate's fields onto an existing record. Fields the
// candidate always carries win outright; optional text fields win only when
// the candidate actually has them, so a re-scan cannot wipe user-entered
// details.
func merge(existing, candidate Record) Record {
	out := existing

	if candidate.ServiceName != "" {
		out.ServiceName = candidate.ServiceName
	}
	if candidate.CurrentURL != "" {
		out.CurrentURL = candidate.CurrentURL
	}
	if candidate.PageType != "" {
		out.PageType = candidate.PageType
	}
	if candidate.Confidence != "" {
		out.Confidence = candidate.Confidence
	}
	if candidate.RenewalDate != "" {
		out.RenewalDate = candidate.RenewalDate
	}
	if candidate.Category != "" {
		out.Category = candidate.Category
	}
	if candidate.Notes != "" {
		out.Notes = candidate.Notes
	}
	if candidate.PriceText != "" {
		out.PriceText = candidate.PriceText
	}

	return out
}
