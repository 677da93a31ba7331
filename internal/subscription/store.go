package subscription

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates unique IDs for records.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Store owns the authoritative subscription collection for a session and is
// the only writer to persistent storage for it. Mutations are serialized by
// a store-level mutex and flow read-then-write through the DB boundary.
type Store struct {
	db          DB
	idGenerator IDGenerator
	timeSource  TimeSource
	mu          sync.Mutex
}

// NewStore creates a Store with default ID generator and time source.
func NewStore(db DB) *Store {
	return NewStoreWithDeps(db, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewStoreWithDeps creates a Store with custom dependencies for testing.
func NewStoreWithDeps(db DB, idGen IDGenerator, timeSrc TimeSource) *Store {
	return &Store{
		db:          db,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Upsert inserts the candidate or merges it into the existing record for the
// same base domain. A merge keeps the original id and creation time and only
// refreshes updatedAt; a fresh insert goes to the front of the collection.
func (s *Store) Upsert(candidate Record) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.db.LoadRecords()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("loading subscriptions: %w", err)
	}

	now := s.timeSource.Now()

	for i, existing := range records {
		if existing.BaseDomain != candidate.BaseDomain {
			continue
		}
		updated := merge(existing, candidate)
		updated.UpdatedAt = now
		records[i] = updated
		if err := s.db.SaveRecords(records); err != nil {
			return UpsertResult{}, fmt.Errorf("saving subscriptions: %w", err)
		}
		return UpsertResult{Mode: UpsertUpdated, Record: updated}, nil
	}

	created := candidate
	if created.ID == "" {
		created.ID = s.idGenerator.Generate()
	}
	created.CreatedAt = now
	created.UpdatedAt = now

	records = append([]Record{created}, records...)
	if err := s.db.SaveRecords(records); err != nil {
		return UpsertResult{}, fmt.Errorf("saving subscriptions: %w", err)
	}
	return UpsertResult{Mode: UpsertCreated, Record: created}, nil
}

// Edit applies a partial update to the record with the given id and
// refreshes its updatedAt. Unknown ids return ErrRecordNotFound.
func (s *Store) Edit(id string, fields EditFields) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.db.LoadRecords()
	if err != nil {
		return Record{}, fmt.Errorf("loading subscriptions: %w", err)
	}

	for i, record := range records {
		if record.ID != id {
			continue
		}
		if fields.ServiceName != nil {
			record.ServiceName = *fields.ServiceName
			if record.ServiceName == "" {
				record.ServiceName = record.BaseDomain
			}
		}
		if fields.RenewalDate != nil {
			record.RenewalDate = *fields.RenewalDate
		}
		if fields.Category != nil {
			record.Category = *fields.Category
		}
		if fields.PriceText != nil {
			record.PriceText = *fields.PriceText
		}
		if fields.Notes != nil {
			record.Notes = *fields.Notes
		}
		record.UpdatedAt = s.timeSource.Now()
		records[i] = record
		if err := s.db.SaveRecords(records); err != nil {
			return Record{}, fmt.Errorf("saving subscriptions: %w", err)
		}
		return record, nil
	}

	return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

// Remove deletes the record with the given id. Unknown ids return
// ErrRecordNotFound.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.db.LoadRecords()
	if err != nil {
		return fmt.Errorf("loading subscriptions: %w", err)
	}

	for i, record := range records {
		if record.ID != id {
			continue
		}
		records = append(records[:i], records[i+1:]...)
		if err := s.db.SaveRecords(records); err != nil {
			return fmt.Errorf("saving subscriptions: %w", err)
		}
		return nil
	}

	return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

// Get returns the record with the given id, or ErrRecordNotFound.
func (s *Store) Get(id string) (Record, error) {
	records, err := s.db.LoadRecords()
	if err != nil {
		return Record{}, fmt.Errorf("loading subscriptions: %w", err)
	}
	for _, record := range records {
		if record.ID == id {
			return record, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

// List returns a snapshot of the stored collection.
func (s *Store) List() ([]Record, error) {
	records, err := s.db.LoadRecords()
	if err != nil {
		return nil, fmt.Errorf("loading subscriptions: %w", err)
	}
	return records, nil
}
