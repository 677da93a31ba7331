package subscription

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketName    = "subscriptions"
	collectionKey = "subs_v1"
)

// DB is the persistent store boundary: a keyed blob store that holds the
// whole subscription collection under one well-known key. Every mutation
// reads the full collection and writes it back (last-writer-wins at the
// granularity of a whole save).
type DB interface {
	// LoadRecords returns the stored collection; an absent key yields an
	// empty collection.
	LoadRecords() ([]Record, error)

	// SaveRecords replaces the stored collection.
	SaveRecords(records []Record) error

	// Close closes the database connection.
	Close() error
}

// BoltDB implements the DB interface using BoltDB.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// LoadRecords returns the stored subscription collection.
func (b *BoltDB) LoadRecords() ([]Record, error) {
	records := make([]Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data := bucket.Get([]byte(collectionKey))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("unmarshaling subscriptions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SaveRecords replaces the stored subscription collection.
func (b *BoltDB) SaveRecords(records []Record) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("marshaling subscriptions: %w", err)
		}
		return bucket.Put([]byte(collectionKey), data)
	})
}

// Close closes the database connection.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
