package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"cloudsync/core/tree"

	"go.etcd.io/bbolt"
)

// BucketName is the bucket holding one model per link.
const BucketName = "SyncState"

// ErrNotFound is returned by Load for a link that was never saved.
var ErrNotFound = errors.New("no state for link")

// Store persists the model of every link in a bbolt file.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the state file at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	// The timeout keeps a second process from blocking forever on the file lock.
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the saved model of linkID.
func (s *Store) Load(linkID string) (*tree.Model, error) {
	var m tree.Model
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(BucketName)).Get([]byte(linkID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &m)
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", linkID, err)
	}
	return &m, nil
}

// Save replaces the saved model of linkID.
func (s *Store) Save(linkID string, m tree.Model) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", linkID, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketName)).Put([]byte(linkID), data)
	})
}

// Delete forgets linkID.
func (s *Store) Delete(linkID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketName)).Delete([]byte(linkID))
	})
}

// Links returns the sorted IDs of every saved link.
func (s *Store) Links() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketName)).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}
