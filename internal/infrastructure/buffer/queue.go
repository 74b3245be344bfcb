// Package buffer persists repair work in bbolt so it survives restarts.
package buffer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const defaultBucket = "repairs"

// Queue stores items under priority-ordered keys: lower priority values and
// older timestamps drain first.
type Queue struct {
	db     *bolt.DB
	bucket []byte
}

// Open creates the bbolt file and its bucket if needed.
func Open(path string, bucket string) (*Queue, error) {
	if bucket == "" {
		bucket = defaultBucket
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Queue{
		db:     db,
		bucket: []byte(bucket),
	}, nil
}

func (q *Queue) Enqueue(item Item) error {
	if q == nil || q.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	item.normalize()
	item.bucketKey = buildKey(item)

	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}

	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(q.bucket).Put(item.bucketKey, payload)
	})
}

// Peek returns up to limit items in drain order without removing them.
func (q *Queue) Peek(limit int) ([]Item, error) {
	if q == nil || q.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}

	var items []Item
	err := q.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(q.bucket).Cursor()
		for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			item.bucketKey = append([]byte(nil), k...)
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

func (q *Queue) Remove(item Item) error {
	if q == nil || q.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if len(item.bucketKey) == 0 {
		return q.deleteByID(item.ID)
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(q.bucket).Delete(item.bucketKey)
	})
}

// Requeue moves an item behind its peers, recording the failure that sent it back.
func (q *Queue) Requeue(item Item, cause error) error {
	if q == nil || q.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	oldKey := item.bucketKey
	item.Retries++
	item.Timestamp = time.Now()
	if cause != nil {
		item.LastError = cause.Error()
	}
	item.bucketKey = buildKey(item)

	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(q.bucket)
		if len(oldKey) > 0 {
			if err := b.Delete(oldKey); err != nil {
				return err
			}
		}
		return b.Put(item.bucketKey, payload)
	})
}

func (q *Queue) Size() (int, error) {
	if q == nil || q.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := q.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(q.bucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Cleanup drops items queued before olderThan and reports how many went.
func (q *Queue) Cleanup(olderThan time.Time) (int, error) {
	if q == nil || q.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	removed := 0
	err := q.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(q.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			if item.Timestamp.Before(olderThan) {
				if err := c.Delete(); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func (q *Queue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

// Stats exposes bbolt statistics for the health endpoint.
func (q *Queue) Stats() bolt.Stats {
	if q == nil || q.db == nil {
		return bolt.Stats{}
	}
	return q.db.Stats()
}

func (q *Queue) deleteByID(id string) error {
	if id == "" {
		return nil
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(q.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			if item.ID == id {
				return c.Delete()
			}
		}
		return nil
	})
}

func buildKey(item Item) []byte {
	return []byte(fmt.Sprintf("%d_%020d_%s", item.Priority, item.Timestamp.UnixNano(), item.ID))
}
