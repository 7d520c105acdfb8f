package tracker

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCounters = []byte("counters")
	bucketOpened   = []byte("opened")
	bucketReplied  = []byte("replied")

	keySent = []byte("sent")
)

// CounterStore keeps the lightweight sent/opened/replied totals that back
// the degraded stats path when the primary store is unreachable. Opened and
// replied are deduplicated per tracking token so repeated events count once.
type CounterStore struct {
	db *bolt.DB
}

func OpenCounterStore(path string) (*CounterStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open counter store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCounters, bucketOpened, bucketReplied} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize counter store: %w", err)
	}

	return &CounterStore{db: db}, nil
}

func (s *CounterStore) Close() error {
	return s.db.Close()
}

// AddSent increments the sent total by n.
func (s *CounterStore) AddSent(n int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		count := btoi(b.Get(keySent)) + uint64(n)
		return b.Put(keySent, itob(count))
	})
}

// MarkOpened records an open for the token. Returns true only on the first
// open for that token.
func (s *CounterStore) MarkOpened(emailID string) (bool, error) {
	return s.markOnce(bucketOpened, emailID)
}

// MarkReplied records a reply for the token. Returns true only on the first
// reply for that token.
func (s *CounterStore) MarkReplied(emailID string) (bool, error) {
	return s.markOnce(bucketReplied, emailID)
}

func (s *CounterStore) markOnce(bucket []byte, emailID string) (bool, error) {
	var first bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(emailID)) != nil {
			return nil
		}
		first = true
		return b.Put([]byte(emailID), []byte{1})
	})
	if err != nil {
		return false, fmt.Errorf("failed to record event: %w", err)
	}
	return first, nil
}

// Totals returns the sent/opened/replied counts.
func (s *CounterStore) Totals() (sent, opened, replied int, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		sent = int(btoi(tx.Bucket(bucketCounters).Get(keySent)))
		opened = tx.Bucket(bucketOpened).Stats().KeyN
		replied = tx.Bucket(bucketReplied).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read totals: %w", err)
	}
	return sent, opened, replied, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
