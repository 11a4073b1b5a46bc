// Package journal provides a BoltDB-backed session event journal.
//
// The original proctoring pipeline kept per-session alert and lifecycle
// logs for post-exam review; the journal preserves that: every alert
// notification and process lifecycle transition is appended under its
// session id, msgpack-encoded, keyed by a monotonic sequence number.
package journal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

var eventsBucket = []byte("events")

// Kind classifies a journal record.
type Kind string

const (
	KindAlert     Kind = "alert"
	KindLifecycle Kind = "lifecycle"
)

// Record is one journaled event.
type Record struct {
	SessionID string `msgpack:"session_id"`
	Kind      Kind   `msgpack:"kind"`
	Category  string `msgpack:"category"`
	Severity  string `msgpack:"severity"`
	Message   string `msgpack:"message"`
	PID       int    `msgpack:"pid"`
	Timestamp int64  `msgpack:"timestamp"`
}

// Journal wraps a bbolt database of session events.
type Journal struct {
	db  *bolt.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// New opens or creates a BoltDB file at the given path.
func New(path string, log zerolog.Logger) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating events bucket: %w", err)
	}

	return &Journal{db: db, log: log}, nil
}

// Close closes the underlying BoltDB.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append journals one record. A zero Timestamp is filled with now.
func (j *Journal) Append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}

		data, err := msgpack.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}

		j.log.Debug().
			Str("session_id", rec.SessionID).
			Str("kind", string(rec.Kind)).
			Str("category", rec.Category).
			Msg("Event journaled")

		return b.Put(key(rec.SessionID, seq), data)
	})
}

// Session returns all records for a session in append order.
func (j *Journal) Session(sessionID string) ([]Record, error) {
	var records []Record
	prefix := []byte(sessionID + "/")

	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec Record
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				j.log.Warn().Err(err).Str("key", string(k)).Msg("Skipping corrupt record")
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// key builds "<session>/<seq>" with the sequence big-endian encoded so
// cursor order matches append order.
func key(sessionID string, seq uint64) []byte {
	k := make([]byte, 0, len(sessionID)+9)
	k = append(k, sessionID...)
	k = append(k, '/')
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(k, buf[:]...)
}
