// Package kvstore is the append-only key/value persistence layer
// described in spec.md §3 and §6: one node per container, each node an
// ordered list of (key, value) string pairs, restored at daemon startup.
//
// Backed by go.etcd.io/bbolt, the way moby-moby's volume/service and
// daemon/streams packages open a bbolt database for local daemon state
// (see daemon/streams/store_test.go for the idiom this package follows).
package kvstore

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/oceanweave/portod/pkg/errkind"
	"go.etcd.io/bbolt"
)

var rootBucket = []byte("containers")

// Record is one (key, value) pair within a container's persistence node.
type Record struct {
	Key   string
	Value string
}

// Store is the append-only persistence handle shared by every
// container's property holder.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and
// ensures the top-level bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errkind.Wrapf(errkind.Storage, err, "open kv store %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errkind.Wrapf(errkind.Storage, err, "init kv store %s", path)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

// CreateNode (re)writes container's node from scratch with records, the
// way Create writes every explicit slot as a single node (spec.md §4.2).
func (s *Store) CreateNode(container string, records []Record) error {
	return s.rewrite(container, records)
}

// Sync rewrites container's node from records, compacting away any
// superseded appends (spec.md §4.2's Sync / §6's "Sync rewrites the
// whole node").
func (s *Store) Sync(container string, records []Record) error {
	return s.rewrite(container, records)
}

func (s *Store) rewrite(container string, records []Record) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(rootBucket)
		if err := root.DeleteBucket([]byte(container)); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		node, err := root.CreateBucket([]byte(container))
		if err != nil {
			return err
		}
		for _, rec := range records {
			seq, err := node.NextSequence()
			if err != nil {
				return err
			}
			blob, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := node.Put(seqKey(seq), blob); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errkind.Wrapf(errkind.Storage, err, "write node %s", container)
	}
	return nil
}

// Append adds one (key, value) pair to container's node without
// touching the rest — the incremental path property.Set uses.
func (s *Store) Append(container, key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(rootBucket)
		node, err := root.CreateBucketIfNotExists([]byte(container))
		if err != nil {
			return err
		}
		seq, err := node.NextSequence()
		if err != nil {
			return err
		}
		blob, err := json.Marshal(Record{Key: key, Value: value})
		if err != nil {
			return err
		}
		return node.Put(seqKey(seq), blob)
	})
	if err != nil {
		return errkind.Wrapf(errkind.Storage, err, "append to node %s", container)
	}
	return nil
}

// Load returns every record in container's node, in append order (later
// entries for the same key come later in the slice and "win" on
// replay). Returns an empty, non-error slice if the node doesn't exist.
func (s *Store) Load(container string) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(rootBucket)
		node := root.Bucket([]byte(container))
		if node == nil {
			return nil
		}
		return node.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return errkind.Wrapf(errkind.Corrupted, err, "record in node %s", container)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Remove deletes container's node entirely (called by Destroy).
func (s *Store) Remove(container string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(rootBucket)
		err := root.DeleteBucket([]byte(container))
		if err == bbolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return errkind.Wrapf(errkind.Storage, err, "remove node %s", container)
	}
	return nil
}

// Exists reports whether a node for container is present.
func (s *Store) Exists(container string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(rootBucket)
		exists = root.Bucket([]byte(container)) != nil
		return nil
	})
	return exists, err
}

// Names enumerates every persisted container node, in no particular
// order — callers that care about parent-before-child ordering (restore
// at startup) sort the result themselves by name depth.
func (s *Store) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(rootBucket)
		return root.ForEach(func(name, v []byte) error {
			if v == nil { // nested bucket, not a plain key
				names = append(names, string(name))
			}
			return nil
		})
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err, "enumerate nodes")
	}
	return names, nil
}
