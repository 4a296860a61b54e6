package snapshot

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	corestate "github.com/cuemby/corestate"
)

var snapshotsBucket = []byte("snapshots")

// BoltBackend persists snapshot bytes to a bbolt file, so a host that
// wants snapshots to survive a process restart can opt in. Grounded on
// warren's pkg/storage/boltdb.go bucket-per-resource, marshal-into-bolt
// pattern, narrowed to the single snapshots bucket this domain needs.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBoltBackend opens (creating if absent) a bbolt file at path and
// ensures the snapshots bucket exists.
func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, &corestate.Error{Kind: corestate.KindTransient, Message: fmt.Sprintf("open snapshot db at %q", path), Cause: err}
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, &corestate.Error{Kind: corestate.KindTransient, Message: "init snapshot bucket", Cause: err}
	}
	return &BoltBackend{db: db}, nil
}

// Close closes the underlying bbolt file.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// Put stores data under id, overwriting any existing entry.
func (b *BoltBackend) Put(id string, data []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotsBucket).Put([]byte(id), data)
	})
}

// Get retrieves the bytes stored under id.
func (b *BoltBackend) Get(id string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(snapshotsBucket).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("snapshot %q not found in bolt backend", id)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the entry stored under id, if any.
func (b *BoltBackend) Delete(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotsBucket).Delete([]byte(id))
	})
}
