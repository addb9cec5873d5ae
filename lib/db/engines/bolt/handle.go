package bolt

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/docdb/lib/db"
	bolt "go.etcd.io/bbolt"
)

// txHandle owns a writable bbolt transaction. Store puts the new value into
// the transaction, Release commits it (or rolls back if nothing was stored).
type txHandle struct {
	backend  *boltImpl
	tx       *bolt.Tx
	id       []byte
	name     string
	modified time.Time
	stored   bool
	released bool
	err      error
}

func (h *txHandle) Load() (db.Document, error) {
	if h.released {
		return nil, fmt.Errorf("%w: %s was released", db.ErrInvalidArgument, h.name)
	}
	value := h.tx.Bucket(objectsBucket).Get(h.id)
	if value == nil {
		return nil, fmt.Errorf("%w: %s", db.ErrNotFound, h.name)
	}
	doc, err := h.backend.decodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.name, err)
	}
	return doc, nil
}

func (h *txHandle) Store(doc db.Document) error {
	if h.released {
		return fmt.Errorf("%w: %s was released", db.ErrInvalidArgument, h.name)
	}

	now := time.Now()
	value, err := h.backend.encodeValue(doc, now)
	if err != nil {
		return err
	}

	// pages are only allocated on commit, reaching the limit would remap
	// and grow the file beyond it
	if limit := h.backend.maxBytes; limit > 0 && h.backend.grownSize(h.tx, len(value)+len(h.id)) >= limit {
		return fmt.Errorf("%w: storing %s would exceed the size limit of %d bytes", db.ErrIO, h.name, limit)
	}

	if err := h.tx.Bucket(objectsBucket).Put(h.id, value); err != nil {
		return fmt.Errorf("%w: put %s: %v", db.ErrIO, h.name, err)
	}
	h.stored = true
	h.modified = now
	return nil
}

func (h *txHandle) Release() error {
	if h.released {
		return h.err
	}
	h.released = true

	if !h.stored {
		if err := h.tx.Rollback(); err != nil {
			h.err = h.backend.txError(err)
		}
		return h.err
	}
	if err := h.tx.Commit(); err != nil {
		h.err = h.backend.txError(err)
	}
	return h.err
}

func (h *txHandle) Modified() time.Time {
	return h.modified
}

// snapshotHandle holds a copy of the value read in a read-only transaction
type snapshotHandle struct {
	backend *boltImpl
	name    string
	value   []byte
}

func (h *snapshotHandle) Load() (db.Document, error) {
	doc, err := h.backend.decodeValue(h.value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.name, err)
	}
	return doc, nil
}

func (h *snapshotHandle) Store(db.Document) error {
	return fmt.Errorf("%w: %s was locked read-only", db.ErrInvalidArgument, h.name)
}

func (h *snapshotHandle) Release() error { return nil }

func (h *snapshotHandle) Modified() time.Time {
	return modTime(h.value)
}
