package database

import (
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/docdb/lib/db"
)

// Ref is the exclusive in-memory reference to a locked object. It is
// returned by Create, Lock and LockIntent and consumed by Unlock. A Ref must
// not be used after it was unlocked and must not be shared between
// goroutines.
type Ref struct {
	key      []string
	id       string
	hint     db.Hint
	doc      db.Document
	modified time.Time
	handle   db.Handle
	consumed atomic.Bool
}

// Key returns a copy of the object key.
func (r *Ref) Key() []string {
	return append([]string(nil), r.key...)
}

// Hint returns the intent the object was locked with.
func (r *Ref) Hint() db.Hint {
	return r.hint
}

// Document returns the document of the locked object. Changes to the
// returned document are persisted by Unlock if the object was locked for
// writing. Returns nil once the reference was unlocked.
func (r *Ref) Document() db.Document {
	if r.consumed.Load() {
		return nil
	}
	return r.doc
}

// SetDocument replaces the document of the locked object. The document is
// copied into the canonical value types. Returns false if doc is nil, cannot
// be encoded, or the reference was already unlocked.
func (r *Ref) SetDocument(doc db.Document) bool {
	if doc == nil || r.consumed.Load() {
		return false
	}
	normalized, err := db.Normalize(doc)
	if err != nil {
		return false
	}
	r.doc = normalized
	return true
}

// Modified returns the modification time of the object when it was locked.
func (r *Ref) Modified() time.Time {
	return r.modified
}
