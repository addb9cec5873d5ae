package cache

import (
	"time"

	"github.com/ValentinKolb/docdb/lib/db"
)

// nilIdx marks the absence of a neighbour or list end.
const nilIdx = -1

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// entry is one cached document. Entries live in the index's arena and link
// to their neighbours by arena position.
type entry struct {
	key      string
	doc      db.Document
	size     int64
	modified time.Time
	newer    int // towards mostRecent
	older    int // towards leastRecent
}

// Index is an LRU cache of documents bounded by the sum of their sizes.
// Keys are encoded object keys (see pathkey.BinaryKey).
//
// Thread-safety: Index is not safe for concurrent use. The owner must
// serialize all calls.
type Index struct {
	entries     []entry
	free        []int
	lookup      map[string]int
	mostRecent  int
	leastRecent int
	size        int64
	maxSize     int64
}

// Stats describes the state of an Index.
type Stats struct {
	Entries   int   `json:"entries"`
	SizeBytes int64 `json:"size_bytes"`
	MaxBytes  int64 `json:"max_bytes"`
}

// --------------------------------------------------------------------------
// Initialization
// --------------------------------------------------------------------------

// New creates an index holding at most maxSize bytes of documents.
// A maxSize of 0 (or less) disables caching.
func New(maxSize int64) *Index {
	c := &Index{mostRecent: nilIdx, leastRecent: nilIdx}
	c.SetMaxSize(maxSize)
	return c
}

func (c *Index) reset() {
	c.entries = nil
	c.free = nil
	c.lookup = nil
	c.mostRecent = nilIdx
	c.leastRecent = nilIdx
	c.size = 0
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// Enabled reports whether the index accepts documents.
func (c *Index) Enabled() bool {
	return c.maxSize > 0
}

// Lookup returns the cached document for key without changing its recency.
// The document stays owned by the index.
func (c *Index) Lookup(key string) (db.Document, time.Time, bool) {
	i, ok := c.lookup[key]
	if !ok {
		return nil, time.Time{}, false
	}
	return c.entries[i].doc, c.entries[i].modified, true
}

// Insert adds doc as the most recent entry for key, replacing an existing
// entry. Afterwards the least recent entries are evicted until the total size
// is within the limit, which can evict doc itself. Returns the number of
// evicted entries.
func (c *Index) Insert(key string, doc db.Document, size int64, modified time.Time) (evicted int) {
	if !c.Enabled() {
		return 0
	}
	c.Remove(key)

	var i int
	if n := len(c.free); n > 0 {
		i = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		c.entries = append(c.entries, entry{})
		i = len(c.entries) - 1
	}

	c.entries[i] = entry{
		key:      key,
		doc:      doc,
		size:     size,
		modified: modified,
		newer:    nilIdx,
		older:    c.mostRecent,
	}
	if c.mostRecent != nilIdx {
		c.entries[c.mostRecent].newer = i
	}
	c.mostRecent = i
	if c.leastRecent == nilIdx {
		c.leastRecent = i
	}
	c.lookup[key] = i
	c.size += size

	return c.evict()
}

// Remove unlinks the entry for key and hands its document to the caller.
func (c *Index) Remove(key string) (db.Document, bool) {
	i, ok := c.lookup[key]
	if !ok {
		return nil, false
	}
	doc := c.entries[i].doc
	c.unlink(i)
	return doc, true
}

// SetMaxSize changes the size limit and evicts entries to comply with it.
// A limit of 0 drops all entries and disables the index, a later positive
// limit enables it again. Returns the number of evicted entries.
func (c *Index) SetMaxSize(maxSize int64) (evicted int) {
	if maxSize <= 0 {
		evicted = c.Len()
		c.maxSize = 0
		c.reset()
		return evicted
	}
	if c.lookup == nil {
		c.lookup = make(map[string]int)
	}
	c.maxSize = maxSize
	return c.evict()
}

// Len returns the number of cached documents.
func (c *Index) Len() int {
	return len(c.lookup)
}

// Size returns the summed size of all cached documents.
func (c *Index) Size() int64 {
	return c.size
}

// MaxSize returns the configured size limit.
func (c *Index) MaxSize() int64 {
	return c.maxSize
}

// Stats returns a snapshot of the index state.
func (c *Index) Stats() Stats {
	return Stats{Entries: c.Len(), SizeBytes: c.size, MaxBytes: c.maxSize}
}

// Keys returns all keys from most to least recent.
func (c *Index) Keys() []string {
	keys := make([]string, 0, c.Len())
	for i := c.mostRecent; i != nilIdx; i = c.entries[i].older {
		keys = append(keys, c.entries[i].key)
	}
	return keys
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// evict drops least recent entries while the index is over its limit.
func (c *Index) evict() (evicted int) {
	for c.size > c.maxSize && c.leastRecent != nilIdx {
		c.unlink(c.leastRecent)
		evicted++
	}
	return evicted
}

// unlink removes entry i from the recency list and the lookup map and puts
// its slot on the free list.
func (c *Index) unlink(i int) {
	e := &c.entries[i]

	if e.newer != nilIdx {
		c.entries[e.newer].older = e.older
	} else {
		c.mostRecent = e.older
	}
	if e.older != nilIdx {
		c.entries[e.older].newer = e.newer
	} else {
		c.leastRecent = e.newer
	}

	delete(c.lookup, e.key)
	c.size -= e.size
	*e = entry{newer: nilIdx, older: nilIdx}
	c.free = append(c.free, i)
}
