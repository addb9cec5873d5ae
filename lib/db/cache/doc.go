// Package cache implements the size bounded LRU index the database keeps
// unlocked documents in.
//
// Entries are stored in one arena slice and reference their neighbours in
// the recency list by arena position, freed slots are reused. The index is
// not synchronized; the database holds its own mutex around every call.
//
// Ownership: a document is either held by the index or by a caller, never
// both. Remove hands the document over to the caller, Insert takes it back.
package cache
