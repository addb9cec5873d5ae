// Package lstore implements store.IStore on top of a local database
// (lib/database).
//
// Every IStore call maps to one lock cycle of the database: Put locks the
// document for writing (creating it if missing), replaces the document and
// unlocks it, Get takes a read-only reference. Documents are normalized to
// the canonical JSON value types before they are stored.
//
// Thread Safety:
//
//	All operations are thread-safe. Whether concurrent writers to the same
//	document fail with RetCBusy or wait depends on the database backend (flat
//	files fail fast, bolt serializes writers).
//
// Usage Example:
//
//	docs, err := database.Open("/var/lib/docdb", 16<<20)
//	if err != nil {
//	    // Handle error
//	}
//	s := lstore.NewLocalStore(docs)
//
//	err = s.Put([]string{"users", "alice"}, db.Document{"age": 30})
//	doc, exists, err := s.Get([]string{"users", "alice"})
//
//	// atomic read-modify-write
//	err = s.Update([]string{"users", "alice"}, func(doc db.Document) error {
//	    age, _ := doc.Get("age")
//	    doc.Set("age", age.(int64)+1)
//	    return nil
//	})
package lstore
