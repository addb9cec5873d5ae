package lstore

import (
	"errors"

	"github.com/ValentinKolb/docdb/lib/database"
	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

// LocalStore implements store.IStore directly on top of a database.
type LocalStore struct {
	db *database.Database
}

var _ store.IStore = (*LocalStore)(nil)

// NewLocalStore creates a new local store instance for d.
// The store does not take ownership of the database, closing it is up to
// the caller.
func NewLocalStore(d *database.Database) *LocalStore {
	return &LocalStore{db: d}
}

// Database returns the database the store works on.
func (s *LocalStore) Database() *database.Database {
	return s.db
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *LocalStore) Create(key []string, doc db.Document) error {
	if !s.db.SupportsFeature(db.FeatureCreate) {
		return store.NewError(store.RetCUnsupportedOperation, "Create operation is not supported")
	}
	normalized, err := normalize(doc)
	if err != nil {
		return err
	}

	ref, err := s.db.Create(key...)
	if err != nil {
		return store.FromError(err)
	}
	ref.SetDocument(normalized)
	if err := s.db.Unlock(ref); err != nil {
		// the object was created with an empty document, remove it so that
		// a failed Create leaves nothing behind
		if delErr := s.db.Delete(key...); delErr != nil && !errors.Is(delErr, db.ErrNotFound) {
			Logger.Warningf("failed to remove %v after a failed create: %v", key, delErr)
		}
		return store.FromError(err)
	}
	return nil
}

func (s *LocalStore) Put(key []string, doc db.Document) error {
	if !s.db.SupportsFeature(db.FeatureCreate | db.FeatureLock) {
		return store.NewError(store.RetCUnsupportedOperation, "Put operation is not supported")
	}
	normalized, err := normalize(doc)
	if err != nil {
		return err
	}

	ref, err := s.lockOrCreate(key)
	if err != nil {
		return store.FromError(err)
	}
	ref.SetDocument(normalized)
	return store.FromError(s.db.Unlock(ref))
}

func (s *LocalStore) Get(key []string) (db.Document, bool, error) {
	if !s.db.SupportsFeature(db.FeatureReadOnlyLock) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	ref, err := s.db.LockIntent(db.HintReadOnly, key...)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, store.FromError(err)
	}
	doc := ref.Document()
	if err := s.db.Unlock(ref); err != nil {
		return nil, false, store.FromError(err)
	}
	return doc, true, nil
}

func (s *LocalStore) Delete(key []string) error {
	if !s.db.SupportsFeature(db.FeatureDelete) {
		return store.NewError(store.RetCUnsupportedOperation, "Delete operation is not supported")
	}
	return store.FromError(s.db.Delete(key...))
}

func (s *LocalStore) Exists(key []string) (bool, error) {
	if !s.db.SupportsFeature(db.FeatureExists) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Exists operation is not supported")
	}
	exists, err := s.db.Exists(key...)
	return exists, store.FromError(err)
}

func (s *LocalStore) List(prefix []string) ([]string, error) {
	if !s.db.SupportsFeature(db.FeatureList) {
		return nil, store.NewError(store.RetCUnsupportedOperation, "List operation is not supported")
	}
	names, err := s.db.List(prefix...)
	return names, store.FromError(err)
}

func (s *LocalStore) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

// --------------------------------------------------------------------------
// Local Only Methods
// --------------------------------------------------------------------------

// Update locks the document stored under key for writing and passes it to
// fn. The changes fn makes to the document are persisted unless fn returns
// an error, in which case the document stays as it was.
func (s *LocalStore) Update(key []string, fn func(doc db.Document) error) error {
	ref, err := s.db.Lock(key...)
	if err != nil {
		return store.FromError(err)
	}

	original := ref.Document().Clone()
	if fnErr := fn(ref.Document()); fnErr != nil {
		ref.SetDocument(original)
		if err := s.db.Unlock(ref); err != nil {
			Logger.Warningf("failed to unlock %v after a failed update: %v", key, err)
		}
		return fnErr
	}
	return store.FromError(s.db.Unlock(ref))
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// lockOrCreate locks key for writing, creating it if it does not exist
func (s *LocalStore) lockOrCreate(key []string) (*database.Ref, error) {
	ref, err := s.db.Lock(key...)
	if !errors.Is(err, db.ErrNotFound) {
		return ref, err
	}
	ref, err = s.db.Create(key...)
	if errors.Is(err, db.ErrAlreadyExists) {
		// created concurrently
		return s.db.Lock(key...)
	}
	return ref, err
}

func normalize(doc db.Document) (db.Document, error) {
	if doc == nil {
		return db.Document{}, nil
	}
	normalized, err := db.Normalize(doc)
	if err != nil {
		return nil, store.FromError(err)
	}
	return normalized, nil
}
