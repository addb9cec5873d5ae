package bolt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/db/codec"
	"github.com/ValentinKolb/docdb/lib/db/pathkey"
	"github.com/lni/dragonboat/v4/logger"
	bolt "go.etcd.io/bbolt"
)

var Logger = logger.GetLogger("bolt")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	FileName = "data.db"

	defaultTimeout = time.Second
	minMmapSize    = 1 << 15 // smallest mmap (and file) size of bbolt
	mmapStep       = 1 << 30 // bbolt grows the mmap in steps of 1GB above this size
	headerSize     = 8 // modification time in unix nanoseconds, big endian

	features = db.FeatureCreate | db.FeatureLock | db.FeatureReadOnlyLock |
		db.FeatureDelete | db.FeatureExists | db.FeatureList | db.FeatureSerializedWriters
)

var (
	objectsBucket = []byte("objects")
	metaBucket    = []byte("meta")
	codecKey      = []byte("codec")
)

// --------------------------------------------------------------------------
// Core Bolt Backend Structure
// --------------------------------------------------------------------------

// boltImpl keeps all objects of a database in one bbolt file. Values are a
// modification time header followed by the (optionally compressed) JSON
// document.
type boltImpl struct {
	db       *bolt.DB
	codec    codec.ICodec
	maxBytes int64 // effective file size limit, see sizeLimit
	pageSize int64
	closed   atomic.Bool
}

// Options configures the bolt backend
type Options struct {
	MaxBytes int64         // Upper bound for the database file, at least 32KB (0 = unlimited)
	Codec    string        // Compression codec for new databases (see package codec, "" = none)
	Timeout  time.Duration // Time to wait for the file lock of another process (0 = 1s)
	NoSync   bool          // Skip fsync on commit
}

// DefaultOptions returns the default bolt backend options
func DefaultOptions() *Options {
	return &Options{
		Codec:   codec.None,
		Timeout: defaultTimeout,
	}
}

// NewBoltDB opens (or creates) the bolt backend stored in dir.
// A database keeps the codec it was created with, the Codec option only
// applies to new databases.
//
// Thread-safety: The returned backend is safe for concurrent use. Write
// handles are serialized, Acquire with db.HintWrite waits for the current
// writer. A goroutine must not request a second write handle while holding
// one.
func NewBoltDB(dir string, opts *Options) (db.Backend, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	limit, err := sizeLimit(opts.MaxBytes)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: empty directory", db.ErrInvalidArgument)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", db.ErrIO, dir, err)
	}

	path := filepath.Join(dir, FileName)
	boltDB, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:         timeout,
		InitialMmapSize: int(limit),
		NoSync:          opts.NoSync,
	})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s is opened by another process", db.ErrBusy, path)
		}
		return nil, fmt.Errorf("%w: open %s: %v", db.ErrIO, path, err)
	}

	if limit > 0 {
		// the file is grown to the whole mmap while it is below AllocSize,
		// so the file never exceeds the mmap and the mmap stays at limit
		boltDB.AllocSize = int(limit)
	}

	name, err := setup(boltDB, opts.Codec)
	if err != nil {
		_ = boltDB.Close()
		return nil, err
	}
	c, err := codec.New(name)
	if err != nil {
		_ = boltDB.Close()
		return nil, fmt.Errorf("%w: %v", db.ErrInvalidArgument, err)
	}

	Logger.Debugf("opened bolt backend at %s (codec %s)", path, c.Name())
	return &boltImpl{
		db:       boltDB,
		codec:    c,
		maxBytes: limit,
		pageSize: int64(boltDB.Info().PageSize),
	}, nil
}

// sizeLimit rounds maxBytes down to a size bbolt maps the file with: powers
// of two from 32KB to 1GB, multiples of 1GB above. bbolt grows the file to
// its mmap size, so a limit between two steps could not be kept.
func sizeLimit(maxBytes int64) (int64, error) {
	switch {
	case maxBytes == 0:
		return 0, nil
	case maxBytes < minMmapSize:
		return 0, fmt.Errorf("%w: size limit %d is below the minimum of %d bytes", db.ErrInvalidArgument, maxBytes, minMmapSize)
	case maxBytes >= mmapStep:
		return maxBytes / mmapStep * mmapStep, nil
	}
	limit := int64(minMmapSize)
	for limit*2 <= maxBytes {
		limit *= 2
	}
	return limit, nil
}

// grownSize estimates the size of the file after committing n more bytes
// in tx. Pages freed by tx are not reused before the commit, so the leaf
// holding the value, its branch pages and a fresh freelist count as new
// pages on top of the current high water mark.
func (b *boltImpl) grownSize(tx *bolt.Tx, n int) int64 {
	page := b.pageSize
	pages := func(bytes int64) int64 { return (bytes + page - 1) / page * page }

	size := tx.Size()
	leaf := pages(int64(n) + 2*page)
	freelist := pages(size/page*8 + page)
	return size + leaf + freelist + 5*page
}

// setup creates the buckets and returns the codec of the database. The
// requested codec is recorded when the database is new.
func setup(boltDB *bolt.DB, requested string) (string, error) {
	if requested == "" {
		requested = codec.None
	}
	if _, err := codec.New(requested); err != nil {
		return "", fmt.Errorf("%w: %v", db.ErrInvalidArgument, err)
	}

	name := requested
	err := boltDB.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(objectsBucket); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if stored := meta.Get(codecKey); stored != nil {
			name = string(stored)
			return nil
		}
		return meta.Put(codecKey, []byte(requested))
	})
	if err != nil {
		return "", fmt.Errorf("%w: initialize %s: %v", db.ErrIO, boltDB.Path(), err)
	}
	if name != requested {
		Logger.Warningf("%s was created with codec %s, ignoring requested codec %s", boltDB.Path(), name, requested)
	}
	return name, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.Backend)
// --------------------------------------------------------------------------

func (b *boltImpl) Create(key []string) (db.Handle, error) {
	id, err := b.resolve(key)
	if err != nil {
		return nil, err
	}

	tx, err := b.begin(true)
	if err != nil {
		return nil, err
	}
	if tx.Bucket(objectsBucket).Get(id) != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%w: %s", db.ErrAlreadyExists, strings.Join(key, "/"))
	}

	h := &txHandle{backend: b, tx: tx, id: id, name: strings.Join(key, "/")}
	if err := h.Store(db.Document{}); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return h, nil
}

func (b *boltImpl) Acquire(key []string, hint db.Hint) (db.Handle, error) {
	id, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	name := strings.Join(key, "/")

	if hint == db.HintReadOnly {
		var value []byte
		err := b.db.View(func(tx *bolt.Tx) error {
			if v := tx.Bucket(objectsBucket).Get(id); v != nil {
				value = bytes.Clone(v)
			}
			return nil
		})
		if err != nil {
			return nil, b.txError(err)
		}
		if value == nil {
			return nil, fmt.Errorf("%w: %s", db.ErrNotFound, name)
		}
		return &snapshotHandle{backend: b, name: name, value: value}, nil
	}

	tx, err := b.begin(true)
	if err != nil {
		return nil, err
	}
	value := tx.Bucket(objectsBucket).Get(id)
	if value == nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%w: %s", db.ErrNotFound, name)
	}
	return &txHandle{backend: b, tx: tx, id: id, name: name, modified: modTime(value)}, nil
}

func (b *boltImpl) Delete(key []string) error {
	id, err := b.resolve(key)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(objectsBucket)
		if bucket.Get(id) == nil {
			return fmt.Errorf("%w: %s", db.ErrNotFound, strings.Join(key, "/"))
		}
		return bucket.Delete(id)
	})
	return b.txError(err)
}

func (b *boltImpl) Exists(key []string) (bool, error) {
	id, err := b.resolve(key)
	if err != nil {
		return false, err
	}
	exists := false
	err = b.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(objectsBucket).Get(id) != nil
		return nil
	})
	return exists, b.txError(err)
}

func (b *boltImpl) List(prefix []string) ([]string, error) {
	if b.closed.Load() {
		return nil, db.ErrClosed
	}
	if err := pathkey.ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	if len(prefix) >= pathkey.MaxSegments {
		return []string{}, nil
	}

	names := []string{}
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(objectsBucket).Cursor()
		seen := make(map[string]struct{})

		// keys are ordered by segment count first, so every depth below the
		// prefix is one contiguous range
		for depth := len(prefix) + 1; depth <= pathkey.MaxSegments; depth++ {
			lo, _, err := pathkey.ChildRange(prefix, depth)
			if err != nil {
				return err
			}
			k, _ := c.Seek(lo)
			if k == nil {
				break
			}
			if int(k[0]) > depth {
				depth = int(k[0]) - 1
				continue
			}
			for ; k != nil && bytes.HasPrefix(k, lo); k, _ = c.Next() {
				segment, ok := pathkey.SegmentAt(k, len(prefix))
				if !ok {
					continue
				}
				if _, dup := seen[segment]; !dup {
					seen[segment] = struct{}{}
					names = append(names, segment)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, b.txError(err)
	}

	// names of deeper levels are appended after shallower ones
	sort.Strings(names)
	return names, nil
}

func (b *boltImpl) SupportsFeature(feature db.Feature) bool {
	return feature&b.features() == feature
}

func (b *boltImpl) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		DbType:            db.ImplBolt,
		SupportedFeatures: db.ExpandFeatures(b.features()),
	}
	if b.closed.Load() {
		return info
	}

	objects := 0
	_ = b.db.View(func(tx *bolt.Tx) error {
		objects = tx.Bucket(objectsBucket).Stats().KeyN
		info.SizeBytes = int(tx.Size())
		return nil
	})

	stats := b.db.Stats()
	info.Metadata = map[string]interface{}{
		"path":       b.db.Path(),
		"objects":    objects,
		"codec":      b.codec.Name(),
		"max_bytes":  b.maxBytes,
		"free_pages": stats.FreePageN,
		"read_txs":   stats.TxN,
		"open_txs":   stats.OpenTxN,
	}
	return info
}

func (b *boltImpl) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	// waits for open transactions
	err := b.db.Close()
	_ = b.codec.Close()
	if err != nil {
		return fmt.Errorf("%w: close %s: %v", db.ErrIO, b.db.Path(), err)
	}
	Logger.Debugf("closed bolt backend at %s", b.db.Path())
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (b *boltImpl) features() db.Feature {
	if b.codec.Name() != codec.None {
		return features | db.FeatureCompression
	}
	return features
}

// resolve validates key and returns its binary form
func (b *boltImpl) resolve(key []string) ([]byte, error) {
	if b.closed.Load() {
		return nil, db.ErrClosed
	}
	return pathkey.BinaryKey(key)
}

func (b *boltImpl) begin(writable bool) (*bolt.Tx, error) {
	tx, err := b.db.Begin(writable)
	if err != nil {
		return nil, b.txError(err)
	}
	return tx, nil
}

// txError maps bbolt errors onto the db error set. Errors that already
// carry a db error pass through.
func (b *boltImpl) txError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bolt.ErrDatabaseNotOpen):
		return db.ErrClosed
	case isDBError(err):
		return err
	default:
		return fmt.Errorf("%w: %v", db.ErrIO, err)
	}
}

func isDBError(err error) bool {
	for _, target := range []error{db.ErrNotFound, db.ErrAlreadyExists, db.ErrBusy,
		db.ErrDecode, db.ErrIO, db.ErrInvalidArgument, db.ErrClosed} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// encodeValue renders the stored form of doc
func (b *boltImpl) encodeValue(doc db.Document, modified time.Time) ([]byte, error) {
	data, err := db.Encode(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %v", db.ErrInvalidArgument, err)
	}
	payload, err := b.codec.Encode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s encode: %v", db.ErrIO, b.codec.Name(), err)
	}
	value := make([]byte, headerSize, headerSize+len(payload))
	binary.BigEndian.PutUint64(value, uint64(modified.UnixNano()))
	return append(value, payload...), nil
}

// decodeValue parses a value written by encodeValue
func (b *boltImpl) decodeValue(value []byte) (db.Document, error) {
	if len(value) < headerSize {
		return nil, fmt.Errorf("%w: value too short", db.ErrDecode)
	}
	data, err := b.codec.Decode(value[headerSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s decode: %v", db.ErrDecode, b.codec.Name(), err)
	}
	return db.Decode(data)
}

func modTime(value []byte) time.Time {
	if len(value) < headerSize {
		return time.Time{}
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(value)))
}
