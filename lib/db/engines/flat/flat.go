package flat

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/db/pathkey"
	"github.com/ValentinKolb/docdb/lib/db/util"
	"github.com/ValentinKolb/docdb/lib/lockmgr"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("flat")

// openRoots holds the roots of all open backends of this process. Record
// locks belong to the process, two backends on one root would not exclude
// each other.
var openRoots = xsync.NewMapOf[string, struct{}]()

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultDirMode  os.FileMode = 0o750
	defaultFileMode os.FileMode = 0o640

	features = db.FeatureCreate | db.FeatureLock | db.FeatureReadOnlyLock |
		db.FeatureDelete | db.FeatureExists | db.FeatureList
)

// --------------------------------------------------------------------------
// Core Flat File Backend Structure
// --------------------------------------------------------------------------

// flatImpl stores every object as one JSON file below a root directory
type flatImpl struct {
	root   string
	rootID string
	opts   Options
	locks  lockmgr.ILockManager // in-process exclusivity, fcntl locks only work between processes
	dirMu  sync.Mutex           // serializes directory creation and pruning
	closed atomic.Bool
}

// Options configures the flat file backend
type Options struct {
	DirMode    os.FileMode // Mode for new namespace directories (0 = 0750)
	FileMode   os.FileMode // Mode for new object files (0 = 0640)
	SyncWrites bool        // fsync every stored document
	Random     io.Reader   // Source for lock owner IDs (nil = crypto/rand)
}

// DefaultOptions returns the default flat file backend options
func DefaultOptions() *Options {
	return &Options{
		DirMode:  defaultDirMode,
		FileMode: defaultFileMode,
	}
}

// NewFlatDB opens the flat file backend rooted at root. The directory is
// created if missing. A root can only be opened once per process at a time,
// a second NewFlatDB fails with db.ErrBusy until the first backend is
// closed. Other processes may open the same root.
//
// Thread-safety: The returned backend is safe for concurrent use.
func NewFlatDB(root string, opts *Options) (db.Backend, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.DirMode == 0 {
		o.DirMode = defaultDirMode
	}
	if o.FileMode == 0 {
		o.FileMode = defaultFileMode
	}

	if root == "" {
		return nil, fmt.Errorf("%w: empty root directory", db.ErrInvalidArgument)
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, o.DirMode); err != nil {
		return nil, fmt.Errorf("%w: create root %s: %v", db.ErrIO, root, err)
	}

	id, err := rootID(root)
	if err != nil {
		return nil, err
	}
	if _, loaded := openRoots.LoadOrStore(id, struct{}{}); loaded {
		return nil, fmt.Errorf("%w: %s is already open in this process", db.ErrBusy, root)
	}

	Logger.Debugf("opened flat backend at %s", root)
	return &flatImpl{
		root:   root,
		rootID: id,
		opts:   o,
		locks:  lockmgr.NewLockManager(o.Random),
	}, nil
}

// rootID identifies a root directory independent of how it was named
func rootID(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: resolve root %s: %v", db.ErrIO, root, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.Backend)
// --------------------------------------------------------------------------

func (f *flatImpl) Create(key []string) (db.Handle, error) {
	path, id, err := f.resolve(key)
	if err != nil {
		return nil, err
	}

	// a held lock means the object exists or is being created right now
	ok, owner, err := f.locks.AcquireLock(id, lockmgr.ModeExclusive)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", db.ErrIO, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", db.ErrAlreadyExists, strings.Join(key, "/"))
	}

	file, err := f.createFile(path)
	if err != nil {
		f.locks.ReleaseLock(id, owner)
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", db.ErrAlreadyExists, strings.Join(key, "/"))
		}
		return nil, fmt.Errorf("%w: create %s: %v", db.ErrIO, path, err)
	}

	if err := lockFile(file, true); err != nil {
		f.discard(file, path)
		f.locks.ReleaseLock(id, owner)
		return nil, err
	}

	handle := &fileHandle{backend: f, id: id, owner: owner, file: file}
	if err := handle.Store(db.Document{}); err != nil {
		_ = unlockFile(file)
		f.discard(file, path)
		f.locks.ReleaseLock(id, owner)
		return nil, err
	}
	return handle, nil
}

func (f *flatImpl) Acquire(key []string, hint db.Hint) (db.Handle, error) {
	path, id, err := f.resolve(key)
	if err != nil {
		return nil, err
	}

	mode := lockmgr.ModeExclusive
	if hint == db.HintReadOnly {
		mode = lockmgr.ModeShared
	}
	ok, owner, err := f.locks.AcquireLock(id, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", db.ErrIO, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is locked", db.ErrBusy, strings.Join(key, "/"))
	}

	if hint == db.HintReadOnly {
		defer f.locks.ReleaseLock(id, owner)
		return f.snapshot(path, key)
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		f.locks.ReleaseLock(id, owner)
		return nil, openError(err, path, key)
	}
	if err := lockFile(file, true); err != nil {
		_ = file.Close()
		f.locks.ReleaseLock(id, owner)
		return nil, err
	}
	return &fileHandle{backend: f, id: id, owner: owner, file: file, modified: modTime(file)}, nil
}

func (f *flatImpl) Delete(key []string) error {
	path, id, err := f.resolve(key)
	if err != nil {
		return err
	}

	ok, owner, err := f.locks.AcquireLock(id, lockmgr.ModeExclusive)
	if err != nil {
		return fmt.Errorf("%w: %v", db.ErrIO, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is locked", db.ErrBusy, strings.Join(key, "/"))
	}
	defer f.locks.ReleaseLock(id, owner)

	f.dirMu.Lock()
	defer f.dirMu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", db.ErrNotFound, strings.Join(key, "/"))
		}
		return fmt.Errorf("%w: remove %s: %v", db.ErrIO, path, err)
	}
	f.pruneLocked(filepath.Dir(path))
	return nil
}

func (f *flatImpl) Exists(key []string) (bool, error) {
	if f.closed.Load() {
		return false, db.ErrClosed
	}
	path, err := pathkey.FilePath(f.root, key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: stat %s: %v", db.ErrIO, path, err)
	}
}

func (f *flatImpl) List(prefix []string) ([]string, error) {
	if f.closed.Load() {
		return nil, db.ErrClosed
	}
	dir, err := pathkey.DirPath(f.root, prefix, 0)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: read dir %s: %v", db.ErrIO, dir, err)
	}

	seen := make(map[string]struct{}, len(entries))
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
		case entry.Type().IsRegular() && strings.HasSuffix(name, pathkey.FileSuffix):
			name = strings.TrimSuffix(name, pathkey.FileSuffix)
		default:
			continue
		}

		// files not written by this backend are skipped
		segment, err := pathkey.Unsanitize(name)
		if err != nil {
			continue
		}
		if _, ok := seen[segment]; ok {
			continue
		}
		seen[segment] = struct{}{}
		names = append(names, segment)
	}
	sort.Strings(names)
	return names, nil
}

func (f *flatImpl) SupportsFeature(feature db.Feature) bool {
	return feature&features == feature
}

func (f *flatImpl) GetInfo() db.DatabaseInfo {
	var sizes []float64
	total := 0
	dirs := 0
	// objects per top level namespace, documents in the root count as ""
	perNamespace := make(map[string]float64)

	_ = filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != f.root {
				dirs++
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), pathkey.FileSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += int(info.Size())
		sizes = append(sizes, float64(info.Size()))

		top := ""
		if rel, err := filepath.Rel(f.root, path); err == nil {
			if first, _, nested := strings.Cut(filepath.ToSlash(rel), "/"); nested {
				top = first
			}
		}
		perNamespace[top]++
		return nil
	})

	counts := make([]float64, 0, len(perNamespace))
	for _, n := range perNamespace {
		counts = append(counts, n)
	}

	return db.DatabaseInfo{
		SizeBytes:         total,
		DbType:            db.ImplFlat,
		SupportedFeatures: db.ExpandFeatures(features),
		Metadata: map[string]interface{}{
			"root":        f.root,
			"objects":     len(sizes),
			"namespaces":  dirs,
			"file_sizes":  util.NewStats(sizes),
			"balance":     util.NewDistributionStats(counts),
			"sync_writes": f.opts.SyncWrites,
		},
	}
}

func (f *flatImpl) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	openRoots.Delete(f.rootID)
	Logger.Debugf("closed flat backend at %s", f.root)
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// resolve validates key and returns its file path and lock table id
func (f *flatImpl) resolve(key []string) (string, string, error) {
	if f.closed.Load() {
		return "", "", db.ErrClosed
	}
	path, err := pathkey.FilePath(f.root, key)
	if err != nil {
		return "", "", err
	}
	id, err := pathkey.BinaryKey(key)
	if err != nil {
		return "", "", err
	}
	return path, string(id), nil
}

// createFile creates the parent directories and the object file itself.
// The file must not exist yet.
func (f *flatImpl) createFile(path string) (*os.File, error) {
	f.dirMu.Lock()
	defer f.dirMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), f.opts.DirMode); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, f.opts.FileMode)
}

// discard closes and removes a file that was created but never handed out
func (f *flatImpl) discard(file *os.File, path string) {
	_ = file.Close()

	f.dirMu.Lock()
	defer f.dirMu.Unlock()
	if err := os.Remove(path); err == nil {
		f.pruneLocked(filepath.Dir(path))
	}
}

// pruneLocked removes empty directories from dir up to (not including) the
// root. The caller must hold dirMu.
func (f *flatImpl) pruneLocked(dir string) {
	for dir != f.root && strings.HasPrefix(dir, f.root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// snapshot reads the object file under a shared record lock and gives up
// the lock before returning.
func (f *flatImpl) snapshot(path string, key []string) (db.Handle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, openError(err, path, key)
	}
	defer file.Close()

	if err := lockFile(file, false); err != nil {
		return nil, err
	}
	defer unlockFile(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", db.ErrIO, path, err)
	}
	return &snapshotHandle{name: path, data: data, modified: modTime(file)}, nil
}

func openError(err error, path string, key []string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", db.ErrNotFound, strings.Join(key, "/"))
	}
	return fmt.Errorf("%w: open %s: %v", db.ErrIO, path, err)
}

func modTime(file *os.File) time.Time {
	info, err := file.Stat()
	if err != nil {
		return time.Now()
	}
	return info.ModTime()
}
