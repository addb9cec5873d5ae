package flat

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ValentinKolb/docdb/lib/db"
)

// --------------------------------------------------------------------------
// Write Handle
// --------------------------------------------------------------------------

// fileHandle keeps the object file open and record locked until Release.
type fileHandle struct {
	backend  *flatImpl
	id       string
	owner    []byte
	file     *os.File
	modified time.Time
	once     sync.Once
	err      error
}

func (h *fileHandle) Load() (db.Document, error) {
	if _, err := h.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek %s: %v", db.ErrIO, h.file.Name(), err)
	}
	data, err := io.ReadAll(h.file)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", db.ErrIO, h.file.Name(), err)
	}
	doc, err := db.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.file.Name(), err)
	}
	return doc, nil
}

func (h *fileHandle) Store(doc db.Document) error {
	data, err := db.Encode(doc)
	if err != nil {
		return fmt.Errorf("%w: encode document: %v", db.ErrInvalidArgument, err)
	}

	// rewrite the file in place, the record lock stays on the same inode
	if _, err := h.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek %s: %v", db.ErrIO, h.file.Name(), err)
	}
	if err := h.file.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncate %s: %v", db.ErrIO, h.file.Name(), err)
	}
	if _, err := h.file.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %v", db.ErrIO, h.file.Name(), err)
	}
	if h.backend.opts.SyncWrites {
		if err := h.file.Sync(); err != nil {
			return fmt.Errorf("%w: sync %s: %v", db.ErrIO, h.file.Name(), err)
		}
	}

	h.modified = time.Now()
	return nil
}

func (h *fileHandle) Release() error {
	h.once.Do(func() {
		unlockErr := unlockFile(h.file)
		closeErr := h.file.Close()
		h.backend.locks.ReleaseLock(h.id, h.owner)

		if unlockErr != nil {
			h.err = unlockErr
		} else if closeErr != nil {
			h.err = fmt.Errorf("%w: close %s: %v", db.ErrIO, h.file.Name(), closeErr)
		}
	})
	return h.err
}

func (h *fileHandle) Modified() time.Time {
	return h.modified
}

// --------------------------------------------------------------------------
// Read-Only Handle
// --------------------------------------------------------------------------

// snapshotHandle holds the file content read while the object was locked.
// All locks were already given up when it is handed out.
type snapshotHandle struct {
	name     string
	data     []byte
	modified time.Time
}

func (h *snapshotHandle) Load() (db.Document, error) {
	doc, err := db.Decode(h.data)
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
	return h.modified
}
