//go:build unix

package flat

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/docdb/lib/db"
	"golang.org/x/sys/unix"
)

// lockFile places a non-blocking fcntl record lock on the whole file.
// A conflicting lock of another process yields db.ErrBusy.
func lockFile(f *os.File, exclusive bool) error {
	lockType := int16(unix.F_RDLCK)
	if exclusive {
		lockType = int16(unix.F_WRLCK)
	}
	lk := unix.Flock_t{Type: lockType, Whence: io.SeekStart, Start: 0, Len: 0}
	err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EACCES):
		return fmt.Errorf("%w: %s is locked by another process", db.ErrBusy, f.Name())
	default:
		return fmt.Errorf("%w: lock %s: %v", db.ErrIO, f.Name(), err)
	}
}

// unlockFile removes the record lock placed by lockFile.
func unlockFile(f *os.File) error {
	lk := unix.Flock_t{Type: int16(unix.F_UNLCK), Whence: io.SeekStart, Start: 0, Len: 0}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk); err != nil {
		return fmt.Errorf("%w: unlock %s: %v", db.ErrIO, f.Name(), err)
	}
	return nil
}
