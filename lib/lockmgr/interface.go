package lockmgr

// Mode selects how a lock is shared.
type Mode uint8

const (
	// ModeShared locks can be held by any number of owners at once, as long
	// as nobody holds the key exclusively.
	ModeShared Mode = iota
	// ModeExclusive locks have exactly one owner.
	ModeExclusive
)

func (m Mode) String() string {
	if m == ModeExclusive {
		return "exclusive"
	}
	return "shared"
}

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// AcquireLock tries to lock key in the given mode without waiting.
	// Return a boolean indicating whether the lock was acquired, an owner ID, and an error if any.
	AcquireLock(key string, mode Mode) (ok bool, ownerID []byte, err error)

	// ReleaseLock releases the lock the owner holds on key.
	// Return a boolean indicating whether the lock was released, and an error if any.
	// The method will also return true if the lock did not exist.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)

	// IsLocked reports whether anybody holds a lock on key.
	IsLocked(key string) (locked bool)
}
