// Package lockmgr implements the in-process lock table the database uses to
// keep objects exclusive between goroutines of one process.
//
// Core Functionality:
//   - Non-blocking lock acquisition, a lock that cannot be granted right
//     away is reported as not acquired
//   - Shared locks for readers and exclusive locks for writers
//   - Safe release operations that verify ownership
//
// Implementation Approach:
//
//	Locks live in an xsync.MapOf keyed by the encoded object key. Acquire
//	and release are single atomic Compute calls on that map, so no further
//	mutex is needed.
//
//	Every successful acquisition returns a random owner ID. Only the holder
//	of that ID can release the lock. The random source is passed to
//	NewLockManager, which makes owner IDs reproducible in tests.
//
// Usage Example:
//
//	locks := lockmgr.NewLockManager(nil)
//
//	acquired, ownerID, err := locks.AcquireLock("users/alice", lockmgr.ModeExclusive)
//	if err != nil {
//	    // Handle error
//	}
//
//	if acquired {
//	    // Use the object safely
//	    // ...
//
//	    // Release the lock when done
//	    released, err := locks.ReleaseLock("users/alice", ownerID)
//	}
//
// The table only coordinates goroutines of the same process. Backends add
// their own cross-process locking on top (see engines/flat).
package lockmgr
