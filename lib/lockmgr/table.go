package lockmgr

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	ownerIDLength = 16
)

// lockState is the value stored per locked key. It is replaced, never
// mutated, so Compute callbacks can hand out copies safely.
type lockState struct {
	exclusive bool
	owners    [][]byte
}

type lockTable struct {
	locks  *xsync.MapOf[string, lockState]
	random io.Reader
	randMu sync.Mutex // random sources like *rand.Rand are not goroutine safe
}

// NewLockManager creates an in-process lock table. Owner IDs are read from
// random, crypto/rand is used when random is nil.
func NewLockManager(random io.Reader) ILockManager {
	if random == nil {
		random = rand.Reader
	}
	return &lockTable{
		locks:  xsync.NewMapOf[string, lockState](),
		random: random,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr/interface.go)
// --------------------------------------------------------------------------

func (lt *lockTable) AcquireLock(key string, mode Mode) (bool, []byte, error) {
	ownerID, err := lt.generateOwnerID()
	if err != nil {
		return false, nil, err
	}

	acquired := false
	lt.locks.Compute(key, func(old lockState, loaded bool) (lockState, bool) {
		if !loaded {
			acquired = true
			return lockState{exclusive: mode == ModeExclusive, owners: [][]byte{ownerID}}, false
		}
		if old.exclusive || mode == ModeExclusive {
			return old, false
		}
		acquired = true
		owners := make([][]byte, len(old.owners), len(old.owners)+1)
		copy(owners, old.owners)
		return lockState{owners: append(owners, ownerID)}, false
	})

	if !acquired {
		return false, nil, nil
	}
	return true, ownerID, nil
}

func (lt *lockTable) ReleaseLock(key string, ownerID []byte) (bool, error) {
	released := true
	lt.locks.Compute(key, func(old lockState, loaded bool) (lockState, bool) {
		if !loaded {
			return old, true
		}
		idx := -1
		for i, owner := range old.owners {
			if bytes.Equal(owner, ownerID) {
				idx = i
				break
			}
		}
		if idx < 0 {
			released = false
			return old, false
		}
		if len(old.owners) == 1 {
			return lockState{}, true
		}
		owners := make([][]byte, 0, len(old.owners)-1)
		owners = append(owners, old.owners[:idx]...)
		owners = append(owners, old.owners[idx+1:]...)
		return lockState{exclusive: old.exclusive, owners: owners}, false
	})
	return released, nil
}

func (lt *lockTable) IsLocked(key string) bool {
	_, ok := lt.locks.Load(key)
	return ok
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// generateOwnerID creates a new random owner ID.
func (lt *lockTable) generateOwnerID() ([]byte, error) {
	ownerID := make([]byte, ownerIDLength)
	lt.randMu.Lock()
	_, err := io.ReadFull(lt.random, ownerID)
	lt.randMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to generate owner id: %w", err)
	}
	return ownerID, nil
}
