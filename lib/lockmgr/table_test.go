package lockmgr

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
)

func TestExclusiveLock(t *testing.T) {
	locks := NewLockManager(nil)

	ok, owner, err := locks.AcquireLock("k", ModeExclusive)
	if err != nil || !ok || len(owner) != ownerIDLength {
		t.Fatalf("first acquire failed: ok=%v owner=%x err=%v", ok, owner, err)
	}
	if !locks.IsLocked("k") {
		t.Errorf("key should be locked")
	}

	if ok, _, _ := locks.AcquireLock("k", ModeExclusive); ok {
		t.Errorf("second exclusive acquire should fail")
	}
	if ok, _, _ := locks.AcquireLock("k", ModeShared); ok {
		t.Errorf("shared acquire on an exclusive lock should fail")
	}
	if ok, _, _ := locks.AcquireLock("other", ModeExclusive); !ok {
		t.Errorf("other keys must not be affected")
	}

	if ok, _ := locks.ReleaseLock("k", []byte("not the owner")); ok {
		t.Errorf("release with a foreign owner id should fail")
	}
	if ok, _ := locks.ReleaseLock("k", owner); !ok {
		t.Errorf("release by the owner should succeed")
	}
	if locks.IsLocked("k") {
		t.Errorf("key should be free after release")
	}
	if ok, _ := locks.ReleaseLock("k", owner); !ok {
		t.Errorf("releasing a free key reports success")
	}
}

func TestSharedLocks(t *testing.T) {
	locks := NewLockManager(nil)

	ok1, owner1, _ := locks.AcquireLock("k", ModeShared)
	ok2, owner2, _ := locks.AcquireLock("k", ModeShared)
	if !ok1 || !ok2 {
		t.Fatalf("shared locks should be compatible")
	}
	if bytes.Equal(owner1, owner2) {
		t.Errorf("owners must differ")
	}
	if ok, _, _ := locks.AcquireLock("k", ModeExclusive); ok {
		t.Errorf("exclusive acquire must fail while readers hold the key")
	}

	locks.ReleaseLock("k", owner1)
	if !locks.IsLocked("k") {
		t.Errorf("key should stay locked by the second reader")
	}
	locks.ReleaseLock("k", owner2)

	if ok, _, _ := locks.AcquireLock("k", ModeExclusive); !ok {
		t.Errorf("exclusive acquire should succeed after all readers left")
	}
}

func TestDeterministicOwnerIDs(t *testing.T) {
	a := NewLockManager(rand.New(rand.NewSource(7)))
	b := NewLockManager(rand.New(rand.NewSource(7)))

	_, ownerA, _ := a.AcquireLock("k", ModeExclusive)
	_, ownerB, _ := b.AcquireLock("k", ModeExclusive)
	if !bytes.Equal(ownerA, ownerB) {
		t.Errorf("same random source should yield the same owner ids")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestRandomSourceFailure(t *testing.T) {
	locks := NewLockManager(failingReader{})
	ok, _, err := locks.AcquireLock("k", ModeExclusive)
	if ok || err == nil {
		t.Errorf("expected acquire to fail, got ok=%v err=%v", ok, err)
	}
	if locks.IsLocked("k") {
		t.Errorf("failed acquire must not leave a lock behind")
	}
}

func TestConcurrentExclusive(t *testing.T) {
	locks := NewLockManager(nil)

	var holders, maxHolders atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				ok, owner, err := locks.AcquireLock("k", ModeExclusive)
				if err != nil {
					t.Errorf("acquire failed: %v", err)
					return
				}
				if !ok {
					continue
				}
				if n := holders.Add(1); n > maxHolders.Load() {
					maxHolders.Store(n)
				}
				holders.Add(-1)
				locks.ReleaseLock("k", owner)
			}
		}()
	}
	wg.Wait()

	if maxHolders.Load() > 1 {
		t.Errorf("observed %d simultaneous holders of an exclusive lock", maxHolders.Load())
	}
}
