package cache

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/google/go-cmp/cmp"
)

func doc(v string) db.Document {
	return db.Document{"v": v}
}

// checkLinks verifies that the recency list matches the lookup map and the
// accounted size.
func checkLinks(t *testing.T, c *Index) {
	t.Helper()

	var size int64
	seen := 0
	prev := nilIdx
	for i := c.mostRecent; i != nilIdx; i = c.entries[i].older {
		e := c.entries[i]
		if e.newer != prev {
			t.Fatalf("entry %q has newer=%d, expected %d", e.key, e.newer, prev)
		}
		if idx, ok := c.lookup[e.key]; !ok || idx != i {
			t.Fatalf("entry %q missing from lookup", e.key)
		}
		size += e.size
		seen++
		prev = i
	}
	if prev != c.leastRecent {
		t.Fatalf("list ends at %d but leastRecent is %d", prev, c.leastRecent)
	}
	if seen != c.Len() {
		t.Fatalf("list has %d entries, lookup %d", seen, c.Len())
	}
	if size != c.Size() {
		t.Fatalf("list sums to %d bytes, index reports %d", size, c.Size())
	}
	if c.Size() > c.MaxSize() {
		t.Fatalf("size %d exceeds limit %d", c.Size(), c.MaxSize())
	}
}

func TestInsertLookupRemove(t *testing.T) {
	c := New(100)
	now := time.Now()

	c.Insert("a", doc("a"), 10, now)
	c.Insert("b", doc("b"), 10, now)
	checkLinks(t, c)

	got, modified, ok := c.Lookup("a")
	if !ok || got["v"] != "a" || !modified.Equal(now) {
		t.Errorf("lookup of a returned %v %v %v", got, modified, ok)
	}
	if diff := cmp.Diff([]string{"b", "a"}, c.Keys()); diff != "" {
		t.Errorf("lookup must not change recency (-want +got):\n%s", diff)
	}

	removed, ok := c.Remove("a")
	if !ok || removed["v"] != "a" {
		t.Errorf("remove of a returned %v %v", removed, ok)
	}
	if _, _, ok := c.Lookup("a"); ok {
		t.Errorf("a still cached after remove")
	}
	if _, ok := c.Remove("a"); ok {
		t.Errorf("second remove should report absence")
	}
	checkLinks(t, c)

	c.Remove("b")
	if c.mostRecent != nilIdx || c.leastRecent != nilIdx || c.Size() != 0 {
		t.Errorf("empty index should have no list ends and no size")
	}
}

func TestInsertReplacesExisting(t *testing.T) {
	c := New(100)
	c.Insert("a", doc("old"), 30, time.Time{})
	c.Insert("b", doc("b"), 10, time.Time{})
	c.Insert("a", doc("new"), 20, time.Time{})
	checkLinks(t, c)

	if c.Len() != 2 || c.Size() != 30 {
		t.Errorf("expected 2 entries with 30 bytes, got %d/%d", c.Len(), c.Size())
	}
	if got, _, _ := c.Lookup("a"); got["v"] != "new" {
		t.Errorf("expected replaced document, got %v", got)
	}
	if diff := cmp.Diff([]string{"a", "b"}, c.Keys()); diff != "" {
		t.Errorf("replacement should become most recent (-want +got):\n%s", diff)
	}
}

func TestEvictsLeastRecentFirst(t *testing.T) {
	c := New(30)
	c.Insert("a", doc("a"), 10, time.Time{})
	c.Insert("b", doc("b"), 10, time.Time{})
	c.Insert("c", doc("c"), 10, time.Time{})

	if evicted := c.Insert("d", doc("d"), 15, time.Time{}); evicted != 2 {
		t.Errorf("expected 2 evictions, got %d", evicted)
	}
	checkLinks(t, c)
	if diff := cmp.Diff([]string{"d", "c"}, c.Keys()); diff != "" {
		t.Errorf("unexpected survivors (-want +got):\n%s", diff)
	}
}

func TestOversizedEntryEvictsItself(t *testing.T) {
	c := New(10)
	c.Insert("small", doc("s"), 5, time.Time{})
	evicted := c.Insert("huge", doc("h"), 50, time.Time{})
	checkLinks(t, c)

	if evicted != 2 || c.Len() != 0 {
		t.Errorf("expected everything evicted, got %d evictions and %d entries", evicted, c.Len())
	}
}

func TestSetMaxSize(t *testing.T) {
	c := New(100)
	for i := 0; i < 10; i++ {
		c.Insert(fmt.Sprint(i), doc(fmt.Sprint(i)), 10, time.Time{})
	}

	if evicted := c.SetMaxSize(35); evicted != 7 {
		t.Errorf("expected 7 evictions, got %d", evicted)
	}
	checkLinks(t, c)
	if diff := cmp.Diff([]string{"9", "8", "7"}, c.Keys()); diff != "" {
		t.Errorf("unexpected survivors (-want +got):\n%s", diff)
	}

	if evicted := c.SetMaxSize(0); evicted != 3 {
		t.Errorf("expected 3 evictions when disabling, got %d", evicted)
	}
	if c.Enabled() || c.Len() != 0 {
		t.Errorf("cache should be empty and disabled")
	}
	if evicted := c.Insert("x", doc("x"), 1, time.Time{}); evicted != 0 || c.Len() != 0 {
		t.Errorf("disabled cache must not accept entries")
	}

	c.SetMaxSize(20)
	c.Insert("x", doc("x"), 1, time.Time{})
	checkLinks(t, c)
	if c.Len() != 1 {
		t.Errorf("re-enabled cache should accept entries")
	}
}

func TestDisabledFromStart(t *testing.T) {
	c := New(0)
	c.Insert("a", doc("a"), 1, time.Time{})
	if _, _, ok := c.Lookup("a"); ok {
		t.Errorf("disabled cache returned an entry")
	}
	if _, ok := c.Remove("a"); ok {
		t.Errorf("disabled cache removed an entry")
	}
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	c := New(500)

	for i := 0; i < 5000; i++ {
		key := fmt.Sprint(rng.Intn(50))
		switch rng.Intn(10) {
		case 0:
			c.SetMaxSize(int64(rng.Intn(800)))
		case 1, 2, 3:
			c.Remove(key)
		default:
			c.Insert(key, doc(key), int64(1+rng.Intn(60)), time.Time{})
		}
		checkLinks(t, c)
	}

	if len(c.entries) > 50 {
		t.Errorf("arena grew to %d slots for 50 keys, free slots are not reused", len(c.entries))
	}
}
