// ABOUTME: Tests for the seen-id cache used to de-duplicate message delivery.
// ABOUTME: Validates TTL expiration, size limits, eviction, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_Seen_NotMarked(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Seen("msg-never-delivered"))
}

func TestCache_CheckAndMark_FirstDeliveryIsNew(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("msg-1"), "first delivery must not be a duplicate")
	assert.True(t, cache.CheckAndMark("msg-1"), "second delivery must be a duplicate")
	assert.True(t, cache.Seen("msg-1"))
}

func TestCache_CheckAndMark_ExpiredIDIsNewAgain(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("msg-1"))

	time.Sleep(20 * time.Millisecond)

	assert.False(t, cache.Seen("msg-1"))
	assert.False(t, cache.CheckAndMark("msg-1"), "expired id should be treated as new")
}

func TestCache_Mark_RefreshesExisting(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Mark("msg-1")
	cache.Mark("msg-1")
	assert.Equal(t, 1, cache.Len())
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	cache.Mark("msg-1")
	cache.Mark("msg-2")
	cache.Mark("msg-3")
	cache.Mark("msg-4")

	assert.Equal(t, 3, cache.Len())
	assert.False(t, cache.Seen("msg-1"), "oldest id should have been evicted")
	assert.True(t, cache.Seen("msg-2"))
	assert.True(t, cache.Seen("msg-4"))
}

func TestCache_RefreshProtectsFromEviction(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	cache.Mark("msg-1")
	cache.Mark("msg-2")
	cache.Mark("msg-3")
	cache.Mark("msg-1") // moves msg-1 to the back of the eviction order
	cache.Mark("msg-4")

	assert.True(t, cache.Seen("msg-1"))
	assert.False(t, cache.Seen("msg-2"), "msg-2 is now oldest and should be evicted")
}

func TestCache_Sweep_RemovesExpired(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Mark("msg-1")
	cache.Mark("msg-2")
	time.Sleep(20 * time.Millisecond)

	cache.sweep()
	assert.Equal(t, 0, cache.Len())
}

func TestCache_ConcurrentCheckAndMark(t *testing.T) {
	cache := New(5*time.Minute, 10_000)
	defer cache.Close()

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	duplicates := 0

	// All workers race on the same id: exactly one must win.
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cache.CheckAndMark("contested-id") {
				mu.Lock()
				duplicates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers-1, duplicates, "exactly one CheckAndMark must report new")
}

func TestCache_ConcurrentDistinctIDs(t *testing.T) {
	cache := New(5*time.Minute, 10_000)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("msg-%d", n)
			assert.False(t, cache.CheckAndMark(id))
			assert.True(t, cache.Seen(id))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, cache.Len())
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	cache := New(time.Minute, 10)
	cache.Close()
	cache.Close()
}
