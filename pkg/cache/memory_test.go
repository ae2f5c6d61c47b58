package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemory_SetGet(t *testing.T) {
	t.Parallel()

	mem := NewMemory(10)

	mem.Set("sprint:1", []byte("a"), time.Minute)

	val, ok := mem.Get("sprint:1")
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), val)

	_, ok = mem.Get("sprint:2")
	assert.False(t, ok)
}

func TestMemory_ZeroTTLNotStored(t *testing.T) {
	t.Parallel()

	mem := NewMemory(10)

	mem.Set("k", []byte("v"), 0)

	_, ok := mem.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, mem.Len())
}

func TestMemory_Expiry(t *testing.T) {
	t.Parallel()

	mem := NewMemory(10)

	now := time.Now()
	mem.SetClock(func() time.Time { return now })

	mem.Set("k", []byte("v"), time.Second)

	_, ok := mem.Get("k")
	assert.True(t, ok)

	// Advance past the TTL.
	now = now.Add(2 * time.Second)

	_, ok = mem.Get("k")
	assert.False(t, ok)
}

func TestMemory_CapacityPressureEvictsOldest(t *testing.T) {
	t.Parallel()

	mem := NewMemory(100)

	now := time.Now()
	mem.SetClock(func() time.Time { return now })

	// Fill to 95% capacity; each key is one tick older than the next.
	for i := range 95 {
		mem.Set(fmt.Sprintf("key:%03d", i), []byte("v"), time.Hour)

		now = now.Add(time.Millisecond)
	}

	// The next insert triggers eviction of ~10% of capacity, oldest first.
	mem.Set("key:new", []byte("v"), time.Hour)

	assert.GreaterOrEqual(t, mem.Evictions(), int64(10))

	// Oldest entries gone, newest still present.
	_, ok := mem.Get("key:000")
	assert.False(t, ok)

	_, ok = mem.Get("key:094")
	assert.True(t, ok)

	_, ok = mem.Get("key:new")
	assert.True(t, ok)
}

func TestMemory_DeletePattern(t *testing.T) {
	t.Parallel()

	mem := NewMemory(10)

	mem.Set("sprint:1:issues", []byte("a"), time.Minute)
	mem.Set("sprint:2:issues", []byte("b"), time.Minute)
	mem.Set("issue:PROJ-1", []byte("c"), time.Minute)

	deleted := mem.DeletePattern("sprint:*")
	assert.Equal(t, 2, deleted)

	_, ok := mem.Get("issue:PROJ-1")
	assert.True(t, ok)
}

func TestMemory_UpdateReplacesValue(t *testing.T) {
	t.Parallel()

	mem := NewMemory(10)

	mem.Set("k", []byte("old"), time.Minute)
	mem.Set("k", []byte("new"), time.Minute)

	val, ok := mem.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []byte("new"), val)
	assert.Equal(t, 1, mem.Len())
}

func TestMemory_TinyCapacityStaysBounded(t *testing.T) {
	t.Parallel()

	mem := NewMemory(4)

	for i := range 8 {
		mem.Set(fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}

	assert.LessOrEqual(t, mem.Len(), 4)
}
