package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neonotso/budget-agent/internal/log"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int64](2, time.Hour)
	c.Set("Transactions", 0)
	c.Set("Budgets", 1)

	_, ok := c.Get("Transactions")
	require.True(t, ok)

	c.Set("Archive", 2)
	assert.Equal(t, 2, c.Size())
	_, ok = c.Get("Budgets")
	assert.False(t, ok)
	v, ok := c.Get("Transactions")
	assert.True(t, ok)
	assert.EqualValues(t, 0, v)
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", "x")
	c.Set("b", "y")
	now = now.Add(30 * time.Second)
	c.Set("b", "z")

	now = now.Add(45 * time.Second)
	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "z", v)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestLRUCacheDeleteAndClear(t *testing.T) {
	c := NewLRUCache[int](0, time.Hour)
	c.Set("a", 1)
	assert.Equal(t, 1, c.Size())
	c.Set("b", 2)
	assert.Equal(t, 1, c.Size())

	c.Delete("b")
	assert.Equal(t, 0, c.Size())

	c.Set("c", 3)
	c.Clear()
	_, ok := c.Get("c")
	assert.False(t, ok)
}

func TestLRUCacheGetOrLoad(t *testing.T) {
	c := NewLRUCache[int64](10, time.Hour)
	var calls atomic.Int32
	release := make(chan struct{})
	load := func() (int64, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int64, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad("Budgets", load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.EqualValues(t, 42, v)
	}
	assert.LessOrEqual(t, calls.Load(), int32(5))
	v, ok := c.Get("Budgets")
	require.True(t, ok)
	assert.EqualValues(t, 42, v)

	// Cached now; load is not called again.
	_, err := c.GetOrLoad("Budgets", func() (int64, error) {
		t.Fatal("unexpected load")
		return 0, nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = c.GetOrLoad("Missing", func() (int64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	_, ok = c.Get("Missing")
	assert.False(t, ok)
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Second)
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	c.Set("b", 2)

	m := NewManager(log.Discard())
	m.Register(c)
	m.StartCleanup(time.Hour)
	defer m.Stop()

	assert.Equal(t, 0, m.CleanNow())
	now = now.Add(time.Minute)
	assert.Equal(t, 2, m.CleanNow())
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	m.Stop()
	m.Stop()
}
