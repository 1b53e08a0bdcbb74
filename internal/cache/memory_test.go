package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Memory, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 31, 16, 0, 0, 0, time.UTC)
	m := NewMemory(0)
	m.clock = func() time.Time { return now }
	t.Cleanup(m.Close)
	return m, &now
}

func TestSetGet(t *testing.T) {
	m, _ := newTestCache(t)
	ctx := context.Background()

	m.Set(ctx, "normalize:stock_price:polygon:AAPL", "cached", time.Minute)

	value, ok := m.Get(ctx, "normalize:stock_price:polygon:AAPL")
	require.True(t, ok)
	assert.Equal(t, "cached", value)

	_, ok = m.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	m, now := newTestCache(t)
	ctx := context.Background()

	m.Set(ctx, "short", 1, time.Minute)
	m.Set(ctx, "forever", 2, 0)

	*now = now.Add(2 * time.Minute)

	_, ok := m.Get(ctx, "short")
	assert.False(t, ok)
	value, ok := m.Get(ctx, "forever")
	require.True(t, ok)
	assert.Equal(t, 2, value)
}

func TestOverwriteResetsTTL(t *testing.T) {
	m, now := newTestCache(t)
	ctx := context.Background()

	m.Set(ctx, "key", "old", time.Minute)
	*now = now.Add(50 * time.Second)
	m.Set(ctx, "key", "new", time.Minute)
	*now = now.Add(30 * time.Second)

	value, ok := m.Get(ctx, "key")
	require.True(t, ok)
	assert.Equal(t, "new", value)
}

func TestInvalidatePattern(t *testing.T) {
	m, _ := newTestCache(t)
	ctx := context.Background()

	m.Set(ctx, "normalize:stock_price:polygon", 1, 0)
	m.Set(ctx, "normalize:company_info:fmp", 2, 0)
	m.Set(ctx, "fuse:close", 3, 0)

	removed := m.InvalidatePattern(ctx, "normalize:*")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, m.Len())

	_, ok := m.Get(ctx, "fuse:close")
	assert.True(t, ok)

	assert.Zero(t, m.InvalidatePattern(ctx, "normalize:*"))
}

func TestSweeperRemovesExpired(t *testing.T) {
	m := NewMemory(10 * time.Millisecond)
	defer m.Close()
	ctx := context.Background()

	m.Set(ctx, "ephemeral", 1, time.Millisecond)
	m.Set(ctx, "durable", 2, 0)

	assert.Eventually(t, func() bool { return m.Len() == 1 }, time.Second, 10*time.Millisecond)
	_, ok := m.Get(ctx, "durable")
	assert.True(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key:%d", i)
			m.Set(ctx, key, i, time.Minute)
			m.Get(ctx, key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, m.Len())
}

func TestCloseIsIdempotent(t *testing.T) {
	m := NewMemory(time.Minute)
	m.Close()
	m.Close()
}
