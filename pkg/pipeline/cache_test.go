package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCache_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newRunCache(time.Minute, func() time.Time { return now })

	c.put("k", 1)
	v, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Minute)
	_, ok = c.get("k")
	assert.False(t, ok, "entry expires at ttl")
	assert.Zero(t, c.len(), "expired entry evicted")
}

func TestRunCache_InvalidateAndPurge(t *testing.T) {
	c := newRunCache(0, nil)
	c.put("a", "x")
	c.put("b", "y")

	c.invalidate("a")
	_, ok := c.get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.len())

	c.purge()
	assert.Zero(t, c.len())
}

func TestCached(t *testing.T) {
	c := newRunCache(time.Hour, nil)
	calls := 0
	load := func() (int, error) {
		calls++
		return 42, nil
	}

	v, hit, err := cached(c, "n", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, v)

	v, hit, err = cached(c, "n", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestCached_ErrorsNotStored(t *testing.T) {
	c := newRunCache(time.Hour, nil)
	boom := errors.New("boom")

	_, _, err := cached(c, "k", func() (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.len())

	v, hit, err := cached(c, "k", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "ok", v)
}

func TestCached_TypeMismatchReloads(t *testing.T) {
	c := newRunCache(time.Hour, nil)
	c.put("k", "text")

	v, hit, err := cached(c, "k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, v)
}
