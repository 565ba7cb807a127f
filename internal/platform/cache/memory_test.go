package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore() (*MemoryStore, *clock) {
	c := &clock{t: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore()
	s.now = c.now
	return s, c
}

func TestMemoryStore_GetMiss(t *testing.T) {
	s, _ := newTestStore()
	_, err := s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStore_SetGet(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s, c := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 10*time.Minute))
	c.t = c.t.Add(10 * time.Minute)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_ExpiredReadKeepsConcurrentSet(t *testing.T) {
	s, c := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("stale"), time.Minute))

	later := c.t.Add(5 * time.Minute)
	refreshed := false
	// The first clock read happens in Get after the read lock is released;
	// refresh the key right there, as a concurrent writer would.
	s.now = func() time.Time {
		if !refreshed {
			refreshed = true
			require.NoError(t, s.Set(ctx, "k", []byte("fresh"), 10*time.Minute))
		}
		return later
	}

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), got)
}

func TestMemoryStore_Delete(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'z'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryStore_EvictExpired(t *testing.T) {
	s, c := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "long", []byte("2"), time.Hour))
	c.t = c.t.Add(2 * time.Minute)
	s.evictExpired()

	assert.Equal(t, 1, s.Len())
}

func TestJSONHelpers(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	type payload struct {
		Score float64 `json:"score"`
	}
	require.NoError(t, SetJSON(ctx, s, "p", payload{Score: 0.75}, time.Minute))

	var out payload
	require.NoError(t, GetJSON(ctx, s, "p", &out))
	assert.Equal(t, 0.75, out.Score)

	assert.ErrorIs(t, GetJSON(ctx, s, "missing", &out), ErrMiss)
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-redis-url", "carematch:")
	assert.Error(t, err)
}
