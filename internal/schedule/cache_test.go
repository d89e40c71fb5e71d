package schedule

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	Store
	gets int
}

func (c *countingStore) Get(ctx context.Context, id uuid.UUID) (*Template, error) {
	c.gets++
	return c.Store.Get(ctx, id)
}

func newCachedStore(t *testing.T) (*miniredis.Miniredis, *countingStore, *CachedStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backing := &countingStore{Store: NewMemoryStore()}
	return mr, backing, NewCachedStore(backing, client, time.Minute, zerolog.Nop())
}

func TestCachedStoreReadsThrough(t *testing.T) {
	mr, backing, cached := newCachedStore(t)
	ctx := context.Background()

	tmpl := DefaultTemplate(uuid.New())
	tmpl.UpdatedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, cached.Put(ctx, tmpl))

	first, err := cached.Get(ctx, tmpl.DoctorID)
	require.NoError(t, err)
	second, err := cached.Get(ctx, tmpl.DoctorID)
	require.NoError(t, err)

	assert.Equal(t, 1, backing.gets)
	assert.Equal(t, first.WeeklyRules, second.WeeklyRules)
	assert.True(t, second.UpdatedAt.Equal(tmpl.UpdatedAt))
	assert.True(t, mr.Exists(cacheKey(tmpl.DoctorID)))
	assert.Equal(t, time.Minute, mr.TTL(cacheKey(tmpl.DoctorID)))
}

func TestCachedStorePutInvalidates(t *testing.T) {
	mr, backing, cached := newCachedStore(t)
	ctx := context.Background()

	tmpl := DefaultTemplate(uuid.New())
	require.NoError(t, cached.Put(ctx, tmpl))
	_, err := cached.Get(ctx, tmpl.DoctorID)
	require.NoError(t, err)

	tmpl.SlotDurationMinutes = 15
	require.NoError(t, cached.Put(ctx, tmpl))
	assert.False(t, mr.Exists(cacheKey(tmpl.DoctorID)))

	got, err := cached.Get(ctx, tmpl.DoctorID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.SlotDurationMinutes)
	assert.Equal(t, 2, backing.gets)
}

func TestCachedStoreMissIsNotCached(t *testing.T) {
	mr, _, cached := newCachedStore(t)
	id := uuid.New()

	_, err := cached.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.False(t, mr.Exists(cacheKey(id)))
}

func TestCachedStoreFallsBackWhenRedisDown(t *testing.T) {
	mr, backing, cached := newCachedStore(t)
	ctx := context.Background()

	tmpl := DefaultTemplate(uuid.New())
	require.NoError(t, backing.Put(ctx, tmpl))
	mr.Close()

	got, err := cached.Get(ctx, tmpl.DoctorID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.DoctorID, got.DoctorID)
}
