package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedStore is a read-through Redis cache in front of another Store.
// Templates change rarely, so Put simply drops the cached copy.
// Redis failures degrade to reading the backing store.
type CachedStore struct {
	next   Store
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedStore {
	return &CachedStore{
		next:   next,
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("schedule:template:%s", doctorID)
}

func (s *CachedStore) Get(ctx context.Context, doctorID uuid.UUID) (*Template, error) {
	key := cacheKey(doctorID)

	raw, err := s.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t Template
		if err := json.Unmarshal(raw, &t); err == nil {
			return &t, nil
		}
		s.logger.Warn().Str("key", key).Msg("dropping undecodable cached template")
		_ = s.redis.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		s.logger.Warn().Err(err).Str("key", key).Msg("template cache read failed")
	}

	t, err := s.next.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(t); err == nil {
		if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("template cache write failed")
		}
	}
	return t, nil
}

func (s *CachedStore) Put(ctx context.Context, t Template) error {
	if err := s.next.Put(ctx, t); err != nil {
		return err
	}
	if err := s.redis.Del(ctx, cacheKey(t.DoctorID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", t.DoctorID.String()).Msg("template cache invalidation failed")
	}
	return nil
}
