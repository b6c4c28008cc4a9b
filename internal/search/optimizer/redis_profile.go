package optimizer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sablesearch/sable-search/internal/pkg/errors"
)

// profileTTL bounds how long an untouched profile survives in Redis.
const profileTTL = 90 * 24 * time.Hour

// RedisProfileStore persists profiles in Redis as JSON values, for
// deployments where the embedding host process is restarted often.
type RedisProfileStore struct {
	client *redis.Client
}

// NewRedisProfileStore creates a profile store over the given Redis URL.
func NewRedisProfileStore(url string) (*RedisProfileStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfiguration, "invalid redis url", err)
	}
	return &RedisProfileStore{client: redis.NewClient(opts)}, nil
}

func profileKey(userID string) string {
	return "sable:profile:" + userID
}

func (s *RedisProfileStore) Get(ctx context.Context, userID string) (*Profile, error) {
	data, err := s.client.Get(ctx, profileKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindPersistence, "profile load failed", err).
			WithContext("user_id", userID)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(errors.KindPersistence, "profile decode failed", err).
			WithContext("user_id", userID)
	}
	if p.TermWeights == nil {
		p.TermWeights = make(map[string]float64)
	}
	return &p, nil
}

func (s *RedisProfileStore) Put(ctx context.Context, profile *Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return errors.Wrap(errors.KindPersistence, "profile encode failed", err)
	}
	if err := s.client.Set(ctx, profileKey(profile.UserID), data, profileTTL).Err(); err != nil {
		return errors.Wrap(errors.KindPersistence, "profile save failed", err).
			WithContext("user_id", profile.UserID)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisProfileStore) Close() error {
	return s.client.Close()
}
