package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clitic/music/internal/aggregator"
)

// DefaultRedisPrefix namespaces snapshot keys.
const DefaultRedisPrefix = "music"

// redisLockTTL expires a lock left behind by a crashed run.
const redisLockTTL = 15 * time.Minute

var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps each snapshot as one JSON value under
// <prefix>:snapshot:<name>.
type RedisStore struct {
	rdb       *redis.Client
	prefix    string
	lockToken string
}

// NewRedisStore wraps a connected client. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// DialRedis connects to addr and checks the server answers.
func DialRedis(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return NewRedisStore(rdb, prefix), nil
}

func (s *RedisStore) key(name string) string {
	return fmt.Sprintf("%s:snapshot:%s", s.prefix, name)
}

func (s *RedisStore) Exists(ctx context.Context, name string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(name)).Result()
	if err != nil {
		return false, &Error{Op: "stat", Name: name, Err: err}
	}
	return n > 0, nil
}

func (s *RedisStore) Read(ctx context.Context, name string) ([]aggregator.VideoRecord, error) {
	data, err := s.rdb.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &Error{Op: "read", Name: name, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &Error{Op: "read", Name: name, Err: err}
	}
	records, err := decodeRecords(data)
	if err != nil {
		return nil, corrupt(name, err)
	}
	return records, nil
}

func (s *RedisStore) Write(ctx context.Context, name string, records []aggregator.VideoRecord) error {
	data, err := encodeRecords(records)
	if err != nil {
		return &Error{Op: "write", Name: name, Err: err}
	}
	if err := s.rdb.Set(ctx, s.key(name), data, 0).Err(); err != nil {
		return &Error{Op: "write", Name: name, Err: err}
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	if err := s.rdb.Del(ctx, s.key(name)).Err(); err != nil {
		return &Error{Op: "delete", Name: name, Err: err}
	}
	return nil
}

// Lock claims <prefix>:lock for this store. It fails with ErrLocked when
// another run holds it.
func (s *RedisStore) Lock(ctx context.Context) error {
	if s.lockToken != "" {
		return nil
	}
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, s.prefix+":lock", token, redisLockTTL).Result()
	if err != nil {
		return &Error{Op: "lock", Name: s.prefix, Err: err}
	}
	if !ok {
		return &Error{Op: "lock", Name: s.prefix, Err: ErrLocked}
	}
	s.lockToken = token
	return nil
}

// Unlock releases the lock if this store still owns it.
func (s *RedisStore) Unlock() error {
	if s.lockToken == "" {
		return nil
	}
	token := s.lockToken
	s.lockToken = ""
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseLock.Run(ctx, s.rdb, []string{s.prefix + ":lock"}, token).Err(); err != nil {
		return &Error{Op: "unlock", Name: s.prefix, Err: err}
	}
	return nil
}

func (s *RedisStore) Close() error {
	unlockErr := s.Unlock()
	if err := s.rdb.Close(); err != nil {
		return err
	}
	return unlockErr
}
