// Package redistoken keeps refresh token digests in Redis sorted sets, one
// set per subject scored by expiry.
package redistoken

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "neocompliance:refresh:"

// replaceScript removes ARGV[1] and adds ARGV[2] only when ARGV[1] is live.
var replaceScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) <= tonumber(ARGV[4]) then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[4])
redis.call('EXPIREAT', KEYS[1], ARGV[3])
return 1
`)

type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	redisOpts.DialTimeout = 5 * time.Second
	redisOpts.ReadTimeout = 3 * time.Second
	redisOpts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(client, opts...), nil
}

func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) key(subjectID string) string { return s.prefix + subjectID }

func (s *Store) nowUnix() string { return strconv.FormatInt(s.now().Unix(), 10) }

func (s *Store) AddRefreshToken(ctx context.Context, subjectID, digest string, expiresAt time.Time) error {
	key := s.key(subjectID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(expiresAt.Unix()), Member: digest})
		pipe.ZRemRangeByScore(ctx, key, "-inf", s.nowUnix())
		pipe.ExpireAt(ctx, key, expiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis add refresh token: %w", err)
	}
	return nil
}

func (s *Store) ReplaceRefreshToken(ctx context.Context, subjectID, oldDigest, newDigest string, expiresAt time.Time) (bool, error) {
	n, err := replaceScript.Run(ctx, s.client, []string{s.key(subjectID)},
		oldDigest, newDigest, expiresAt.Unix(), s.now().Unix()).Int()
	if err != nil {
		return false, fmt.Errorf("redis replace refresh token: %w", err)
	}
	return n == 1, nil
}

func (s *Store) RemoveRefreshToken(ctx context.Context, subjectID, digest string) (bool, error) {
	n, err := s.client.ZRem(ctx, s.key(subjectID), digest).Result()
	if err != nil {
		return false, fmt.Errorf("redis remove refresh token: %w", err)
	}
	return n > 0, nil
}

func (s *Store) HasRefreshToken(ctx context.Context, subjectID, digest string) (bool, error) {
	score, err := s.client.ZScore(ctx, s.key(subjectID), digest).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis lookup refresh token: %w", err)
	}
	return int64(score) > s.now().Unix(), nil
}
