package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps each post as a JSON string under <prefix>post:<id> and
// indexes ids in a sorted set scored by update time.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to the server at url and checks it is reachable.
func OpenRedis(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) postKey(id string) string { return s.prefix + "post:" + id }
func (s *RedisStore) indexKey() string         { return s.prefix + "posts" }

func (s *RedisStore) Put(ctx context.Context, p *Post) error {
	if err := validID(p.ID); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.postKey(p.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), &redis.Z{Score: float64(p.UpdatedAt.UnixMilli()), Member: p.ID})
		return nil
	})
	if err != nil {
		return redisErr("put post "+p.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Post, error) {
	data, err := s.client.Get(ctx, s.postKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, redisErr("get post "+id, err)
	}
	var p Post
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", id, err)
	}
	return &p, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.postKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return redisErr("delete post "+id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]Summary, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, redisErr("list posts", err)
	}
	if len(ids) == 0 {
		return []Summary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.postKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, redisErr("list posts", err)
	}

	out := make([]Summary, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a post; skip it.
			continue
		}
		var p Post
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode post %s: %w", ids[i], err)
		}
		out = append(out, p.Summary())
	}
	sortSummaries(out)
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// redisErr marks network failures as retryable.
func redisErr(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &RetryableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
