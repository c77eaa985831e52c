// github.com/alicebob/miniredis/v2 pulls in
// github.com/yuin/gopher-lua which uses a non
// build-tag-guarded use of the syscall package.
//go:build !plan9

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	rs, err := OpenRedis(context.Background(), "redis://"+s.Addr()+"/0", "test:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rs.Close() })
	return rs, s
}

func TestRedisStore(t *testing.T) {
	rs, _ := newTestRedis(t)
	testStoreContract(t, rs)
}

func TestRedisStore_Keys(t *testing.T) {
	rs, mr := newTestRedis(t)
	ctx := context.Background()
	if err := rs.Put(ctx, testPost("k1", time.Now())); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !mr.Exists("test:post:k1") {
		t.Error("expected post key test:post:k1")
	}
	members, err := mr.ZMembers("test:posts")
	if err != nil {
		t.Fatalf("zmembers: %v", err)
	}
	if len(members) != 1 || members[0] != "k1" {
		t.Errorf("expected index [k1], got %v", members)
	}
}

func TestRedisStore_DanglingIndexEntry(t *testing.T) {
	rs, mr := newTestRedis(t)
	ctx := context.Background()
	if _, err := mr.ZAdd("test:posts", 1, "ghost"); err != nil {
		t.Fatal(err)
	}
	list, err := rs.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected dangling index entry to be skipped, got %+v", list)
	}
}

func TestRedisStore_Unreachable(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	addr := s.Addr()
	s.Close()

	if _, err := OpenRedis(context.Background(), "redis://"+addr, ""); err == nil {
		t.Fatal("expected error connecting to closed server")
	}

	rs := NewRedis(redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1}), "")
	defer rs.Close()
	_, err = rs.Get(context.Background(), "x")
	if !IsRetryable(err) {
		t.Errorf("expected retryable error, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("expected transport failure, not ErrNotFound")
	}
}

func TestOpenRedis_BadURL(t *testing.T) {
	if _, err := OpenRedis(context.Background(), "not a url", ""); err == nil {
		t.Error("expected error for bad url")
	}
}
