package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, "refresh"), mr
}

func TestPutGetDelete(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Put(ctx, "tok-1", "u-1", time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	uid, err := store.Get(ctx, "tok-1")
	if err != nil || uid != "u-1" {
		t.Fatalf("get: uid=%q err=%v", uid, err)
	}
	if mr.Exists("refresh:tok-1") {
		t.Fatal("plaintext token must not be used as key")
	}
	if !mr.Exists("refresh:" + Hash("tok-1")) {
		t.Fatal("expected hashed key to exist")
	}

	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Get(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if n, _ := store.ActiveSessionCount(ctx, "u-1"); n != 0 {
		t.Fatalf("expected no active sessions, got %d", n)
	}
}

func TestEntryExpiresWithTTL(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Put(ctx, "tok-1", "u-1", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(61 * time.Second)
	if _, err := store.Get(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestRotate(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Put(ctx, "old", "u-1", time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Rotate(ctx, "old", "u-1", "new", 2*time.Hour); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old token must be gone, got %v", err)
	}
	if uid, err := store.Get(ctx, "new"); err != nil || uid != "u-1" {
		t.Fatalf("new token: uid=%q err=%v", uid, err)
	}
	if ttl := mr.TTL("refresh:" + Hash("new")); ttl != 2*time.Hour {
		t.Fatalf("expected new ttl 2h, got %v", ttl)
	}
	if n, _ := store.ActiveSessionCount(ctx, "u-1"); n != 1 {
		t.Fatalf("expected one active session, got %d", n)
	}

	if err := store.Rotate(ctx, "old", "u-1", "newer", time.Hour); !errors.Is(err, ErrNotFound) {
		t.Fatalf("replay must fail with ErrNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, "newer"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed rotation must not store the new token, got %v", err)
	}
}

func TestRotateUserMismatchLeavesEntry(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Put(ctx, "old", "u-1", time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Rotate(ctx, "old", "u-2", "new", time.Hour); !errors.Is(err, ErrUserMismatch) {
		t.Fatalf("expected ErrUserMismatch, got %v", err)
	}
	if uid, err := store.Get(ctx, "old"); err != nil || uid != "u-1" {
		t.Fatalf("entry must survive mismatch: uid=%q err=%v", uid, err)
	}
	if _, err := store.Get(ctx, "new"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("new token must not be stored, got %v", err)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Put(ctx, "old", "u-1", time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}

	const workers = 16
	var wins, notFound atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Rotate(ctx, "old", "u-1", "new-"+string(rune('a'+i)), time.Hour)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrNotFound):
				notFound.Add(1)
			default:
				t.Errorf("unexpected rotate error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 || notFound.Load() != workers-1 {
		t.Fatalf("expected exactly one winner, got wins=%d notFound=%d", wins.Load(), notFound.Load())
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	for _, tok := range []string{"a", "b", "c"} {
		if err := store.Put(ctx, tok, "u-1", time.Hour); err != nil {
			t.Fatalf("put %s: %v", tok, err)
		}
	}
	if err := store.Put(ctx, "other", "u-2", time.Hour); err != nil {
		t.Fatalf("put other: %v", err)
	}

	n, err := store.DeleteAllForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}
	for _, tok := range []string{"a", "b", "c"} {
		if _, err := store.Get(ctx, tok); !errors.Is(err, ErrNotFound) {
			t.Fatalf("token %s should be revoked, got %v", tok, err)
		}
	}
	if uid, err := store.Get(ctx, "other"); err != nil || uid != "u-2" {
		t.Fatalf("other user's session must survive: uid=%q err=%v", uid, err)
	}
	if n, err := store.DeleteAllForUser(ctx, "nobody"); err != nil || n != 0 {
		t.Fatalf("empty revoke: n=%d err=%v", n, err)
	}
}

func TestRedisDownReportsUnavailable(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()
	mr.Close()

	if err := store.Put(ctx, "tok", "u-1", time.Hour); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from put, got %v", err)
	}
	if err := store.Rotate(ctx, "tok", "u-1", "new", time.Hour); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from rotate, got %v", err)
	}
	if _, err := store.Get(ctx, "tok"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from get, got %v", err)
	}
}
