package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ikolcov/pinboard/internal/models"
)

func newCachedStorage(t *testing.T) (*miniredis.Miniredis, Storage, Storage) {
	t.Helper()
	mr := miniredis.RunT(t)
	backing := NewInMemoryStorage()
	return mr, backing, NewCachedStorage(mr.Addr(), backing, nil)
}

func TestCachedStorage_WriteThrough(t *testing.T) {
	ctx := context.Background()
	mr, _, s := newCachedStorage(t)

	postId, err := s.AddPost(ctx, newPost("a", "", nil))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !mr.Exists("postid:1") {
		t.Fatalf("expected post %d to be cached", postId)
	}
	if ttl := mr.TTL("postid:1"); ttl != cacheTTL {
		t.Fatalf("expected ttl %v, got %v", cacheTTL, ttl)
	}
}

func TestCachedStorage_GetServedFromCache(t *testing.T) {
	ctx := context.Background()
	_, backing, s := newCachedStorage(t)

	postId, _ := s.AddPost(ctx, newPost("a", "", nil))
	// drop it underneath the cache, the cached copy is still served
	backing.DeletePost(ctx, postId)

	post, err := s.GetPost(ctx, postId)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if post.Title != "a" || !post.PaymentAmount.Equal(newPost("a", "", nil).PaymentAmount) {
		t.Fatalf("unexpected cached post: %+v", post)
	}
}

func TestCachedStorage_DeleteEvicts(t *testing.T) {
	ctx := context.Background()
	mr, _, s := newCachedStorage(t)

	postId, _ := s.AddPost(ctx, newPost("a", "", nil))
	if err := s.DeletePost(ctx, postId); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("postid:1") {
		t.Fatal("expected cache entry to be evicted")
	}
	if _, err := s.GetPost(ctx, postId); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeletePost(ctx, postId); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}

func TestCachedStorage_ExpireEvictsStalePins(t *testing.T) {
	ctx := context.Background()
	mr, _, s := newCachedStorage(t)

	expiry := base.Add(time.Minute)
	postId, _ := s.AddPost(ctx, newPost("a", "", &expiry))

	expired, err := s.ExpirePins(ctx, expiry)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 1 || expired[0] != postId {
		t.Fatalf("unexpected expired ids: %v", expired)
	}
	if mr.Exists("postid:1") {
		t.Fatal("expected stale cache entry to be evicted")
	}

	post, err := s.GetPost(ctx, postId)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if post.Pinned {
		t.Fatal("expected unpinned post after expiry")
	}
}

func TestCachedStorage_RedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	s := NewCachedStorage("127.0.0.1:1", NewInMemoryStorage(), nil)

	postId, err := s.AddPost(ctx, newPost("a", "", nil))
	if err != nil {
		t.Fatalf("add should not fail when redis is down: %v", err)
	}
	if _, err := s.GetPost(ctx, postId); err != nil {
		t.Fatalf("get should fall through to storage: %v", err)
	}
}

type interruptedSweepStorage struct {
	Storage
}

func (s interruptedSweepStorage) ExpirePins(ctx context.Context, now time.Time) ([]models.PostID, error) {
	expired, _ := s.Storage.ExpirePins(ctx, now)
	return expired, errors.New("connection reset")
}

func TestCachedStorage_InterruptedExpireStillEvicts(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewCachedStorage(mr.Addr(), interruptedSweepStorage{NewInMemoryStorage()}, nil)

	expiry := base.Add(time.Minute)
	postId, _ := s.AddPost(ctx, newPost("a", "", &expiry))

	expired, err := s.ExpirePins(ctx, expiry)
	if err == nil {
		t.Fatal("expected the sweep error to be returned")
	}
	if len(expired) != 1 || expired[0] != postId {
		t.Fatalf("unexpected expired ids: %v", expired)
	}
	if mr.Exists("postid:1") {
		t.Fatal("expected flipped post to be evicted despite the error")
	}
}
