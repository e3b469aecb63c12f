package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ikolcov/pinboard/internal/models"
	"github.com/shopspring/decimal"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newPost(title string, author string, pinnedUntil *time.Time) models.Post {
	return models.Post{
		Title:         title,
		Content:       title + " body",
		Author:        author,
		CreatedAt:     base,
		PaymentAmount: decimal.NewFromInt(1),
		Pinned:        pinnedUntil != nil,
		PinExpiry:     pinnedUntil,
	}
}

func ids(posts []models.Post) []models.PostID {
	out := make([]models.PostID, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Id)
	}
	return out
}

func TestInMemoryStorage_AddPostNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStorage()

	for _, title := range []string{"a", "b", "c"} {
		if _, err := s.AddPost(ctx, newPost(title, "", nil)); err != nil {
			t.Fatalf("add %s: %v", title, err)
		}
	}

	posts, err := s.ListPosts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]models.PostID{3, 2, 1}, ids(posts)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestInMemoryStorage_IdsNeverReused(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStorage()

	first, _ := s.AddPost(ctx, newPost("a", "", nil))
	if err := s.DeletePost(ctx, first); err != nil {
		t.Fatalf("delete: %v", err)
	}
	second, _ := s.AddPost(ctx, newPost("b", "", nil))
	if second <= first {
		t.Fatalf("expected id greater than %d, got %d", first, second)
	}
}

func TestInMemoryStorage_DeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStorage()
	s.AddPost(ctx, newPost("a", "", nil))
	s.AddPost(ctx, newPost("b", "", nil))

	before, _ := s.ListPosts(ctx)
	if err := s.DeletePost(ctx, 42); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	after, _ := s.ListPosts(ctx)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("list changed after deleting a missing id (-before +after):\n%s", diff)
	}
}

func TestInMemoryStorage_GetPost(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStorage()
	postId, _ := s.AddPost(ctx, newPost("a", "", nil))

	post, err := s.GetPost(ctx, postId)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if post.Title != "a" {
		t.Fatalf("expected title a, got %q", post.Title)
	}

	if _, err := s.GetPost(ctx, postId+1); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStorage_ExpirePins(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStorage()

	soon := base.Add(time.Minute)
	later := base.Add(time.Hour)
	a, _ := s.AddPost(ctx, newPost("a", "", &soon))
	s.AddPost(ctx, newPost("b", "", &later))
	s.AddPost(ctx, newPost("c", "", nil))

	expired, err := s.ExpirePins(ctx, soon)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if diff := cmp.Diff([]models.PostID{a}, expired); diff != "" {
		t.Fatalf("unexpected expired ids (-want +got):\n%s", diff)
	}

	post, _ := s.GetPost(ctx, a)
	if post.Pinned {
		t.Fatal("expected pin flag to be cleared")
	}
	if post.PinExpiry == nil || !post.PinExpiry.Equal(soon) {
		t.Fatal("expected pin expiry to be retained")
	}

	again, _ := s.ExpirePins(ctx, soon.Add(time.Minute))
	if len(again) != 0 {
		t.Fatalf("expected second sweep to be a no-op, got %v", again)
	}
}

func TestInMemoryStorage_ListIsDetached(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStorage()
	expiry := base.Add(time.Hour)
	postId, _ := s.AddPost(ctx, newPost("a", "", &expiry))

	posts, _ := s.ListPosts(ctx)
	*posts[0].PinExpiry = base
	posts[0].Title = "changed"

	stored, _ := s.GetPost(ctx, postId)
	if stored.Title != "a" || !stored.PinExpiry.Equal(expiry) {
		t.Fatalf("stored post was mutated through a listed copy: %+v", stored)
	}
}

func TestInMemoryStorage_GetAuthorPosts(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStorage()
	for i := 0; i < 5; i++ {
		s.AddPost(ctx, newPost("alice", "alice", nil))
		s.AddPost(ctx, newPost("bob", "bob", nil))
	}

	page, err := s.GetAuthorPosts(ctx, "alice", 1, 3)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if diff := cmp.Diff([]models.PostID{9, 7, 5}, ids(page.Posts)); diff != "" {
		t.Fatalf("unexpected page 1 (-want +got):\n%s", diff)
	}
	if page.NextPage != "2" {
		t.Fatalf("expected next page 2, got %q", page.NextPage)
	}

	page, err = s.GetAuthorPosts(ctx, "alice", 2, 3)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if diff := cmp.Diff([]models.PostID{3, 1}, ids(page.Posts)); diff != "" {
		t.Fatalf("unexpected page 2 (-want +got):\n%s", diff)
	}
	if page.NextPage != "" {
		t.Fatalf("expected no next page, got %q", page.NextPage)
	}

	if _, err := s.GetAuthorPosts(ctx, "alice", 4, 3); !errors.Is(err, models.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest past the end, got %v", err)
	}
}
