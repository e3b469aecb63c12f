package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ikolcov/pinboard/internal/models"
)

// Storage keeps posts newest first. Ids are assigned by the backend, grow
// monotonically and are never reused.
type Storage interface {
	AddPost(ctx context.Context, post models.Post) (models.PostID, error)
	GetPost(ctx context.Context, postId models.PostID) (models.Post, error)
	// DeletePost is a no-op for unknown ids.
	DeletePost(ctx context.Context, postId models.PostID) error
	ListPosts(ctx context.Context) ([]models.Post, error)
	GetAuthorPosts(ctx context.Context, author string, page int, size int) (models.PostsPage, error)
	// ExpirePins flips every pinned post whose expiry is at or before now and
	// returns the flipped ids.
	ExpirePins(ctx context.Context, now time.Time) ([]models.PostID, error)
}

func getPostsPage(posts []models.Post, page int, size int) (models.PostsPage, error) {
	from := (page - 1) * size
	if from < 0 || from > len(posts) || size < 1 {
		return models.PostsPage{}, models.ErrBadRequest
	}
	to := from + size
	if to > len(posts) {
		to = len(posts)
	}

	postsPage := models.PostsPage{
		Posts: make([]models.Post, 0, to-from),
	}
	postsPage.Posts = append(postsPage.Posts, posts[from:to]...)
	if to < len(posts) {
		postsPage.NextPage = fmt.Sprint(page + 1)
	}
	return postsPage, nil
}
