package storage

import (
	"context"
	"sync"
	"time"

	"github.com/ikolcov/pinboard/internal/models"
)

type InMemoryStorage struct {
	posts  []models.Post
	lastId models.PostID
	mutex  sync.RWMutex
}

func (s *InMemoryStorage) AddPost(_ context.Context, post models.Post) (models.PostID, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastId++
	post.Id = s.lastId

	s.posts = append(s.posts, models.Post{})
	copy(s.posts[1:], s.posts)
	s.posts[0] = post

	return post.Id, nil
}

func (s *InMemoryStorage) GetPost(_ context.Context, postId models.PostID) (models.Post, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if i := s.indexOf(postId); i >= 0 {
		return clonePost(s.posts[i]), nil
	}
	return models.Post{}, models.ErrNotFound
}

func (s *InMemoryStorage) DeletePost(_ context.Context, postId models.PostID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if i := s.indexOf(postId); i >= 0 {
		s.posts = append(s.posts[:i], s.posts[i+1:]...)
	}
	return nil
}

func (s *InMemoryStorage) ListPosts(_ context.Context) ([]models.Post, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	posts := make([]models.Post, 0, len(s.posts))
	for _, post := range s.posts {
		posts = append(posts, clonePost(post))
	}
	return posts, nil
}

func (s *InMemoryStorage) GetAuthorPosts(_ context.Context, author string, page int, size int) (models.PostsPage, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	posts := make([]models.Post, 0)
	for _, post := range s.posts {
		if post.Author == author {
			posts = append(posts, clonePost(post))
		}
	}
	return getPostsPage(posts, page, size)
}

func (s *InMemoryStorage) ExpirePins(_ context.Context, now time.Time) ([]models.PostID, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var expired []models.PostID
	for i := range s.posts {
		if s.posts[i].PinLapsed(now) {
			s.posts[i].Pinned = false
			expired = append(expired, s.posts[i].Id)
		}
	}
	return expired, nil
}

func (s *InMemoryStorage) indexOf(postId models.PostID) int {
	for i, post := range s.posts {
		if post.Id == postId {
			return i
		}
	}
	return -1
}

// clonePost detaches the expiry pointer so callers cannot mutate stored state.
func clonePost(post models.Post) models.Post {
	if post.PinExpiry != nil {
		expiry := *post.PinExpiry
		post.PinExpiry = &expiry
	}
	return post
}

func NewInMemoryStorage() Storage {
	return &InMemoryStorage{
		posts: make([]models.Post, 0),
	}
}
