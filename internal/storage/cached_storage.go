package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ikolcov/pinboard/internal/models"
	"github.com/redis/go-redis/v9"
)

const cacheTTL = time.Hour

// CachedStorage keeps single posts in redis in front of another Storage.
// Cache failures are logged and never fail the request.
type CachedStorage struct {
	client            *redis.Client
	persistentStorage Storage
	logger            *slog.Logger
}

func (s *CachedStorage) AddPost(ctx context.Context, post models.Post) (models.PostID, error) {
	postId, err := s.persistentStorage.AddPost(ctx, post)
	if err != nil {
		return postId, err
	}
	post.Id = postId
	s.store(ctx, post)
	return postId, nil
}

func (s *CachedStorage) GetPost(ctx context.Context, postId models.PostID) (models.Post, error) {
	if post := s.load(ctx, postId); post != nil {
		return *post, nil
	}
	post, err := s.persistentStorage.GetPost(ctx, postId)
	if err != nil {
		return post, err
	}
	s.store(ctx, post)
	return post, nil
}

func (s *CachedStorage) DeletePost(ctx context.Context, postId models.PostID) error {
	if err := s.persistentStorage.DeletePost(ctx, postId); err != nil {
		return err
	}
	s.evict(ctx, postId)
	return nil
}

func (s *CachedStorage) ListPosts(ctx context.Context) ([]models.Post, error) {
	return s.persistentStorage.ListPosts(ctx)
}

func (s *CachedStorage) GetAuthorPosts(ctx context.Context, author string, page int, size int) (models.PostsPage, error) {
	return s.persistentStorage.GetAuthorPosts(ctx, author, page, size)
}

func (s *CachedStorage) ExpirePins(ctx context.Context, now time.Time) ([]models.PostID, error) {
	expired, err := s.persistentStorage.ExpirePins(ctx, now)
	// a failed sweep may still have flipped some posts
	s.evict(ctx, expired...)
	return expired, err
}

func (s *CachedStorage) store(ctx context.Context, post models.Post) {
	value, err := json.Marshal(post)
	if err != nil {
		s.logger.Error("failed to encode post for cache", "post", post.Id, "err", err)
		return
	}
	if err := s.client.Set(ctx, s.redisKey(post.Id), value, cacheTTL).Err(); err != nil {
		s.logger.Warn("failed to store post in cache", "post", post.Id, "err", err)
		return
	}
	s.logger.Debug("successful store", "post", post.Id)
}

func (s *CachedStorage) load(ctx context.Context, postId models.PostID) *models.Post {
	result, err := s.client.Get(ctx, s.redisKey(postId)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		s.logger.Warn("failed to load post from cache", "post", postId, "err", err)
		return nil
	}
	var post models.Post
	if err := json.Unmarshal([]byte(result), &post); err != nil {
		s.logger.Warn("dropping undecodable cache entry", "post", postId, "err", err)
		s.evict(ctx, postId)
		return nil
	}
	s.logger.Debug("successful load", "post", post.Id)
	return &post
}

func (s *CachedStorage) evict(ctx context.Context, postIds ...models.PostID) {
	if len(postIds) == 0 {
		return
	}
	keys := make([]string, 0, len(postIds))
	for _, postId := range postIds {
		keys = append(keys, s.redisKey(postId))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("failed to evict posts from cache", "posts", postIds, "err", err)
	}
}

func (s *CachedStorage) redisKey(key models.PostID) string {
	// add a prefix not to collide with other data stored in the same redis
	return fmt.Sprintf("postid:%d", key)
}

func NewCachedStorage(redisUrl string, persistentStorage Storage, logger *slog.Logger) Storage {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: redisUrl})
	return &CachedStorage{
		client:            client,
		persistentStorage: persistentStorage,
		logger:            logger,
	}
}
