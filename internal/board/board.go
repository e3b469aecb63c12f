// Package board owns the post collection: it validates and stamps new posts,
// deletes them, and serves snapshots and derived views over them.
package board

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ikolcov/pinboard/internal/models"
	"github.com/ikolcov/pinboard/internal/payment"
	"github.com/ikolcov/pinboard/internal/ranking"
	"github.com/ikolcov/pinboard/internal/stats"
	"github.com/ikolcov/pinboard/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const DefaultPinDuration = time.Hour

var (
	postsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinboard",
		Name:      "posts_created_total",
		Help:      "total posts created, by pinned state",
	}, []string{"pinned"})
	postsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pinboard",
		Name:      "posts_deleted_total",
		Help:      "total delete requests handled",
	})
)

type Notifier interface {
	Publish(event models.BoardEvent)
}

type Draft struct {
	Title            string
	Content          string
	Link             string
	Author           string
	Pinned           bool
	Amount           decimal.Decimal
	PaymentReference string
}

type Board struct {
	storage     storage.Storage
	clock       clockwork.Clock
	gateway     payment.Gateway
	pinDuration time.Duration
	minAmount   decimal.Decimal
	logger      *slog.Logger
	notifier    Notifier
	inflight    singleflight.Group
}

type Args struct {
	Storage storage.Storage
	Gateway payment.Gateway
	Clock   clockwork.Clock
	// PinDuration defaults to one hour.
	PinDuration time.Duration
	// MinAmount is the smallest payment accepted by Submit.
	MinAmount decimal.Decimal
	Logger    *slog.Logger
	Notifier  Notifier
}

var DefaultMinAmount = decimal.RequireFromString("0.001")

func New(args *Args) *Board {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}
	if args.Clock == nil {
		args.Clock = clockwork.NewRealClock()
	}
	if args.PinDuration <= 0 {
		args.PinDuration = DefaultPinDuration
	}
	if !args.MinAmount.IsPositive() {
		args.MinAmount = DefaultMinAmount
	}

	return &Board{
		storage:     args.Storage,
		clock:       args.Clock,
		gateway:     args.Gateway,
		pinDuration: args.PinDuration,
		minAmount:   args.MinAmount,
		logger:      args.Logger.With("component", "board"),
		notifier:    args.Notifier,
	}
}

func (b *Board) publish(eventType models.EventType, postIds []models.PostID, at time.Time) {
	if b.notifier == nil {
		return
	}
	b.notifier.Publish(models.BoardEvent{Type: eventType, PostIds: postIds, At: at})
}

func (d Draft) normalize() (Draft, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Content = strings.TrimSpace(d.Content)
	d.Link = strings.TrimSpace(d.Link)
	d.Author = strings.TrimSpace(d.Author)

	if d.Title == "" {
		return d, models.ErrEmptyTitle
	}
	if d.Content == "" {
		return d, models.ErrEmptyContent
	}
	if d.Amount.IsNegative() {
		return d, models.ErrNegativeAmount
	}
	return d, nil
}

// Create stores a new post at the head of the board. A pinned post stays
// pinned for the configured pin duration from now.
func (b *Board) Create(ctx context.Context, draft Draft) (models.Post, error) {
	draft, err := draft.normalize()
	if err != nil {
		return models.Post{}, err
	}
	now := b.clock.Now()
	return b.insert(ctx, draft, now, now)
}

func (b *Board) insert(ctx context.Context, draft Draft, createdAt time.Time, pinnedAt time.Time) (models.Post, error) {
	post := models.Post{
		Title:            draft.Title,
		Content:          draft.Content,
		Link:             draft.Link,
		Author:           draft.Author,
		CreatedAt:        createdAt,
		PaymentAmount:    draft.Amount,
		PaymentReference: draft.PaymentReference,
		Pinned:           draft.Pinned,
	}
	if draft.Pinned {
		expiry := pinnedAt.Add(b.pinDuration)
		post.PinExpiry = &expiry
	}

	postId, err := b.storage.AddPost(ctx, post)
	if err != nil {
		return models.Post{}, err
	}
	post.Id = postId

	postsCreated.WithLabelValues(boolLabel(post.Pinned)).Inc()
	b.logger.Info("added new post", "post", post.Id, "title", post.Title, "pinned", post.Pinned, "amount", post.PaymentAmount)
	b.publish(models.EventPostCreated, []models.PostID{post.Id}, createdAt)
	return post, nil
}

// Delete removes a post. Unknown ids are ignored so that repeated or stale
// deletes succeed.
func (b *Board) Delete(ctx context.Context, postId models.PostID) error {
	if err := b.storage.DeletePost(ctx, postId); err != nil {
		return err
	}
	postsDeleted.Inc()
	b.logger.Info("deleted post", "post", postId)
	b.publish(models.EventPostDeleted, []models.PostID{postId}, b.clock.Now())
	return nil
}

// List returns every post newest first, with stored pin flags as they are.
func (b *Board) List(ctx context.Context) ([]models.Post, error) {
	return b.storage.ListPosts(ctx)
}

func (b *Board) Get(ctx context.Context, postId models.PostID) (models.Post, error) {
	return b.storage.GetPost(ctx, postId)
}

func (b *Board) AuthorPosts(ctx context.Context, author string, page int, size int) (models.PostsPage, error) {
	return b.storage.GetAuthorPosts(ctx, author, page, size)
}

// Ranked returns the display order at the board clock's current time.
func (b *Board) Ranked(ctx context.Context) ([]models.RankedPost, error) {
	posts, err := b.storage.ListPosts(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.View(posts, b.clock.Now()), nil
}

func (b *Board) Stats(ctx context.Context) (models.Stats, error) {
	posts, err := b.storage.ListPosts(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	return stats.Aggregate(posts, b.clock.Now()), nil
}

func (b *Board) MinAmount() decimal.Decimal {
	return b.minAmount
}

func (b *Board) PinDuration() time.Duration {
	return b.pinDuration
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
