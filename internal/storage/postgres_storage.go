package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ikolcov/pinboard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id                BIGSERIAL PRIMARY KEY,
		title             TEXT NOT NULL,
		content           TEXT NOT NULL,
		link              TEXT NOT NULL DEFAULT '',
		author            TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL,
		payment_amount    NUMERIC NOT NULL DEFAULT 0,
		payment_reference TEXT NOT NULL DEFAULT '',
		pinned            BOOLEAN NOT NULL DEFAULT FALSE,
		pin_expiry        TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS posts_author_idx ON posts (author)`,
	`CREATE INDEX IF NOT EXISTS posts_pinned_idx ON posts (pin_expiry) WHERE pinned`,
}

const postColumns = `id, title, content, link, author, created_at, payment_amount::text, payment_reference, pinned, pin_expiry`

type PostgresStorage struct {
	pool *pgxpool.Pool
}

func scanPost(row pgx.CollectableRow) (models.Post, error) {
	var (
		post   models.Post
		amount string
	)
	if err := row.Scan(
		&post.Id,
		&post.Title,
		&post.Content,
		&post.Link,
		&post.Author,
		&post.CreatedAt,
		&amount,
		&post.PaymentReference,
		&post.Pinned,
		&post.PinExpiry,
	); err != nil {
		return models.Post{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return models.Post{}, fmt.Errorf("decode amount of post %d: %w", post.Id, err)
	}
	post.PaymentAmount = parsed
	return post, nil
}

func (s *PostgresStorage) AddPost(ctx context.Context, post models.Post) (models.PostID, error) {
	const q = `
		INSERT INTO posts (title, content, link, author, created_at, payment_amount, payment_reference, pinned, pin_expiry)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
		RETURNING id
	`
	var postId models.PostID
	err := s.pool.QueryRow(ctx, q,
		post.Title,
		post.Content,
		post.Link,
		post.Author,
		post.CreatedAt,
		post.PaymentAmount.String(),
		post.PaymentReference,
		post.Pinned,
		post.PinExpiry,
	).Scan(&postId)
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}
	return postId, nil
}

func (s *PostgresStorage) GetPost(ctx context.Context, postId models.PostID) (models.Post, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, int64(postId))
	if err != nil {
		return models.Post{}, err
	}
	post, err := pgx.CollectOneRow(rows, scanPost)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Post{}, models.ErrNotFound
	}
	return post, err
}

func (s *PostgresStorage) DeletePost(ctx context.Context, postId models.PostID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, int64(postId))
	return err
}

func (s *PostgresStorage) ListPosts(ctx context.Context) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postColumns+` FROM posts ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPost)
}

func (s *PostgresStorage) GetAuthorPosts(ctx context.Context, author string, page int, size int) (models.PostsPage, error) {
	if page < 1 || size < 1 {
		return models.PostsPage{}, models.ErrBadRequest
	}
	// fetch one extra row to learn whether another page exists
	rows, err := s.pool.Query(ctx,
		`SELECT `+postColumns+` FROM posts WHERE author = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		author, size+1, (page-1)*size,
	)
	if err != nil {
		return models.PostsPage{}, err
	}
	posts, err := pgx.CollectRows(rows, scanPost)
	if err != nil {
		return models.PostsPage{}, err
	}

	postsPage := models.PostsPage{Posts: posts}
	if len(posts) > size {
		postsPage.Posts = posts[:size]
		postsPage.NextPage = fmt.Sprint(page + 1)
	}
	return postsPage, nil
}

func (s *PostgresStorage) ExpirePins(ctx context.Context, now time.Time) ([]models.PostID, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE posts SET pinned = FALSE WHERE pinned AND pin_expiry <= $1 RETURNING id`,
		now,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[models.PostID])
}

func (s *PostgresStorage) Close() {
	s.pool.Close()
}

func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 20
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 64

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &PostgresStorage{pool: pool}, nil
}
