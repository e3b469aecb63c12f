package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ikolcov/pinboard/internal/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const postsCounter = "posts"

type MongoStorage struct {
	client   *mongo.Client
	posts    *mongo.Collection
	counters *mongo.Collection
}

type postDocument struct {
	ID               int64      `bson:"_id"`
	Title            string     `bson:"title"`
	Content          string     `bson:"content"`
	Link             string     `bson:"link,omitempty"`
	Author           string     `bson:"author,omitempty"`
	CreatedAt        time.Time  `bson:"createdat"`
	PaymentAmount    string     `bson:"paymentamount"`
	PaymentReference string     `bson:"paymentreference,omitempty"`
	Pinned           bool       `bson:"pinned"`
	PinExpiry        *time.Time `bson:"pinexpiry,omitempty"`
}

type counterDocument struct {
	Seq int64 `bson:"seq"`
}

func toDocument(post models.Post) postDocument {
	return postDocument{
		ID:               int64(post.Id),
		Title:            post.Title,
		Content:          post.Content,
		Link:             post.Link,
		Author:           post.Author,
		CreatedAt:        post.CreatedAt,
		PaymentAmount:    post.PaymentAmount.String(),
		PaymentReference: post.PaymentReference,
		Pinned:           post.Pinned,
		PinExpiry:        post.PinExpiry,
	}
}

func (d postDocument) toPost() (models.Post, error) {
	amount, err := decimal.NewFromString(d.PaymentAmount)
	if err != nil {
		return models.Post{}, fmt.Errorf("decode amount of post %d: %w", d.ID, err)
	}
	return models.Post{
		Id:               models.PostID(d.ID),
		Title:            d.Title,
		Content:          d.Content,
		Link:             d.Link,
		Author:           d.Author,
		CreatedAt:        d.CreatedAt,
		PaymentAmount:    amount,
		PaymentReference: d.PaymentReference,
		Pinned:           d.Pinned,
		PinExpiry:        d.PinExpiry,
	}, nil
}

func addIndex(ctx context.Context, collection *mongo.Collection, keys bson.D) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys})
	return err
}

func (s *MongoStorage) nextId(ctx context.Context) (models.PostID, error) {
	var counter counterDocument
	err := s.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": postsCounter},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate post id: %w", err)
	}
	return models.PostID(counter.Seq), nil
}

func (s *MongoStorage) AddPost(ctx context.Context, post models.Post) (models.PostID, error) {
	postId, err := s.nextId(ctx)
	if err != nil {
		return 0, err
	}
	post.Id = postId
	if _, err := s.posts.InsertOne(ctx, toDocument(post)); err != nil {
		return 0, err
	}
	return postId, nil
}

func (s *MongoStorage) GetPost(ctx context.Context, postId models.PostID) (models.Post, error) {
	var result postDocument
	err := s.posts.FindOne(ctx, bson.M{"_id": int64(postId)}).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Post{}, models.ErrNotFound
	} else if err != nil {
		return models.Post{}, err
	}
	return result.toPost()
}

func (s *MongoStorage) DeletePost(ctx context.Context, postId models.PostID) error {
	_, err := s.posts.DeleteOne(ctx, bson.M{"_id": int64(postId)})
	return err
}

func (s *MongoStorage) find(ctx context.Context, filter interface{}) ([]models.Post, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	cur, err := s.posts.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	posts := make([]models.Post, 0)
	for cur.Next(ctx) {
		var elem postDocument
		if err := cur.Decode(&elem); err != nil {
			return nil, err
		}
		post, err := elem.toPost()
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *MongoStorage) ListPosts(ctx context.Context) ([]models.Post, error) {
	return s.find(ctx, bson.D{})
}

func (s *MongoStorage) GetAuthorPosts(ctx context.Context, author string, page int, size int) (models.PostsPage, error) {
	allAuthorPosts, err := s.find(ctx, bson.D{{Key: "author", Value: author}})
	if err != nil {
		return models.PostsPage{}, err
	}
	return getPostsPage(allAuthorPosts, page, size)
}

// ExpirePins demotes each lapsed post with its own conditional update and
// reports only the posts this call flipped, so concurrent sweeps never report
// the same post twice.
func (s *MongoStorage) ExpirePins(ctx context.Context, now time.Time) ([]models.PostID, error) {
	lapsed := bson.D{{Key: "pinned", Value: true}, {Key: "pinexpiry", Value: bson.D{{Key: "$lte", Value: now}}}}
	candidates, err := s.find(ctx, lapsed)
	if err != nil {
		return nil, err
	}

	var expired []models.PostID
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "pinned", Value: false}}}}
	for _, post := range candidates {
		filter := bson.D{{Key: "_id", Value: int64(post.Id)}, {Key: "pinned", Value: true}}
		result, err := s.posts.UpdateOne(ctx, filter, update)
		if err != nil {
			return expired, err
		}
		if result.ModifiedCount == 1 {
			expired = append(expired, post.Id)
		}
	}
	return expired, nil
}

func (s *MongoStorage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func NewMongoStorage(ctx context.Context, mongoUrl string, mongoDbName string) (*MongoStorage, error) {
	clientOptions := options.Client().ApplyURI(mongoUrl)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	posts := client.Database(mongoDbName).Collection("posts")
	counters := client.Database(mongoDbName).Collection("counters")

	if err := addIndex(ctx, posts, bson.D{{Key: "author", Value: 1}}); err != nil {
		return nil, err
	}
	if err := addIndex(ctx, posts, bson.D{{Key: "pinned", Value: 1}, {Key: "pinexpiry", Value: 1}}); err != nil {
		return nil, err
	}

	return &MongoStorage{
		client:   client,
		posts:    posts,
		counters: counters,
	}, nil
}
