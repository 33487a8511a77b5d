package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"media-gallery/internal/models"
	"media-gallery/internal/utils"
)

// MediaRepository is the primary-store port for media documents. The mongo
// implementation is the only durable one; tests use in-memory fakes.
type MediaRepository interface {
	Available(ctx context.Context) bool
	List(ctx context.Context, mediaType string) ([]models.Media, error)
	GetByID(ctx context.Context, id string) (*models.Media, error)
	Insert(ctx context.Context, m *models.Media) error
	Delete(ctx context.Context, id string) error
	SetLikes(ctx context.Context, id string, likes models.Likes) error
	SetFavorites(ctx context.Context, id string, favorites models.Favorites) error
	PushComment(ctx context.Context, id string, c models.Comment) error
	PushReply(ctx context.Context, id, parentID string, r models.Reply) error
	PullComment(ctx context.Context, id, commentID string) error
	PullReply(ctx context.Context, id, parentID, replyID string) error
	FindAll(ctx context.Context) ([]models.Media, error)
}

type mongoMediaRepo struct {
	client *mongo.Client
	col    *mongo.Collection
}

func NewMongoMediaRepo(client *mongo.Client, db, collection string) MediaRepository {
	col := client.Database(db).Collection(collection)
	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "uploadTime", Value: -1}}},
	})
	return &mongoMediaRepo{client: client, col: col}
}

func (r *mongoMediaRepo) Available(ctx context.Context) bool {
	return Ping(ctx, r.client)
}

func (r *mongoMediaRepo) List(ctx context.Context, mediaType string) ([]models.Media, error) {
	filter := bson.M{}
	if mediaType != "" && mediaType != "all" {
		filter["type"] = mediaType
	}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "uploadTime", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find media: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.Media
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}
	return out, nil
}

func (r *mongoMediaRepo) GetByID(ctx context.Context, id string) (*models.Media, error) {
	var m models.Media
	err := r.col.FindOne(ctx, bson.M{"id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mongoMediaRepo) Insert(ctx context.Context, m *models.Media) error {
	_, err := r.col.InsertOne(ctx, m)
	return err
}

func (r *mongoMediaRepo) Delete(ctx context.Context, id string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"id": id})
	return err
}

func (r *mongoMediaRepo) SetLikes(ctx context.Context, id string, likes models.Likes) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{"likes": likes}})
	return err
}

func (r *mongoMediaRepo) SetFavorites(ctx context.Context, id string, favorites models.Favorites) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{"favorites": favorites}})
	return err
}

func (r *mongoMediaRepo) PushComment(ctx context.Context, id string, c models.Comment) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$push": bson.M{"comments": c}})
	return err
}

// PushReply appends to the reply list of the matching embedded comment via a
// positional update.
func (r *mongoMediaRepo) PushReply(ctx context.Context, id, parentID string, reply models.Reply) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"id": id, "comments.id": parentID},
		bson.M{"$push": bson.M{"comments.$.replies": reply}})
	return err
}

func (r *mongoMediaRepo) PullComment(ctx context.Context, id, commentID string) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"id": id},
		bson.M{"$pull": bson.M{"comments": bson.M{"id": commentID}}})
	return err
}

func (r *mongoMediaRepo) PullReply(ctx context.Context, id, parentID, replyID string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"id": id, "comments.id": parentID},
		bson.M{"$pull": bson.M{"comments.$.replies": bson.M{"id": replyID}}})
	return err
}

// FindAll streams every media document for a full cache rebuild.
func (r *mongoMediaRepo) FindAll(ctx context.Context) ([]models.Media, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetBatchSize(200))
	if err != nil {
		return nil, fmt.Errorf("find all media: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.Media
	for cur.Next(ctx) {
		var m models.Media
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode media: %w", err)
		}
		out = append(out, m)
	}
	return out, cur.Err()
}
