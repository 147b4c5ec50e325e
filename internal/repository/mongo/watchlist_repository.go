package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"mareye-api/internal/models"
)

type watchlistRepository struct {
	coll *mongo.Collection
}

func NewWatchlistRepository(db *mongo.Database) WatchlistRepository {
	return &watchlistRepository{coll: db.Collection(WatchlistCollection)}
}

func EnsureWatchlistIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(WatchlistCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	return err
}

func (r *watchlistRepository) List(ctx context.Context, userID string, limit int64) ([]models.WatchlistItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}

	items := make([]models.WatchlistItem, 0)
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode watchlist: %w", err)
	}
	return items, nil
}

func (r *watchlistRepository) Add(ctx context.Context, item *models.WatchlistItem) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.coll.InsertOne(ctx, item)
	if err != nil {
		return "", fmt.Errorf("failed to insert watchlist item: %w", err)
	}
	return insertedHex(res.InsertedID), nil
}

func (r *watchlistRepository) Delete(ctx context.Context, userID string, id bson.ObjectID) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return false, fmt.Errorf("failed to delete watchlist item: %w", err)
	}
	return res.DeletedCount > 0, nil
}
