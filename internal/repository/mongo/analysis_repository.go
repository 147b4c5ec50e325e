package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"mareye-api/internal/models"
)

type analysisRepository struct {
	analyses *mongo.Collection
	genes    *mongo.Collection
}

func NewAnalysisRepository(db *mongo.Database) AnalysisRepository {
	return &analysisRepository{
		analyses: db.Collection(AnalysesCollection),
		genes:    db.Collection(GeneSequencesCollection),
	}
}

func EnsureAnalysisIndexes(ctx context.Context, db *mongo.Database) error {
	byUser := mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}}
	if _, err := db.Collection(AnalysesCollection).Indexes().CreateOne(ctx, byUser); err != nil {
		return err
	}
	_, err := db.Collection(GeneSequencesCollection).Indexes().CreateOne(ctx, byUser)
	return err
}

func (r *analysisRepository) InsertAnalysis(ctx context.Context, a *models.Analysis) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.analyses.InsertOne(ctx, a)
	if err != nil {
		return "", fmt.Errorf("failed to insert analysis: %w", err)
	}
	return insertedHex(res.InsertedID), nil
}

func (r *analysisRepository) InsertGeneSequence(ctx context.Context, g *models.GeneSequence) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.genes.InsertOne(ctx, g)
	if err != nil {
		return "", fmt.Errorf("failed to insert gene sequence: %w", err)
	}
	return insertedHex(res.InsertedID), nil
}

func (r *analysisRepository) ListAnalyses(ctx context.Context, userID string, limit int64) ([]models.Analysis, error) {
	out := make([]models.Analysis, 0)
	if err := r.listByUser(ctx, r.analyses, userID, limit, &out); err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return out, nil
}

func (r *analysisRepository) ListGeneSequences(ctx context.Context, userID string, limit int64) ([]models.GeneSequence, error) {
	out := make([]models.GeneSequence, 0)
	if err := r.listByUser(ctx, r.genes, userID, limit, &out); err != nil {
		return nil, fmt.Errorf("failed to list gene sequences: %w", err)
	}
	return out, nil
}

func (r *analysisRepository) listByUser(ctx context.Context, coll *mongo.Collection, userID string, limit int64, out interface{}) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	cur, err := coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}
