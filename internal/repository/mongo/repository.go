package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"mareye-api/internal/models"
)

const (
	UsersCollection         = "users"
	WatchlistCollection     = "watchlist"
	AnalysesCollection      = "aiAnalyses"
	GeneSequencesCollection = "geneSequences"

	opTimeout = 10 * time.Second
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("document already exists")
	ErrInvalidID = errors.New("invalid object id")
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpsertGoogleUser(ctx context.Context, profile *models.GoogleProfile, now time.Time) (*models.User, error)
}

type WatchlistRepository interface {
	List(ctx context.Context, userID string, limit int64) ([]models.WatchlistItem, error)
	Add(ctx context.Context, item *models.WatchlistItem) (string, error)
	// Delete reports whether a document owned by userID was removed.
	Delete(ctx context.Context, userID string, id bson.ObjectID) (bool, error)
}

type AnalysisRepository interface {
	InsertAnalysis(ctx context.Context, a *models.Analysis) (string, error)
	InsertGeneSequence(ctx context.Context, g *models.GeneSequence) (string, error)
	ListAnalyses(ctx context.Context, userID string, limit int64) ([]models.Analysis, error)
	ListGeneSequences(ctx context.Context, userID string, limit int64) ([]models.GeneSequence, error)
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func insertedHex(id interface{}) string {
	if oid, ok := id.(bson.ObjectID); ok {
		return oid.Hex()
	}
	return ""
}
