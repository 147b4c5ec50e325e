package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"mareye-api/internal/models"
	"mareye-api/internal/util"
)

type userRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func NewUserRepository(db *mongo.Database, logger *zap.Logger) UserRepository {
	return &userRepository{coll: db.Collection(UsersCollection), logger: logger}
}

// EnsureUserIndexes creates the unique email index and the sparse googleId index.
func EnsureUserIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "googleId", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	return err
}

func (r *userRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.coll.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		r.logger.Error("Failed to insert user", util.Email("email", user.Email), util.ErrorField(err))
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	created := *user
	if oid, ok := res.InsertedID.(bson.ObjectID); ok {
		created.ID = oid
	}
	return &created, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"email": email}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to count users: %w", err)
	}
	return n > 0, nil
}

// UpsertGoogleUser links a Google identity to the account with the same email or googleId,
// creating the account on first sign-in.
func (r *userRepository) UpsertGoogleUser(ctx context.Context, p *models.GoogleProfile, now time.Time) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	email := strings.ToLower(p.Email)
	username := p.Name
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}

	filter := bson.M{"$or": bson.A{bson.M{"email": email}, bson.M{"googleId": p.Sub}}}
	update := bson.M{
		"$setOnInsert": bson.M{
			"username":     username,
			"createdAt":    now,
			"subscription": models.DefaultSubscription(),
			"tokens":       models.DefaultTokenUsage(now),
		},
		"$set": bson.M{
			"email":           email,
			"firstName":       p.GivenName,
			"lastName":        p.FamilyName,
			"avatar":          p.Picture,
			"googleId":        p.Sub,
			"isEmailVerified": p.EmailVerified,
			"updatedAt":       now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var user models.User
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user); err != nil {
		r.logger.Error("Failed to upsert Google user", util.Email("email", email), util.ErrorField(err))
		return nil, fmt.Errorf("failed to upsert google user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var user models.User
	if err := r.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}
