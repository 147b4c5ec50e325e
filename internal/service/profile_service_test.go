package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"mareye-api/internal/models"
)

func TestProfileFillsDefaults(t *testing.T) {
	user := &models.User{Username: "legacy", Email: "legacy@example.com"}
	users := newFakeUsers(user)
	svc := NewProfileService(users, &fakeAnalyses{}, nil)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	got, err := svc.Profile(context.Background(), user.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, &models.Subscription{Plan: "basic", Status: "active"}, got.Subscription)
	assert.Equal(t, &models.TokenUsage{DailyLimit: 10, LastResetDate: fixed}, got.Tokens)
	assert.Nil(t, user.Subscription, "stored document must not be mutated")

	_, err = svc.Profile(context.Background(), bson.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.Profile(context.Background(), "not-an-id")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestHistory(t *testing.T) {
	repo := &fakeAnalyses{}
	ctx := context.Background()
	_, _ = repo.InsertAnalysis(ctx, &models.Analysis{UserID: "u1", AnalysisType: models.AnalysisThreatAssessment})
	_, _ = repo.InsertAnalysis(ctx, &models.Analysis{UserID: "u2", AnalysisType: models.AnalysisThreatAssessment})
	_, _ = repo.InsertGeneSequence(ctx, &models.GeneSequence{UserID: "u1", SequenceType: "COI"})

	svc := NewProfileService(newFakeUsers(), repo, nil)

	h, err := svc.History(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, h.Analyses, 1)
	assert.Len(t, h.GeneSequences, 1)

	repo.listErr = errors.New("connection reset")
	_, err = svc.History(ctx, "u1")
	assert.Error(t, err)
}

func TestSearchHistory(t *testing.T) {
	svc := NewProfileService(newFakeUsers(), &fakeAnalyses{}, nil)
	_, err := svc.SearchHistory(context.Background(), "u1", "shark")
	assert.ErrorIs(t, err, ErrNotConfigured)

	index := &fakeIndex{docs: []models.AnalysisDocument{
		{ID: "a", UserID: "u1", Title: "shark"},
		{ID: "b", UserID: "u2", Title: "shark"},
	}}
	svc = NewProfileService(newFakeUsers(), &fakeAnalyses{}, index)

	_, err = svc.SearchHistory(context.Background(), "u1", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	docs, err := svc.SearchHistory(context.Background(), "u1", " shark ")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
}

func TestWatchlist(t *testing.T) {
	repo := &fakeWatchlist{}
	svc := NewWatchlistService(repo)
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", AddWatchlistRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Add(ctx, "u1", AddWatchlistRequest{ItemType: "video"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	id, err := svc.Add(ctx, "u1", AddWatchlistRequest{ItemType: models.ItemTypeGeneSequence, Title: "COI sample"})
	require.NoError(t, err)

	items, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "COI sample", items[0].Title)
	assert.False(t, items[0].CreatedAt.IsZero())

	assert.ErrorIs(t, svc.Remove(ctx, "u1", "xyz"), ErrInvalidInput)
	assert.ErrorIs(t, svc.Remove(ctx, "u2", id), ErrNotFound)
	require.NoError(t, svc.Remove(ctx, "u1", id))
	assert.ErrorIs(t, svc.Remove(ctx, "u1", id), ErrNotFound)
}
