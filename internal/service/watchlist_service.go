package service

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"mareye-api/internal/models"
	"mareye-api/internal/repository/mongo"
)

const watchlistLimit = 100

type WatchlistService struct {
	repo mongo.WatchlistRepository
	now  func() time.Time
}

func NewWatchlistService(repo mongo.WatchlistRepository) *WatchlistService {
	return &WatchlistService{repo: repo, now: time.Now}
}

type AddWatchlistRequest struct {
	ItemType    string      `json:"itemType"`
	ReferenceID string      `json:"referenceId"`
	Title       string      `json:"title"`
	Summary     string      `json:"summary"`
	DataPreview interface{} `json:"dataPreview"`
	Score       *float64    `json:"score"`
}

func (s *WatchlistService) List(ctx context.Context, userID string) ([]models.WatchlistItem, error) {
	return s.repo.List(ctx, userID, watchlistLimit)
}

func (s *WatchlistService) Add(ctx context.Context, userID string, req AddWatchlistRequest) (string, error) {
	if req.ItemType == "" {
		return "", fmt.Errorf("%w: itemType is required", ErrInvalidInput)
	}
	if !models.ValidItemType(req.ItemType) {
		return "", fmt.Errorf("%w: unknown itemType %q", ErrInvalidInput, req.ItemType)
	}

	return s.repo.Add(ctx, &models.WatchlistItem{
		UserID:      userID,
		ItemType:    req.ItemType,
		ReferenceID: req.ReferenceID,
		Title:       req.Title,
		Summary:     req.Summary,
		DataPreview: req.DataPreview,
		Score:       req.Score,
		CreatedAt:   s.now().UTC(),
	})
}

// Remove deletes one of the caller's items. Items of other users look the same as missing ones.
func (s *WatchlistService) Remove(ctx context.Context, userID, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: invalid id", ErrInvalidInput)
	}
	deleted, err := s.repo.Delete(ctx, userID, oid)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}
