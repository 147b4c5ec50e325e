package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mareye-api/internal/models"
	"mareye-api/internal/repository/mongo"
)

const (
	historyLimit = 50
	searchLimit  = 20
)

// AnalysisSearcher is the full-text index over saved analyses.
type AnalysisSearcher interface {
	Search(ctx context.Context, userID, text string, limit int) ([]models.AnalysisDocument, error)
}

type ProfileService struct {
	users    mongo.UserRepository
	analyses mongo.AnalysisRepository
	search   AnalysisSearcher
	now      func() time.Time
}

// NewProfileService builds the service; search may be nil when no index is configured.
func NewProfileService(users mongo.UserRepository, analyses mongo.AnalysisRepository, search AnalysisSearcher) *ProfileService {
	return &ProfileService{users: users, analyses: analyses, search: search, now: time.Now}
}

// Profile returns the user with subscription and token usage defaults filled in.
func (s *ProfileService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNotFound) || errors.Is(err, mongo.ErrInvalidID) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user.WithDefaults(s.now().UTC()), nil
}

type History struct {
	Analyses      []models.Analysis     `json:"analyses"`
	GeneSequences []models.GeneSequence `json:"geneSequences"`
}

// History loads both collections concurrently, newest first.
func (s *ProfileService) History(ctx context.Context, userID string) (*History, error) {
	var h History
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a, err := s.analyses.ListAnalyses(gctx, userID, historyLimit)
		h.Analyses = a
		return err
	})
	g.Go(func() error {
		gs, err := s.analyses.ListGeneSequences(gctx, userID, historyLimit)
		h.GeneSequences = gs
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	return &h, nil
}

func (s *ProfileService) SearchHistory(ctx context.Context, userID, query string) ([]models.AnalysisDocument, error) {
	if s.search == nil {
		return nil, fmt.Errorf("%w: history search", ErrNotConfigured)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: q is required", ErrInvalidInput)
	}
	return s.search.Search(ctx, userID, query, searchLimit)
}
