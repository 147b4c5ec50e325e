package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mareye-api/internal/auth"
	"mareye-api/internal/models"
	"mareye-api/internal/service"
)

type ProfileService interface {
	Profile(ctx context.Context, userID string) (*models.User, error)
	History(ctx context.Context, userID string) (*service.History, error)
	SearchHistory(ctx context.Context, userID, query string) ([]models.AnalysisDocument, error)
}

type WatchlistService interface {
	List(ctx context.Context, userID string) ([]models.WatchlistItem, error)
	Add(ctx context.Context, userID string, req service.AddWatchlistRequest) (string, error)
	Remove(ctx context.Context, userID, id string) error
}

// AccountHandler serves the signed-in user's profile, history and watchlist.
// Every route expects auth.RequireAuth in front of it.
type AccountHandler struct {
	base
	profiles  ProfileService
	watchlist WatchlistService
}

func NewAccountHandler(profiles ProfileService, watchlist WatchlistService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{base: base{logger: logger}, profiles: profiles, watchlist: watchlist}
}

func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Get("/profile", h.Profile)
	r.Get("/history", h.History)
	r.Get("/history/search", h.SearchHistory)
	r.Get("/watchlist", h.ListWatchlist)
	r.Post("/watchlist", h.AddWatchlist)
	r.Delete("/watchlist/{id}", h.RemoveWatchlist)
}

func userID(r *http.Request) string {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.UserID
}

func (h *AccountHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.profiles.Profile(r.Context(), userID(r))
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, clientMessage(err, "Failed to load profile"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user": map[string]interface{}{
			"id":              user.ID.Hex(),
			"username":        user.Username,
			"firstName":       user.DisplayName(),
			"lastName":        user.LastName,
			"email":           user.Email,
			"dob":             user.DOB,
			"avatar":          user.Avatar,
			"isEmailVerified": user.IsEmailVerified,
			"subscription":    user.Subscription,
			"tokens":          user.Tokens,
		},
	})
}

func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.profiles.History(r.Context(), userID(r))
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to fetch history")
		return
	}
	if history.Analyses == nil {
		history.Analyses = []models.Analysis{}
	}
	if history.GeneSequences == nil {
		history.GeneSequences = []models.GeneSequence{}
	}
	h.respondWithJSON(w, http.StatusOK, history)
}

func (h *AccountHandler) SearchHistory(w http.ResponseWriter, r *http.Request) {
	docs, err := h.profiles.SearchHistory(r.Context(), userID(r), r.URL.Query().Get("q"))
	if err != nil {
		msg := clientMessage(err, "Failed to search history")
		if errors.Is(err, service.ErrNotConfigured) {
			msg = "History search is not configured"
		}
		h.respondWithError(w, getStatusCode(err), err, msg)
		return
	}
	if docs == nil {
		docs = []models.AnalysisDocument{}
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"results": docs})
}

func (h *AccountHandler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.watchlist.List(r.Context(), userID(r))
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to fetch watchlist")
		return
	}
	if items == nil {
		items = []models.WatchlistItem{}
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *AccountHandler) AddWatchlist(w http.ResponseWriter, r *http.Request) {
	var req service.AddWatchlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.ItemType == "" {
		h.respondWithError(w, http.StatusBadRequest, nil, "itemType is required")
		return
	}

	id, err := h.watchlist.Add(r.Context(), userID(r), req)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, clientMessage(err, "Failed to add to watchlist"))
		return
	}
	h.respondWithJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "id": id})
}

func (h *AccountHandler) RemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	err := h.watchlist.Remove(r.Context(), userID(r), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	case errors.Is(err, service.ErrInvalidInput):
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid id")
	case errors.Is(err, service.ErrNotFound):
		h.respondWithError(w, http.StatusNotFound, err, "Not found")
	default:
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to remove from watchlist")
	}
}
