package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mareye-api/internal/ai"
	"mareye-api/internal/service"
)

const maxImageBytes = 20 << 20

type AIService interface {
	Chat(ctx context.Context, message, pageContext string) (string, error)
	IdentifySpecies(ctx context.Context, userID string, req service.SpeciesRequest) (*service.SpeciesAnalysis, error)
	AnalyzeGeneSequence(ctx context.Context, userID string, req service.GeneSequenceRequest) (*service.SpeciesAnalysis, error)
	AssessThreats(ctx context.Context, userID string, in ai.ThreatInput) (*service.ThreatAnalysis, error)
}

type AIHandler struct {
	base
	ai AIService
}

func NewAIHandler(aiService AIService, logger *zap.Logger) *AIHandler {
	return &AIHandler{base: base{logger: logger}, ai: aiService}
}

// RegisterPublicRoutes mounts the chatbot, which works without a session.
func (h *AIHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/ai/chatbot", h.Chat)
}

func (h *AIHandler) RegisterRoutes(r chi.Router) {
	r.Post("/ai/species", h.IdentifySpecies)
	r.Post("/ai/gene-sequence", h.AnalyzeGeneSequence)
	r.Post("/ai/threat-assessment", h.AssessThreats)
}

func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
		Context string `json:"context"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.respondWithError(w, http.StatusBadRequest, nil, "Message is required")
		return
	}

	reply, err := h.ai.Chat(r.Context(), req.Message, req.Context)
	switch {
	case err == nil:
		h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"response": reply})
	case errors.Is(err, service.ErrNotConfigured):
		h.respondWithError(w, http.StatusInternalServerError, err, "Groq API key not configured")
	case errors.Is(err, service.ErrInvalidInput):
		h.respondWithError(w, http.StatusBadRequest, err, clientMessage(err, ""))
	default:
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to generate response: "+strings.TrimPrefix(err.Error(), service.ErrUpstream.Error()+": "))
	}
}

func (h *AIHandler) IdentifySpecies(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Image is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Failed to read image")
		return
	}
	if len(data) > maxImageBytes {
		h.respondWithError(w, http.StatusRequestEntityTooLarge, nil, "Image is too large")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	out, err := h.ai.IdentifySpecies(r.Context(), userID(r), service.SpeciesRequest{
		Image:    data,
		MIMEType: mimeType,
		Filename: header.Filename,
		Context:  r.FormValue("context"),
	})
	if err != nil {
		h.analysisError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": out.ID, "result": out.Result})
}

func (h *AIHandler) AnalyzeGeneSequence(w http.ResponseWriter, r *http.Request) {
	var req service.GeneSequenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	out, err := h.ai.AnalyzeGeneSequence(r.Context(), userID(r), req)
	if err != nil {
		h.analysisError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": out.ID, "result": out.Result})
}

func (h *AIHandler) AssessThreats(w http.ResponseWriter, r *http.Request) {
	var in ai.ThreatInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	out, err := h.ai.AssessThreats(r.Context(), userID(r), in)
	if err != nil {
		h.analysisError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": out.ID, "result": out.Result})
}

func (h *AIHandler) analysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotConfigured):
		h.respondWithError(w, http.StatusServiceUnavailable, err, "AI analysis is not configured")
	case errors.Is(err, service.ErrUpstream):
		h.respondWithError(w, http.StatusBadGateway, err, "AI analysis failed, please try again")
	default:
		h.respondWithError(w, getStatusCode(err), err, clientMessage(err, "Failed to run analysis"))
	}
}
