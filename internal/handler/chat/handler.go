package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/mkrasov/sentichat/internal/service/chat"
	reportService "github.com/mkrasov/sentichat/internal/service/report"
)

// Handler exposes the conversation REST surface.
type Handler struct {
	chatSvc   *chatService.Service
	reportSvc *reportService.Service
}

// New creates the chat handler.
func New(chatSvc *chatService.Service, reportSvc *reportService.Service) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		reportSvc: reportSvc,
	}
}

// RegisterRoutes mounts the conversation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Post("/chat/{sessionID}", h.handleChat)
	r.Get("/report/{sessionID}", h.handleReport)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.chatSvc.ProcessMessage(r.Context(), sessionID, payload.Message)
	if err != nil {
		switch {
		case errors.Is(err, chatService.ErrEmptyMessage):
			respondError(w, http.StatusBadRequest, "empty message")
		case errors.Is(err, chatService.ErrSessionNotFound):
			respondError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, chatService.ErrSessionClosed):
			respondError(w, http.StatusConflict, "session closed")
		default:
			log.Printf("[chat] failed to process message: %v", err)
			respondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"bot":             result.Bot,
		"sentiment_label": result.SentimentLabel,
		"sentiment_score": result.SentimentScore,
	})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	turns, err := h.chatSvc.Transcript(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	report := h.reportSvc.Generate(r.Context(), turns)
	respondJSON(w, http.StatusOK, map[string]string{"report": report})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
