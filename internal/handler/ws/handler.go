package ws

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chatService "github.com/mkrasov/sentichat/internal/service/chat"
	reportService "github.com/mkrasov/sentichat/internal/service/report"
)

// Handler runs an interactive conversation loop over a WebSocket: the client
// sends message frames, the server answers with classified turns, and an
// exit phrase ends the loop with the final report pushed before close.
type Handler struct {
	chatSvc   *chatService.Service
	reportSvc *reportService.Service
	upgrader  websocket.Upgrader
}

// New creates the WebSocket handler.
func New(chatSvc *chatService.Service, reportSvc *reportService.Service) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		reportSvc: reportSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the WebSocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundFrame struct {
	Message string `json:"message"`
}

type outboundFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type turnPayload struct {
	Bot            string  `json:"bot"`
	SentimentLabel string  `json:"sentiment_label"`
	SentimentScore float64 `json:"sentiment_score"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] conversation loop opened for session=%s", sessionID)
	ctx := r.Context()

	for {
		var in inboundFrame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read failed for session=%s: %v", sessionID, err)
			}
			return
		}

		result, err := h.chatSvc.ProcessMessage(ctx, sessionID, in.Message)
		if err != nil {
			h.writeError(conn, err)
			if errors.Is(err, chatService.ErrEmptyMessage) {
				continue
			}
			return
		}

		h.write(conn, outboundFrame{Type: "message", Data: turnPayload{
			Bot:            result.Bot,
			SentimentLabel: result.SentimentLabel,
			SentimentScore: result.SentimentScore,
		}})

		if !result.SessionActive {
			h.sendReport(ctx, conn, sessionID)
			h.write(conn, outboundFrame{Type: "closed"})
			return
		}
	}
}

func (h *Handler) sendReport(ctx context.Context, conn *websocket.Conn, sessionID string) {
	turns, err := h.chatSvc.Transcript(ctx, sessionID)
	if err != nil {
		log.Printf("[ws] failed to load transcript for report: %v", err)
		return
	}

	report := h.reportSvc.Generate(ctx, turns)
	h.write(conn, outboundFrame{Type: "report", Data: map[string]string{"report": report}})
}

func (h *Handler) write(conn *websocket.Conn, frame outboundFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		log.Printf("[ws] write failed: %v", err)
	}
}

func (h *Handler) writeError(conn *websocket.Conn, err error) {
	message := "internal server error"
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		message = "empty message"
	case errors.Is(err, chatService.ErrSessionNotFound):
		message = "session not found"
	case errors.Is(err, chatService.ErrSessionClosed):
		message = "session closed"
	}
	h.write(conn, outboundFrame{Type: "error", Data: map[string]string{"error": message}})
}
