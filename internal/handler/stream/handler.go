package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/mkrasov/sentichat/pkg/utils"

	"github.com/mkrasov/sentichat/internal/model/conv"
	chatService "github.com/mkrasov/sentichat/internal/service/chat"
)

// ReplyStreamer produces the bot reply as a token stream.
type ReplyStreamer interface {
	StreamReply(ctx context.Context, history []conv.Turn, prompt string) (*schema.StreamReader[*schema.Message], error)
}

// Handler streams one chat turn over Server-Sent Events: first a sentiment
// frame, then reply chunks as the model produces them, then an end frame.
// The recorded transcript matches what the blocking endpoint would produce.
type Handler struct {
	replier  ReplyStreamer
	chatSvc  *chatService.Service
	analyzer chatService.Analyzer
}

// New creates a new stream handler.
func New(replier ReplyStreamer, chatSvc *chatService.Service, analyzer chatService.Analyzer) *Handler {
	return &Handler{
		replier:  replier,
		chatSvc:  chatSvc,
		analyzer: analyzer,
	}
}

// Frame is one streamed response chunk.
type Frame struct {
	Event     string  `json:"event"`
	Content   string  `json:"content,omitempty"`
	SessionID string  `json:"sessionId,omitempty"`
	Label     string  `json:"label,omitempty"`
	Score     float64 `json:"score"`
	Finished  bool    `json:"finished"`
	Error     string  `json:"error,omitempty"`
}

// HandleStreamRequest processes one streaming chat turn.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	text := strings.TrimSpace(userMessage)
	if text == "" {
		h.sendError(w, flusher, sessionID, "empty message")
		return chatService.ErrEmptyMessage
	}

	active, err := h.chatSvc.Active(ctx, sessionID)
	if err != nil {
		h.sendError(w, flusher, sessionID, "session not found")
		return err
	}
	if !active {
		h.sendError(w, flusher, sessionID, "session closed")
		return chatService.ErrSessionClosed
	}

	history, err := h.chatSvc.Transcript(ctx, sessionID)
	if err != nil {
		h.sendError(w, flusher, sessionID, "failed to load transcript")
		return err
	}

	result := h.analyzer.Analyze(ctx, text)
	utils.SendSSEChunk(w, flusher, Frame{
		Event:     "sentiment",
		SessionID: sessionID,
		Label:     string(result.Label),
		Score:     result.Score,
	})

	if _, err := h.chatSvc.AppendUserTurn(ctx, sessionID, text, result); err != nil {
		h.sendError(w, flusher, sessionID, "failed to record message")
		return err
	}

	if chatService.IsExitPhrase(text) {
		return h.finishTurn(ctx, w, flusher, sessionID, chatService.ExitAcknowledgment, true)
	}

	reply, sent := h.streamReply(ctx, w, flusher, sessionID, history, chatService.BuildPrompt(result.Label, text))
	if !sent {
		utils.SendSSEChunk(w, flusher, Frame{Event: "message", SessionID: sessionID, Content: reply})
	}
	if _, err := h.chatSvc.AppendBotTurn(ctx, sessionID, reply); err != nil {
		log.Printf("[stream] failed to save bot turn: %v", err)
	}

	utils.SendSSEChunk(w, flusher, Frame{Event: "end", SessionID: sessionID, Finished: true})
	log.Printf("[stream] completed turn for session=%s", sessionID)
	return nil
}

// streamReply runs the model stream and forwards chunks as they arrive. It
// returns the full reply text and whether any content frame was already sent.
// Failures degrade to the canned apology, matching the blocking path.
func (h *Handler) streamReply(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, history []conv.Turn, prompt string) (string, bool) {
	stream, err := h.replier.StreamReply(ctx, history, prompt)
	if err != nil {
		log.Printf("[stream] reply generation failed: %v", err)
		return chatService.ApologyReply, false
	}
	defer stream.Close()

	var b strings.Builder
	sent := false
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("[stream] recv failed mid-stream: %v", err)
			break
		}
		if msg.Content == "" {
			continue
		}
		b.WriteString(msg.Content)
		utils.SendSSEChunk(w, flusher, Frame{Event: "message", SessionID: sessionID, Content: msg.Content})
		sent = true
	}

	reply := strings.TrimSpace(b.String())
	if reply == "" {
		return chatService.ApologyReply, false
	}
	return reply, sent
}

func (h *Handler) finishTurn(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID, reply string, closeSession bool) error {
	utils.SendSSEChunk(w, flusher, Frame{Event: "message", SessionID: sessionID, Content: reply})

	if _, err := h.chatSvc.AppendBotTurn(ctx, sessionID, reply); err != nil {
		log.Printf("[stream] failed to save bot turn: %v", err)
	}
	if closeSession {
		if err := h.chatSvc.CloseSession(ctx, sessionID); err != nil {
			log.Printf("[stream] failed to close session: %v", err)
		}
	}

	utils.SendSSEChunk(w, flusher, Frame{Event: "end", SessionID: sessionID, Finished: true})
	return nil
}

func (h *Handler) sendError(w http.ResponseWriter, flusher http.Flusher, sessionID, message string) {
	utils.SendSSEChunk(w, flusher, Frame{Event: "error", SessionID: sessionID, Error: message})
}
