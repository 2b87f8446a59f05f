package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	analysis "github.com/mkrasov/sentichat/internal/analysis/sentiment"
	"github.com/mkrasov/sentichat/internal/model/conv"
	chatservice "github.com/mkrasov/sentichat/internal/service/chat"
	reportservice "github.com/mkrasov/sentichat/internal/service/report"
)

type stubReplier struct {
	reply string
}

func (s stubReplier) GenerateReply(_ context.Context, _ []conv.Turn, _ string) (string, error) {
	return s.reply, nil
}

type stubAnalyzer struct {
	result analysis.Result
}

func (s stubAnalyzer) Analyze(_ context.Context, _ string) analysis.Result {
	return s.result
}

type stubNarrative struct{}

func (stubNarrative) Generate(_ context.Context, _ string) (string, error) {
	return "The user stayed calm throughout.", nil
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startServer(t *testing.T, result analysis.Result) (*httptest.Server, *chatservice.Service) {
	t.Helper()
	chatSvc := chatservice.NewService(stubReplier{reply: "I hear you."}, stubAnalyzer{result: result})
	h := New(chatSvc, reportservice.New(stubNarrative{}))

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, chatSvc
}

func dial(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestConversationLoop(t *testing.T) {
	server, chatSvc := startServer(t, analysis.Result{Label: analysis.Positive, Score: 0.5})
	session, err := chatSvc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	conn := dial(t, server, session.ID)

	if err := conn.WriteJSON(map[string]string{"message": "I love this product"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	f := readFrame(t, conn)
	if f.Type != "message" {
		t.Fatalf("expected message frame, got %+v", f)
	}
	var turn struct {
		Bot            string  `json:"bot"`
		SentimentLabel string  `json:"sentiment_label"`
		SentimentScore float64 `json:"sentiment_score"`
	}
	if err := json.Unmarshal(f.Data, &turn); err != nil {
		t.Fatalf("decode turn: %v", err)
	}
	if turn.Bot != "I hear you." || turn.SentimentLabel != "Positive" || turn.SentimentScore != 0.5 {
		t.Fatalf("unexpected turn payload: %+v", turn)
	}
}

func TestExitPhrasePushesReportAndCloses(t *testing.T) {
	server, chatSvc := startServer(t, analysis.Result{Label: analysis.Neutral, Score: 0})
	session, err := chatSvc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	conn := dial(t, server, session.ID)

	if err := conn.WriteJSON(map[string]string{"message": "bye"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	f := readFrame(t, conn)
	if f.Type != "message" {
		t.Fatalf("expected message frame, got %+v", f)
	}
	var turn struct {
		Bot string `json:"bot"`
	}
	if err := json.Unmarshal(f.Data, &turn); err != nil {
		t.Fatalf("decode turn: %v", err)
	}
	if turn.Bot != chatservice.ExitAcknowledgment {
		t.Fatalf("expected exit acknowledgment, got %q", turn.Bot)
	}

	f = readFrame(t, conn)
	if f.Type != "report" {
		t.Fatalf("expected report frame, got %+v", f)
	}
	var payload struct {
		Report string `json:"report"`
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !strings.Contains(payload.Report, "Conversation Analysis Report") {
		t.Fatalf("report missing header: %q", payload.Report)
	}

	f = readFrame(t, conn)
	if f.Type != "closed" {
		t.Fatalf("expected closed frame, got %+v", f)
	}

	active, err := chatSvc.Active(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active {
		t.Fatalf("session should be closed after the exit phrase")
	}
}

func TestEmptyMessageKeepsLoopOpen(t *testing.T) {
	server, chatSvc := startServer(t, analysis.Result{Label: analysis.Neutral, Score: 0})
	session, err := chatSvc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	conn := dial(t, server, session.ID)

	if err := conn.WriteJSON(map[string]string{"message": "   "}); err != nil {
		t.Fatalf("write: %v", err)
	}

	f := readFrame(t, conn)
	if f.Type != "error" {
		t.Fatalf("expected error frame, got %+v", f)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Error != "empty message" {
		t.Fatalf("unexpected error payload: %+v", payload)
	}

	if err := conn.WriteJSON(map[string]string{"message": "still here"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, conn); f.Type != "message" {
		t.Fatalf("loop should continue after an empty message, got %+v", f)
	}
}

func TestUnknownSessionRejectedBeforeUpgrade(t *testing.T) {
	server, _ := startServer(t, analysis.Result{})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/missing"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatalf("expected handshake failure for unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
	resp.Body.Close()
}
