package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	analysis "github.com/mkrasov/sentichat/internal/analysis/sentiment"
	"github.com/mkrasov/sentichat/internal/model/conv"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrEmptyMessage    = errors.New("empty message")
)

// ReplyGenerator produces the bot side of a turn. history is the transcript
// before the current user turn; prompt already embeds the sentiment label.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, history []conv.Turn, prompt string) (string, error)
}

// Analyzer classifies a single user statement.
type Analyzer interface {
	Analyze(ctx context.Context, text string) analysis.Result
}

// Service owns conversation state: one append-only transcript and one active
// flag per session. Sessions are independent; the lock only guards the map
// so unrelated sessions can make progress concurrently.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState

	replier  ReplyGenerator
	analyzer Analyzer
}

type sessionState struct {
	session conv.Session
	turns   []conv.Turn
	active  bool
}

// TurnResult is what one processed user message yields.
type TurnResult struct {
	Bot            string
	SentimentLabel string
	SentimentScore float64
	SessionActive  bool
}

// NewService bootstraps the in-memory conversation service.
func NewService(replier ReplyGenerator, analyzer Analyzer) *Service {
	return &Service{
		sessions: make(map[string]*sessionState),
		replier:  replier,
		analyzer: analyzer,
	}
}

// CreateSession provisions a new conversation with an empty transcript.
func (s *Service) CreateSession(_ context.Context) (conv.Session, error) {
	session := conv.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = &sessionState{
		session: session,
		turns:   make([]conv.Turn, 0, 16),
		active:  true,
	}
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (conv.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return conv.Session{}, ErrSessionNotFound
	}
	return state.session, nil
}

// Active reports whether the session still accepts turns.
func (s *Service) Active(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return false, ErrSessionNotFound
	}
	return state.active, nil
}

// Transcript returns the full ordered transcript as a copy.
func (s *Service) Transcript(_ context.Context, sessionID string) ([]conv.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]conv.Turn, len(state.turns))
	copy(copied, state.turns)
	return copied, nil
}

// UserScores returns the ordered compound scores of the user turns.
func (s *Service) UserScores(_ context.Context, sessionID string) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	scores := make([]float64, 0, len(state.turns)/2+1)
	for _, turn := range state.turns {
		if turn.Speaker == conv.SpeakerUser {
			scores = append(scores, turn.SentimentScore)
		}
	}
	return scores, nil
}

// AppendUserTurn records a classified user message.
func (s *Service) AppendUserTurn(_ context.Context, sessionID, message string, result analysis.Result) (conv.Turn, error) {
	return s.append(conv.Turn{
		SessionID:      sessionID,
		Speaker:        conv.SpeakerUser,
		Message:        message,
		SentimentScore: result.Score,
		SentimentLabel: string(result.Label),
	})
}

// AppendBotTurn records a bot reply with the fixed sentiment sentinels.
func (s *Service) AppendBotTurn(_ context.Context, sessionID, message string) (conv.Turn, error) {
	return s.append(conv.Turn{
		SessionID:      sessionID,
		Speaker:        conv.SpeakerBot,
		Message:        message,
		SentimentScore: 0.0,
		SentimentLabel: string(analysis.Neutral),
	})
}

// CloseSession marks the session inactive. The transcript stays readable for
// report generation; further appends are rejected.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	state.active = false
	return nil
}

// ProcessMessage runs one full turn: the message is classified and recorded,
// a reply is obtained and recorded, and the session is closed when an exit
// phrase ended it. The message must be non-empty after trimming.
func (s *Service) ProcessMessage(ctx context.Context, sessionID, raw string) (TurnResult, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return TurnResult{}, ErrEmptyMessage
	}

	history, err := s.activeTranscript(sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	result := s.analyzer.Analyze(ctx, text)
	if _, err := s.AppendUserTurn(ctx, sessionID, text, result); err != nil {
		return TurnResult{}, err
	}

	reply, continues := s.Respond(ctx, history, text, result.Label)
	if _, err := s.AppendBotTurn(ctx, sessionID, reply); err != nil {
		return TurnResult{}, err
	}

	if !continues {
		if err := s.CloseSession(ctx, sessionID); err != nil {
			return TurnResult{}, err
		}
	}

	return TurnResult{
		Bot:            reply,
		SentimentLabel: string(result.Label),
		SentimentScore: result.Score,
		SessionActive:  continues,
	}, nil
}

func (s *Service) append(turn conv.Turn) (conv.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[turn.SessionID]
	if !ok {
		return conv.Turn{}, ErrSessionNotFound
	}
	if !state.active {
		return conv.Turn{}, ErrSessionClosed
	}

	turn.ID = uuid.NewString()
	turn.CreatedAt = time.Now().UTC()
	state.turns = append(state.turns, turn)
	return turn, nil
}

func (s *Service) activeTranscript(sessionID string) ([]conv.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !state.active {
		return nil, ErrSessionClosed
	}

	copied := make([]conv.Turn, len(state.turns))
	copy(copied, state.turns)
	return copied, nil
}
