package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/mkrasov/sentichat/internal/config"
	"github.com/mkrasov/sentichat/internal/model/conv"
)

// replySystemPrompt is the fixed instruction carried by every chat session.
const replySystemPrompt = "You are a conversational, empathetic, and highly efficient AI chatbot. " +
	"Your responses should be brief, friendly, and directly address the user's " +
	"latest statement, taking the conversation context into account. " +
	"A user's sentiment is provided for context. Do not mention the sentiment " +
	"label (Negative, Positive, Neutral) in your response, just react naturally " +
	"to the emotional tone."

// analysisTemperature keeps the report narrative analytical rather than creative.
const analysisTemperature = 0.4

// Service wraps the generative model behind two call shapes: a contextual
// reply chain fed with session history, and a stateless analysis chain used
// for report narratives.
type Service struct {
	chatModel     model.ChatModel
	cfg           config.AIConfig
	replyChain    compose.Runnable[map[string]any, *schema.Message]
	analysisChain compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the AI service from configuration. It fails when the
// model credentials are missing or either chain cannot be compiled.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	replyTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	replyChain := compose.NewChain[map[string]any, *schema.Message]()
	replyChain.AppendChatTemplate(replyTemplate)
	replyChain.AppendChatModel(chatModel)

	reply, err := replyChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	// The analysis chain runs on a dedicated model handle pinned to a low
	// temperature, independent of whatever ARK_TEMPERATURE is set to.
	analysisModel, err := cfg.WithTemperature(analysisTemperature).NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis model: %w", err)
	}

	analysisTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage("{prompt}"),
	)

	analysisChain := compose.NewChain[map[string]any, *schema.Message]()
	analysisChain.AppendChatTemplate(analysisTemplate)
	analysisChain.AppendChatModel(analysisModel)

	analysis, err := analysisChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile analysis chain: %w", err)
	}

	return &Service{
		chatModel:     chatModel,
		cfg:           cfg,
		replyChain:    reply,
		analysisChain: analysis,
	}, nil
}

// StreamingEnabled indicates whether SSE streaming output is turned on.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// ChatModel exposes the underlying model so other services can reuse it.
func (s *Service) ChatModel() model.ChatModel {
	return s.chatModel
}

// GenerateReply produces the next bot message. history is the transcript up
// to, but not including, the current user turn; prompt is the
// sentiment-augmented user message.
func (s *Service) GenerateReply(ctx context.Context, history []conv.Turn, prompt string) (string, error) {
	response, err := s.replyChain.Invoke(ctx, s.buildReplyInput(history, prompt))
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}

	log.Printf("[ai] generated reply, length=%d", len(response.Content))
	return strings.TrimSpace(response.Content), nil
}

// StreamReply streams the next bot message chunk by chunk.
func (s *Service) StreamReply(ctx context.Context, history []conv.Turn, prompt string) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	stream, err := s.replyChain.Stream(ctx, s.buildReplyInput(history, prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to stream reply chain output: %w", err)
	}

	return stream, nil
}

// Generate runs a one-shot prompt with no session context, at the analysis
// temperature. Used for report narratives.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := s.analysisChain.Invoke(ctx, map[string]any{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("failed to run analysis chain: %w", err)
	}

	return strings.TrimSpace(response.Content), nil
}

func (s *Service) buildReplyInput(history []conv.Turn, prompt string) map[string]any {
	return map[string]any{
		"system":  replySystemPrompt,
		"history": buildHistoryMessages(history),
		"query":   prompt,
	}
}

func buildHistoryMessages(turns []conv.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Speaker {
		case conv.SpeakerUser:
			history = append(history, schema.UserMessage(turn.Message))
		case conv.SpeakerBot:
			history = append(history, schema.AssistantMessage(turn.Message, nil))
		}
	}

	return history
}
