package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	analysis "github.com/mkrasov/sentichat/internal/analysis/sentiment"
)

// Config controls the classification adapter.
type Config struct {
	Enabled       bool
	MaxInputRunes int
}

// Service classifies user statements. When enabled it asks the chat model
// for a label and compound score; any failure on that path falls back to the
// in-process lexicon, so Analyze never fails a turn.
type Service struct {
	enabled    bool
	classifier compose.Runnable[map[string]any, *schema.Message]
	fallback   func(text string) analysis.Result
	maxInput   int
}

// NewService creates the classification adapter. chatModel may reuse the
// instance already built for reply generation.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	maxInput := cfg.MaxInputRunes
	if maxInput <= 0 {
		maxInput = 512
	}

	svc := &Service{
		enabled:  cfg.Enabled && chatModel != nil,
		fallback: analysis.Analyze,
		maxInput: maxInput,
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile sentiment classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled reports whether the LLM classification path is active.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Analyze classifies a single statement. Input beyond the configured rune
// budget is truncated from the tail before classification.
func (s *Service) Analyze(ctx context.Context, text string) analysis.Result {
	statement := s.truncate(strings.TrimSpace(text))

	if !s.Enabled() {
		return s.fallback(statement)
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{"statement": statement})
	if err != nil {
		log.Printf("[sentiment] classifier invoke failed, using lexicon fallback: %v", err)
		return s.fallback(statement)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return s.fallback(statement)
	}

	result, err := parseClassifierOutput(msg.Content)
	if err != nil {
		log.Printf("[sentiment] classifier output parse failed, using lexicon fallback: %v", err)
		return s.fallback(statement)
	}

	label, ok := parseLabel(result.Label)
	if !ok {
		return s.fallback(statement)
	}

	return analysis.Result{Label: label, Score: clampScore(result.Score)}
}

func (s *Service) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= s.maxInput {
		return text
	}
	return string(runes[:s.maxInput])
}

// parseClassifierOutput extracts the JSON object from the model reply.
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func parseLabel(raw string) (analysis.Label, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "negative":
		return analysis.Negative, true
	case "neutral":
		return analysis.Neutral, true
	case "positive":
		return analysis.Positive, true
	default:
		return "", false
	}
}

func clampScore(val float64) float64 {
	if val < -1 {
		return -1
	}
	if val > 1 {
		return 1
	}
	return val
}

type classifierPayload struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

const classifierSystemPrompt = "You are a sentiment classifier. Read the user statement and return " +
	"exactly one JSON object with two fields: label (one of Negative, Neutral, Positive) and " +
	"score (the compound polarity between -1 and 1, positive evidence minus negative evidence). " +
	"Do not output anything besides the JSON object."

const classifierUserPrompt = "Statement:\n{statement}\n\nReturn the JSON."
