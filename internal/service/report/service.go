package report

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mkrasov/sentichat/internal/model/conv"
)

// NarrativeGenerator is the stateless model call used for the Tier-2/3
// narrative section.
type NarrativeGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service renders the post-hoc conversation analysis report.
type Service struct {
	generator NarrativeGenerator
}

// New creates a report service on top of a narrative generator.
func New(generator NarrativeGenerator) *Service {
	return &Service{generator: generator}
}

const (
	// aggregateThreshold separates the polar aggregate labels, inclusive at
	// the boundary.
	aggregateThreshold = 0.35

	noUserInputLabel = "Neutral (No user input)"
)

// AggregateLabel reduces the ordered user compound scores to one label.
func AggregateLabel(scores []float64) string {
	if len(scores) == 0 {
		return noUserInputLabel
	}

	avg := average(scores)
	switch {
	case avg >= aggregateThreshold:
		return "Positive"
	case avg <= -aggregateThreshold:
		return "Negative"
	default:
		return "Neutral"
	}
}

// Generate renders the full report for a transcript. The Tier-1 section is
// computed locally and is deterministic for an unmodified transcript; the
// Tier-2/3 narrative comes from the model and degrades to an inline error
// line when the call fails.
func (s *Service) Generate(ctx context.Context, turns []conv.Turn) string {
	scores := userScores(turns)
	banner := strings.Repeat("=", 70)

	var b strings.Builder
	b.WriteString("\n\n" + banner + "\n## Conversation Analysis Report (LLM-Enhanced)\n" + banner + "\n")
	b.WriteString("### TIER 1: Overall Emotional Direction (Calculated)\n")
	fmt.Fprintf(&b, "**Overall Sentiment:** **%s**\n", AggregateLabel(scores))

	if len(scores) > 0 {
		fmt.Fprintf(&b, "**Average Compound Score:** %.3f\n\n", average(scores))
	}

	b.WriteString("### TIER 2 & 3: Structured Conversation Analysis (Model-Generated)\n")
	if len(turns) > 0 {
		b.WriteString(s.narrative(ctx, turns))
	} else {
		b.WriteString("No conversation history available to generate a detailed summary.")
	}

	b.WriteString("\n" + banner + "\n")
	return b.String()
}

func (s *Service) narrative(ctx context.Context, turns []conv.Turn) string {
	text, err := s.generator.Generate(ctx, analystPrompt+FormatTranscript(turns))
	if err != nil {
		log.Printf("[report] narrative generation failed: %v", err)
		return fmt.Sprintf("\n--- LLM Summary Error: Could not generate detailed report due to API issue: %v ---", err)
	}
	return text
}

// FormatTranscript renders the transcript for the analyst prompt: user turns
// annotated with label and score, bot turns verbatim.
func FormatTranscript(turns []conv.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		if turn.Speaker == conv.SpeakerUser {
			lines = append(lines, fmt.Sprintf("User (Sentiment: %s / Score: %.3f): %s",
				turn.SentimentLabel, turn.SentimentScore, turn.Message))
		} else {
			lines = append(lines, fmt.Sprintf("Bot: %s", turn.Message))
		}
	}
	return strings.Join(lines, "\n")
}

func userScores(turns []conv.Turn) []float64 {
	scores := make([]float64, 0, len(turns)/2+1)
	for _, turn := range turns {
		if turn.Speaker == conv.SpeakerUser {
			scores = append(scores, turn.SentimentScore)
		}
	}
	return scores
}

func average(scores []float64) float64 {
	var sum float64
	for _, score := range scores {
		sum += score
	}
	return sum / float64(len(scores))
}

const analystPrompt = "You are an expert Conversation Analyst AI. Your task is to analyze the following multi-turn conversation. " +
	"The conversation history includes the sentiment label and score for each user turn. " +
	"Generate a comprehensive report with three distinct sections:\n\n" +
	"1. **Narrative Summary:** A concise, objective summary of the main topic and flow of the conversation.\n" +
	"2. **Sentiment Analysis & Trend:** Describe the user's emotional journey. Note the peak positive/negative moments and explain any shifts (e.g., did a negative mood improve after a certain bot response?).\n" +
	"3. **Conclusion & Recommendations:** Based on the flow, provide one specific, actionable recommendation for how the chatbot or a human agent could have handled a point in the conversation better, or what the user's ultimate goal or pain point was.\n\n" +
	"CONVERSATION TRANSCRIPT:\n"
