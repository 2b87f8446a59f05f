package chat

import (
	"context"
	"fmt"
	"log"
	"strings"

	analysis "github.com/mkrasov/sentichat/internal/analysis/sentiment"
	"github.com/mkrasov/sentichat/internal/model/conv"
)

const (
	// ExitAcknowledgment closes a conversation after an exit phrase. No model
	// call is made for this turn.
	ExitAcknowledgment = "Thank you for sharing your thoughts! I'm ready to generate the sentiment report now."

	// ApologyReply stands in for the model answer when reply generation
	// fails. One failed call yields one degraded response; there is no retry.
	ApologyReply = "I apologize, I've run into an issue processing your request. Could you try rephrasing that?"
)

var exitVocabulary = map[string]struct{}{
	"bye":  {},
	"exit": {},
	"quit": {},
	"end":  {},
}

// IsExitPhrase matches the exit vocabulary case-insensitively.
func IsExitPhrase(text string) bool {
	_, ok := exitVocabulary[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// BuildPrompt embeds the detected sentiment alongside the literal user text
// so the model can react to the emotional tone.
func BuildPrompt(label analysis.Label, text string) string {
	return fmt.Sprintf("Sentiment detected: %s. User message: %s", label, text)
}

// Respond decides the bot side of one turn. It returns the reply text and
// whether the session continues. Model failures never escape this boundary;
// they degrade to the canned apology.
func (s *Service) Respond(ctx context.Context, history []conv.Turn, userText string, label analysis.Label) (string, bool) {
	if IsExitPhrase(userText) {
		return ExitAcknowledgment, false
	}

	reply, err := s.replier.GenerateReply(ctx, history, BuildPrompt(label, userText))
	if err != nil {
		log.Printf("[chat] reply generation failed: %v", err)
		return ApologyReply, true
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		log.Printf("[chat] reply generation returned empty content")
		return ApologyReply, true
	}

	return reply, true
}
