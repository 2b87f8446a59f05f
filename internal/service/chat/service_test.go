package chat_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	analysis "github.com/mkrasov/sentichat/internal/analysis/sentiment"
	"github.com/mkrasov/sentichat/internal/model/conv"
	chat "github.com/mkrasov/sentichat/internal/service/chat"
)

type fakeReplier struct {
	reply      string
	err        error
	calls      int
	lastPrompt string
}

func (f *fakeReplier) GenerateReply(_ context.Context, _ []conv.Turn, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	return f.reply, f.err
}

type fakeAnalyzer struct {
	result analysis.Result
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string) analysis.Result {
	return f.result
}

func newService(replier *fakeReplier, result analysis.Result) *chat.Service {
	return chat.NewService(replier, &fakeAnalyzer{result: result})
}

func TestProcessMessageAppendsTurnsInOrder(t *testing.T) {
	replier := &fakeReplier{reply: "Glad to hear it!"}
	svc := newService(replier, analysis.Result{Label: analysis.Positive, Score: 0.6})
	ctx := context.Background()

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	messages := []string{"today went really well", "the demo worked too"}
	for _, msg := range messages {
		if _, err := svc.ProcessMessage(ctx, session.ID, msg); err != nil {
			t.Fatalf("ProcessMessage(%q) err: %v", msg, err)
		}
	}

	turns, err := svc.Transcript(ctx, session.ID)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}

	wantSpeakers := []conv.Speaker{conv.SpeakerUser, conv.SpeakerBot, conv.SpeakerUser, conv.SpeakerBot}
	for i, turn := range turns {
		if turn.Speaker != wantSpeakers[i] {
			t.Fatalf("turn %d: expected speaker %s, got %s", i, wantSpeakers[i], turn.Speaker)
		}
	}
	if turns[0].Message != messages[0] || turns[2].Message != messages[1] {
		t.Fatal("user turns out of append order")
	}
}

func TestBotTurnsCarrySentinelSentiment(t *testing.T) {
	replier := &fakeReplier{reply: "I hear you."}
	svc := newService(replier, analysis.Result{Label: analysis.Negative, Score: -0.7})
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx)
	if _, err := svc.ProcessMessage(ctx, session.ID, "everything is broken"); err != nil {
		t.Fatalf("ProcessMessage err: %v", err)
	}

	turns, _ := svc.Transcript(ctx, session.ID)
	bot := turns[1]
	if bot.SentimentScore != 0.0 || bot.SentimentLabel != string(analysis.Neutral) {
		t.Fatalf("bot turn sentiment not sentinel: score=%f label=%s", bot.SentimentScore, bot.SentimentLabel)
	}
	user := turns[0]
	if user.SentimentScore != -0.7 || user.SentimentLabel != string(analysis.Negative) {
		t.Fatalf("user turn lost classification: score=%f label=%s", user.SentimentScore, user.SentimentLabel)
	}
}

func TestProcessMessageRejectsEmptyInput(t *testing.T) {
	svc := newService(&fakeReplier{reply: "hi"}, analysis.Result{Label: analysis.Neutral})
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx)

	if _, err := svc.ProcessMessage(ctx, session.ID, "   \t "); !errors.Is(err, chat.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	turns, _ := svc.Transcript(ctx, session.ID)
	if len(turns) != 0 {
		t.Fatalf("rejected input must not reach the transcript, got %d turns", len(turns))
	}
}

func TestRespondExitVocabularySkipsModel(t *testing.T) {
	replier := &fakeReplier{reply: "should never be used"}
	svc := newService(replier, analysis.Result{Label: analysis.Neutral})

	for _, phrase := range []string{"bye", "BYE", "Exit", "quit", "END", "  end  "} {
		reply, continues := svc.Respond(context.Background(), nil, phrase, analysis.Neutral)
		if continues {
			t.Fatalf("exit phrase %q did not signal termination", phrase)
		}
		if reply != chat.ExitAcknowledgment {
			t.Fatalf("exit phrase %q: unexpected reply %q", phrase, reply)
		}
	}

	if replier.calls != 0 {
		t.Fatalf("exit phrases must not contact the reply service, saw %d calls", replier.calls)
	}
}

func TestRespondEmbedsSentimentInPrompt(t *testing.T) {
	replier := &fakeReplier{reply: "nice"}
	svc := newService(replier, analysis.Result{})

	svc.Respond(context.Background(), nil, "the release shipped", analysis.Positive)

	want := fmt.Sprintf("Sentiment detected: %s. User message: %s", analysis.Positive, "the release shipped")
	if replier.lastPrompt != want {
		t.Fatalf("prompt mismatch:\n got  %q\n want %q", replier.lastPrompt, want)
	}
}

func TestRespondFailureDegradesToApology(t *testing.T) {
	replier := &fakeReplier{err: errors.New("upstream timeout")}
	svc := newService(replier, analysis.Result{})

	reply, continues := svc.Respond(context.Background(), nil, "hello there", analysis.Neutral)
	if !continues {
		t.Fatal("a failed call must not end the session")
	}
	if reply != chat.ApologyReply {
		t.Fatalf("expected apology reply, got %q", reply)
	}
	if replier.calls != 1 {
		t.Fatalf("expected exactly one attempt, saw %d", replier.calls)
	}
}

func TestSessionTerminalAfterExit(t *testing.T) {
	svc := newService(&fakeReplier{reply: "hi"}, analysis.Result{Label: analysis.Neutral})
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx)

	result, err := svc.ProcessMessage(ctx, session.ID, "bye")
	if err != nil {
		t.Fatalf("ProcessMessage err: %v", err)
	}
	if result.SessionActive {
		t.Fatal("session should be inactive after exit phrase")
	}
	if result.Bot != chat.ExitAcknowledgment {
		t.Fatalf("unexpected closing reply: %q", result.Bot)
	}

	if _, err := svc.ProcessMessage(ctx, session.ID, "one more thing"); !errors.Is(err, chat.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after termination, got %v", err)
	}

	// The transcript stays readable for report generation.
	turns, err := svc.Transcript(ctx, session.ID)
	if err != nil {
		t.Fatalf("Transcript err after close: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected closing exchange preserved, got %d turns", len(turns))
	}
}

func TestUserScoresOrdered(t *testing.T) {
	analyzer := &sequenceAnalyzer{scores: []float64{0.4, -0.2, 0.1}}
	svc := chat.NewService(&fakeReplier{reply: "ok"}, analyzer)
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx)

	for _, msg := range []string{"first", "second", "third"} {
		if _, err := svc.ProcessMessage(ctx, session.ID, msg); err != nil {
			t.Fatalf("ProcessMessage err: %v", err)
		}
	}

	scores, err := svc.UserScores(ctx, session.ID)
	if err != nil {
		t.Fatalf("UserScores err: %v", err)
	}
	want := []float64{0.4, -0.2, 0.1}
	if len(scores) != len(want) {
		t.Fatalf("expected %d scores, got %d", len(want), len(scores))
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Fatalf("score %d: got %f want %f", i, scores[i], want[i])
		}
	}
}

func TestSessionNotFound(t *testing.T) {
	svc := newService(&fakeReplier{}, analysis.Result{})
	ctx := context.Background()

	if _, err := svc.ProcessMessage(ctx, "missing", "hello"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.Transcript(ctx, "missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound from Transcript, got %v", err)
	}
}

type sequenceAnalyzer struct {
	scores []float64
	next   int
}

func (f *sequenceAnalyzer) Analyze(_ context.Context, _ string) analysis.Result {
	score := f.scores[f.next%len(f.scores)]
	f.next++
	return analysis.Result{Label: analysis.Neutral, Score: score}
}
