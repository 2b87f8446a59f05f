package conv

import "time"

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser Speaker = "User"
	SpeakerBot  Speaker = "Bot"
)

// Turn is one exchange unit in a conversation transcript. User turns carry
// the classifier output; bot turns always carry the 0.0/Neutral sentinels.
type Turn struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	Speaker        Speaker   `json:"speaker"`
	Message        string    `json:"message"`
	SentimentScore float64   `json:"sentimentScore"`
	SentimentLabel string    `json:"sentimentLabel"`
	CreatedAt      time.Time `json:"createdAt"`
}
