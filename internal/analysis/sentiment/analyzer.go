package sentiment

import (
	"math"
	"strings"
	"unicode"
)

// Label is the three-way polarity classification of a statement.
type Label string

const (
	Negative Label = "Negative"
	Neutral  Label = "Neutral"
	Positive Label = "Positive"
)

// Result carries the classification for a single statement. Score is the
// compound polarity (positive evidence minus negative evidence) normalized
// into [-1, 1].
type Result struct {
	Label Label
	Score float64
}

var positiveWords = map[string]struct{}{
	"good": {}, "great": {}, "awesome": {}, "amazing": {}, "excellent": {},
	"fantastic": {}, "wonderful": {}, "love": {}, "loved": {}, "like": {},
	"happy": {}, "glad": {}, "pleased": {}, "delighted": {}, "thanks": {},
	"thank": {}, "helpful": {}, "nice": {}, "perfect": {}, "best": {},
	"enjoy": {}, "enjoyed": {}, "brilliant": {}, "superb": {}, "cool": {},
	"excited": {}, "fun": {}, "beautiful": {}, "impressive": {}, "satisfied": {},
	"better": {}, "win": {}, "won": {}, "yay": {}, "appreciate": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "terrible": {}, "awful": {}, "horrible": {}, "worst": {},
	"hate": {}, "hated": {}, "angry": {}, "furious": {}, "annoyed": {},
	"annoying": {}, "sad": {}, "unhappy": {}, "upset": {}, "disappointed": {},
	"disappointing": {}, "frustrated": {}, "frustrating": {}, "broken": {},
	"useless": {}, "wrong": {}, "fail": {}, "failed": {}, "failure": {},
	"problem": {}, "issue": {}, "slow": {}, "poor": {}, "worse": {},
	"cry": {}, "pain": {}, "painful": {}, "lost": {}, "stuck": {}, "confusing": {},
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "hardly": {}, "barely": {},
	"dont": {}, "doesnt": {}, "didnt": {}, "cant": {}, "cannot": {},
	"wont": {}, "isnt": {}, "wasnt": {}, "arent": {}, "werent": {},
}

const (
	// labelThreshold separates Neutral from the polar labels.
	labelThreshold = 0.05
	// normalization flattens the token-count evidence into [-1, 1].
	normalization = 4.0
	// negationWindow is how many tokens back a negation still flips polarity.
	negationWindow = 2
)

// Analyze classifies a single statement with the keyword lexicon. It never
// fails: text without polar vocabulary comes back Neutral with score 0.
func Analyze(text string) Result {
	tokens := tokenize(text)

	var evidence float64
	for i, token := range tokens {
		var weight float64
		if _, ok := positiveWords[token]; ok {
			weight = 1
		} else if _, ok := negativeWords[token]; ok {
			weight = -1
		} else {
			continue
		}
		if negatedAt(tokens, i) {
			weight = -weight
		}
		evidence += weight
	}

	// Exclamation marks intensify whichever polarity already dominates.
	if bangs := strings.Count(text, "!"); bangs > 0 && evidence != 0 {
		boost := math.Min(float64(bangs), 3) * 0.25
		if evidence > 0 {
			evidence += boost
		} else {
			evidence -= boost
		}
	}

	if evidence == 0 {
		return Result{Label: Neutral, Score: 0}
	}

	score := evidence / math.Sqrt(evidence*evidence+normalization)
	return Result{Label: labelFor(score), Score: score}
}

func labelFor(score float64) Label {
	switch {
	case score >= labelThreshold:
		return Positive
	case score <= -labelThreshold:
		return Negative
	default:
		return Neutral
	}
}

func tokenize(text string) []string {
	normalized := strings.ToLower(strings.ReplaceAll(text, "'", ""))
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func negatedAt(tokens []string, idx int) bool {
	start := idx - negationWindow
	if start < 0 {
		start = 0
	}
	for _, token := range tokens[start:idx] {
		if _, ok := negations[token]; ok {
			return true
		}
	}
	return false
}
