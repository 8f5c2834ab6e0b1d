package services

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/cdipaolo/sentiment"
	"github.com/rs/zerolog/log"
)

const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// sentimentBand is the |score| below which a text counts as neutral.
const sentimentBand = 0.25

// Sentiment is the distribution of scored texts plus their mean score.
type Sentiment struct {
	Positive int     `json:"positive"`
	Neutral  int     `json:"neutral"`
	Negative int     `json:"negative"`
	Average  float64 `json:"average"`
}

// TextSentiment is the verdict for one text. Score lies in [-1, 1].
type TextSentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type KeywordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// SentimentScorer rates a single free-text answer.
type SentimentScorer interface {
	Score(text string) TextSentiment
}

// SentimentFunc adapts a plain function to SentimentScorer.
type SentimentFunc func(text string) TextSentiment

func (f SentimentFunc) Score(text string) TextSentiment { return f(text) }

// bayesScorer wraps the pretrained naive Bayes model shipped with
// cdipaolo/sentiment. The model is restored on first use.
type bayesScorer struct {
	once  sync.Once
	model sentiment.Models
	err   error
}

var defaultScorer = &bayesScorer{}

// DefaultSentimentScorer returns the shared model-backed scorer.
func DefaultSentimentScorer() SentimentScorer { return defaultScorer }

// Score combines the document polarity with the share of positive words:
// score = 2*positiveWords/words - 1. A text is only positive or negative when
// both signals agree and the score clears the neutral band.
func (b *bayesScorer) Score(text string) TextSentiment {
	if strings.TrimSpace(text) == "" {
		return TextSentiment{Label: SentimentNeutral}
	}
	b.once.Do(func() {
		b.model, b.err = sentiment.Restore()
		if b.err != nil {
			log.Error().Err(b.err).Msg("restore sentiment model")
		}
	})
	if b.err != nil {
		return TextSentiment{Label: SentimentNeutral}
	}
	analysis := b.model.SentimentAnalysis(text, sentiment.English)
	if analysis == nil || len(analysis.Words) == 0 {
		return TextSentiment{Label: SentimentNeutral}
	}
	pos := 0
	for _, w := range analysis.Words {
		if w.Score == 1 {
			pos++
		}
	}
	score := round2(2*float64(pos)/float64(len(analysis.Words)) - 1)
	label := SentimentNeutral
	switch {
	case analysis.Score == 1 && score >= sentimentBand:
		label = SentimentPositive
	case analysis.Score == 0 && score <= -sentimentBand:
		label = SentimentNegative
	}
	return TextSentiment{Label: label, Score: score}
}

// labelFor buckets an aggregate score with the same neutral band.
func labelFor(score float64) string {
	switch {
	case score >= sentimentBand:
		return SentimentPositive
	case score <= -sentimentBand:
		return SentimentNegative
	}
	return SentimentNeutral
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// AnalyzeSentiment scores texts with the default model.
func AnalyzeSentiment(texts []string) Sentiment {
	return analyzeWith(defaultScorer, texts)
}

func analyzeWith(scorer SentimentScorer, texts []string) Sentiment {
	var s Sentiment
	total := 0.0
	for _, t := range texts {
		v := scorer.Score(t)
		s.add(v)
		total += v.Score
	}
	if len(texts) > 0 {
		s.Average = round2(total / float64(len(texts)))
	}
	return s
}

func (s *Sentiment) add(v TextSentiment) {
	switch v.Label {
	case SentimentPositive:
		s.Positive++
	case SentimentNegative:
		s.Negative++
	default:
		s.Neutral++
	}
}

var stopWords = wordSet(`the and for are but not you your with this that have has had was were
will would could should can its it's our out all any just very too than then them they their there
what when where which who why how from into about more most some such only also been being over
under again once here each few other same both does did doing yes`)

func wordSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

// TopKeywords counts words of three or more letters, ignoring stop words.
func TopKeywords(texts []string, limit int) []KeywordCount {
	counts := map[string]int{}
	for _, t := range texts {
		for _, w := range tokenize(t) {
			w = strings.Trim(w, "'")
			if len([]rune(w)) < 3 {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			counts[w]++
		}
	}
	out := make([]KeywordCount, 0, len(counts))
	for w, n := range counts {
		out = append(out, KeywordCount{Word: w, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
