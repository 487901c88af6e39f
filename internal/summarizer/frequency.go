// Package summarizer condenses conversation text into a few representative
// sentences.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	DefaultMaxSentences = 5
	DefaultRecencyBoost = 1.5
)

// FrequencySummarizer is extractive: sentences are scored by the normalized
// frequency of their content words and the best ones are kept in the order
// they were written. Repeated sentences count once.
type FrequencySummarizer struct {
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
	recencyBoost    float64
}

// Option configures a FrequencySummarizer.
type Option func(*FrequencySummarizer)

// WithRecencyBoost sets the score multiplier for sentences of the newest turn
// in SummarizeTurn. Values below 1 are ignored.
func WithRecencyBoost(f float64) Option {
	return func(s *FrequencySummarizer) {
		if f >= 1 {
			s.recencyBoost = f
		}
	}
}

func NewFrequencySummarizer(opts ...Option) *FrequencySummarizer {
	s := &FrequencySummarizer{
		tokenPattern:    regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		sentencePattern: regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`),
		stopwords:       defaultStopwords(),
		recencyBoost:    DefaultRecencyBoost,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type sentence struct {
	text   string
	tokens []string
	recent bool
}

// Summarize keeps the maxSentences highest scoring sentences of text.
// Sentences are joined by a single space.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	seen := map[string]struct{}{}
	return s.pick(s.split(text, false, seen), maxSentences), nil
}

// SummarizeTurn folds turn into the previous summary. Sentences of the turn
// are boosted so the summary follows the conversation instead of settling on
// its oldest topic.
func (s *FrequencySummarizer) SummarizeTurn(previous, turn string, maxSentences int) (string, error) {
	seen := map[string]struct{}{}
	sents := s.split(previous, false, seen)
	sents = append(sents, s.split(turn, true, seen)...)
	return s.pick(sents, maxSentences), nil
}

func (s *FrequencySummarizer) split(text string, recent bool, seen map[string]struct{}) []sentence {
	var out []sentence
	for _, raw := range s.sentencePattern.FindAllString(text, -1) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key := strings.ToLower(raw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, sentence{
			text:   raw,
			tokens: s.tokenPattern.FindAllString(key, -1),
			recent: recent,
		})
	}
	return out
}

func (s *FrequencySummarizer) pick(sents []sentence, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	if len(sents) > maxSentences {
		sents = s.top(sents, maxSentences)
	}
	texts := make([]string, len(sents))
	for i, st := range sents {
		texts[i] = st.text
	}
	return strings.Join(texts, " ")
}

// top returns the n best sentences, still in input order.
func (s *FrequencySummarizer) top(sents []sentence, n int) []sentence {
	freq := map[string]float64{}
	maxF := 0.0
	for _, st := range sents {
		for _, tok := range st.tokens {
			if _, stop := s.stopwords[tok]; stop {
				continue
			}
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}

	scores := make([]float64, len(sents))
	order := make([]int, len(sents))
	for i, st := range sents {
		order[i] = i
		if len(st.tokens) == 0 || maxF == 0 {
			continue
		}
		sum := 0.0
		for _, tok := range st.tokens {
			sum += freq[tok] / maxF
		}
		// long sentences would win on length alone
		scores[i] = sum / math.Sqrt(float64(len(st.tokens)))
		if st.recent {
			scores[i] *= s.recencyBoost
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	keep := order[:n]
	sort.Ints(keep)
	out := make([]sentence, n)
	for i, idx := range keep {
		out[i] = sents[idx]
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
