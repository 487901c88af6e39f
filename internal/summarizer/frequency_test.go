package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencySummarizer_ShortTextKept(t *testing.T) {
	s := NewFrequencySummarizer()
	out, err := s.Summarize("  Hello there.   How are you?  ", 5)
	require.NoError(t, err)
	assert.Equal(t, "Hello there. How are you?", out)

	out, err = s.Summarize("no punctuation at all", 2)
	require.NoError(t, err)
	assert.Equal(t, "no punctuation at all", out)

	out, err = s.Summarize("   ", 2)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFrequencySummarizer_KeepsTopSentencesInOrder(t *testing.T) {
	text := "Go channels carry values. The weather was mild. " +
		"Goroutines and channels make Go concurrency simple. Lunch was late. " +
		"Channels in Go block until ready."
	out, err := NewFrequencySummarizer().Summarize(text, 2)
	require.NoError(t, err)
	assert.NotContains(t, out, "weather")
	assert.NotContains(t, out, "Lunch")
	assert.Contains(t, out, "channels")
}

func TestFrequencySummarizer_DefaultLimit(t *testing.T) {
	text := "One fish. Two fish. Red fish. Blue fish. Old fish. New fish. Last fish."
	out, err := NewFrequencySummarizer().Summarize(text, 0)
	require.NoError(t, err)
	assert.Len(t, NewFrequencySummarizer().sentencePattern.FindAllString(out, -1), 5)
}

func TestFrequencySummarizer_RepeatedSentencesCountOnce(t *testing.T) {
	out, err := NewFrequencySummarizer().Summarize("Cats nap. cats nap. Dogs bark.", 5)
	require.NoError(t, err)
	assert.Equal(t, "Cats nap. Dogs bark.", out)
}

func TestFrequencySummarizer_SummarizeTurnFollowsConversation(t *testing.T) {
	previous := "Goroutines are cheap. Goroutines run concurrently. Goroutines share memory. " +
		"Goroutines need sync. Goroutines can leak."
	turn := "User: What about channels?\nAI: Channels pass values."
	s := NewFrequencySummarizer()

	plain, err := s.Summarize(previous+"\n"+turn, 5)
	require.NoError(t, err)
	assert.NotContains(t, plain, "Channels pass values.")

	folded, err := s.SummarizeTurn(previous, turn, 5)
	require.NoError(t, err)
	assert.Equal(t, "Goroutines are cheap. Goroutines run concurrently. Goroutines share memory. "+
		"Goroutines need sync. AI: Channels pass values.", folded)

	flat, err := NewFrequencySummarizer(WithRecencyBoost(1)).SummarizeTurn(previous, turn, 5)
	require.NoError(t, err)
	assert.Equal(t, plain, flat)
}

func TestFrequencySummarizer_SummarizeTurnSkipsKnownSentences(t *testing.T) {
	out, err := NewFrequencySummarizer().SummarizeTurn("Cats nap.", "Cats nap. Dogs bark.", 5)
	require.NoError(t, err)
	assert.Equal(t, "Cats nap. Dogs bark.", out)
}
