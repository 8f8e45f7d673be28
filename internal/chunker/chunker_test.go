package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyInput(t *testing.T) {
	assert.Nil(t, Split("", DefaultMaxChars, DefaultOverlapChars))
	assert.Nil(t, Split("   \n\t  ", DefaultMaxChars, DefaultOverlapChars))
}

func TestSplitSingleShortSentence(t *testing.T) {
	chunks := Split("Just one sentence.", 500, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Just one sentence.", chunks[0])
}

func TestSplitAccumulatesSentencesWithinBound(t *testing.T) {
	text := "First sentence here. Second sentence here. Third sentence here."
	chunks := Split(text, 500, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitRespectsMaxChars(t *testing.T) {
	var sentences []string
	for i := 0; i < 20; i++ {
		sentences = append(sentences, "This sentence is roughly fifty characters long ok.")
	}
	chunks := Split(strings.Join(sentences, " "), 200, 40)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 200, "chunk %d exceeds bound", i)
	}
}

func TestSplitOverlapSeedsNextChunk(t *testing.T) {
	long := "A" + strings.Repeat("a", 150) + " ends with marker tail."
	text := "Filler sentence taking space. " + long + " Following sentence."
	chunks := Split(text, 60, 20)
	require.Greater(t, len(chunks), 1)

	// The overflowing sentence's tail must open a following chunk.
	tail := long[len(long)-20:]
	found := false
	for _, chunk := range chunks {
		if strings.HasPrefix(chunk, tail) {
			found = true
		}
	}
	assert.True(t, found, "expected a chunk seeded with the overflow tail %q", tail)
}

func TestSplitWholeSentenceAsSeedWhenShorterThanOverlap(t *testing.T) {
	text := strings.Repeat("Long filler sentence padding the first chunk nicely. ", 2) + "Tiny one."
	chunks := Split(text, 60, 100)
	require.Greater(t, len(chunks), 1)
	last := chunks[len(chunks)-1]
	assert.Contains(t, last, "Tiny one.")
}

func TestSplitOversizedSentenceIsWindowed(t *testing.T) {
	giant := strings.Repeat("x", 700) + "."
	chunks := Split(giant, 500, 100)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 500, "chunk %d exceeds bound", i)
	}
	// Windows step by maxChars-overlap, so concatenation covers it all.
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	assert.GreaterOrEqual(t, total, len(giant))
}

func TestSplitKeepsOverflowingSentenceHead(t *testing.T) {
	first := strings.Repeat("a", 398) + "."
	second := "HEADMARKER " + strings.Repeat("b", 120) + " TAILMARKER."
	chunks := Split(first+" "+second, 500, 100)
	require.Len(t, chunks, 2)

	// The sentence that overflowed chunk 0 must appear whole, head
	// included, in the next chunk.
	assert.Contains(t, chunks[1], "HEADMARKER")
	assert.Contains(t, chunks[1], "TAILMARKER")

	// Adjacent chunks share the overlap window.
	tail := chunks[0][len(chunks[0])-100:]
	assert.True(t, strings.HasPrefix(chunks[1], tail),
		"chunk 1 must open with chunk 0's overlap tail")
}

func TestSplitCoversAllSentences(t *testing.T) {
	var sentences []string
	for i := 0; i < 12; i++ {
		sentences = append(sentences, "Sentence number "+strings.Repeat("word ", i+5)+"ends here.")
	}
	text := strings.Join(sentences, " ")
	chunks := Split(text, 120, 30)
	joined := strings.Join(chunks, " ")
	for i, sentence := range sentences {
		assert.Contains(t, joined, sentence, "sentence %d missing from output", i)
	}
}

func TestSplitMultibyteRunesStayIntact(t *testing.T) {
	chunks := Split(strings.Repeat("漢", 400), 500, 100)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %d is not valid UTF-8", i)
	}

	mixed := "Résumé première partie. " + strings.Repeat("é", 300) + " Fin de la série."
	for i, chunk := range Split(mixed, 100, 20) {
		assert.True(t, utf8.ValidString(chunk), "chunk %d is not valid UTF-8", i)
	}
}

func TestOverlapTailRuneAligned(t *testing.T) {
	tail := overlapTail(strings.Repeat("漢", 50), 20)
	assert.True(t, utf8.ValidString(tail))
	assert.LessOrEqual(t, len(tail), 20)
}

func TestTruncateRuneAligned(t *testing.T) {
	out := truncate(strings.Repeat("漢", 400), 1000)
	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, len(out), 1000)
}

func TestSplitStableOrder(t *testing.T) {
	text := "Alpha sentence one. Beta sentence two. Gamma sentence three. Delta sentence four."
	first := Split(text, 40, 10)
	second := Split(text, 40, 10)
	assert.Equal(t, first, second)

	joined := strings.Join(first, " ")
	assert.Less(t, strings.Index(joined, "Alpha"), strings.Index(joined, "Gamma"))
}

func TestSplitNoTerminalPunctuation(t *testing.T) {
	chunks := Split("no punctuation at all just words", 500, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, "no punctuation at all just words", chunks[0])
}

func TestSplitDefaultsApplied(t *testing.T) {
	chunks := Split("A sentence.", 0, -5)
	require.Len(t, chunks, 1)
}
