// Package chunker splits extracted document text into overlapping,
// size-bounded, sentence-respecting segments.
//
// Every character of the input lands in at least one chunk, and adjacent
// chunks share an overlap window so local context survives the boundary.
// Chunk order is significant and stable: position in the returned slice is
// the chunk index persisted alongside the text.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChars is the default chunk size bound.
	DefaultMaxChars = 500

	// DefaultOverlapChars is the default inter-chunk overlap window.
	DefaultOverlapChars = 100

	// maxChunkChars caps a single chunk's stored text. Matches the payload
	// field bound in the vector index schema.
	maxChunkChars = 1000
)

// sentencePattern tokenizes on terminal punctuation, keeping the terminator
// with its sentence.
var sentencePattern = regexp.MustCompile(`(?s)[^.!?]+[.!?]+|[^.!?]+$`)

// Split breaks text into sentence-aligned chunks of roughly maxChars
// characters. When a sentence overflows the running chunk, the chunk is
// closed and the next one opens with the closed chunk's trailing
// overlapChars characters followed by the full overflowing sentence.
//
// Empty or whitespace-only input yields nil. A single sentence longer than
// maxChars is windowed into fixed-size overlapping pieces rather than
// being truncated or dropped. All boundaries fall on rune starts.
func Split(text string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlapChars < 0 {
		overlapChars = DefaultOverlapChars
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	sentences := tokenizeSentences(trimmed)

	var chunks []string
	var current strings.Builder
	seed := ""

	// flush closes the running chunk and re-seeds the builder with its
	// tail, so the next chunk repeats the overlap window.
	flush := func() {
		chunk := strings.TrimSpace(current.String())
		current.Reset()
		if chunk == "" {
			return
		}
		chunk = truncate(chunk, maxChunkChars)
		chunks = append(chunks, chunk)
		seed = overlapTail(chunk, overlapChars)
		current.WriteString(seed)
	}

	for _, sentence := range sentences {
		if len(sentence) > maxChars {
			// An unbreakable sentence gets the flat sliding-window
			// treatment: maxChars pieces stepping by maxChars-overlap,
			// every character covered.
			if current.Len() > len(seed) {
				flush()
			}
			current.Reset()
			pieces := windowText(sentence, maxChars, overlapChars)
			chunks = append(chunks, pieces...)
			seed = overlapTail(pieces[len(pieces)-1], overlapChars)
			current.WriteString(seed)
			continue
		}

		// Only close a chunk that holds content beyond its seed.
		if current.Len() > len(seed) && current.Len()+1+len(sentence) > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}

	// The final chunk is kept unless it is nothing but the seed, which
	// the previous chunk already carries.
	if chunk := strings.TrimSpace(current.String()); chunk != "" && chunk != strings.TrimSpace(seed) {
		chunks = append(chunks, truncate(chunk, maxChunkChars))
	}

	return chunks
}

// tokenizeSentences splits text into trimmed sentences.
func tokenizeSentences(text string) []string {
	raw := sentencePattern.FindAllString(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

// windowText slices an oversized run of text into maxChars windows
// stepping by maxChars-overlapChars, aligned to rune starts.
func windowText(s string, maxChars, overlapChars int) []string {
	step := maxChars - overlapChars
	if step <= 0 {
		step = maxChars
	}

	var pieces []string
	start := 0
	for start < len(s) {
		end := start + maxChars
		if end >= len(s) {
			pieces = append(pieces, s[start:])
			break
		}
		end = runeBoundaryBefore(s, end)
		if end <= start {
			end = start + maxChars
		}
		pieces = append(pieces, s[start:end])

		next := runeBoundaryBefore(s, start+step)
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

// overlapTail returns the chunk's trailing overlap window: the whole
// chunk when it fits, otherwise its last overlapChars bytes aligned
// forward to a rune start.
func overlapTail(chunk string, overlapChars int) string {
	if len(chunk) <= overlapChars {
		return chunk
	}
	i := len(chunk) - overlapChars
	for i < len(chunk) && !utf8.RuneStart(chunk[i]) {
		i++
	}
	return chunk[i:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:runeBoundaryBefore(s, n)]
}

// runeBoundaryBefore returns the largest rune start index at or below i.
func runeBoundaryBefore(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
