package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ragmem/internal/domain"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// DefaultOverlap is DefaultChunkOverlap capped at half of chunkSize.
func DefaultOverlap(chunkSize int) int {
	if chunkSize <= 0 {
		return 0
	}
	return min(DefaultChunkOverlap, chunkSize/2)
}

// DefaultSeparators are tried in order: paragraph, line, sentence end, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

// RecursiveChunker splits text on the first separator present in it, merges the
// pieces back into chunks of at most chunkSize runes, and recurses with the
// remaining separators for pieces that are still too long.
type RecursiveChunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewRecursiveChunker validates the sizes and returns a chunker using DefaultSeparators.
func NewRecursiveChunker(chunkSize, chunkOverlap int) (*RecursiveChunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap > chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d outside [0, %d]", domain.ErrInvalidInput, chunkOverlap, chunkSize)
	}
	return &RecursiveChunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}, nil
}

// Split returns the ordered chunks of text. Whitespace-only input yields none.
func (c *RecursiveChunker) Split(text string) ([]string, error) {
	return c.split(text, c.separators), nil
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	var final, small []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if utf8.RuneCountInString(piece) < c.chunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			final = append(final, c.merge(small)...)
			small = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, c.split(piece, rest)...)
		}
	}
	if len(small) > 0 {
		final = append(final, c.merge(small)...)
	}
	return final
}

// merge packs pieces into chunks, carrying up to chunkOverlap runes of
// trailing pieces into the next chunk.
func (c *RecursiveChunker) merge(pieces []string) []string {
	var chunks, current []string
	total := 0
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > c.chunkSize && len(current) > 0 {
			if chunk := joinPieces(current); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > c.chunkOverlap || (total+n > c.chunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if chunk := joinPieces(current); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepSeparator splits on sep and keeps it at the start of each following piece.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func joinPieces(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}
