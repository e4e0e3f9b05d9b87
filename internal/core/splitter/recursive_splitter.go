package splitter

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators go from coarsest to finest: paragraph, line, sentence, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

var (
	// ErrInputShape is returned when page texts and page metadatas are not aligned.
	ErrInputShape = errors.New("page texts and metadatas differ in length")

	// ErrInvalidConfig is returned by NewRecursiveSplitter for unusable size/overlap settings.
	ErrInvalidConfig = errors.New("invalid splitter configuration")
)

// RecursiveSplitter cuts text on the coarsest separator that keeps pieces under ChunkSize,
// then greedily merges pieces back into chunks that overlap by at most ChunkOverlap runes.
//
// Lengths are measured in runes. Whitespace separators stay attached to the start of the piece
// that follows them; the punctuation of a separator such as ". " ends the piece before it.
// Either way, joining consecutive pieces reproduces the source text.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// Option configures a RecursiveSplitter.
type Option func(*RecursiveSplitter)

// WithChunkSize sets the target maximum chunk length.
func WithChunkSize(n int) Option {
	return func(s *RecursiveSplitter) { s.chunkSize = n }
}

// WithChunkOverlap sets how many trailing runes of a chunk may be repeated in the next one.
func WithChunkOverlap(n int) Option {
	return func(s *RecursiveSplitter) { s.chunkOverlap = n }
}

// WithSeparators replaces the separator priority list.
func WithSeparators(seps ...string) Option {
	return func(s *RecursiveSplitter) {
		s.separators = append([]string(nil), seps...)
	}
}

// NewRecursiveSplitter returns a splitter with 1000/200 defaults.
func NewRecursiveSplitter(opts ...Option) (*RecursiveSplitter, error) {
	s := &RecursiveSplitter{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		separators:   DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, s.chunkSize)
	}
	if s.chunkOverlap < 0 || s.chunkOverlap >= s.chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", ErrInvalidConfig, s.chunkOverlap, s.chunkSize)
	}
	if len(s.separators) == 0 {
		return nil, fmt.Errorf("%w: at least one separator is required", ErrInvalidConfig)
	}
	return s, nil
}

func (s *RecursiveSplitter) ChunkSize() int    { return s.chunkSize }
func (s *RecursiveSplitter) ChunkOverlap() int { return s.chunkOverlap }

// Split turns each page into chunks. Pages are split independently and in order; every chunk
// receives its own copy of its page's metadata plus a loc.lines range.
func (s *RecursiveSplitter) Split(texts []string, metadatas []map[string]any) ([]models.Chunk, error) {
	if len(texts) != len(metadatas) {
		return nil, fmt.Errorf("%w: %d texts, %d metadatas", ErrInputShape, len(texts), len(metadatas))
	}

	var out []models.Chunk
	for i, text := range texts {
		var (
			lineCounter = 1
			prevChunk   string
			prevIndex   = -1
		)

		for n, piece := range s.SplitText(text) {
			idx := indexFrom(text, piece, prevIndex+1)
			if n == 0 {
				lineCounter += strings.Count(text[:idx], "\n")
			} else {
				prevEnd := min(prevIndex+len(prevChunk), len(text))
				switch {
				case prevEnd < idx:
					lineCounter += strings.Count(text[prevEnd:idx], "\n")
				case prevEnd > idx:
					lineCounter -= strings.Count(text[idx:prevEnd], "\n")
				}
			}
			newLines := strings.Count(piece, "\n")

			meta := cloneMap(metadatas[i])
			loc, _ := meta[models.MetaLoc].(map[string]any)
			if loc == nil {
				loc = make(map[string]any, 1)
			}
			loc["lines"] = map[string]any{"from": lineCounter, "to": lineCounter + newLines}
			meta[models.MetaLoc] = loc
			out = append(out, models.Chunk{Text: piece, Metadata: meta})

			lineCounter += newLines
			prevChunk = piece
			prevIndex = idx
		}
	}
	return out, nil
}

// SplitText splits a single text into trimmed, non-empty chunks.
func (s *RecursiveSplitter) SplitText(text string) []string {
	return s.splitText(text, s.separators)
}

func (s *RecursiveSplitter) splitText(text string, separators []string) []string {
	var (
		final     []string
		separator = separators[len(separators)-1]
		finer     []string
	)
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.mergeSplits(good)...)
			good = nil
		}
		if len(finer) == 0 {
			// Indivisible with the remaining separators; emitted oversized.
			if t := strings.TrimSpace(piece); t != "" {
				final = append(final, t)
			}
			continue
		}
		final = append(final, s.splitText(piece, finer)...)
	}
	if len(good) > 0 {
		final = append(final, s.mergeSplits(good)...)
	}
	return final
}

// mergeSplits greedily packs pieces into chunks, seeding each new chunk with the tail of the
// previous one until at most chunkOverlap runes are carried over.
func (s *RecursiveSplitter) mergeSplits(pieces []string) []string {
	var (
		docs    []string
		current []string
		lengths []int
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.chunkSize && len(current) > 0 {
			if doc := joinTrimmed(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
				total -= lengths[0]
				current, lengths = current[1:], lengths[1:]
			}
		}
		current = append(current, piece)
		lengths = append(lengths, n)
		total += n
	}
	if doc := joinTrimmed(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepingSeparator cuts text at every occurrence of sep. The cut falls after the
// separator's leading punctuation and before its whitespace, so ". " leaves the period on the
// preceding piece. An empty separator splits into runes. Empty pieces are dropped.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	var (
		out   []string
		start int
	)
	lead := len(strings.TrimRightFunc(sep, unicode.IsSpace))
	for i := 1; i < len(text); i++ {
		if !strings.HasPrefix(text[i:], sep) {
			continue
		}
		if cut := i + lead; cut > start && cut < len(text) {
			out = append(out, text[start:cut])
			start = cut
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func joinTrimmed(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// indexFrom is strings.Index starting at byte offset from; it returns from when absent.
func indexFrom(text, sub string, from int) int {
	if from > len(text) {
		from = len(text)
	}
	if i := strings.Index(text[from:], sub); i >= 0 {
		return from + i
	}
	return from
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
