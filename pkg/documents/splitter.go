package documents

import (
	"strings"
	"unicode/utf8"
)

// Chunking defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveSplitter cuts text on the coarsest separator that yields pieces
// under ChunkSize, recursing into finer separators for oversized pieces.
// Neighbouring pieces are merged back up to ChunkSize with ChunkOverlap
// runes of shared context. Separators stay attached to the following piece.
type RecursiveSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewRecursiveSplitter applies defaults for non-positive values.
func NewRecursiveSplitter(size, overlap int) *RecursiveSplitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &RecursiveSplitter{ChunkSize: size, ChunkOverlap: overlap, Separators: DefaultSeparators}
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// SplitText returns trimmed, non-empty chunks.
func (s *RecursiveSplitter) SplitText(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return s.split(text, seps)
}

func (s *RecursiveSplitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, candidate := range seps {
		if candidate == "" {
			sep = candidate
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var out, good []string
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if t := strings.TrimSpace(piece); t != "" {
				out = append(out, t)
			}
			continue
		}
		out = append(out, s.split(piece, rest)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// splitKeep splits on sep, prefixing every piece after the first with sep.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *RecursiveSplitter) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	flush := func() {
		if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
			docs = append(docs, doc)
		}
	}
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.ChunkSize && len(current) > 0 {
			flush()
			for total > s.ChunkOverlap || (total+n > s.ChunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if len(current) > 0 {
		flush()
	}
	return docs
}

// SplitPages chunks every page and numbers chunks across the whole document.
func (s *RecursiveSplitter) SplitPages(pages []Page) []Chunk {
	var chunks []Chunk
	for _, p := range pages {
		for _, text := range s.SplitText(p.Text) {
			idx := len(chunks)
			chunks = append(chunks, Chunk{
				Meta:     p.Meta,
				ID:       ChunkID(p.DocumentID, idx),
				Page:     p.Number,
				Index:    idx,
				Content:  text,
				Checksum: checksum(text),
			})
		}
	}
	return chunks
}
