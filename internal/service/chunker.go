package service

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

var offlineBPE sync.Once

// Chunker splits transcript text into ordered segments of at most limit
// tokens. A single unit larger than limit becomes its own segment.
type Chunker interface {
	Chunk(text string, limit int) []string
}

// TokenEstimator returns the token cost of one whitespace-delimited word.
type TokenEstimator func(word string) int

// HeuristicTokens charges roughly one token per four characters.
func HeuristicTokens(word string) int {
	return utf8.RuneCountInString(word)/4 + 1
}

// WordTokens charges one token per word.
func WordTokens(string) int {
	return 1
}

// WordChunker packs whole words greedily.
type WordChunker struct {
	estimate TokenEstimator
}

func NewWordChunker(estimate TokenEstimator) *WordChunker {
	if estimate == nil {
		estimate = HeuristicTokens
	}
	return &WordChunker{estimate: estimate}
}

func (c *WordChunker) Chunk(text string, limit int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var (
		chunks  []string
		current []string
		used    int
	)
	for _, w := range words {
		cost := c.estimate(w)
		if len(current) > 0 && used+cost > limit {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			used = 0
		}
		current = append(current, w)
		used += cost
	}
	return append(chunks, strings.Join(current, " "))
}

// TokenChunker cuts the exact BPE token stream into groups of at most limit
// tokens. Boundaries may fall inside a word but never inside a token or a
// UTF-8 character, so every segment is valid text.
type TokenChunker struct {
	enc *tiktoken.Tiktoken
}

// NewTokenChunker loads encoding from the ranks embedded in the binary.
func NewTokenChunker(encoding string) (*TokenChunker, error) {
	offlineBPE.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", encoding, err)
	}
	return &TokenChunker{enc: enc}, nil
}

func (c *TokenChunker) Chunk(text string, limit int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if limit < 1 {
		limit = 1
	}

	tokens := c.enc.Encode(strings.ToValidUTF8(text, "\uFFFD"), nil, nil)
	chunks := make([]string, 0, len(tokens)/limit+1)
	for start := 0; start < len(tokens); {
		end := start + limit
		if end > len(tokens) {
			end = len(tokens)
		}
		cut := c.runeBoundary(tokens, start, end)
		chunks = append(chunks, c.enc.Decode(tokens[start:cut]))
		start = cut
	}
	return chunks
}

// runeBoundary returns the largest cut in (start, end] whose decoded bytes
// end on a complete character. Byte-level tokens of one character stay
// together; when a character needs more than end-start tokens the cut moves
// forward past it instead.
func (c *TokenChunker) runeBoundary(tokens []int, start, end int) int {
	for cut := end; cut > start; cut-- {
		if utf8.ValidString(c.enc.Decode(tokens[start:cut])) {
			return cut
		}
	}
	for cut := end + 1; cut < len(tokens); cut++ {
		if utf8.ValidString(c.enc.Decode(tokens[start:cut])) {
			return cut
		}
	}
	return len(tokens)
}

// NewChunker returns the chunker named by kind: "heuristic" or "tiktoken".
func NewChunker(kind string) (Chunker, error) {
	switch kind {
	case "", "heuristic":
		return NewWordChunker(HeuristicTokens), nil
	case "tiktoken":
		return NewTokenChunker("cl100k_base")
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", kind)
	}
}
