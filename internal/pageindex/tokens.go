package pageindex

import (
	"math"
	"strings"
	"unicode"
)

// CountTokens provides a simple token count approximation.
// Most tokenizers produce ~1.3 tokens per word, punctuation is roughly
// every other mark a separate token.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}

	wordCount := len(strings.Fields(text))

	punctCount := 0
	for _, r := range text {
		if unicode.IsPunct(r) {
			punctCount++
		}
	}

	return int(float64(wordCount)*1.3) + punctCount/2
}

// Chunk is a contiguous window of pages bounded by a token budget. StartPage
// and EndPage are the 1-based indices of its first and last page.
type Chunk struct {
	StartPage int
	EndPage   int
	Tokens    int
	Text      string
}

// Pages returns the number of pages in the chunk.
func (c Chunk) Pages() int {
	return c.EndPage - c.StartPage + 1
}

// MarkPage wraps page text in physical index tags so the oracle can report
// positions.
func MarkPage(p Page) string {
	tag := PhysicalIndexTag(p.Index)
	return tag + "\n" + p.Text + "\n" + tag + "\n\n"
}

// MarkPages concatenates the marked text of pages.
func MarkPages(pages []Page) string {
	var sb strings.Builder
	for _, p := range pages {
		sb.WriteString(MarkPage(p))
	}
	return sb.String()
}

// ChunkPages groups pages into windows of at most budget tokens. When the
// corpus fits it is returned whole. Otherwise the target size sits halfway
// between the even split and the budget, and each new chunk re-includes the
// last overlap pages of the previous one. A single page larger than the
// target still forms a chunk on its own.
func ChunkPages(pages []Page, budget, overlap int) []Chunk {
	if len(pages) == 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}

	total := 0
	for _, p := range pages {
		total += p.TokenCount
	}
	if budget <= 0 || total <= budget {
		return []Chunk{newChunk(pages)}
	}

	expectedParts := int(math.Ceil(float64(total) / float64(budget)))
	target := int(math.Ceil((float64(total)/float64(expectedParts) + float64(budget)) / 2))

	var chunks []Chunk
	start, tokens, fresh := 0, 0, 0
	for i, p := range pages {
		if fresh > 0 && tokens+p.TokenCount > target {
			chunks = append(chunks, newChunk(pages[start:i]))

			next := max(i-overlap, start)
			tokens = 0
			for _, q := range pages[next:i] {
				tokens += q.TokenCount
			}
			start, fresh = next, 0
		}
		tokens += p.TokenCount
		fresh++
	}
	chunks = append(chunks, newChunk(pages[start:]))
	return chunks
}

func newChunk(pages []Page) Chunk {
	c := Chunk{StartPage: pages[0].Index, EndPage: pages[len(pages)-1].Index}
	var sb strings.Builder
	for _, p := range pages {
		c.Tokens += p.TokenCount
		sb.WriteString(MarkPage(p))
	}
	c.Text = sb.String()
	return c
}
