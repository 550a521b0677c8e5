// Package chunker splits normalized page text into overlapping windows sized
// for the embedding model.
package chunker

import (
	"regexp"
	"strings"
)

// Chunker accumulates sentences into character-budgeted windows. Consecutive
// windows overlap so that a fact straddling a boundary is embedded whole in
// at least one of them.
type Chunker struct {
	maxChars     int
	overlapChars int
	splitter     *regexp.Regexp
}

// New builds a Chunker. Non-positive arguments fall back to the defaults
// (1000-char windows, 200-char overlap).
func New(maxChars, overlapChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = 1000
	}
	if overlapChars < 0 || overlapChars >= maxChars {
		overlapChars = maxChars / 5
	}
	return &Chunker{
		maxChars:     maxChars,
		overlapChars: overlapChars,
		splitter:     regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Split breaks text into windows. The returned slice preserves document
// order; the index of each element is its position within the source.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := c.splitter.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, current.String())
		tail := overlapTail(current.String(), c.overlapChars)
		current.Reset()
		current.WriteString(tail)
	}

	for _, sentence := range sentences {
		if sentence == "" {
			continue
		}
		// A single sentence longer than the window is split hard; rare in
		// practice since extraction collapses whitespace first.
		for len(sentence) > c.maxChars {
			if current.Len() > 0 {
				flush()
			}
			cut := wordBoundary(sentence, c.maxChars)
			current.WriteString(sentence[:cut])
			flush()
			sentence = strings.TrimSpace(sentence[cut:])
		}
		if current.Len() > 0 && current.Len()+1+len(sentence) > c.maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if strings.TrimSpace(current.String()) != "" {
		last := strings.TrimSpace(current.String())
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], last) {
			chunks = append(chunks, last)
		}
	}
	return chunks
}

// overlapTail returns the trailing portion of a window carried into the next
// one, snapped back to a word boundary.
func overlapTail(s string, overlap int) string {
	if overlap <= 0 || len(s) <= overlap {
		return ""
	}
	tail := s[len(s)-overlap:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 {
		tail = tail[idx+1:]
	}
	return tail
}

// wordBoundary finds the byte offset at or before limit that ends on a space,
// so a hard split never cuts mid-word.
func wordBoundary(s string, limit int) int {
	if len(s) <= limit {
		return len(s)
	}
	if idx := strings.LastIndexByte(s[:limit], ' '); idx > 0 {
		return idx
	}
	return limit
}
