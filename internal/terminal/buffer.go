package terminal

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultBufferLimit is the replay buffer cap in characters.
const DefaultBufferLimit = 200000

// Buffer retains the most recent terminal output for replay.
//
// Output is kept as the chunks it arrived in and evicted whole, oldest
// first, while the retained size exceeds the limit. A single chunk longer
// than the limit keeps only its last limit characters, so the replay is
// always a suffix of the output and never larger than the limit. Because
// eviction is chunk-granular an escape sequence can occasionally be cut at
// the replay start.
type Buffer struct {
	mu     sync.Mutex
	chunks []string
	sizes  []int
	size   int
	limit  int
}

// NewBuffer creates a buffer holding about limit characters.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &Buffer{limit: limit}
}

// Append adds a chunk and evicts old ones over the limit.
func (b *Buffer) Append(text string) {
	if text == "" {
		return
	}
	n := utf8.RuneCountInString(text)

	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.limit {
		text = lastRunes(text, n-b.limit)
		n = b.limit
		b.chunks, b.sizes, b.size = b.chunks[:0], b.sizes[:0], 0
	}

	b.chunks = append(b.chunks, text)
	b.sizes = append(b.sizes, n)
	b.size += n

	drop := 0
	for b.size > b.limit {
		b.size -= b.sizes[drop]
		drop++
	}
	if drop > 0 {
		// Copy down so the backing arrays do not pin evicted chunks.
		b.chunks = append(b.chunks[:0], b.chunks[drop:]...)
		b.sizes = append(b.sizes[:0], b.sizes[drop:]...)
	}
}

// lastRunes drops the first skip runes of s.
func lastRunes(s string, skip int) string {
	for i := range s {
		if skip == 0 {
			return s[i:]
		}
		skip--
	}
	return ""
}

// Replay returns the retained output in order.
func (b *Buffer) Replay() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return strings.Join(b.chunks, "")
}

// Len returns the retained size in characters.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Chunks returns the number of retained chunks.
func (b *Buffer) Chunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}
