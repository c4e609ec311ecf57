package knowledge

import "strings"

// DefaultChunkSize is the character budget of one chunk.
const DefaultChunkSize = 300

// ChunkText splits text on ". " and packs whole sentences into chunks.
// A sentence is appended while the running chunk plus the sentence stays
// under maxChars; otherwise the chunk is flushed and the sentence starts a
// new one. A single sentence longer than maxChars becomes its own chunk.
// A blank sentence inside a chunk still contributes its ". " so
// "A. . B" stays "A. . B."; blank sentences that would open a chunk are
// dropped, and so are empty chunks.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}
	var chunks []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			chunks = append(chunks, s)
		}
		b.Reset()
	}
	for _, sentence := range strings.Split(text, ". ") {
		if b.Len()+len(sentence) >= maxChars {
			flush()
		}
		if b.Len() == 0 && strings.TrimSpace(sentence) == "" {
			continue
		}
		b.WriteString(sentence)
		b.WriteString(". ")
	}
	flush()
	return chunks
}
