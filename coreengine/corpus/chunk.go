package corpus

import "strings"

// Chunking defaults for ingested documents.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ChunkText splits text into overlapping chunks of at most size bytes,
// preferring to cut just after a sentence terminator in the last 200 bytes.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if len(text) <= size {
		if strings.TrimSpace(text) == "" {
			return []string{}
		}
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end < len(text) {
			floor := start + size - DefaultChunkOverlap
			if floor < start {
				floor = start
			}
			for i := end; i > floor; i-- {
				if c := text[i]; c == '.' || c == '!' || c == '?' {
					end = i + 1
					break
				}
			}
		} else {
			end = len(text)
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
