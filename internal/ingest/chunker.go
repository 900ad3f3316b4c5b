package ingest

import "strings"

// DefaultChunkSize is the maximum chunk length in runes.
const DefaultChunkSize = 1000

// ChunkText splits text into chunks of at most size runes, breaking on the
// last space before the boundary so words are never split. Chunks are
// trimmed; empty chunks are dropped. No text is lost between chunks.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var chunks []string
	runes := []rune(strings.TrimSpace(text))

	for len(runes) > 0 {
		if len(runes) <= size {
			if chunk := strings.TrimSpace(string(runes)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := size
		// Back up to the last space inside the window, unless the window is
		// a single unbroken word.
		for i := size; i > 0; i-- {
			if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
				cut = i
				break
			}
		}

		if chunk := strings.TrimSpace(string(runes[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
		for len(runes) > 0 && (runes[0] == ' ' || runes[0] == '\n' || runes[0] == '\t') {
			runes = runes[1:]
		}
	}

	return chunks
}
