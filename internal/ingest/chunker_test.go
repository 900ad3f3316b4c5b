package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks := ChunkText("hello world", 1000)
	assert.Equal(t, []string{"hello world"}, chunks)
}

func TestChunkText_Empty(t *testing.T) {
	assert.Empty(t, ChunkText("", 1000))
	assert.Empty(t, ChunkText("   \n\t ", 1000))
}

func TestChunkText_BreaksOnWordBoundary(t *testing.T) {
	chunks := ChunkText("alpha beta gamma delta", 11)
	require.Len(t, chunks, 2)
	assert.Equal(t, "alpha beta", chunks[0])
	assert.Equal(t, "gamma delta", chunks[1])

	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 11)
	}
}

func TestChunkText_NoTextLost(t *testing.T) {
	words := make([]string, 500)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	chunks := ChunkText(text, 97)
	var total int
	for _, c := range chunks {
		total += len(strings.Fields(c))
	}
	assert.Equal(t, 500, total)
}

func TestChunkText_UnbrokenWordIsSplit(t *testing.T) {
	text := strings.Repeat("a", 2500)
	chunks := ChunkText(text, 1000)
	require.Len(t, chunks, 3)
	assert.Equal(t, 2500, len(chunks[0])+len(chunks[1])+len(chunks[2]))
}

func TestChunkText_RuneBoundaries(t *testing.T) {
	// Multi-byte runes must never be split mid-encoding.
	text := strings.Repeat("日本語 ", 400)
	chunks := ChunkText(text, 100)
	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c, "日"), "chunk starts mid-word: %q", c[:12])
		assert.LessOrEqual(t, len([]rune(c)), 100)
	}
}

func TestChunkText_ZeroSizeUsesDefault(t *testing.T) {
	text := strings.Repeat("word ", 300)
	chunks := ChunkText(text, 0)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), DefaultChunkSize)
	}
	assert.NotEmpty(t, chunks)
}
